/*Package pipeline runs a complete imaging reduction of one campaign.

The stages run strictly in order, each to completion:

	master bias
	master twilight flats, selected over FlatDates
	science frames, selected over all dates
	standard stars, when any are named
	co-addition of the calibrated science frames per target and filter

A stage that finds nothing to do is skipped and the run continues.  Any error,
including a toolkit call whose product is missing, stops the run.
*/
package pipeline

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/gmosred/gmosred/backend"
	"github.com/gmosred/gmosred/coadd"
	"github.com/gmosred/gmosred/gmos"
	"github.com/gmosred/gmosred/mastercal"
	"github.com/gmosred/gmosred/obslog"
	"github.com/gmosred/gmosred/query"
	"github.com/gmosred/gmosred/science"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ErrNoDir is generated when the configuration names no data directory
var ErrNoDir = errors.New("a data directory is required")

// Config describes one campaign
type Config struct {
	// Dir is the data directory holding raw frames, masters and products
	Dir string `yaml:"Dir"`

	// RawDir is where the raw bias frames are read from, Dir if empty
	RawDir string `yaml:"RawDir"`

	// MasterBias is the master bias file, relative to Dir unless absolute
	MasterBias string `yaml:"MasterBias"`

	// Criteria select the frames of the campaign
	Criteria query.Criteria `yaml:"Criteria"`

	// FlatDates is the DateObs range used to select twilight flats, Criteria.DateObs if empty
	FlatDates string `yaml:"FlatDates"`

	// Filters are the short filter names to process, in order
	Filters []string `yaml:"Filters"`

	// Targets are the object names to stack; each matches objects starting with it
	Targets []string `yaml:"Targets"`

	// Standards are photometric standards to calibrate, matched exactly
	Standards []string `yaml:"Standards"`

	// Overwrite rebuilds existing masters (after confirmation) and products
	Overwrite bool `yaml:"Overwrite"`

	// Prefix is the file prefix of calibrated frames fed to the co-addition
	Prefix string `yaml:"Prefix"`
}

// DefaultConfig is the first visit of SN2017eaw with GMOS-N
func DefaultConfig() Config {
	filters := make([]string, len(gmos.DefaultFilters))
	for i, f := range gmos.DefaultFilters {
		filters[i] = string(f)
	}
	return Config{
		Dir:        ".",
		MasterBias: gmos.MasterBias,
		Criteria: query.Criteria{
			UseMe:      1,
			Instrument: gmos.North,
			CcdBin:     "2 2",
			RoI:        "Full",
			Object:     "SN2017eaw%",
			DateObs:    "2018-06-10:2018-07-09",
		},
		FlatDates: "2018-06-01:2018-07-09",
		Filters:   filters,
		Targets:   []string{"SN2017eaw (first visit)"},
		Prefix:    gmos.CoaddPrefix,
	}
}

// Report is the outcome of every stage of a run
type Report struct {
	// RunID identifies the run in log lines
	RunID string

	Bias      mastercal.Result
	Flats     map[gmos.Filter]mastercal.Result
	Science   science.Products
	Standards science.Products
	Stacks    map[coadd.Key]string

	// Elapsed is the wall time of the run
	Elapsed time.Duration
}

// Driver runs the stages against one catalog and toolkit
type Driver struct {
	// Catalog is where frames are selected from
	Catalog obslog.Catalog

	// Backend is the reduction toolkit
	Backend backend.Backend

	// Confirm is asked before an existing master is overwritten, mastercal.Decline if nil
	Confirm mastercal.Confirmer

	// Logger receives progress messages, log.Default() if nil
	Logger *log.Logger
}

// Run executes the pipeline described by cfg.  The report holds whatever the
// stages completed, also when an error is returned.
func (d *Driver) Run(ctx context.Context, cfg Config) (Report, error) {
	start := time.Now()
	rep := Report{RunID: uuid.New().String()}
	if cfg.Dir == "" {
		return rep, ErrNoDir
	}
	filters, err := gmos.ParseFilters(cfg.Filters)
	if err != nil {
		return rep, err
	}
	if len(filters) == 0 {
		filters = gmos.DefaultFilters
	}
	// every stage sees the same absolute directories, whatever the process cwd
	dir, err := filepath.Abs(cfg.Dir)
	if err != nil {
		return rep, errors.Wrap(err, "resolving data directory")
	}
	rawDir := dir
	if cfg.RawDir != "" {
		if rawDir, err = filepath.Abs(cfg.RawDir); err != nil {
			return rep, errors.Wrap(err, "resolving raw directory")
		}
	}
	bias := cfg.MasterBias
	if bias == "" {
		bias = gmos.MasterBias
	}
	biasOut := bias
	if !filepath.IsAbs(biasOut) {
		biasOut = filepath.Join(dir, bias)
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = gmos.CoaddPrefix
	}

	base := d.Logger
	if base == nil {
		base = log.Default()
	}
	l := log.New(base.Writer(), fmt.Sprintf("%s[%s] ", base.Prefix(), rep.RunID[:8]), base.Flags())
	l.Printf("starting run %s in %s", rep.RunID, dir)

	builder := &mastercal.Builder{Catalog: d.Catalog, Backend: d.Backend, Confirm: d.Confirm, Logger: l, Filters: filters}
	l.Println("=== master bias ===")
	rep.Bias, err = builder.Bias(ctx, cfg.Criteria, rawDir, biasOut, cfg.Overwrite)
	if err != nil {
		return finish(rep, start), errors.Wrap(err, "master bias")
	}

	l.Println("=== master twilight flats ===")
	flatCrit := cfg.Criteria
	if cfg.FlatDates != "" {
		flatCrit.DateObs = cfg.FlatDates
	}
	rep.Flats, err = builder.Flats(ctx, flatCrit, dir, bias, cfg.Overwrite)
	if err != nil {
		return finish(rep, start), errors.Wrap(err, "master flats")
	}

	sciCrit := cfg.Criteria
	sciCrit.DateObs = query.AllDates
	cal := &science.Calibrator{Catalog: d.Catalog, Backend: d.Backend, Logger: l, Filters: filters}
	l.Println("=== science frames ===")
	rep.Science, err = cal.Calibrate(ctx, sciCrit, dir, bias, cfg.Overwrite)
	if err != nil {
		return finish(rep, start), errors.Wrap(err, "science calibration")
	}
	if len(cfg.Standards) > 0 {
		l.Println("=== standard stars ===")
		rep.Standards, err = cal.Standards(ctx, sciCrit, cfg.Standards, dir, bias, cfg.Overwrite)
		if err != nil {
			return finish(rep, start), errors.Wrap(err, "standard star calibration")
		}
	}

	l.Println("=== co-addition ===")
	co := &coadd.Coadder{Catalog: d.Catalog, Backend: d.Backend, Logger: l, Filters: filters, Overwrite: cfg.Overwrite}
	rep.Stacks, err = co.Coadd(ctx, sciCrit, cfg.Targets, dir, prefix)
	if err != nil {
		return finish(rep, start), errors.Wrap(err, "co-addition")
	}
	rep = finish(rep, start)
	l.Printf("finished in %s", rep.Elapsed.Round(time.Millisecond))
	return rep, nil
}

func finish(rep Report, start time.Time) Report {
	rep.Elapsed = time.Since(start)
	return rep
}
