package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gmosred/gmosred/backend"
	"github.com/gmosred/gmosred/coadd"
	"github.com/gmosred/gmosred/gmos"
	"github.com/gmosred/gmosred/mastercal"
	"github.com/gmosred/gmosred/obslog"
	"github.com/gmosred/gmosred/pipeline"
	"github.com/gmosred/gmosred/query"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"

	yml "gopkg.in/yaml.v2"
)

var (
	// Version is the version number.  Typically injected via ldflags with git build
	Version = "1"

	// ConfigFileName is what it sounds like
	ConfigFileName = "gmosred.yml"
	k              = koanf.New(".")
)

// Config is the contents of gmosred.yml
type Config struct {
	// Catalog is the obslog sqlite database, relative to Pipeline.Dir unless
	// absolute.  If empty, the raw frame headers in the data directory are
	// scanned instead.
	Catalog string `yaml:"Catalog"`

	// Interpreter is the python executable with pyraf installed
	Interpreter string `yaml:"Interpreter"`

	// Mock replaces the toolkit with a fake that writes placeholder files
	Mock bool `yaml:"Mock"`

	// Interactive asks on the terminal before overwriting a master frame;
	// otherwise overwrites of masters are declined
	Interactive bool `yaml:"Interactive"`

	// Spinner shows a spinner while the toolkit runs
	Spinner bool `yaml:"Spinner"`

	// ToolkitOutput shows the output of the toolkit
	ToolkitOutput bool `yaml:"ToolkitOutput"`

	Pipeline pipeline.Config `yaml:"Pipeline"`
}

func setupconfig() {
	k.Load(structs.Provider(Config{
		Catalog:     "obsLog.sqlite3",
		Interpreter: "python",
		Spinner:     true,
		Pipeline:    pipeline.DefaultConfig()}, "yaml"), nil)
	if err := k.Load(file.Provider(ConfigFileName), yaml.Parser()); err != nil {
		errtxt := err.Error()
		if !strings.Contains(errtxt, "no such") { // file missing, who cares
			log.Fatalf("error loading config: %v", err)
		}
	}
}

func loadconf() Config {
	c := Config{}
	err := k.UnmarshalWithConf("", &c, koanf.UnmarshalConf{Tag: "yaml"})
	if err != nil {
		log.Fatal(err)
	}
	return c
}

func root() {
	str := `gmosred reduces Gemini GMOS imaging data.  It builds the master bias and
twilight flats, calibrates and mosaics the science frames, and stacks them per
target and filter, driving the Gemini IRAF package through PyRAF.

Usage:
	gmosred <command>

Commands:
	run
	select <class> [filter]
	help
	mkconf
	conf
	version`
	fmt.Println(str)
}

func help() {
	str := `gmosred is configured with gmosred.yml in the working directory.  For a
primer on YAML, see https://yaml.org/start.html.  mkconf writes the defaults.

Frames are selected from the obslog sqlite database named by Catalog, which
is looked up in Pipeline.Dir unless the path is absolute.  If
Catalog is empty the headers of the raw frames (N*.fits, S*.fits) in
Pipeline.Dir are read instead.

Pipeline.Criteria select the campaign:
	Instrument  GMOS-N or GMOS-S
	CcdBin      binning, e.g. "2 2"
	RoI         region of interest, e.g. Full
	Object      target pattern, % matches anything, e.g. SN2017eaw%
	DateObs     YYYY-MM-DD:YYYY-MM-DD, or * for all dates

Pipeline.FlatDates replaces DateObs when selecting twilight flats.  Science
frames are selected over all dates.  Each of Pipeline.Targets is stacked in
each filter; a target matches every object whose name starts with it.

An existing master frame is kept unless Pipeline.Overwrite is set, and then
only replaced if Interactive is set and the prompt is answered yes.

select prints the frames a class selects, one of
	bias, flat, science, standard
flat, science and standard take a filter, one of Ha HaC SII r i.

Set Mock to run without pyraf; placeholder FITS files are written instead.`
	fmt.Println(str)
}

func mkconf() {
	c := loadconf()
	f, err := os.Create(ConfigFileName)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()
	err = yml.NewEncoder(f).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func printconf() {
	c := loadconf()
	err := yml.NewEncoder(os.Stdout).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func pversion() {
	fmt.Printf("gmosred version %v\n", Version)
}

type closer interface {
	Close() error
}

func openCatalog(ctx context.Context, c Config) (obslog.Catalog, error) {
	if c.Catalog == "" {
		log.Println("no catalog configured, reading headers in", c.Pipeline.Dir)
		return obslog.Scan(c.Pipeline.Dir, log.Default())
	}
	return obslog.OpenSQLite(ctx, catalogPath(c))
}

// catalogPath is where the obslog database lives; it sits with the data
func catalogPath(c Config) string {
	if filepath.IsAbs(c.Catalog) {
		return c.Catalog
	}
	return filepath.Join(c.Pipeline.Dir, c.Catalog)
}

func buildBackend(c Config) backend.Backend {
	var b backend.Backend
	if c.Mock {
		b = backend.NewMock()
	} else {
		p := backend.NewPyRAF(c.Interpreter)
		if c.ToolkitOutput {
			p.Stdout = os.Stdout
		}
		b = p
	}
	if c.Spinner && !c.ToolkitOutput {
		b = NewSpinning(b, os.Stdout)
	}
	return b
}

func run() {
	c := loadconf()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	cat, err := openCatalog(ctx, c)
	if err != nil {
		log.Fatal(err)
	}
	if cl, ok := cat.(closer); ok {
		defer cl.Close()
	}
	confirm := mastercal.Confirmer(mastercal.Decline)
	if c.Interactive {
		confirm = TerminalConfirmer(os.Stdin, os.Stdout)
	}
	d := &pipeline.Driver{Catalog: cat, Backend: buildBackend(c), Confirm: confirm}
	rep, err := d.Run(ctx, c.Pipeline)
	if err != nil {
		log.Fatalf("run %s stopped: %v", rep.RunID, err)
	}
	summarize(os.Stdout, rep)
}

func summarize(w io.Writer, rep pipeline.Report) {
	fmt.Fprintf(w, "run %s finished in %s\n", rep.RunID, rep.Elapsed)
	fmt.Fprintf(w, "master bias  %-12s %s\n", rep.Bias.Outcome, rep.Bias.Path)
	for _, f := range sortedFilters(rep.Flats) {
		r := rep.Flats[f]
		fmt.Fprintf(w, "master flat  %-12s %s\n", r.Outcome, r.Path)
	}
	for _, f := range sortedFilters(rep.Science) {
		fmt.Fprintf(w, "science %-4s %d frames\n", f, len(rep.Science[f]))
	}
	for _, f := range sortedFilters(rep.Standards) {
		fmt.Fprintf(w, "standard %-3s %d frames\n", f, len(rep.Standards[f]))
	}
	keys := make([]coadd.Key, 0, len(rep.Stacks))
	for key := range rep.Stacks {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Target != keys[j].Target {
			return keys[i].Target < keys[j].Target
		}
		return keys[i].Filter < keys[j].Filter
	})
	for _, key := range keys {
		fmt.Fprintf(w, "stacked      %s\n", rep.Stacks[key])
	}
}

// sortedFilters returns the keys of a per-filter map in name order
func sortedFilters[V any](m map[gmos.Filter]V) []gmos.Filter {
	out := make([]gmos.Filter, 0, len(m))
	for f := range m {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func sel(args []string) {
	if len(args) == 0 {
		log.Fatal("select needs a frame class")
	}
	class, err := query.ParseClass(args[0])
	if err != nil {
		log.Fatal(err)
	}
	c := loadconf()
	crit := c.Pipeline.Criteria
	switch class {
	case query.TwilightFlat:
		if c.Pipeline.FlatDates != "" {
			crit.DateObs = c.Pipeline.FlatDates
		}
	case query.Science, query.Standard:
		crit.DateObs = query.AllDates
	}
	if len(args) > 1 {
		crit.Filter2 = gmos.FilterPattern(gmos.Filter(args[1]))
	}
	ctx := context.Background()
	cat, err := openCatalog(ctx, c)
	if err != nil {
		log.Fatal(err)
	}
	if cl, ok := cat.(closer); ok {
		defer cl.Close()
	}
	crits := []query.Criteria{crit}
	if class == query.Standard {
		crits = crits[:0]
		for _, name := range c.Pipeline.Standards {
			cr := crit
			cr.Object = name
			crits = append(crits, cr)
		}
	}
	for _, cr := range crits {
		frames, err := query.Frames(ctx, cat, class, cr)
		if err != nil {
			log.Fatal(err)
		}
		for _, f := range frames {
			fmt.Println(f)
		}
	}
}

func main() {
	var cmd string
	args := os.Args
	if len(args) == 1 {
		root()
		return
	}
	setupconfig()
	cmd = args[1]
	cmd = strings.ToLower(cmd)
	switch cmd {
	case "help":
		help()
		return
	case "mkconf":
		mkconf()
		return
	case "conf":
		printconf()
		return
	case "run":
		run()
		return
	case "select":
		sel(args[2:])
		return
	case "version":
		pversion()
		return
	default:
		log.Fatal("unknown command")
	}
}
