/*Package mastercal builds the master bias and master twilight flats of a campaign.

Both builds share a gate: an existing master is kept unless overwrite is set,
and with overwrite set the Confirmer must agree before the old file is removed.
Too few input frames is a skip, not an error.  A toolkit call that reports
success without writing its product is fatal, see backend.IsFatal.
*/
package mastercal

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/gmosred/gmosred/backend"
	"github.com/gmosred/gmosred/gmos"
	"github.com/gmosred/gmosred/obslog"
	"github.com/gmosred/gmosred/query"
	"github.com/gmosred/gmosred/util"
	"github.com/pkg/errors"
)

// LowBiasCount is the number of bias frames below which a warning is logged
const LowBiasCount = 10

// Confirmer asks the operator a yes/no question
type Confirmer func(prompt string) bool

// Decline always answers no.  It is used when no Confirmer is set.
func Decline(string) bool { return false }

// Accept always answers yes
func Accept(string) bool { return true }

// Outcome is what a build did
type Outcome int

const (
	// Built means the master was (re)combined
	Built Outcome = iota

	// Exists means a master was present and overwrite was not requested
	Exists

	// Declined means overwrite was requested and the operator said no
	Declined

	// Insufficient means too few frames matched to combine
	Insufficient
)

func (o Outcome) String() string {
	switch o {
	case Built:
		return "built"
	case Exists:
		return "exists"
	case Declined:
		return "declined"
	case Insufficient:
		return "insufficient"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// Skipped is true for every outcome but Built
func (o Outcome) Skipped() bool {
	return o != Built
}

// Result describes one master frame
type Result struct {
	// Path is the master file, set even when nothing was built
	Path string

	// Outcome is what happened
	Outcome Outcome

	// Frames is how many raw frames matched, zero when the gate skipped before selecting
	Frames int

	// LowCount is true when the bias count warning fired
	LowCount bool
}

// BiasFlags are the gbias parameters; rawDir is where the raw frames live
func BiasFlags(rawDir string) backend.Flags {
	return backend.Flags{
		"rawpath":  withSlash(rawDir),
		"logfile":  "biasLog.txt",
		"fl_vardq": "yes",
		"verbose":  "no",
	}
}

// FlatFlags are the giflat parameters
func FlatFlags() backend.Flags {
	return backend.Flags{
		"fl_scale": "yes",
		"sctype":   "mean",
		"fl_vardq": "yes",
		"rawpath":  "",
		"logfile":  "giflatLog.txt",
		"verbose":  "no",
	}
}

// IRAF joins rawpath and file names without a separator
func withSlash(dir string) string {
	if dir == "" || dir[len(dir)-1] == '/' {
		return dir
	}
	return dir + "/"
}

// Builder builds master calibration frames
type Builder struct {
	// Catalog is where frames are selected from
	Catalog obslog.Catalog

	// Backend is the reduction toolkit
	Backend backend.Backend

	// Confirm is asked before an existing master is overwritten, Decline if nil
	Confirm Confirmer

	// Logger receives progress and skip messages, log.Default() if nil
	Logger *log.Logger

	// Filters are the flat filters in processing order, gmos.DefaultFilters if nil
	Filters []gmos.Filter
}

func (b *Builder) logger() *log.Logger {
	if b.Logger == nil {
		return log.Default()
	}
	return b.Logger
}

func (b *Builder) filters() []gmos.Filter {
	if b.Filters == nil {
		return gmos.DefaultFilters
	}
	return b.Filters
}

// gate decides whether path may be (re)built.  ok is false with the skip outcome
// when it may not; an accepted overwrite removes the old file.
func (b *Builder) gate(path, what string, overwrite bool) (Outcome, bool, error) {
	if !util.Exists(path) {
		return Built, true, nil
	}
	if !overwrite {
		b.logger().Printf("%s %s exists, keeping it", what, path)
		return Exists, false, nil
	}
	confirm := b.Confirm
	if confirm == nil {
		confirm = Decline
	}
	if !confirm(fmt.Sprintf("%s %s exists. Overwrite? [y]/n ", what, path)) {
		b.logger().Printf("overwrite of %s declined, keeping it", path)
		return Declined, false, nil
	}
	if err := os.Remove(path); err != nil {
		return Built, false, errors.Wrapf(err, "removing old %s", what)
	}
	return Built, true, nil
}

// cleanup removes the per-exposure and temporary files the toolkit leaves in env
func (b *Builder) cleanup(ctx context.Context, env backend.Env, patterns ...string) error {
	for _, p := range patterns {
		n, err := b.Backend.DeleteFiles(ctx, env, p)
		if err != nil {
			return errors.Wrapf(err, "cleaning up %s", p)
		}
		if n > 0 {
			b.logger().Printf("removed %d files matching %s", n, p)
		}
	}
	return nil
}

// Bias builds the master bias at outPath from the bias frames in rawDir that match
// crit.  A relative outPath is taken relative to rawDir.  The toolkit runs in the
// directory of outPath, which is also where intermediates are cleaned up; rawDir
// is handed to it as an absolute path so it resolves from there.
func (b *Builder) Bias(ctx context.Context, crit query.Criteria, rawDir, outPath string, overwrite bool) (Result, error) {
	rawDir, err := filepath.Abs(rawDir)
	if err != nil {
		return Result{Path: outPath}, errors.Wrap(err, "resolving raw directory")
	}
	if !filepath.IsAbs(outPath) {
		outPath = filepath.Join(rawDir, outPath)
	}
	res := Result{Path: outPath}
	out, ok, err := b.gate(outPath, "master bias", overwrite)
	res.Outcome = out
	if err != nil || !ok {
		return res, err
	}

	frames, err := query.Frames(ctx, b.Catalog, query.Bias, crit)
	if err != nil {
		return res, err
	}
	n := len(frames)
	res.Frames = n
	if n >= 1 && n < LowBiasCount {
		res.LowCount = true
		b.logger().Printf("WARNING: only %d bias frames found, fewer than %d", n, LowBiasCount)
	}
	if n < 2 {
		b.logger().Printf("%d bias frames found, not enough to build %s", n, outPath)
		res.Outcome = Insufficient
		return res, nil
	}

	env := backend.Env{Dir: filepath.Dir(outPath)}
	name := filepath.Base(outPath)
	b.logger().Printf("combining %d bias frames into %s", n, outPath)
	err = b.Backend.CombineBias(ctx, env, frames, name, BiasFlags(rawDir))
	if err != nil {
		return res, errors.Wrapf(err, "building master bias %s", outPath)
	}
	if err = backend.CheckOutput(env, "bias combination", name); err != nil {
		return res, err
	}
	res.Outcome = Built
	err = b.cleanup(ctx, env, gmos.IntermediatePattern(crit.Instrument, crit.DateObs), "tmplist*")
	return res, err
}

// Flats builds one master twilight flat per filter in dataDir, using the master
// bias named bias.  Each filter is gated and skipped on its own; the map holds
// a Result for every filter visited.
func (b *Builder) Flats(ctx context.Context, crit query.Criteria, dataDir, bias string, overwrite bool) (map[gmos.Filter]Result, error) {
	env := backend.Env{Dir: dataDir}
	results := make(map[gmos.Filter]Result, len(b.filters()))
	err := query.EachFilter(ctx, b.Catalog, query.TwilightFlat, crit, b.filters(),
		func(f gmos.Filter, c query.Criteria, frames query.FrameList) error {
			name := gmos.MasterFlatName(f)
			res := Result{Path: env.Path(name), Frames: len(frames)}
			out, ok, err := b.gate(res.Path, "master flat", overwrite)
			res.Outcome = out
			if err != nil {
				return err
			}
			if !ok {
				res.Frames = 0
				results[f] = res
				return nil
			}
			if len(frames) == 0 {
				b.logger().Printf("no twilight flats found for filter %s, skipping", f)
				res.Outcome = Insufficient
				results[f] = res
				return nil
			}

			b.logger().Printf("combining %d twilight flats into %s", len(frames), name)
			err = b.Backend.CombineFlat(ctx, env, frames, name, bias, gmos.BadPixelMask(c.Instrument), FlatFlags())
			if err != nil {
				return errors.Wrapf(err, "building master flat %s", name)
			}
			if err = backend.CheckOutput(env, "flat combination", name); err != nil {
				return err
			}
			res.Outcome = Built
			results[f] = res
			return b.cleanup(ctx, env, gmos.IntermediatePattern(c.Instrument, c.DateObs), "tmpfile*")
		})
	return results, err
}
