/*Package coadd stacks the calibrated frames of each target and filter.

The stacked image is no larger than the first frame of the list, which is used
as the registration reference; parts of the field outside it are lost.
*/
package coadd

import (
	"context"
	"log"

	"github.com/gmosred/gmosred/backend"
	"github.com/gmosred/gmosred/gmos"
	"github.com/gmosred/gmosred/obslog"
	"github.com/gmosred/gmosred/query"
	"github.com/gmosred/gmosred/util"
	"github.com/pkg/errors"
)

// MinFrames is the smallest number of frames worth stacking
const MinFrames = 2

// Leftovers are the globs of the registration byproducts imcoadd leaves in the data directory
var Leftovers = []string{"*_trn*", "*_pos", "*_cen", "*badpix.pl", "*_med.fits", "*_mag.fits"}

// Flags are the imcoadd parameters
func Flags() backend.Flags {
	return backend.Flags{
		"fwhm":     "3",
		"datamax":  "60000.",
		"geointer": "nearest",
		"logfile":  "imcoaddLog.txt",
	}
}

// Key identifies one stacked image
type Key struct {
	Target string
	Filter gmos.Filter
}

// Coadder stacks calibrated science frames
type Coadder struct {
	// Catalog is where frames are selected from
	Catalog obslog.Catalog

	// Backend is the reduction toolkit
	Backend backend.Backend

	// Logger receives progress and skip messages, log.Default() if nil
	Logger *log.Logger

	// Filters are processed in order, gmos.DefaultFilters if nil
	Filters []gmos.Filter

	// Overwrite replaces existing stacks; otherwise they are kept
	Overwrite bool
}

func (c *Coadder) logger() *log.Logger {
	if c.Logger == nil {
		return log.Default()
	}
	return c.Logger
}

func (c *Coadder) filters() []gmos.Filter {
	if c.Filters == nil {
		return gmos.DefaultFilters
	}
	return c.Filters
}

// Coadd stacks the frames of every (filter, target) pair in dataDir.  Frames are
// selected as science frames under crit and named prefix+file on disk, normally
// gmos.CoaddPrefix.  Pairs with fewer than MinFrames frames are skipped.  The
// returned map holds the stack of every pair that has one.  Once all pairs are
// done the registration byproducts are removed.
func (c *Coadder) Coadd(ctx context.Context, crit query.Criteria, targets []string, dataDir, prefix string) (map[Key]string, error) {
	env := backend.Env{Dir: dataDir}
	out := map[Key]string{}
	err := query.EachPair(ctx, c.Catalog, query.Science, crit, c.filters(), targets,
		func(f gmos.Filter, target string, _ query.Criteria, frames query.FrameList) error {
			key := Key{Target: target, Filter: f}
			name := gmos.CoaddName(target, f)
			if len(frames) < MinFrames {
				c.logger().Printf("%d frames of %s in filter %s, nothing to stack", len(frames), target, f)
				return nil
			}
			if util.Exists(env.Path(name)) {
				if !c.Overwrite {
					c.logger().Printf("%s exists, keeping it", name)
					out[key] = name
					return nil
				}
				if _, err := c.Backend.DeleteFiles(ctx, env, name); err != nil {
					return errors.Wrapf(err, "removing old %s", name)
				}
			}

			c.logger().Printf("stacking %d frames of %s in filter %s", len(frames), target, f)
			err := c.Backend.CoaddImages(ctx, env, util.PrefixAll(prefix, frames), name, Flags())
			if err != nil {
				return errors.Wrapf(err, "stacking %s", name)
			}
			if err = backend.CheckOutput(env, "co-addition", name); err != nil {
				return err
			}
			out[key] = name
			return nil
		})
	if err != nil {
		return out, err
	}
	for _, p := range Leftovers {
		if _, err = c.Backend.DeleteFiles(ctx, env, p); err != nil {
			return out, errors.Wrapf(err, "cleaning up %s", p)
		}
	}
	return out, nil
}
