// Package science applies the master calibrations to science and standard star
// frames and mosaics the detector extensions of each result.
package science

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

// ReduceFlags are the gireduce parameters
func ReduceFlags() backend.Flags {
	return backend.Flags{
		"fl_over":  "yes",
		"fl_trim":  "yes",
		"fl_bias":  "yes",
		"fl_dark":  "no",
		"fl_flat":  "yes",
		"fl_vardq": "yes",
		"rawpath":  "",
		"logfile":  "gireduceLog.txt",
		"verbose":  "no",
	}
}

// MosaicFlags are the gmosaic parameters
func MosaicFlags() backend.Flags {
	return backend.Flags{
		"fl_paste":  "no",
		"fl_fixpix": "no",
		"fl_clean":  "yes",
		"geointer":  "nearest",
		"fl_vardq":  "yes",
		"fl_fulldq": "yes",
		"logfile":   "gmosaicLog.txt",
		"verbose":   "no",
	}
}

// Products maps each filter to the calibrated, mosaicked files it produced, in frame order
type Products map[gmos.Filter][]string

// Calibrator reduces science frames in a data directory holding the raw frames
// and the master calibrations.  The master flat of each filter is not checked
// before use; a missing flat is reported by the toolkit.
type Calibrator struct {
	// Catalog is where frames are selected from
	Catalog obslog.Catalog

	// Backend is the reduction toolkit
	Backend backend.Backend

	// Logger receives progress and skip messages, log.Default() if nil
	Logger *log.Logger

	// Filters are processed in order, gmos.DefaultFilters if nil
	Filters []gmos.Filter
}

func (c *Calibrator) logger() *log.Logger {
	if c.Logger == nil {
		return log.Default()
	}
	return c.Logger
}

func (c *Calibrator) filters() []gmos.Filter {
	if c.Filters == nil {
		return gmos.DefaultFilters
	}
	return c.Filters
}

// Calibrate reduces the science frames matching crit, filter by filter, using the
// master bias named bias and MCflat_<filter>.fits.  With overwrite set, stale
// products of the selected frames are removed first; without it, frames that
// already have a calibrated product are left alone.
func (c *Calibrator) Calibrate(ctx context.Context, crit query.Criteria, dataDir, bias string, overwrite bool) (Products, error) {
	out := Products{}
	err := c.run(ctx, query.Science, crit, dataDir, bias, overwrite, out)
	return out, err
}

// Standards reduces the frames of each named photometric standard the same way.
// Names match the catalog object exactly.
func (c *Calibrator) Standards(ctx context.Context, crit query.Criteria, names []string, dataDir, bias string, overwrite bool) (Products, error) {
	out := Products{}
	for _, name := range names {
		cr := crit
		cr.Object = name
		c.logger().Printf("processing standard star %s", name)
		if err := c.run(ctx, query.Standard, cr, dataDir, bias, overwrite, out); err != nil {
			return out, err
		}
	}
	return out, nil
}

func (c *Calibrator) run(ctx context.Context, class query.Class, crit query.Criteria, dataDir, bias string, overwrite bool, out Products) error {
	env := backend.Env{Dir: dataDir}
	return query.EachFilter(ctx, c.Catalog, class, crit, c.filters(),
		func(f gmos.Filter, cr query.Criteria, frames query.FrameList) error {
			if len(frames) == 0 {
				c.logger().Printf("no %s frames for filter %s, skipping", class, f)
				return nil
			}
			batch, done, err := c.prepare(ctx, env, frames, overwrite)
			if err != nil {
				return err
			}
			out[f] = append(out[f], done...)
			if len(batch) == 0 {
				c.logger().Printf("all %d %s frames in filter %s already calibrated", len(frames), class, f)
				return nil
			}

			flat := gmos.MasterFlatName(f)
			c.logger().Printf("reducing %d %s frames in filter %s", len(batch), class, f)
			err = c.Backend.ReduceScience(ctx, env, batch, bias, flat, gmos.BadPixelMask(cr.Instrument), ReduceFlags())
			if err != nil {
				return errors.Wrapf(err, "reducing %s frames in filter %s", class, f)
			}
			for _, frame := range batch {
				reduced := gmos.ReducePrefix + frame
				if err = backend.CheckOutput(env, "reduction", reduced); err != nil {
					return err
				}
				if err = c.Backend.Mosaic(ctx, env, reduced, MosaicFlags()); err != nil {
					return errors.Wrapf(err, "mosaicking %s", reduced)
				}
				product := gmos.MosaicPrefix + reduced
				if err = backend.CheckOutput(env, "mosaic", product); err != nil {
					return err
				}
				out[f] = append(out[f], product)
			}
			return nil
		})
}

// prepare splits frames into those to reduce and the products already present.
// With overwrite set, nothing is kept and the stale products are removed.
func (c *Calibrator) prepare(ctx context.Context, env backend.Env, frames query.FrameList, overwrite bool) (batch, done []string, err error) {
	for _, frame := range frames {
		reduced := gmos.ReducePrefix + frame
		product := gmos.MosaicPrefix + reduced
		if overwrite {
			for _, stale := range []string{reduced, product} {
				if _, err = c.Backend.DeleteFiles(ctx, env, stale); err != nil {
					return nil, nil, errors.Wrapf(err, "removing stale %s", stale)
				}
			}
			batch = append(batch, frame)
			continue
		}
		if util.Exists(env.Path(product)) {
			done = append(done, product)
			continue
		}
		// gireduce refuses to overwrite a leftover rg file from an interrupted run
		if _, err = c.Backend.DeleteFiles(ctx, env, reduced); err != nil {
			return nil, nil, errors.Wrapf(err, "removing stale %s", reduced)
		}
		batch = append(batch, frame)
	}
	return batch, done, nil
}
