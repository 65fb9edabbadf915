// Package query turns selection criteria into catalog predicates for each class of frame.
package query

import (
	"context"
	"strconv"
	"strings"

	"github.com/gmosred/gmosred/gmos"
	"github.com/gmosred/gmosred/obslog"
	"github.com/pkg/errors"
)

var (
	// ErrIncomplete is generated when criteria lack the instrument identifier
	ErrIncomplete = errors.New("criteria must name an instrument")

	// ErrDateRange is generated when DateObs is neither "*" nor "start:end"
	ErrDateRange = errors.New(`date range must be "*" or "YYYY-MM-DD:YYYY-MM-DD"`)
)

// AllDates is the DateObs value that disables the date clause
const AllDates = "*"

// Criteria select frames from the catalog.  Stages copy and narrow them, e.g. by
// setting Filter2 or Object, before building a predicate.
type Criteria struct {
	// UseMe is the usability flag frames must carry, normally 1
	UseMe int `yaml:"use_me"`

	// Instrument is GMOS-N or GMOS-S
	Instrument string `yaml:"Instrument"`

	// CcdBin is the binning, e.g. "2 2"; empty matches any
	CcdBin string `yaml:"CcdBin"`

	// RoI is the region of interest mode, e.g. "Full"; empty matches any
	RoI string `yaml:"RoI"`

	// Object is a LIKE pattern on the target name, e.g. "SN2017eaw%"
	Object string `yaml:"Object"`

	// DateObs is an inclusive "start:end" range or "*"
	DateObs string `yaml:"DateObs"`

	// Filter2 is a LIKE pattern on the filter designation, e.g. "r_G%"
	Filter2 string `yaml:"Filter2"`
}

// DateRange splits DateObs.  all is true for "*" or an empty value.
func (c Criteria) DateRange() (start, end string, all bool, err error) {
	d := strings.TrimSpace(c.DateObs)
	if d == "" || d == AllDates {
		return "", "", true, nil
	}
	parts := strings.Split(d, ":")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false, errors.Wrap(ErrDateRange, d)
	}
	return parts[0], parts[1], false, nil
}

// Class is the kind of frame a predicate selects
type Class int

const (
	// Bias selects bias exposures
	Bias Class = iota

	// TwilightFlat selects twilight sky flats in one filter
	TwilightFlat

	// Science selects science exposures of the object pattern in one filter
	Science

	// Standard selects exposures of a photometric standard, named exactly by Object
	Standard
)

func (c Class) String() string {
	switch c {
	case Bias:
		return "bias"
	case TwilightFlat:
		return "twiFlat"
	case Science:
		return "sciImg"
	case Standard:
		return "stdImg"
	}
	return "Class(" + strconv.Itoa(int(c)) + ")"
}

// ParseClass is the inverse of Class.String, also accepting a few spellings
func ParseClass(s string) (Class, error) {
	switch strings.ToLower(s) {
	case "bias":
		return Bias, nil
	case "twiflat", "flat", "twilight":
		return TwilightFlat, nil
	case "sciimg", "science", "sci":
		return Science, nil
	case "stdimg", "standard", "std":
		return Standard, nil
	}
	return 0, errors.Errorf("unknown frame class %q", s)
}

// Build instantiates the predicate template of class over crit.
// A flat, science or standard predicate without its filter (or object) degrades
// to one that matches nothing; that is not an error.
func Build(class Class, crit Criteria) (obslog.Predicate, error) {
	if strings.TrimSpace(crit.Instrument) == "" {
		return nil, ErrIncomplete
	}
	start, end, all, err := crit.DateRange()
	if err != nil {
		return nil, err
	}
	p := obslog.Predicate{
		obslog.Eq("use_me", strconv.Itoa(crit.UseMe)),
		obslog.Eq("Instrument", crit.Instrument),
	}
	if crit.CcdBin != "" {
		p = append(p, obslog.Eq("CcdBin", crit.CcdBin))
	}
	if crit.RoI != "" {
		p = append(p, obslog.Eq("RoI", crit.RoI))
	}
	if !all {
		p = append(p, obslog.Between("DateObs", start, end))
	}

	needFilter := func() {
		if crit.Filter2 == "" {
			p = append(p, obslog.Never("no filter pattern"))
			return
		}
		p = append(p, obslog.Like("Filter2", crit.Filter2))
	}
	switch class {
	case Bias:
		p = append(p, obslog.Eq("Object", "Bias"), obslog.Eq("ObsType", "BIAS"))
	case TwilightFlat:
		p = append(p, obslog.Eq("Object", "Twilight"), obslog.Eq("ObsType", "OBJECT"))
		needFilter()
	case Science:
		p = append(p, obslog.Eq("ObsClass", "science"), obslog.Eq("ObsType", "OBJECT"))
		if crit.Object == "" {
			p = append(p, obslog.Never("no object pattern"))
		} else {
			p = append(p, obslog.Like("Object", crit.Object))
		}
		needFilter()
	case Standard:
		if crit.Object == "" {
			p = append(p, obslog.Never("no standard name"))
		} else {
			p = append(p, obslog.Eq("Object", crit.Object))
		}
		needFilter()
	default:
		return nil, errors.Errorf("unknown frame class %d", int(class))
	}
	return p, nil
}

// FrameList is an ordered list of file names from a catalog query; it may be empty
type FrameList []string

// Select resolves p against cat.  Zero matches is an empty list, not an error.
func Select(ctx context.Context, cat obslog.Catalog, p obslog.Predicate) (FrameList, error) {
	files, err := cat.Select(ctx, p)
	if err != nil {
		return nil, errors.Wrapf(err, "selecting %s", p)
	}
	if files == nil {
		files = []string{}
	}
	return FrameList(files), nil
}

// Frames builds the predicate of class over crit and selects it from cat
func Frames(ctx context.Context, cat obslog.Catalog, class Class, crit Criteria) (FrameList, error) {
	p, err := Build(class, crit)
	if err != nil {
		return nil, err
	}
	return Select(ctx, cat, p)
}

// FilterFunc is called by EachFilter with the criteria narrowed to one filter
// and the frames selected under them
type FilterFunc func(f gmos.Filter, crit Criteria, frames FrameList) error

// EachFilter selects the frames of class for every filter in turn and passes
// them to fn.  Iteration is sequential and stops at the first error.
func EachFilter(ctx context.Context, cat obslog.Catalog, class Class, crit Criteria, filters []gmos.Filter, fn FilterFunc) error {
	for _, f := range filters {
		if err := ctx.Err(); err != nil {
			return err
		}
		c := crit
		c.Filter2 = gmos.FilterPattern(f)
		frames, err := Frames(ctx, cat, class, c)
		if err != nil {
			return err
		}
		if err := fn(f, c, frames); err != nil {
			return err
		}
	}
	return nil
}

// PairFunc is called by EachPair for one (filter, target) pair
type PairFunc func(f gmos.Filter, target string, crit Criteria, frames FrameList) error

// EachPair is EachFilter over the cross product of filters and targets, filter
// outer.  Object is narrowed to "<target>%".
func EachPair(ctx context.Context, cat obslog.Catalog, class Class, crit Criteria, filters []gmos.Filter, targets []string, fn PairFunc) error {
	for _, f := range filters {
		for _, t := range targets {
			if err := ctx.Err(); err != nil {
				return err
			}
			c := crit
			c.Filter2 = gmos.FilterPattern(f)
			c.Object = t + "%"
			frames, err := Frames(ctx, cat, class, c)
			if err != nil {
				return err
			}
			if err := fn(f, t, c, frames); err != nil {
				return err
			}
		}
	}
	return nil
}
