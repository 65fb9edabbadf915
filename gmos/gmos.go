// Package gmos holds the naming and filter conventions of Gemini GMOS imaging reductions.
package gmos

import (
	"fmt"
	"strings"
)

// Filter is the short name of a GMOS imaging filter, e.g. "Ha" or "r"
type Filter string

const (
	// Halpha is the H-alpha narrow band filter
	Halpha Filter = "Ha"

	// HalphaCont is the H-alpha continuum filter
	HalphaCont Filter = "HaC"

	// SII is the [S II] narrow band filter
	SII Filter = "SII"

	// R is the Sloan r' filter
	R Filter = "r"

	// I is the Sloan i' filter
	I Filter = "i"
)

// DefaultFilters is the filter set of a campaign, in processing order
var DefaultFilters = []Filter{Halpha, HalphaCont, SII, R, I}

const (
	// North is the instrument identifier of GMOS on Gemini North
	North = "GMOS-N"

	// South is the instrument identifier of GMOS on Gemini South
	South = "GMOS-S"

	// MasterBias is the file name of the master bias
	MasterBias = "MCbias.fits"

	// ReducePrefix is prepended to a raw file name by gireduce
	ReducePrefix = "rg"

	// MosaicPrefix is prepended to a reduced file name by gmosaic
	MosaicPrefix = "m"

	// CoaddPrefix is the prefix of calibrated, mosaicked science frames
	CoaddPrefix = MosaicPrefix + ReducePrefix
)

// FilterPattern returns the catalog pattern for a filter.  The official
// designations carry a suffix (Ha_G0310), so the short name is matched as a prefix.
func FilterPattern(f Filter) string {
	return string(f) + "_G%"
}

// MasterFlatName returns the file name of the master flat for a filter
func MasterFlatName(f Filter) string {
	return fmt.Sprintf("MCflat_%s.fits", f)
}

// CoaddName returns the file name of the stacked image of target in filter f
func CoaddName(target string, f Filter) string {
	return fmt.Sprintf("%s_%s.fits", target, f)
}

// BadPixelMask returns the static bad pixel mask shipped with the gemini package
// for the Hamamatsu detectors of the given instrument
func BadPixelMask(instrument string) string {
	if instrument == North {
		return "gmos$data/gmos-n_bpm_HAM_22_12amp_v1.fits"
	}
	return "gmos$data/gmos-s_bpm_HAM_22_12amp_v1.fits"
}

// IntermediatePattern is the glob of the per-exposure files the gemini tasks
// leave behind, e.g. gN2018*.fits.  dateObs is a "start:end" range or "*".
func IntermediatePattern(instrument, dateObs string) string {
	stem := "gS"
	if instrument == North {
		stem = "gN"
	}
	year := ""
	if len(dateObs) >= 4 && !strings.Contains(dateObs[:4], "*") {
		year = dateObs[:4]
	}
	return stem + year + "*.fits"
}

// ParseFilters converts short names to Filters, rejecting blanks
func ParseFilters(names []string) ([]Filter, error) {
	out := make([]Filter, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			return nil, fmt.Errorf("gmos: empty filter name in %q", names)
		}
		out = append(out, Filter(n))
	}
	return out, nil
}
