package obslog

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/astrogo/fitsio"
	"github.com/pkg/errors"
)

// ReadHeader builds a Record from the headers of a raw GMOS frame.
// GMOS writes CCDSUM per amplifier, so keywords missing from the primary HDU are
// looked up in the first extension.
func ReadHeader(path string) (Record, error) {
	rec := Record{File: filepath.Base(path), UseMe: 1, RoI: "Full"}
	fid, err := os.Open(path)
	if err != nil {
		return rec, err
	}
	defer fid.Close()
	f, err := fitsio.Open(fid)
	if err != nil {
		return rec, errors.Wrapf(err, "reading %s", path)
	}
	defer f.Close()

	hdrs := []*fitsio.Header{}
	for i, hdu := range f.HDUs() {
		if i > 1 {
			break
		}
		hdrs = append(hdrs, hdu.Header())
	}
	get := func(key string) string {
		for _, h := range hdrs {
			if c := h.Get(key); c != nil {
				return strings.TrimSpace(fmt.Sprint(c.Value))
			}
		}
		return ""
	}

	rec.Instrument = get("INSTRUME")
	rec.Object = get("OBJECT")
	rec.ObsType = get("OBSTYPE")
	rec.ObsClass = get("OBSCLASS")
	rec.Filter2 = get("FILTER2")
	rec.CcdBin = get("CCDSUM")
	if d := get("DATE-OBS"); d != "" {
		// DATE-OBS may carry a time part; the catalog compares dates only
		if i := strings.IndexByte(d, 'T'); i > 0 {
			d = d[:i]
		}
		rec.DateObs = d
	}
	if roi := get("DETROI"); roi != "" {
		rec.RoI = roi
	}
	if qa := strings.ToUpper(get("RAWGEMQA")); qa == "FAIL" || qa == "BAD" {
		rec.UseMe = 0
	}
	return rec, nil
}

// Scan reads the headers of the raw frames in dir and returns a Memory catalog.
// Products of the reduction (names starting with a lower case prefix, MCbias,
// MCflat) are ignored, as are files whose headers cannot be read, which are logged.
func Scan(dir string, logger *log.Logger) (*Memory, error) {
	if logger == nil {
		logger = log.Default()
	}
	matches, err := filepath.Glob(filepath.Join(dir, "*.fits"))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	m := NewMemory()
	for _, fn := range matches {
		base := filepath.Base(fn)
		if !isRawName(base) {
			continue
		}
		rec, err := ReadHeader(fn)
		if err != nil {
			logger.Printf("skipping %s: %v", base, err)
			continue
		}
		m.Add(rec)
	}
	return m, nil
}

// isRawName reports whether fn looks like a raw Gemini frame, N20180610S0001.fits or S...
func isRawName(fn string) bool {
	return len(fn) > 1 && (fn[0] == 'N' || fn[0] == 'S') && fn[1] >= '0' && fn[1] <= '9'
}
