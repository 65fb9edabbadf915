// Package imgrec writes small FITS images to disk.  The mock reduction backend uses
// it to stand in for the products of the external toolkit, and tests use it to
// build raw frames with realistic headers.
package imgrec

import (
	"io"
	"os"
	"path/filepath"

	"github.com/astrogo/fitsio"
	"github.com/pkg/errors"
)

// Recorder writes FITS files under a root folder.  It is not thread safe.
type Recorder struct {
	// Root is the folder files are written in
	Root string

	// Prefix is prepended to every file name
	Prefix string

	// Width and Height are the image dimensions, 2x2 if zero
	Width, Height int

	// written counts files written since creation
	written int
}

// Written returns how many files the recorder has written
func (r *Recorder) Written() int {
	return r.written
}

// Path returns the full path a file named name is written to
func (r *Recorder) Path(name string) string {
	return filepath.Join(r.Root, r.Prefix+name)
}

// Record writes a FITS file named name carrying metadata in its primary header.
// An existing file is replaced.
func (r *Recorder) Record(name string, metadata ...fitsio.Card) error {
	if r.Root != "" {
		if err := os.MkdirAll(r.Root, 0777); err != nil {
			return err
		}
	}
	fn := r.Path(name)
	f, err := os.Create(fn)
	if err != nil {
		return err
	}
	w, h := r.Width, r.Height
	if w == 0 || h == 0 {
		w, h = 2, 2
	}
	err = WriteFits(f, metadata, w, h)
	cerr := f.Close()
	if err != nil {
		return errors.Wrapf(err, "writing %s", fn)
	}
	if cerr != nil {
		return cerr
	}
	r.written++
	return nil
}

// WriteFits streams a zero-valued 16 bit image of width x height with the given
// header cards to w
func WriteFits(w io.Writer, metadata []fitsio.Card, width, height int) error {
	fits, err := fitsio.Create(w)
	if err != nil {
		return err
	}
	defer fits.Close()
	im := fitsio.NewImage(16, []int{width, height})
	defer im.Close()
	err = im.Header().Append(metadata...)
	if err != nil {
		return err
	}
	err = im.Write(make([]int16, width*height))
	if err != nil {
		return err
	}
	return fits.Write(im)
}
