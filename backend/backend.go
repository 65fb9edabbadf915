/*Package backend defines the capabilities the pipeline needs from an image
reduction toolkit, and implementations of them.

The pipeline never changes the process working directory.  Every call carries
an Env naming the directory the toolkit must run in; implementations that
launch external programs set it on the child process only.

Two implementations are provided:
	PyRAF drives the Gemini IRAF package through a Python interpreter
	Mock records calls and writes placeholder FITS products, for tests and dry runs
*/
package backend

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// Env is the execution context of a toolkit call
type Env struct {
	// Dir is the directory inputs are read from and outputs written to
	Dir string
}

// Path resolves name against the Env directory
func (e Env) Path(name string) string {
	if filepath.IsAbs(name) || e.Dir == "" {
		return name
	}
	return filepath.Join(e.Dir, name)
}

// Flags are task parameters, e.g. fl_vardq=yes
type Flags map[string]string

// Keys returns the flag names sorted
func (f Flags) Keys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Merge returns a copy of f with other layered on top
func (f Flags) Merge(other Flags) Flags {
	out := make(Flags, len(f)+len(other))
	for k, v := range f {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

func (f Flags) String() string {
	parts := make([]string, 0, len(f))
	for _, k := range f.Keys() {
		parts = append(parts, k+"="+f[k])
	}
	return strings.Join(parts, " ")
}

// Backend is an image reduction toolkit.  Each call blocks until the toolkit
// finishes; a returned error means the toolkit reported failure.
type Backend interface {
	// CombineBias combines raw bias frames into the master bias output
	CombineBias(ctx context.Context, env Env, frames []string, output string, flags Flags) error

	// CombineFlat combines raw twilight flats of one filter into the master flat output,
	// correcting them with the master bias and masking bad pixels with bpm
	CombineFlat(ctx context.Context, env Env, frames []string, output, bias, bpm string, flags Flags) error

	// ReduceScience applies overscan, bias and flat correction to a batch of science
	// frames, writing one ReducePrefix product per frame
	ReduceScience(ctx context.Context, env Env, frames []string, bias, flat, bpm string, flags Flags) error

	// Mosaic pastes the detector extensions of a single reduced frame into one image,
	// writing a MosaicPrefix product
	Mosaic(ctx context.Context, env Env, frame string, flags Flags) error

	// CoaddImages registers and stacks frames into output
	CoaddImages(ctx context.Context, env Env, frames []string, output string, flags Flags) error

	// DeleteFiles removes the files matching a glob pattern and returns how many
	// were removed.  No match is not an error.
	DeleteFiles(ctx context.Context, env Env, pattern string) (int, error)
}

// MissingOutputError is returned when a toolkit call reported success but its
// product is absent.  It is fatal to the pipeline.
type MissingOutputError struct {
	// Task is the toolkit task that should have produced the file
	Task string

	// Path is the expected product
	Path string
}

func (e *MissingOutputError) Error() string {
	return fmt.Sprintf("%s reported success but %s was not created", e.Task, e.Path)
}

// IsFatal returns true if err carries a MissingOutputError
func IsFatal(err error) bool {
	var mo *MissingOutputError
	return errors.As(err, &mo)
}
