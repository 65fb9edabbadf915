package backend

import (
	"context"
	"sync"

	"github.com/astrogo/fitsio"
	"github.com/gmosred/gmosred/gmos"
	"github.com/gmosred/gmosred/imgrec"
)

// Operation names used by Mock
const (
	OpCombineBias   = "CombineBias"
	OpCombineFlat   = "CombineFlat"
	OpReduceScience = "ReduceScience"
	OpMosaic        = "Mosaic"
	OpCoaddImages   = "CoaddImages"
	OpDeleteFiles   = "DeleteFiles"
)

// MockCall is one recorded call to a Mock
type MockCall struct {
	Op      string
	Dir     string
	Frames  []string
	Output  string
	Bias    string
	Flat    string
	BPM     string
	Pattern string
	Flags   Flags
}

// Mock is a deterministic Backend.  It records every call and writes a small FITS
// file for every product the real toolkit would write, stamped with the task that
// made it.  DeleteFiles really deletes.
type Mock struct {
	sync.Mutex

	// Fail makes the named operation return the error without writing anything
	Fail map[string]error

	// Silent makes the named operation report success without writing its product
	Silent map[string]bool

	calls []MockCall
}

// NewMock returns an empty Mock
func NewMock() *Mock {
	return &Mock{Fail: map[string]error{}, Silent: map[string]bool{}}
}

// Calls returns a copy of the recorded calls
func (m *Mock) Calls() []MockCall {
	m.Lock()
	defer m.Unlock()
	out := make([]MockCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallsTo returns the recorded calls of one operation
func (m *Mock) CallsTo(op string) []MockCall {
	out := []MockCall{}
	for _, c := range m.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// record logs c and writes outputs unless the operation is set to fail or be silent
func (m *Mock) record(ctx context.Context, env Env, c MockCall, outputs ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.Lock()
	c.Dir = env.Dir
	c.Frames = append([]string(nil), c.Frames...)
	m.calls = append(m.calls, c)
	fail, silent := m.Fail[c.Op], m.Silent[c.Op]
	m.Unlock()
	if fail != nil {
		return fail
	}
	if silent {
		return nil
	}
	rec := &imgrec.Recorder{Root: env.Dir}
	for _, o := range outputs {
		err := rec.Record(o,
			fitsio.Card{Name: "ORIGIN", Value: "gmosred mock"},
			fitsio.Card{Name: "TASK", Value: c.Op})
		if err != nil {
			return err
		}
	}
	return nil
}

// CombineBias implements Backend
func (m *Mock) CombineBias(ctx context.Context, env Env, frames []string, output string, flags Flags) error {
	return m.record(ctx, env, MockCall{Op: OpCombineBias, Frames: frames, Output: output, Flags: flags}, output)
}

// CombineFlat implements Backend
func (m *Mock) CombineFlat(ctx context.Context, env Env, frames []string, output, bias, bpm string, flags Flags) error {
	return m.record(ctx, env, MockCall{Op: OpCombineFlat, Frames: frames, Output: output, Bias: bias, BPM: bpm, Flags: flags}, output)
}

// ReduceScience implements Backend
func (m *Mock) ReduceScience(ctx context.Context, env Env, frames []string, bias, flat, bpm string, flags Flags) error {
	outs := make([]string, len(frames))
	for i, f := range frames {
		outs[i] = gmos.ReducePrefix + f
	}
	return m.record(ctx, env, MockCall{Op: OpReduceScience, Frames: frames, Bias: bias, Flat: flat, BPM: bpm, Flags: flags}, outs...)
}

// Mosaic implements Backend
func (m *Mock) Mosaic(ctx context.Context, env Env, frame string, flags Flags) error {
	out := gmos.MosaicPrefix + frame
	return m.record(ctx, env, MockCall{Op: OpMosaic, Frames: []string{frame}, Output: out, Flags: flags}, out)
}

// CoaddImages implements Backend
func (m *Mock) CoaddImages(ctx context.Context, env Env, frames []string, output string, flags Flags) error {
	return m.record(ctx, env, MockCall{Op: OpCoaddImages, Frames: frames, Output: output, Flags: flags}, output)
}

// DeleteFiles implements Backend
func (m *Mock) DeleteFiles(ctx context.Context, env Env, pattern string) (int, error) {
	if err := m.record(ctx, env, MockCall{Op: OpDeleteFiles, Pattern: pattern}); err != nil {
		return 0, err
	}
	return DeleteGlob(ctx, env, pattern)
}
