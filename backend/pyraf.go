package backend

import (
	"bytes"
	"context"
	"io"
	"log"
	"os/exec"
	"strings"

	"github.com/gmosred/gmosred/util"
	"github.com/pkg/errors"
)

const pyrafPreamble = `from pyraf import iraf
from pyraf.iraf import gemini, gemtools, gmos
`

// Call is one IRAF task invocation
type Call struct {
	// Task is the qualified task, e.g. gmos.gbias
	Task string

	// Args are the positional parameters
	Args []string

	// Flags are the keyword parameters
	Flags Flags

	// Unlearn resets the task parameters before the call
	Unlearn bool
}

// Python renders the call as PyRAF statements
func (c Call) Python() string {
	var b strings.Builder
	if c.Unlearn {
		b.WriteString(c.Task + ".unlearn()\n")
	}
	args := make([]string, 0, len(c.Args)+len(c.Flags))
	for _, a := range c.Args {
		args = append(args, pyString(a))
	}
	for _, k := range c.Flags.Keys() {
		args = append(args, k+"="+pyString(c.Flags[k]))
	}
	b.WriteString(c.Task + "(" + strings.Join(args, ", ") + ")\n")
	return b.String()
}

// Script returns the complete PyRAF program for calls
func Script(calls ...Call) string {
	var b strings.Builder
	b.WriteString(pyrafPreamble)
	for _, c := range calls {
		b.WriteString(c.Python())
	}
	return b.String()
}

func pyString(s string) string {
	return "'" + strings.NewReplacer(`\`, `\\`, `'`, `\'`, "\n", `\n`).Replace(s) + "'"
}

// PyRAF runs the Gemini IRAF tasks through a Python interpreter with pyraf installed.
// Each call starts a fresh interpreter in the Env directory; the script is fed on stdin.
type PyRAF struct {
	// Interpreter is the python executable, "python" if empty
	Interpreter string

	// Stdout receives the interpreter's output, discarded if nil
	Stdout io.Writer

	// Logger receives one line per task, log.Default() if nil
	Logger *log.Logger
}

// NewPyRAF returns a PyRAF backend using the given interpreter
func NewPyRAF(interpreter string) *PyRAF {
	return &PyRAF{Interpreter: interpreter}
}

func (p *PyRAF) logger() *log.Logger {
	if p.Logger == nil {
		return log.Default()
	}
	return p.Logger
}

// Run executes calls as a single script in env
func (p *PyRAF) Run(ctx context.Context, env Env, calls ...Call) error {
	if len(calls) == 0 {
		return nil
	}
	interp := p.Interpreter
	if interp == "" {
		interp = "python"
	}
	task := calls[len(calls)-1].Task
	p.logger().Printf("running %s in %s", task, env.Dir)

	cmd := exec.CommandContext(ctx, interp, "-")
	cmd.Dir = env.Dir
	cmd.Stdin = strings.NewReader(Script(calls...))
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr
	if p.Stdout != nil {
		cmd.Stdout = p.Stdout
	}
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(tail(stderr.String(), 10))
		if msg != "" {
			return errors.Wrapf(err, "%s failed: %s", task, msg)
		}
		return errors.Wrapf(err, "%s failed", task)
	}
	return nil
}

// tail returns the last n lines of s
func tail(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

// CombineBias runs gmos.gbias
func (p *PyRAF) CombineBias(ctx context.Context, env Env, frames []string, output string, flags Flags) error {
	return p.Run(ctx, env, Call{
		Task: "gmos.gbias", Unlearn: true,
		Args:  []string{util.ListToCSV(frames), output},
		Flags: flags})
}

// CombineFlat runs gmos.giflat
func (p *PyRAF) CombineFlat(ctx context.Context, env Env, frames []string, output, bias, bpm string, flags Flags) error {
	return p.Run(ctx, env, Call{
		Task: "gmos.giflat", Unlearn: true,
		Args:  []string{util.ListToCSV(frames), output},
		Flags: flags.Merge(Flags{"bias": bias, "bpm": bpm})})
}

// ReduceScience runs gmos.gireduce
func (p *PyRAF) ReduceScience(ctx context.Context, env Env, frames []string, bias, flat, bpm string, flags Flags) error {
	return p.Run(ctx, env, Call{
		Task: "gmos.gireduce", Unlearn: true,
		Args:  []string{util.ListToCSV(frames)},
		Flags: flags.Merge(Flags{"bias": bias, "flat1": flat, "bpm": bpm})})
}

// Mosaic runs gmos.gmosaic.  gemextn is unlearned first, it otherwise
// leaves gmosaic in a bad state.
func (p *PyRAF) Mosaic(ctx context.Context, env Env, frame string, flags Flags) error {
	return p.Run(ctx, env,
		Call{Task: "gemtools.gemextn.unlearn"},
		Call{Task: "gmos.gmosaic", Unlearn: true, Args: []string{frame}, Flags: flags})
}

// CoaddImages runs gemtools.imcoadd
func (p *PyRAF) CoaddImages(ctx context.Context, env Env, frames []string, output string, flags Flags) error {
	return p.Run(ctx, env, Call{
		Task: "gemtools.imcoadd", Unlearn: true,
		Args:  []string{util.ListToCSV(frames)},
		Flags: flags.Merge(Flags{"outimage": output})})
}

// DeleteFiles removes matching files directly rather than through iraf.imdelete
func (p *PyRAF) DeleteFiles(ctx context.Context, env Env, pattern string) (int, error) {
	return DeleteGlob(ctx, env, pattern)
}
