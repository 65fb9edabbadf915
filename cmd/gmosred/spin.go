package main

import (
	"context"
	"io"
	"time"

	"github.com/gmosred/gmosred/backend"
	"github.com/theckman/yacspin"
)

// Spinning shows a spinner on a terminal while each toolkit call runs
type Spinning struct {
	backend.Backend
	w io.Writer
}

// NewSpinning wraps b
func NewSpinning(b backend.Backend, w io.Writer) *Spinning {
	return &Spinning{Backend: b, w: w}
}

// spin runs fn behind a spinner showing msg.  If the spinner cannot be
// started, fn runs without it.
func (s *Spinning) spin(msg string, fn func() error) error {
	sp, err := yacspin.New(yacspin.Config{
		Writer:            s.w,
		Frequency:         100 * time.Millisecond,
		CharSet:           yacspin.CharSets[14],
		Suffix:            " ",
		Message:           msg,
		StopCharacter:     "done",
		StopColors:        []string{"fgGreen"},
		StopFailCharacter: "failed",
		StopFailColors:    []string{"fgRed"},
	})
	if err != nil || sp.Start() != nil {
		return fn()
	}
	err = fn()
	if err != nil {
		sp.StopFail()
		return err
	}
	sp.Stop()
	return nil
}

func (s *Spinning) CombineBias(ctx context.Context, env backend.Env, frames []string, output string, flags backend.Flags) error {
	return s.spin("combining bias frames into "+output, func() error {
		return s.Backend.CombineBias(ctx, env, frames, output, flags)
	})
}

func (s *Spinning) CombineFlat(ctx context.Context, env backend.Env, frames []string, output, bias, bpm string, flags backend.Flags) error {
	return s.spin("combining twilight flats into "+output, func() error {
		return s.Backend.CombineFlat(ctx, env, frames, output, bias, bpm, flags)
	})
}

func (s *Spinning) ReduceScience(ctx context.Context, env backend.Env, frames []string, bias, flat, bpm string, flags backend.Flags) error {
	return s.spin("reducing against "+flat, func() error {
		return s.Backend.ReduceScience(ctx, env, frames, bias, flat, bpm, flags)
	})
}

func (s *Spinning) Mosaic(ctx context.Context, env backend.Env, frame string, flags backend.Flags) error {
	return s.spin("mosaicking "+frame, func() error {
		return s.Backend.Mosaic(ctx, env, frame, flags)
	})
}

func (s *Spinning) CoaddImages(ctx context.Context, env backend.Env, frames []string, output string, flags backend.Flags) error {
	return s.spin("stacking "+output, func() error {
		return s.Backend.CoaddImages(ctx, env, frames, output, flags)
	})
}
