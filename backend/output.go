package backend

import (
	"context"
	"os"

	"github.com/gmosred/gmosred/util"
)

// CheckOutput returns a *MissingOutputError if name does not exist in env after task ran
func CheckOutput(env Env, task, name string) error {
	p := env.Path(name)
	if _, err := os.Stat(p); err != nil {
		return &MissingOutputError{Task: task, Path: p}
	}
	return nil
}

// DeleteGlob removes the files in env matching pattern.  Backends without a
// delete primitive of their own use it.
func DeleteGlob(ctx context.Context, env Env, pattern string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return util.RemoveGlob(env.Dir, pattern)
}
