// Package util contains misc internal utilities.
package util

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// ListToCSV converts a slice of file names to the comma separated list
// the IRAF tasks accept as input.
// e.g., []string{"a.fits","b.fits"} => "a.fits,b.fits"
func ListToCSV(ss []string) string {
	return strings.Join(ss, ",")
}

// PrefixAll returns a copy of ss with prefix prepended to every element
func PrefixAll(prefix string, ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = prefix + s
	}
	return out
}

// UniqueString returns the sorted, unique elements of inp
func UniqueString(inp []string) []string {
	seen := make(map[string]struct{}, len(inp))
	out := make([]string, 0, len(inp))
	for _, s := range inp {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Exists returns true if a file or directory exists at path
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// RemoveGlob deletes the files in dir matching pattern and returns how many
// were removed.  No match is not an error.
func RemoveGlob(dir, pattern string) (int, error) {
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return 0, errors.Wrapf(err, "bad pattern %q", pattern)
	}
	n := 0
	for _, m := range matches {
		err = os.Remove(m)
		if err != nil && !os.IsNotExist(err) {
			return n, err
		}
		if err == nil {
			n++
		}
	}
	return n, nil
}
