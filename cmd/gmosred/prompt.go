package main

import (
	"bufio"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/gmosred/gmosred/mastercal"
)

// TerminalConfirmer asks on out and reads the answer from in.  An empty answer
// or one starting with y is yes; anything else, including end of input, is no.
func TerminalConfirmer(in io.Reader, out io.Writer) mastercal.Confirmer {
	sc := bufio.NewScanner(in)
	ask := color.New(color.FgYellow, color.Bold)
	return func(prompt string) bool {
		ask.Fprint(out, prompt)
		if !sc.Scan() {
			return false
		}
		ans := strings.ToLower(strings.TrimSpace(sc.Text()))
		return ans == "" || strings.HasPrefix(ans, "y")
	}
}
