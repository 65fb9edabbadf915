/*Package obslog provides the observation catalog frames are selected from.

A catalog holds one Record per exposure, mirroring the obslog table written by
the Gemini obslog tool.  Selection is expressed as a Predicate, a conjunction of
Clauses over the catalog columns, and evaluated either in memory or as SQL
against an obsLog.sqlite3 database:

	p := obslog.Predicate{
		obslog.Eq("Instrument", "GMOS-N"),
		obslog.Like("Filter2", "r_G%"),
	}
	files, err := cat.Select(ctx, p)
*/
package obslog

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

var (
	// ErrUnknownColumn is generated when a clause names a column not in the obslog schema
	ErrUnknownColumn = errors.New("unknown obslog column")

	// ErrBadClause is generated when a clause has the wrong number of values for its Op
	ErrBadClause = errors.New("malformed clause")
)

// Columns are the obslog columns predicates may reference
var Columns = []string{"File", "use_me", "Instrument", "DateObs", "Object", "ObsType", "ObsClass", "Filter2", "CcdBin", "RoI"}

// Record is the metadata of one exposure
type Record struct {
	File       string `yaml:"File"`
	UseMe      int    `yaml:"use_me"`
	Instrument string `yaml:"Instrument"`
	DateObs    string `yaml:"DateObs"`
	Object     string `yaml:"Object"`
	ObsType    string `yaml:"ObsType"`
	ObsClass   string `yaml:"ObsClass"`
	Filter2    string `yaml:"Filter2"`
	CcdBin     string `yaml:"CcdBin"`
	RoI        string `yaml:"RoI"`
}

// Value returns the value of the named column as a string
func (r Record) Value(column string) (string, error) {
	switch column {
	case "File":
		return r.File, nil
	case "use_me":
		return strconv.Itoa(r.UseMe), nil
	case "Instrument":
		return r.Instrument, nil
	case "DateObs":
		return r.DateObs, nil
	case "Object":
		return r.Object, nil
	case "ObsType":
		return r.ObsType, nil
	case "ObsClass":
		return r.ObsClass, nil
	case "Filter2":
		return r.Filter2, nil
	case "CcdBin":
		return r.CcdBin, nil
	case "RoI":
		return r.RoI, nil
	}
	return "", errors.Wrap(ErrUnknownColumn, column)
}

// Op is a comparison operator
type Op int

const (
	// OpEq is exact equality
	OpEq Op = iota

	// OpLike is SQL LIKE matching, % for any run and _ for any one character
	OpLike

	// OpBetween is an inclusive range over two values
	OpBetween

	// OpNever matches no rows
	OpNever
)

func (o Op) String() string {
	switch o {
	case OpEq:
		return "="
	case OpLike:
		return "LIKE"
	case OpBetween:
		return "BETWEEN"
	case OpNever:
		return "NEVER"
	}
	return "Op(" + strconv.Itoa(int(o)) + ")"
}

// Clause is one condition of a Predicate
type Clause struct {
	Column string
	Op     Op
	Values []string
}

// Eq returns a Clause requiring column == value
func Eq(column, value string) Clause {
	return Clause{Column: column, Op: OpEq, Values: []string{value}}
}

// Like returns a Clause requiring column LIKE pattern
func Like(column, pattern string) Clause {
	return Clause{Column: column, Op: OpLike, Values: []string{pattern}}
}

// Between returns a Clause requiring lo <= column <= hi
func Between(column, lo, hi string) Clause {
	return Clause{Column: column, Op: OpBetween, Values: []string{lo, hi}}
}

// Never returns a Clause no row satisfies.  why is kept for String().
func Never(why string) Clause {
	return Clause{Op: OpNever, Values: []string{why}}
}

func (c Clause) validate() error {
	if c.Op == OpNever {
		return nil
	}
	if !knownColumn(c.Column) {
		return errors.Wrap(ErrUnknownColumn, c.Column)
	}
	want := 1
	if c.Op == OpBetween {
		want = 2
	}
	if len(c.Values) != want {
		return errors.Wrapf(ErrBadClause, "%s %s takes %d values, got %d", c.Column, c.Op, want, len(c.Values))
	}
	return nil
}

func (c Clause) String() string {
	switch c.Op {
	case OpNever:
		return fmt.Sprintf("NEVER(%s)", strings.Join(c.Values, ""))
	case OpBetween:
		if len(c.Values) == 2 {
			return fmt.Sprintf("%s BETWEEN %q AND %q", c.Column, c.Values[0], c.Values[1])
		}
	}
	return fmt.Sprintf("%s %s %q", c.Column, c.Op, strings.Join(c.Values, ","))
}

// Predicate is a conjunction of clauses.  The empty predicate matches every row.
type Predicate []Clause

// Validate checks every clause references a known column with the right arity
func (p Predicate) Validate() error {
	for _, c := range p {
		if err := c.validate(); err != nil {
			return err
		}
	}
	return nil
}

// Never returns true if the predicate contains a clause matching no rows
func (p Predicate) Never() bool {
	for _, c := range p {
		if c.Op == OpNever {
			return true
		}
	}
	return false
}

func (p Predicate) String() string {
	parts := make([]string, len(p))
	for i, c := range p {
		parts[i] = c.String()
	}
	return strings.Join(parts, " AND ")
}

// Catalog is a queryable store of exposure metadata
type Catalog interface {
	// Select returns the file names of the records satisfying p, sorted and without duplicates
	Select(ctx context.Context, p Predicate) ([]string, error)
}

func knownColumn(c string) bool {
	for _, k := range Columns {
		if k == c {
			return true
		}
	}
	return false
}
