package obslog

import (
	"context"
	"regexp"
	"strings"
	"sync"

	"github.com/gmosred/gmosred/util"
)

// Memory is an in-memory Catalog.  It is safe for concurrent use.
type Memory struct {
	sync.RWMutex
	records []Record
}

// NewMemory returns a Memory catalog holding recs
func NewMemory(recs ...Record) *Memory {
	m := &Memory{}
	m.Add(recs...)
	return m
}

// Add appends records to the catalog
func (m *Memory) Add(recs ...Record) {
	m.Lock()
	defer m.Unlock()
	m.records = append(m.records, recs...)
}

// Len returns the number of records
func (m *Memory) Len() int {
	m.RLock()
	defer m.RUnlock()
	return len(m.records)
}

// Records returns a copy of the records
func (m *Memory) Records() []Record {
	m.RLock()
	defer m.RUnlock()
	out := make([]Record, len(m.records))
	copy(out, m.records)
	return out
}

// Select implements Catalog
func (m *Memory) Select(ctx context.Context, p Predicate) ([]string, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if p.Never() {
		return []string{}, nil
	}
	m.RLock()
	defer m.RUnlock()
	var files []string
	for _, r := range m.records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ok, err := Match(r, p)
		if err != nil {
			return nil, err
		}
		if ok {
			files = append(files, r.File)
		}
	}
	return util.UniqueString(files), nil
}

// Match returns true if r satisfies every clause of p
func Match(r Record, p Predicate) (bool, error) {
	for _, c := range p {
		if c.Op == OpNever {
			return false, nil
		}
		if err := c.validate(); err != nil {
			return false, err
		}
		v, err := r.Value(c.Column)
		if err != nil {
			return false, err
		}
		switch c.Op {
		case OpEq:
			if v != c.Values[0] {
				return false, nil
			}
		case OpLike:
			if !likeMatch(c.Values[0], v) {
				return false, nil
			}
		case OpBetween:
			if v < c.Values[0] || v > c.Values[1] {
				return false, nil
			}
		}
	}
	return true, nil
}

// likeMatch follows SQLite LIKE: % and _ wildcards, ASCII case folding
func likeMatch(pattern, s string) bool {
	var b strings.Builder
	b.WriteString("(?is)^")
	for _, r := range pattern {
		switch r {
		case '%':
			b.WriteString(".*")
		case '_':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	re, err := regexp.Compile(b.String())
	if err != nil {
		return false
	}
	return re.MatchString(s)
}
