package obslog

import (
	"context"
	"database/sql"
	"strings"

	"github.com/gmosred/gmosred/util"
	"github.com/pkg/errors"

	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// Table is the name of the table the obslog tool writes
const Table = "obslog"

// SQLite is a Catalog backed by an obsLog.sqlite3 database
type SQLite struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens the database at path and checks the obslog table is present
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if !util.Exists(path) {
		return nil, errors.Errorf("obslog database %s does not exist", path)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	var n int
	err = db.QueryRowContext(ctx, "SELECT count(*) FROM sqlite_master WHERE type='table' AND name=?", Table).Scan(&n)
	if err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "reading schema of %s", path)
	}
	if n == 0 {
		db.Close()
		return nil, errors.Errorf("%s has no %s table", path, Table)
	}
	return &SQLite{db: db, path: path}, nil
}

// Close releases the database handle
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Select implements Catalog
func (s *SQLite) Select(ctx context.Context, p Predicate) ([]string, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if p.Never() {
		return []string{}, nil
	}
	query, args := ToSQL(p)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "querying %s", s.path)
	}
	defer rows.Close()
	var files []string
	for rows.Next() {
		var f string
		if err := rows.Scan(&f); err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return util.UniqueString(files), nil
}

// ToSQL renders p as a parameterised SELECT over the obslog table.
// p must be valid; column names come from the fixed schema and are never user text.
func ToSQL(p Predicate) (string, []interface{}) {
	var (
		conds []string
		args  []interface{}
	)
	for _, c := range p {
		switch c.Op {
		case OpEq:
			conds = append(conds, c.Column+" = ?")
			args = append(args, c.Values[0])
		case OpLike:
			conds = append(conds, c.Column+" LIKE ?")
			args = append(args, c.Values[0])
		case OpBetween:
			conds = append(conds, c.Column+" BETWEEN ? AND ?")
			args = append(args, c.Values[0], c.Values[1])
		case OpNever:
			conds = append(conds, "0 = 1")
		}
	}
	q := "SELECT File FROM " + Table
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	return q + " ORDER BY File", args
}

// CreateTable creates an empty obslog table in db with the columns of Record.
// The obslog tool owns the real schema; this exists for fixtures.
func CreateTable(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS obslog (
		File TEXT PRIMARY KEY,
		use_me INTEGER,
		Instrument TEXT,
		DateObs TEXT,
		Object TEXT,
		ObsType TEXT,
		ObsClass TEXT,
		Filter2 TEXT,
		CcdBin TEXT,
		RoI TEXT)`)
	return err
}

// Insert writes records into the obslog table of db
func Insert(ctx context.Context, db *sql.DB, recs ...Record) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, r := range recs {
		_, err = tx.ExecContext(ctx,
			"INSERT INTO obslog (File, use_me, Instrument, DateObs, Object, ObsType, ObsClass, Filter2, CcdBin, RoI) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
			r.File, r.UseMe, r.Instrument, r.DateObs, r.Object, r.ObsType, r.ObsClass, r.Filter2, r.CcdBin, r.RoI)
		if err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "inserting %s", r.File)
		}
	}
	return tx.Commit()
}
