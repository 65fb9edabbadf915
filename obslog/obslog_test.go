package obslog_test

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/astrogo/fitsio"
	"github.com/gmosred/gmosred/imgrec"
	"github.com/gmosred/gmosred/obslog"
	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
)

func fixture() []obslog.Record {
	recs := []obslog.Record{}
	for i := 1; i <= 3; i++ {
		recs = append(recs, obslog.Record{
			File: fmt.Sprintf("N20180615S%04d.fits", i), UseMe: 1, Instrument: "GMOS-N",
			DateObs: "2018-06-15", Object: "Bias", ObsType: "BIAS", ObsClass: "dayCal",
			CcdBin: "2 2", RoI: "Full"})
	}
	recs = append(recs,
		obslog.Record{File: "N20180620S0100.fits", UseMe: 1, Instrument: "GMOS-N", DateObs: "2018-06-20",
			Object: "SN2017eaw (first visit)", ObsType: "OBJECT", ObsClass: "science", Filter2: "r_G0303",
			CcdBin: "2 2", RoI: "Full"},
		obslog.Record{File: "N20180620S0101.fits", UseMe: 1, Instrument: "GMOS-N", DateObs: "2018-06-20",
			Object: "SN2017eaw (first visit)", ObsType: "OBJECT", ObsClass: "science", Filter2: "Ha_G0310",
			CcdBin: "2 2", RoI: "Full"},
		obslog.Record{File: "N20180620S0102.fits", UseMe: 0, Instrument: "GMOS-N", DateObs: "2018-06-20",
			Object: "SN2017eaw (first visit)", ObsType: "OBJECT", ObsClass: "science", Filter2: "r_G0303",
			CcdBin: "2 2", RoI: "Full"},
		obslog.Record{File: "S20180701S0001.fits", UseMe: 1, Instrument: "GMOS-S", DateObs: "2018-07-01",
			Object: "Bias", ObsType: "BIAS", ObsClass: "dayCal", CcdBin: "2 2", RoI: "Full"},
	)
	return recs
}

func TestMemorySelectBias(t *testing.T) {
	cat := obslog.NewMemory(fixture()...)
	p := obslog.Predicate{
		obslog.Eq("use_me", "1"),
		obslog.Eq("Instrument", "GMOS-N"),
		obslog.Eq("Object", "Bias"),
		obslog.Between("DateObs", "2018-06-10", "2018-07-09"),
	}
	got, err := cat.Select(context.Background(), p)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"N20180615S0001.fits", "N20180615S0002.fits", "N20180615S0003.fits"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("bias selection mismatch (-want +got):\n%s", diff)
	}
}

func TestLikeIsPrefixTolerantAndCaseInsensitive(t *testing.T) {
	cat := obslog.NewMemory(fixture()...)
	p := obslog.Predicate{
		obslog.Eq("use_me", "1"),
		obslog.Like("Object", "sn2017eaw%"),
		obslog.Like("Filter2", "Ha_G%"),
	}
	got, err := cat.Select(context.Background(), p)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"N20180620S0101.fits"}, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestNeverMatchesNothing(t *testing.T) {
	cat := obslog.NewMemory(fixture()...)
	got, err := cat.Select(context.Background(), obslog.Predicate{obslog.Eq("use_me", "1"), obslog.Never("no filter")})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("expected no rows, got %v", got)
	}
}

func TestUnknownColumnRejected(t *testing.T) {
	cat := obslog.NewMemory(fixture()...)
	_, err := cat.Select(context.Background(), obslog.Predicate{obslog.Eq("File; DROP TABLE obslog", "x")})
	if !errors.Is(err, obslog.ErrUnknownColumn) {
		t.Errorf("expected ErrUnknownColumn, got %v", err)
	}
}

func TestBetweenNeedsTwoValues(t *testing.T) {
	p := obslog.Predicate{{Column: "DateObs", Op: obslog.OpBetween, Values: []string{"2018-01-01"}}}
	if err := p.Validate(); !errors.Is(err, obslog.ErrBadClause) {
		t.Errorf("expected ErrBadClause, got %v", err)
	}
}

func TestToSQL(t *testing.T) {
	q, args := obslog.ToSQL(obslog.Predicate{
		obslog.Eq("Instrument", "GMOS-N"),
		obslog.Like("Filter2", "r_G%"),
		obslog.Between("DateObs", "2018-06-01", "2018-07-09"),
	})
	expected := "SELECT File FROM obslog WHERE Instrument = ? AND Filter2 LIKE ? AND DateObs BETWEEN ? AND ? ORDER BY File"
	if q != expected {
		t.Errorf("expected\n%s\ngot\n%s", expected, q)
	}
	if diff := cmp.Diff([]interface{}{"GMOS-N", "r_G%", "2018-06-01", "2018-07-09"}, args); diff != "" {
		t.Errorf("args (-want +got):\n%s", diff)
	}
}

func newSQLiteCatalog(t *testing.T, recs []obslog.Record) *obslog.SQLite {
	t.Helper()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "obsLog.sqlite3")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	if err := obslog.CreateTable(ctx, db); err != nil {
		t.Fatal(err)
	}
	if err := obslog.Insert(ctx, db, recs...); err != nil {
		t.Fatal(err)
	}
	db.Close()
	cat, err := obslog.OpenSQLite(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { cat.Close() })
	return cat
}

func TestSQLiteAgreesWithMemory(t *testing.T) {
	recs := fixture()
	sq := newSQLiteCatalog(t, recs)
	mem := obslog.NewMemory(recs...)
	preds := []obslog.Predicate{
		{obslog.Eq("use_me", "1"), obslog.Eq("Instrument", "GMOS-N"), obslog.Eq("Object", "Bias")},
		{obslog.Eq("use_me", "1"), obslog.Like("Object", "SN2017eaw%"), obslog.Like("Filter2", "r_G%")},
		{obslog.Between("DateObs", "2018-06-16", "2018-07-01")},
		{obslog.Eq("use_me", "0")},
		{obslog.Never("empty")},
		{},
	}
	ctx := context.Background()
	for _, p := range preds {
		a, err := sq.Select(ctx, p)
		if err != nil {
			t.Fatalf("%s: %v", p, err)
		}
		b, err := mem.Select(ctx, p)
		if err != nil {
			t.Fatalf("%s: %v", p, err)
		}
		if diff := cmp.Diff(b, a); diff != "" {
			t.Errorf("%s: sqlite and memory disagree (-memory +sqlite):\n%s", p, diff)
		}
	}
}

func TestSelectHasNoFalsePositives(t *testing.T) {
	recs := fixture()
	byFile := map[string]obslog.Record{}
	for _, r := range recs {
		byFile[r.File] = r
	}
	cat := obslog.NewMemory(recs...)
	p := obslog.Predicate{obslog.Eq("use_me", "1"), obslog.Like("Filter2", "r_G%"), obslog.Eq("ObsClass", "science")}
	got, err := cat.Select(context.Background(), p)
	if err != nil {
		t.Fatal(err)
	}
	for _, f := range got {
		ok, err := obslog.Match(byFile[f], p)
		if err != nil || !ok {
			t.Errorf("%s returned but does not satisfy %s", f, p)
		}
	}
}

func TestOpenSQLiteMissingFile(t *testing.T) {
	_, err := obslog.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "nope.sqlite3"))
	if err == nil {
		t.Error("expected an error opening a missing database")
	}
}

func TestScanReadsHeaders(t *testing.T) {
	dir := t.TempDir()
	r := &imgrec.Recorder{Root: dir}
	err := r.Record("N20180620S0100.fits",
		fitsio.Card{Name: "INSTRUME", Value: "GMOS-N"},
		fitsio.Card{Name: "OBJECT", Value: "SN2017eaw (first visit)"},
		fitsio.Card{Name: "OBSTYPE", Value: "OBJECT"},
		fitsio.Card{Name: "OBSCLASS", Value: "science"},
		fitsio.Card{Name: "FILTER2", Value: "r_G0303"},
		fitsio.Card{Name: "CCDSUM", Value: "2 2"},
		fitsio.Card{Name: "DATE-OBS", Value: "2018-06-20"})
	if err != nil {
		t.Fatal(err)
	}
	// products of the reduction are not catalogued
	if err := r.Record("mrgN20180620S0100.fits"); err != nil {
		t.Fatal(err)
	}
	cat, err := obslog.Scan(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	want := []obslog.Record{{
		File: "N20180620S0100.fits", UseMe: 1, Instrument: "GMOS-N", DateObs: "2018-06-20",
		Object: "SN2017eaw (first visit)", ObsType: "OBJECT", ObsClass: "science",
		Filter2: "r_G0303", CcdBin: "2 2", RoI: "Full"}}
	if diff := cmp.Diff(want, cat.Records()); diff != "" {
		t.Errorf("scanned records (-want +got):\n%s", diff)
	}
}
