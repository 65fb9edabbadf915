package query_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/gmosred/gmosred/gmos"
	"github.com/gmosred/gmosred/obslog"
	"github.com/gmosred/gmosred/query"
	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
)

var campaign = query.Criteria{
	UseMe:      1,
	Instrument: "GMOS-N",
	CcdBin:     "2 2",
	RoI:        "Full",
	Object:     "SN2017eaw%",
	DateObs:    "2018-06-10:2018-07-09",
}

func rec(file, object, obsType, obsClass, filter, date string) obslog.Record {
	return obslog.Record{File: file, UseMe: 1, Instrument: "GMOS-N", DateObs: date, Object: object,
		ObsType: obsType, ObsClass: obsClass, Filter2: filter, CcdBin: "2 2", RoI: "Full"}
}

func catalog() *obslog.Memory {
	return obslog.NewMemory(
		rec("N20180615S0001.fits", "Bias", "BIAS", "dayCal", "open2-8", "2018-06-15"),
		rec("N20180615S0002.fits", "Bias", "BIAS", "dayCal", "open2-8", "2018-06-15"),
		rec("N20170101S0001.fits", "Bias", "BIAS", "dayCal", "open2-8", "2017-01-01"),
		rec("N20180616S0010.fits", "Twilight", "OBJECT", "dayCal", "r_G0303", "2018-06-16"),
		rec("N20180616S0011.fits", "Twilight", "OBJECT", "dayCal", "Ha_G0310", "2018-06-16"),
		rec("N20180616S0012.fits", "Twilight", "OBJECT", "dayCal", "HaC_G0311", "2018-06-16"),
		rec("N20180620S0100.fits", "SN2017eaw (first visit)", "OBJECT", "science", "r_G0303", "2018-06-20"),
		rec("N20180620S0101.fits", "SN2017eaw (first visit)", "OBJECT", "science", "i_G0302", "2018-06-20"),
		rec("N20180620S0102.fits", "NGC6946 field", "OBJECT", "science", "r_G0303", "2018-06-20"),
		rec("N20180621S0200.fits", "PG1633+099", "OBJECT", "partnerCal", "r_G0303", "2018-06-21"),
	)
}

func TestBiasPredicate(t *testing.T) {
	got, err := query.Frames(context.Background(), catalog(), query.Bias, campaign)
	if err != nil {
		t.Fatal(err)
	}
	want := query.FrameList{"N20180615S0001.fits", "N20180615S0002.fits"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestFlatNeedsFilterPattern(t *testing.T) {
	got, err := query.Frames(context.Background(), catalog(), query.TwilightFlat, campaign)
	if err != nil {
		t.Fatalf("a missing filter should degrade to no rows, got error %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no flats without a filter pattern, got %v", got)
	}
}

func TestFilterPatternDoesNotCrossFilters(t *testing.T) {
	c := campaign
	c.Filter2 = gmos.FilterPattern(gmos.Halpha)
	got, err := query.Frames(context.Background(), catalog(), query.TwilightFlat, c)
	if err != nil {
		t.Fatal(err)
	}
	// Ha_G% must not pick up HaC_G0311
	if diff := cmp.Diff(query.FrameList{"N20180616S0011.fits"}, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestScienceAllDates(t *testing.T) {
	c := campaign
	c.DateObs = query.AllDates
	c.Filter2 = "r_G%"
	p, err := query.Build(query.Science, c)
	if err != nil {
		t.Fatal(err)
	}
	for _, cl := range p {
		if cl.Column == "DateObs" {
			t.Errorf("expected no date clause for %q, got %s", query.AllDates, cl)
		}
	}
	got, err := query.Select(context.Background(), catalog(), p)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(query.FrameList{"N20180620S0100.fits"}, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestStandardIsExactObject(t *testing.T) {
	c := campaign
	c.Object = "PG1633+099"
	c.Filter2 = "r_G%"
	got, err := query.Frames(context.Background(), catalog(), query.Standard, c)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(query.FrameList{"N20180621S0200.fits"}, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestBuildRejectsIncompleteCriteria(t *testing.T) {
	c := campaign
	c.Instrument = ""
	if _, err := query.Build(query.Bias, c); !errors.Is(err, query.ErrIncomplete) {
		t.Errorf("expected ErrIncomplete, got %v", err)
	}
	c = campaign
	c.DateObs = "2018-06-10"
	if _, err := query.Build(query.Bias, c); !errors.Is(err, query.ErrDateRange) {
		t.Errorf("expected ErrDateRange, got %v", err)
	}
}

func TestSelectedFramesSatisfyPredicate(t *testing.T) {
	cat := catalog()
	byFile := map[string]obslog.Record{}
	for _, r := range cat.Records() {
		byFile[r.File] = r
	}
	for _, class := range []query.Class{query.Bias, query.TwilightFlat, query.Science, query.Standard} {
		for _, f := range gmos.DefaultFilters {
			c := campaign
			c.Filter2 = gmos.FilterPattern(f)
			p, err := query.Build(class, c)
			if err != nil {
				t.Fatal(err)
			}
			got, err := query.Select(context.Background(), cat, p)
			if err != nil {
				t.Fatal(err)
			}
			for _, fn := range got {
				if ok, _ := obslog.Match(byFile[fn], p); !ok {
					t.Errorf("%s/%s: %s does not satisfy %s", class, f, fn, p)
				}
			}
		}
	}
}

func TestEachFilterVisitsInOrder(t *testing.T) {
	var visited []string
	err := query.EachFilter(context.Background(), catalog(), query.TwilightFlat, campaign, gmos.DefaultFilters,
		func(f gmos.Filter, c query.Criteria, frames query.FrameList) error {
			if c.Filter2 != gmos.FilterPattern(f) {
				t.Errorf("criteria not narrowed to %s: %s", f, c.Filter2)
			}
			visited = append(visited, fmt.Sprintf("%s:%d", f, len(frames)))
			return nil
		})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"Ha:1", "HaC:1", "SII:0", "r:1", "i:0"}
	if diff := cmp.Diff(want, visited); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestEachFilterStopsOnError(t *testing.T) {
	stop := errors.New("stop")
	n := 0
	err := query.EachFilter(context.Background(), catalog(), query.Bias, campaign, gmos.DefaultFilters,
		func(gmos.Filter, query.Criteria, query.FrameList) error {
			n++
			return stop
		})
	if !errors.Is(err, stop) || n != 1 {
		t.Errorf("expected one call and the stop error, got %d calls and %v", n, err)
	}
}

func TestEachPairNarrowsObject(t *testing.T) {
	var got []string
	err := query.EachPair(context.Background(), catalog(), query.Science, campaign,
		[]gmos.Filter{gmos.R, gmos.I}, []string{"SN2017eaw", "NGC6946"},
		func(f gmos.Filter, target string, c query.Criteria, frames query.FrameList) error {
			got = append(got, fmt.Sprintf("%s/%s/%s=%v", f, target, c.Object, []string(frames)))
			return nil
		})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		"r/SN2017eaw/SN2017eaw%=[N20180620S0100.fits]",
		"r/NGC6946/NGC6946%=[N20180620S0102.fits]",
		"i/SN2017eaw/SN2017eaw%=[N20180620S0101.fits]",
		"i/NGC6946/NGC6946%=[]",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestParseClassRoundTrip(t *testing.T) {
	for _, c := range []query.Class{query.Bias, query.TwilightFlat, query.Science, query.Standard} {
		got, err := query.ParseClass(c.String())
		if err != nil || got != c {
			t.Errorf("ParseClass(%q) = %v, %v", c.String(), got, err)
		}
	}
}
