package recurrence_test

import (
	"testing"
	"time"

	"coaching-schedule-api/internal/apperr"
	"coaching-schedule-api/internal/recurrence"
)

var anchor = time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)

func TestDailyCount(t *testing.T) {
	occ, err := recurrence.Expand("FREQ=DAILY;COUNT=5", anchor, 60, 0)
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if len(occ) != 5 {
		t.Fatalf("expected 5 occurrences, got %d", len(occ))
	}
	for i, o := range occ {
		want := anchor.AddDate(0, 0, i)
		if !o.Start.Equal(want) {
			t.Errorf("occurrence %d: start %v, want %v", i, o.Start, want)
		}
		if o.End.Sub(o.Start) != time.Hour {
			t.Errorf("occurrence %d: duration %v", i, o.End.Sub(o.Start))
		}
	}
}

func TestPrefixAndCase(t *testing.T) {
	occ, err := recurrence.Expand("rrule:freq=weekly;byday=MO,WE;count=4", anchor, 30, 0)
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	// 2025-01-01 is a Wednesday.
	want := []time.Time{
		anchor,
		time.Date(2025, 1, 6, 10, 0, 0, 0, time.UTC),
		time.Date(2025, 1, 8, 10, 0, 0, 0, time.UTC),
		time.Date(2025, 1, 13, 10, 0, 0, 0, time.UTC),
	}
	if len(occ) != len(want) {
		t.Fatalf("got %d occurrences, want %d", len(occ), len(want))
	}
	for i := range want {
		if !occ[i].Start.Equal(want[i]) {
			t.Errorf("occurrence %d: %v, want %v", i, occ[i].Start, want[i])
		}
	}
}

func TestUntilTruncatedToHorizon(t *testing.T) {
	until := anchor.AddDate(0, 0, 400).Format("20060102T150405Z")
	occ, err := recurrence.Expand("RRULE:FREQ=DAILY;UNTIL="+until, anchor, 60, 0)
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	last := occ[len(occ)-1].Start
	if last.After(anchor.Add(recurrence.DefaultHorizon)) {
		t.Fatalf("last occurrence %v is past the horizon", last)
	}
	if len(occ) != 366 {
		t.Errorf("expected 366 daily occurrences (anchor plus 365 days), got %d", len(occ))
	}
}

func TestUnboundedStopsAtHorizon(t *testing.T) {
	occ, err := recurrence.Expand("FREQ=WEEKLY", anchor, 45, 0)
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if len(occ) != 53 {
		t.Errorf("expected 53 weekly occurrences within a year, got %d", len(occ))
	}
}

func TestCountTruncatedByHorizon(t *testing.T) {
	occ, err := recurrence.Expand("FREQ=MONTHLY;COUNT=24", anchor, 60, 0)
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if len(occ) != 13 {
		t.Errorf("expected 13 monthly occurrences within a year, got %d", len(occ))
	}
}

func TestInterval(t *testing.T) {
	occ, err := recurrence.Expand("FREQ=DAILY;INTERVAL=3;COUNT=3", anchor, 60, 0)
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if len(occ) != 3 || !occ[2].Start.Equal(anchor.AddDate(0, 0, 6)) {
		t.Fatalf("unexpected occurrences: %+v", occ)
	}
}

func TestUntilBeforeAnchorIsEmpty(t *testing.T) {
	occ, err := recurrence.Expand("FREQ=DAILY;UNTIL=20241201T000000Z", anchor, 60, 0)
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if len(occ) != 0 {
		t.Errorf("expected no occurrences, got %d", len(occ))
	}
}

func TestSortedAndUnique(t *testing.T) {
	occ, err := recurrence.Expand("FREQ=WEEKLY;BYDAY=MO,MO,TU,FR", anchor, 60, 0)
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	for i := 1; i < len(occ); i++ {
		if !occ[i].Start.After(occ[i-1].Start) {
			t.Fatalf("occurrences %d and %d out of order or duplicated", i-1, i)
		}
	}
}

func TestDeterministic(t *testing.T) {
	a, _ := recurrence.Expand("FREQ=WEEKLY;BYDAY=TU,TH;COUNT=10", anchor, 60, 0)
	b, _ := recurrence.Expand("FREQ=WEEKLY;BYDAY=TU,TH;COUNT=10", anchor, 60, 0)
	if len(a) != len(b) {
		t.Fatal("length differs between runs")
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("occurrence %d differs between runs", i)
		}
	}
}

func TestMalformed(t *testing.T) {
	rules := []string{
		"",
		"RRULE:",
		"COUNT=5",
		"FREQ=YEARLY",
		"FREQ=HOURLY;COUNT=2",
		"FREQ=DAILY;COUNT=0",
		"FREQ=DAILY;COUNT=abc",
		"FREQ=DAILY;INTERVAL=-1",
		"FREQ=DAILY;BYMONTH=1",
		"FREQ=DAILY;;COUNT=2",
		"FREQ=DAILY;COUNT=2;COUNT=3",
		"FREQ=WEEKLY;BYDAY=XX",
		"FREQ=DAILY;UNTIL=notadate",
	}
	for _, r := range rules {
		t.Run(r, func(t *testing.T) {
			_, err := recurrence.Expand(r, anchor, 60, 0)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !apperr.Is(err, apperr.KindValidation) {
				t.Errorf("expected validation kind, got %v", err)
			}
		})
	}
}

func TestNonPositiveDuration(t *testing.T) {
	if _, err := recurrence.Expand("FREQ=DAILY;COUNT=2", anchor, 0, 0); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
