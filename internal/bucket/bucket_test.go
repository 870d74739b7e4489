package bucket

import (
	"testing"
	"time"
)

func TestStartFloorsToMinute(t *testing.T) {
	ts := time.Date(2026, 3, 14, 10, 7, 42, 123456789, time.UTC)
	got := Start(ts, time.Minute)
	want := time.Date(2026, 3, 14, 10, 7, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestStartAlreadyAligned(t *testing.T) {
	ts := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	if got := Start(ts, 15*time.Minute); !got.Equal(ts) {
		t.Fatalf("aligned timestamp should be unchanged, got %v", got)
	}
}

func TestStartNormalizesZone(t *testing.T) {
	zone := time.FixedZone("UTC+3", 3*60*60)
	ts := time.Date(2026, 3, 14, 13, 7, 30, 0, zone)
	got := Start(ts, time.Minute)
	want := time.Date(2026, 3, 14, 10, 7, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	if got.Location() != time.UTC {
		t.Fatalf("expected UTC location, got %v", got.Location())
	}
}

func TestCoveringExactWindow(t *testing.T) {
	start := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	end := start.Add(15 * time.Minute)

	got := Covering(start, end, time.Minute)
	if len(got) != 15 {
		t.Fatalf("expected 15 buckets, got %d", len(got))
	}
	for i, b := range got {
		want := start.Add(time.Duration(i) * time.Minute)
		if !b.Equal(want) {
			t.Fatalf("bucket %d: expected %v, got %v", i, want, b)
		}
	}
}

func TestCoveringIncludesPartialBuckets(t *testing.T) {
	// Window straddles bucket boundaries on both sides: 10:00:30 to 10:03:30
	// overlaps the 10:00, 10:01, 10:02 and 10:03 buckets.
	start := time.Date(2026, 3, 14, 10, 0, 30, 0, time.UTC)
	end := time.Date(2026, 3, 14, 10, 3, 30, 0, time.UTC)

	got := Covering(start, end, time.Minute)
	if len(got) != 4 {
		t.Fatalf("expected 4 overlapping buckets, got %d", len(got))
	}
	if !got[0].Equal(time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("first bucket should be 10:00, got %v", got[0])
	}
	if !got[3].Equal(time.Date(2026, 3, 14, 10, 3, 0, 0, time.UTC)) {
		t.Fatalf("last bucket should be 10:03, got %v", got[3])
	}
}

func TestCoveringEmptyOrInvalidWindow(t *testing.T) {
	at := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	if got := Covering(at, at, time.Minute); got != nil {
		t.Fatalf("empty window should yield no buckets, got %v", got)
	}
	if got := Covering(at.Add(time.Minute), at, time.Minute); got != nil {
		t.Fatalf("inverted window should yield no buckets, got %v", got)
	}
	if got := Covering(at, at.Add(time.Minute), 0); got != nil {
		t.Fatalf("non-positive bucket size should yield no buckets, got %v", got)
	}
}

func TestParseUnit(t *testing.T) {
	for _, name := range []string{"15min", "hour", "day"} {
		u, err := ParseUnit(name)
		if err != nil {
			t.Fatalf("ParseUnit(%q) returned error: %v", name, err)
		}
		if u.String() != name {
			t.Fatalf("expected %q, got %q", name, u.String())
		}
		if u.Duration() <= 0 {
			t.Fatalf("unit %q has non-positive duration", name)
		}
	}

	if _, err := ParseUnit("fortnight"); err == nil {
		t.Fatal("expected error for unknown unit")
	}
}

func TestUnitFinerChain(t *testing.T) {
	if _, ok := Unit15Min.Finer(); ok {
		t.Fatal("15min should aggregate from raw data, not a finer unit")
	}

	finer, ok := UnitHour.Finer()
	if !ok || finer != Unit15Min {
		t.Fatalf("hour should fold 15min aggregates, got %v %v", finer, ok)
	}

	finer, ok = UnitDay.Finer()
	if !ok || finer != UnitHour {
		t.Fatalf("day should fold hour aggregates, got %v %v", finer, ok)
	}
}
