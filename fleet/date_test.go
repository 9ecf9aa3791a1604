package fleet_test

import (
	"testing"
	"time"

	"github.com/frotaops/fleet-engine/fleet"
)

func TestDateRangeOverlaps(t *testing.T) {
	base := rng(d(2025, time.January, 1), d(2025, time.January, 10))

	cases := []struct {
		name    string
		other   fleet.DateRange
		overlap bool
	}{
		{"contained", rng(d(2025, time.January, 3), d(2025, time.January, 7)), true},
		{"straddles start", rng(d(2024, time.December, 20), d(2025, time.January, 2)), true},
		{"straddles end", rng(d(2025, time.January, 9), d(2025, time.January, 20)), true},
		{"identical", base, true},
		{"touches end day", rng(d(2025, time.January, 10), d(2025, time.January, 15)), true},
		{"touches start day", rng(d(2024, time.December, 1), d(2025, time.January, 1)), true},
		{"day after", rng(d(2025, time.January, 11), d(2025, time.January, 20)), false},
		{"day before", rng(d(2024, time.December, 1), d(2024, time.December, 31)), false},
	}
	for _, c := range cases {
		if got := base.Overlaps(c.other); got != c.overlap {
			t.Errorf("%s: Overlaps(%s) = %v, want %v", c.name, c.other, got, c.overlap)
		}
	}
}

func TestDateRangeContains(t *testing.T) {
	r := rng(d(2025, time.March, 1), d(2025, time.March, 31))

	if !r.Contains(d(2025, time.March, 1)) || !r.Contains(d(2025, time.March, 31)) {
		t.Error("boundary days must be contained")
	}
	if r.Contains(d(2025, time.April, 1)) {
		t.Error("day after the range must not be contained")
	}
}

func TestParseDate(t *testing.T) {
	got, err := fleet.ParseDate("2025-06-15")
	if err != nil {
		t.Fatalf("ParseDate: %v", err)
	}
	if !got.Equal(d(2025, time.June, 15)) {
		t.Errorf("got %s", got)
	}

	if _, err := fleet.ParseDate("15/06/2025"); err == nil {
		t.Error("expected an error for a non ISO date")
	}
}

func TestDateRangeDays(t *testing.T) {
	r := rng(d(2025, time.January, 1), d(2025, time.January, 10))
	if got := r.Days(); got != 10 {
		t.Errorf("Days() = %d, want 10", got)
	}
}
