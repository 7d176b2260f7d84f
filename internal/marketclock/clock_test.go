package marketclock

import (
	"testing"
	"time"
)

func mustClock(t *testing.T) *Clock {
	t.Helper()
	c, err := New()
	if err != nil {
		t.Fatalf("failed to build clock: %v", err)
	}
	return c
}

func eastern(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("failed to load timezone: %v", err)
	}
	return loc
}

func TestIsOpen_RegularSession(t *testing.T) {
	c := mustClock(t)
	loc := eastern(t)

	cases := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"mid session tuesday", time.Date(2025, 6, 10, 12, 0, 0, 0, loc), true},
		{"exactly at open", time.Date(2025, 6, 10, 9, 30, 0, 0, loc), true},
		{"just before open", time.Date(2025, 6, 10, 9, 29, 59, 0, loc), false},
		{"exactly at close", time.Date(2025, 6, 10, 16, 0, 0, 0, loc), false},
		{"saturday", time.Date(2025, 6, 14, 12, 0, 0, 0, loc), false},
		{"independence day", time.Date(2025, 7, 4, 12, 0, 0, 0, loc), false},
		{"thanksgiving", time.Date(2025, 11, 27, 12, 0, 0, 0, loc), false},
	}

	for _, tc := range cases {
		if got := c.IsOpen(tc.at); got != tc.want {
			t.Errorf("%s: IsOpen(%v) = %v, want %v", tc.name, tc.at, got, tc.want)
		}
	}
}

func TestIsOpen_OtherTimezoneInput(t *testing.T) {
	c := mustClock(t)

	// 17:00 UTC on a June trading day is 13:00 in New York.
	at := time.Date(2025, 6, 10, 17, 0, 0, 0, time.UTC)
	if !c.IsOpen(at) {
		t.Fatalf("IsOpen(%v) = false, want true", at)
	}
}

func TestNextOpen_BeforeOpenSameDay(t *testing.T) {
	c := mustClock(t)
	loc := eastern(t)

	at := time.Date(2025, 6, 10, 8, 30, 0, 0, loc)
	if got, want := c.NextOpen(at), time.Hour; got != want {
		t.Fatalf("NextOpen(%v) = %v, want %v", at, got, want)
	}
}

func TestNextOpen_SkipsWeekend(t *testing.T) {
	c := mustClock(t)
	loc := eastern(t)

	// Friday after close; next session is Monday 09:30.
	at := time.Date(2025, 6, 13, 17, 0, 0, 0, loc)
	got := c.NextOpen(at)
	want := time.Date(2025, 6, 16, 9, 30, 0, 0, loc).Sub(at)
	if got != want {
		t.Fatalf("NextOpen(%v) = %v, want %v", at, got, want)
	}
}

func TestNextOpen_SkipsHolidayRecursively(t *testing.T) {
	c := mustClock(t)
	loc := eastern(t)

	// Wednesday 2025-11-26 after close: Thursday is Thanksgiving, so the
	// next open is Friday.
	at := time.Date(2025, 11, 26, 18, 0, 0, 0, loc)
	got := c.NextOpen(at)
	want := time.Date(2025, 11, 28, 9, 30, 0, 0, loc).Sub(at)
	if got != want {
		t.Fatalf("NextOpen(%v) = %v, want %v", at, got, want)
	}
}

func TestNextOpen_StrictlyPositiveAndLandsOnOpenMarket(t *testing.T) {
	c := mustClock(t)
	loc := eastern(t)

	closedInstants := []time.Time{
		time.Date(2025, 6, 10, 4, 0, 0, 0, loc),
		time.Date(2025, 6, 10, 16, 0, 0, 0, loc),
		time.Date(2025, 6, 14, 12, 0, 0, 0, loc),
		time.Date(2025, 12, 25, 10, 0, 0, 0, loc),
	}

	for _, at := range closedInstants {
		wait := c.NextOpen(at)
		if wait <= 0 {
			t.Errorf("NextOpen(%v) = %v, want strictly positive", at, wait)
			continue
		}
		if !c.IsOpen(at.Add(wait)) {
			t.Errorf("market not open at %v after waiting %v from %v", at.Add(wait), wait, at)
		}
	}
}
