package quest

import (
	"testing"
	"time"
)

func TestDateOf_UTCDay(t *testing.T) {
	// 23:30 in UTC+3 is already the next day locally, but quest days are UTC.
	loc := time.FixedZone("UTC+3", 3*60*60)
	instant := time.Date(2025, 1, 2, 1, 30, 0, 0, loc) // 22:30 UTC on Jan 1

	if got := DateOf(instant); got != "2025-01-01" {
		t.Errorf("DateOf = %q, want 2025-01-01", got)
	}
}

func TestPrevDate(t *testing.T) {
	tests := map[string]string{
		"2025-01-02": "2025-01-01",
		"2025-01-01": "2024-12-31",
		"2024-03-01": "2024-02-29", // leap year
		"garbage":    "",
	}
	for in, want := range tests {
		if got := PrevDate(in); got != want {
			t.Errorf("PrevDate(%q) = %q, want %q", in, got, want)
		}
	}
}
