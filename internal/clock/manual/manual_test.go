package manual

import (
	"testing"
	"time"
)

func TestClockSetAndAdvance(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("x", 3600))
	clk := New(start)
	if got := clk.Now(); !got.Equal(start) || got.Location() != time.UTC {
		t.Fatalf("expected %v in UTC, got %v", start, got)
	}
	clk.Advance(90 * time.Second)
	if got := clk.Now(); !got.Equal(start.Add(90 * time.Second)) {
		t.Fatalf("expected advance by 90s, got %v", got)
	}
	later := start.Add(time.Hour)
	clk.Set(later)
	if got := clk.Now(); !got.Equal(later) {
		t.Fatalf("expected %v, got %v", later, got)
	}
}
