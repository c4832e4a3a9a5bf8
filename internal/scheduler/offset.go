package scheduler

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/JakeFAU/scheduled-publisher/internal/schedule"
)

var offsetPattern = regexp.MustCompile(`^(\d+)([smh])$`)

// ParseOffset parses "<digits><unit>" with unit s, m or h.
func ParseOffset(raw string) (time.Duration, error) {
	m := offsetPattern.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return 0, fmt.Errorf("%w: %q (want <number><s|m|h>, e.g. 10m)", schedule.ErrInvalidTimeFormat, raw)
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %w", schedule.ErrInvalidTimeFormat, raw, err)
	}
	unit := map[string]time.Duration{"s": time.Second, "m": time.Minute, "h": time.Hour}[m[2]]
	if n > int64(1<<62)/int64(unit) {
		return 0, fmt.Errorf("%w: %q is out of range", schedule.ErrInvalidTimeFormat, raw)
	}
	return time.Duration(n) * unit, nil
}

// ResolveTime accepts an offset from now or an absolute RFC 3339 timestamp.
func ResolveTime(raw string, now time.Time) (time.Time, error) {
	if d, err := ParseOffset(raw); err == nil {
		return now.Add(d).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q (want an offset like 10m or an RFC 3339 timestamp)", schedule.ErrInvalidTimeFormat, raw)
	}
	return t.UTC(), nil
}
