package riskguard

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// sessionWindow is one parsed "HH:MM-HH:MM" range, held as minutes of day.
// Bounds are inclusive and same-day only; a range that wraps past midnight
// must be expressed as two separate windows.
type sessionWindow struct {
	start int
	end   int
}

func parseWindow(s string) (sessionWindow, error) {
	parts := strings.Split(s, "-")
	if len(parts) != 2 {
		return sessionWindow{}, fmt.Errorf("session window %q: want HH:MM-HH:MM", s)
	}
	start, err := parseClock(parts[0])
	if err != nil {
		return sessionWindow{}, fmt.Errorf("session window %q: %w", s, err)
	}
	end, err := parseClock(parts[1])
	if err != nil {
		return sessionWindow{}, fmt.Errorf("session window %q: %w", s, err)
	}
	if end < start {
		return sessionWindow{}, fmt.Errorf("session window %q: end before start", s)
	}
	return sessionWindow{start: start, end: end}, nil
}

func parseClock(s string) (int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("bad clock %q", s)
	}
	hh, err := strconv.Atoi(parts[0])
	if err != nil || hh < 0 || hh > 23 {
		return 0, fmt.Errorf("bad hour %q", parts[0])
	}
	mm, err := strconv.Atoi(parts[1])
	if err != nil || mm < 0 || mm > 59 {
		return 0, fmt.Errorf("bad minute %q", parts[1])
	}
	return hh*60 + mm, nil
}

// contains compares at second resolution: the window closes at the exact
// end minute, so 16:00:59 is outside "09:30-16:00".
func (w sessionWindow) contains(secondOfDay int) bool {
	return secondOfDay >= w.start*60 && secondOfDay <= w.end*60
}

// inSession reports whether the wall clock falls inside at least one window.
// Malformed windows are logged and skipped, never treated as a match.
func inSession(now time.Time, windows []string, logger *zap.Logger) bool {
	second := (now.Hour()*60+now.Minute())*60 + now.Second()
	for _, raw := range windows {
		w, err := parseWindow(raw)
		if err != nil {
			logger.Warn("invalid session window, skipping",
				zap.String("window", raw), zap.Error(err))
			continue
		}
		if w.contains(second) {
			return true
		}
	}
	return false
}
