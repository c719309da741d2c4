package rules

import (
	"strconv"
	"strings"
	"time"
)

// clockSeconds converts "HH:MM" or "HH:MM:SS" to seconds from midnight.
// Malformed input reads as 0 rather than failing; a broken schedule entry
// must never take the evaluator down mid-tick.
func clockSeconds(s string) int {
	parts := strings.Split(s, ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0
	}
	vals := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 0 {
			return 0
		}
		vals[i] = n
	}
	total := vals[0]*3600 + vals[1]*60
	if len(vals) == 3 {
		total += vals[2]
	}
	return total
}

// PausedAt reports whether the rule's schedule pauses trading at now.
// Both the current day's entry and the previous day's entry are consulted:
// a window that starts late one day can spill past midnight into the next.
// The current day's entry wins when both could match.
func (r Rule) PausedAt(now time.Time) bool {
	paused, _ := r.pauseState(now)
	return paused
}

// PausedWithCloseAt reports whether trading is paused at now AND the
// matching day's entry asks for open positions to be closed.
func (r Rule) PausedWithCloseAt(now time.Time) bool {
	paused, closeOut := r.pauseState(now)
	return paused && closeOut
}

func (r Rule) pauseState(now time.Time) (paused, closeOut bool) {
	if !r.ActiveSchedule {
		return false, false
	}

	todayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	yesterdayStart := todayStart.AddDate(0, 0, -1)

	if entry, ok := r.dayEntry(now.Weekday().String()); ok {
		start := todayStart.Add(time.Duration(clockSeconds(entry.PauseStart)) * time.Second)
		end := start.Add(time.Duration(clockSeconds(entry.PauseDuration)) * time.Second)
		if !now.Before(start) && !now.After(end) {
			return true, entry.ClosePositionsOnPause
		}
	}

	// Previous day's window only matters when it crosses today's midnight.
	if entry, ok := r.dayEntry(yesterdayStart.Weekday().String()); ok {
		start := yesterdayStart.Add(time.Duration(clockSeconds(entry.PauseStart)) * time.Second)
		end := start.Add(time.Duration(clockSeconds(entry.PauseDuration)) * time.Second)
		if end.After(todayStart) && !now.After(end) {
			return true, entry.ClosePositionsOnPause
		}
	}

	return false, false
}
