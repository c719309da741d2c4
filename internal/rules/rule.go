package rules

import (
	"fmt"
	"strings"
	"time"
)

// Rule describes how alerts for one symbol are turned into orders.
// Symbols are unique across the rule set; matching is exact and
// case-sensitive.
type Rule struct {
	Symbol              string        `json:"symbol" yaml:"symbol"`
	Volume              float64       `json:"volume" yaml:"volume"`
	VolumeFromAlert     bool          `json:"volume_from_alert" yaml:"volume_from_alert"`
	TakeProfit          float64       `json:"take_profit" yaml:"take_profit"`
	StopLoss            float64       `json:"stop_loss" yaml:"stop_loss"`
	ProfitTrailingStop  float64       `json:"profit_trailing_stop" yaml:"profit_trailing_stop"`
	ClosePositionsEntry bool          `json:"close_positions_on_entry" yaml:"close_positions_on_entry"`
	ActiveSchedule      bool          `json:"active_schedule" yaml:"active_schedule"`
	Schedule            []DaySchedule `json:"schedule,omitempty" yaml:"schedule,omitempty"`
}

// DaySchedule is a recurring pause window on one weekday. PauseStart is a
// clock time (HH:MM or HH:MM:SS); PauseDuration uses the same format but is
// read as elapsed seconds added to the start, so a window may run past
// midnight into the following day.
type DaySchedule struct {
	Day                   string `json:"day" yaml:"day"`
	PauseStart            string `json:"pause_start" yaml:"pause_start"`
	PauseDuration         string `json:"pause_duration" yaml:"pause_duration"`
	ClosePositionsOnPause bool   `json:"close_positions_on_pause" yaml:"close_positions_on_pause"`
}

var weekdayNames = map[string]time.Weekday{
	"Monday":    time.Monday,
	"Tuesday":   time.Tuesday,
	"Wednesday": time.Wednesday,
	"Thursday":  time.Thursday,
	"Friday":    time.Friday,
	"Saturday":  time.Saturday,
	"Sunday":    time.Sunday,
}

// Validate rejects malformed rules instead of defaulting silently.
func (r Rule) Validate() error {
	if strings.TrimSpace(r.Symbol) == "" {
		return fmt.Errorf("rule: empty symbol")
	}
	if r.Volume <= 0 {
		return fmt.Errorf("rule %s: volume must be positive, got %v", r.Symbol, r.Volume)
	}
	if r.TakeProfit < 0 || r.StopLoss < 0 || r.ProfitTrailingStop < 0 {
		return fmt.Errorf("rule %s: negative distance", r.Symbol)
	}
	seen := make(map[string]bool, len(r.Schedule))
	for _, d := range r.Schedule {
		if _, ok := weekdayNames[d.Day]; !ok {
			return fmt.Errorf("rule %s: unknown weekday %q", r.Symbol, d.Day)
		}
		if seen[d.Day] {
			return fmt.Errorf("rule %s: duplicate schedule entry for %s", r.Symbol, d.Day)
		}
		seen[d.Day] = true
	}
	return nil
}

// ValidateSet validates each rule and symbol uniqueness across the set.
func ValidateSet(set []Rule) error {
	seen := make(map[string]bool, len(set))
	for _, r := range set {
		if err := r.Validate(); err != nil {
			return err
		}
		if seen[r.Symbol] {
			return fmt.Errorf("duplicate rule for symbol %s", r.Symbol)
		}
		seen[r.Symbol] = true
	}
	return nil
}

// Find returns the rule with an exact, case-sensitive symbol match.
func Find(set []Rule, symbol string) (Rule, bool) {
	for _, r := range set {
		if r.Symbol == symbol {
			return r, true
		}
	}
	return Rule{}, false
}

func (r Rule) dayEntry(day string) (DaySchedule, bool) {
	for _, d := range r.Schedule {
		if d.Day == day {
			return d, true
		}
	}
	return DaySchedule{}, false
}
