// Package recurrence expands the subset of iCalendar RRULE text the
// scheduler accepts into concrete occurrence intervals.
//
// Only FREQ (DAILY, WEEKLY, MONTHLY), BYDAY, COUNT, UNTIL and INTERVAL are
// accepted. The anchor's start time is the implicit DTSTART. Every expansion
// is cut at a horizon after the anchor, so a rule without COUNT or UNTIL
// still yields a finite series.
package recurrence

import (
	"strconv"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	"coaching-schedule-api/internal/apperr"
)

// DefaultHorizon bounds every expansion regardless of the rule's own bounds.
const DefaultHorizon = 365 * 24 * time.Hour

const prefix = "RRULE:"

var supported = map[string]bool{
	"FREQ":     true,
	"BYDAY":    true,
	"COUNT":    true,
	"UNTIL":    true,
	"INTERVAL": true,
}

var frequencies = map[string]bool{
	"DAILY":   true,
	"WEEKLY":  true,
	"MONTHLY": true,
}

type Occurrence struct {
	Start time.Time
	End   time.Time
}

// Normalize trims the rule and strips an optional RRULE: prefix.
func Normalize(rule string) string {
	rule = strings.TrimSpace(rule)
	if len(rule) >= len(prefix) && strings.EqualFold(rule[:len(prefix)], prefix) {
		rule = rule[len(prefix):]
	}
	return rule
}

// Expand returns the occurrences of rule anchored at anchor, each lasting
// durationMinutes, in ascending order. Occurrences starting after
// anchor+horizon are dropped; horizon <= 0 means DefaultHorizon.
func Expand(rule string, anchor time.Time, durationMinutes int, horizon time.Duration) ([]Occurrence, error) {
	if durationMinutes <= 0 {
		return nil, apperr.Validation("durationMinutes must be positive")
	}
	if horizon <= 0 {
		horizon = DefaultHorizon
	}
	anchor = anchor.UTC().Truncate(time.Second)

	r, err := parse(rule, anchor)
	if err != nil {
		return nil, err
	}

	starts := r.Between(anchor, anchor.Add(horizon), true)
	dur := time.Duration(durationMinutes) * time.Minute

	out := make([]Occurrence, 0, len(starts))
	for _, s := range starts {
		s = s.UTC()
		out = append(out, Occurrence{Start: s, End: s.Add(dur)})
	}
	return out, nil
}

func parse(rule string, anchor time.Time) (*rrule.RRule, error) {
	body := Normalize(rule)
	if body == "" {
		return nil, apperr.Validation("recurrence rule is empty")
	}

	seen := make(map[string]bool)
	for _, part := range strings.Split(body, ";") {
		key, val, ok := strings.Cut(part, "=")
		key = strings.ToUpper(strings.TrimSpace(key))
		if !ok || key == "" || strings.TrimSpace(val) == "" {
			return nil, apperr.Validation("malformed recurrence rule component %q", part)
		}
		if !supported[key] {
			return nil, apperr.Validation("unsupported recurrence rule property %s", key)
		}
		if seen[key] {
			return nil, apperr.Validation("duplicate recurrence rule property %s", key)
		}
		seen[key] = true

		switch key {
		case "FREQ":
			if !frequencies[strings.ToUpper(val)] {
				return nil, apperr.Validation("unsupported recurrence frequency %s", val)
			}
		case "COUNT", "INTERVAL":
			n, err := strconv.Atoi(val)
			if err != nil || n <= 0 {
				return nil, apperr.Validation("%s must be a positive integer", key)
			}
		}
	}
	if !seen["FREQ"] {
		return nil, apperr.Validation("recurrence rule requires FREQ")
	}

	opt, err := rrule.StrToROptionInLocation(strings.ToUpper(body), time.UTC)
	if err != nil {
		return nil, &apperr.Error{Kind: apperr.KindValidation, Message: "invalid recurrence rule", Err: err}
	}
	opt.Dtstart = anchor

	r, err := rrule.NewRRule(*opt)
	if err != nil {
		return nil, &apperr.Error{Kind: apperr.KindValidation, Message: "invalid recurrence rule", Err: err}
	}
	return r, nil
}

// Canonical returns the stored form of rule: upper-case with the RRULE: prefix.
func Canonical(rule string) string {
	return prefix + strings.ToUpper(Normalize(rule))
}
