package conflict

import (
	"fmt"
	"time"
)

// Rules holds the policy thresholds applied to slot and appointment
// candidates. They are configuration, not per-professional data; Load
// wires them from the environment with these defaults.
type Rules struct {
	MinLeadTime time.Duration // earliest acceptable start, from now
	MaxAdvance  time.Duration // latest acceptable start, from now
	OpenHour    int           // first bookable hour of day, inclusive
	CloseHour   int           // first non-bookable hour of day
	MaxDuration time.Duration // longest acceptable single booking
}

func DefaultRules() Rules {
	return Rules{
		MinLeadTime: 24 * time.Hour,
		MaxAdvance:  90 * 24 * time.Hour,
		OpenHour:    8,
		CloseHour:   20,
		MaxDuration: 8 * time.Hour,
	}
}

// businessRuleConflicts checks a candidate's timing and price against the
// configured policy. Every finding is business_rule_violation/medium; the
// price check is skipped for entities that carry no price.
func (d *Detector) businessRuleConflicts(start, end time.Time, price *float64) []Conflict {
	now := d.now()
	var out []Conflict

	if start.Before(now.Add(d.rules.MinLeadTime)) {
		out = append(out, Conflict{
			Type:     TypeBusinessRule,
			Severity: SeverityMedium,
			Message:  fmt.Sprintf("start is too soon: at least %s notice required", d.rules.MinLeadTime),
			Details:  Details{Field: "start_time"},
		})
	}
	if start.After(now.Add(d.rules.MaxAdvance)) {
		out = append(out, Conflict{
			Type:     TypeBusinessRule,
			Severity: SeverityMedium,
			Message:  fmt.Sprintf("start is too far in advance: bookings open %d days out", int(d.rules.MaxAdvance.Hours()/24)),
			Details:  Details{Field: "start_time"},
		})
	}
	if h := start.Hour(); h < d.rules.OpenHour || h >= d.rules.CloseHour {
		out = append(out, Conflict{
			Type:     TypeBusinessRule,
			Severity: SeverityMedium,
			Message:  fmt.Sprintf("start is outside business hours (%02d:00-%02d:00)", d.rules.OpenHour, d.rules.CloseHour),
			Details:  Details{Field: "start_time"},
		})
	}
	if end.Sub(start) > d.rules.MaxDuration {
		out = append(out, Conflict{
			Type:     TypeBusinessRule,
			Severity: SeverityMedium,
			Message:  fmt.Sprintf("duration exceeds %d hours", int(d.rules.MaxDuration.Hours())),
			Details:  Details{Field: "end_time"},
		})
	}
	if price != nil && *price < 0 {
		out = append(out, Conflict{
			Type:     TypeBusinessRule,
			Severity: SeverityMedium,
			Message:  "price cannot be negative",
			Details:  Details{Field: "price"},
		})
	}

	return out
}
