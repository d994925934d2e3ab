// Package filter narrows event lists for reports and scans.
//
// Criteria combine with AND; values within one criterion combine with OR:
//   - Statuses (exact, case-insensitive)
//   - Leagues (substring matching, case-insensitive)
//   - Titles (substring matching, case-insensitive)
//   - Within (upcoming events starting within a duration from now)
//
// Example usage:
//
//	// Live NBA events only
//	f := filter.NewFilter()
//	f.Statuses = []event.Status{event.StatusLive}
//	f.Leagues = []string{"nba"}
//
//	filtered := f.Apply(repo.ListAll())
package filter

import (
	"fmt"
	"strings"
	"time"

	"github.com/pfrederiksen/ace-monitor/internal/event"
)

// Filter represents event filtering criteria
type Filter struct {
	Statuses []event.Status `json:"statuses,omitempty"`

	// League filtering (case-insensitive substring match)
	Leagues []string `json:"leagues,omitempty"`

	// Title filtering (case-insensitive substring match)
	Titles []string `json:"titles,omitempty"`

	// Only events with a known start time inside (now, now+Within]
	Within time.Duration `json:"within,omitempty"`
}

// NewFilter creates a new empty filter with no active criteria.
// The filter will match all events until criteria are added.
func NewFilter() *Filter {
	return &Filter{
		Statuses: []event.Status{},
		Leagues:  []string{},
		Titles:   []string{},
	}
}

// IsEmpty checks if the filter has any active criteria.
// Returns true if the filter would match all events.
func (f *Filter) IsEmpty() bool {
	return len(f.Statuses) == 0 &&
		len(f.Leagues) == 0 &&
		len(f.Titles) == 0 &&
		f.Within == 0
}

// Matches checks if an event matches all active filter criteria.
// An empty filter matches all events.
func (f *Filter) Matches(evt *event.Event) bool {
	if f.IsEmpty() {
		return true
	}

	if len(f.Statuses) > 0 {
		matched := false
		for _, status := range f.Statuses {
			if strings.EqualFold(string(evt.Status), string(status)) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	if len(f.Leagues) > 0 && !containsAny(evt.League, f.Leagues) {
		return false
	}

	if len(f.Titles) > 0 && !containsAny(evt.Title, f.Titles) {
		return false
	}

	if f.Within > 0 && !evt.StartsWithin(f.Within) {
		return false
	}

	return true
}

// containsAny reports whether s contains at least one needle, ignoring case
func containsAny(s string, needles []string) bool {
	lower := strings.ToLower(s)
	for _, n := range needles {
		if strings.Contains(lower, strings.ToLower(n)) {
			return true
		}
	}
	return false
}

// Apply applies the filter to a list of events and returns only matching events.
// If the filter is empty, returns the original list unchanged.
// Otherwise, returns a new slice containing only events that match all criteria.
func (f *Filter) Apply(events []*event.Event) []*event.Event {
	if f.IsEmpty() {
		return events
	}

	filtered := make([]*event.Event, 0, len(events))
	for _, evt := range events {
		if f.Matches(evt) {
			filtered = append(filtered, evt)
		}
	}

	return filtered
}

// String returns a human-readable description of the active filter criteria.
// Format: "Status: live | Leagues: nba, nhl | Within: 2h0m0s"
func (f *Filter) String() string {
	if f.IsEmpty() {
		return "No active filters"
	}

	var parts []string

	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = string(s)
		}
		parts = append(parts, fmt.Sprintf("Status: %s", strings.Join(statuses, ", ")))
	}

	if len(f.Leagues) > 0 {
		parts = append(parts, fmt.Sprintf("Leagues: %s", strings.Join(f.Leagues, ", ")))
	}

	if len(f.Titles) > 0 {
		parts = append(parts, fmt.Sprintf("Titles: %s", strings.Join(f.Titles, ", ")))
	}

	if f.Within > 0 {
		parts = append(parts, fmt.Sprintf("Within: %s", f.Within))
	}

	return strings.Join(parts, " | ")
}

// Clone creates a deep copy of the filter.
func (f *Filter) Clone() *Filter {
	clone := &Filter{
		Statuses: append([]event.Status{}, f.Statuses...),
		Leagues:  append([]string{}, f.Leagues...),
		Titles:   append([]string{}, f.Titles...),
		Within:   f.Within,
	}
	return clone
}
