package filter

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/pfrederiksen/ace-monitor/internal/event"
)

// ParseStatuses parses a comma-separated status list such as "live,upcoming".
// An empty input yields no statuses.
func ParseStatuses(input string) ([]event.Status, error) {
	var statuses []event.Status
	for _, part := range splitList(input) {
		switch s := event.Status(strings.ToLower(part)); s {
		case event.StatusLive, event.StatusUpcoming, event.StatusUnknown:
			statuses = append(statuses, s)
		default:
			return nil, fmt.Errorf("invalid status %q (want live, upcoming or unknown)", part)
		}
	}
	return statuses, nil
}

// FromQuery builds a filter from request query parameters:
//
//	status=live,upcoming  league=nba  title=lakers  within=2h
//
// Repeated parameters and comma-separated values are both accepted.
func FromQuery(q url.Values) (*Filter, error) {
	f := NewFilter()

	for _, v := range q["status"] {
		statuses, err := ParseStatuses(v)
		if err != nil {
			return nil, err
		}
		f.Statuses = append(f.Statuses, statuses...)
	}

	for _, v := range q["league"] {
		f.Leagues = append(f.Leagues, splitList(v)...)
	}

	for _, v := range q["title"] {
		f.Titles = append(f.Titles, splitList(v)...)
	}

	if v := strings.TrimSpace(q.Get("within")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid within %q: %w", v, err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("within must be positive, got %s", d)
		}
		f.Within = d
	}

	return f, nil
}

func splitList(input string) []string {
	var out []string
	for _, part := range strings.Split(input, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
