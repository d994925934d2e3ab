package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/pfrederiksen/ace-monitor/internal/event"
)

// SortOrder represents the available sorting options
type SortOrder string

const (
	SortByListing SortOrder = "listing"
	SortByStart   SortOrder = "start"
	SortByLeague  SortOrder = "league"
	SortByTitle   SortOrder = "title"
)

// ParseSortOrder validates a sort order name
func ParseSortOrder(s string) (SortOrder, error) {
	switch o := SortOrder(strings.ToLower(strings.TrimSpace(s))); o {
	case "", SortByListing:
		return SortByListing, nil
	case SortByStart, SortByLeague, SortByTitle:
		return o, nil
	default:
		return "", fmt.Errorf("invalid sort order %q (want listing, start, league or title)", s)
	}
}

// SortEvents sorts events in place. Listing order leaves them untouched.
func SortEvents(events []*event.Event, order SortOrder) {
	switch order {
	case SortByStart:
		sort.SliceStable(events, func(i, j int) bool {
			return compareByStart(events[i], events[j])
		})
	case SortByLeague:
		sort.SliceStable(events, func(i, j int) bool {
			if events[i].League != events[j].League {
				return events[i].League < events[j].League
			}
			return compareByStart(events[i], events[j])
		})
	case SortByTitle:
		sort.SliceStable(events, func(i, j int) bool {
			ti, tj := strings.ToLower(events[i].Title), strings.ToLower(events[j].Title)
			if ti != tj {
				return ti < tj
			}
			return compareByStart(events[i], events[j])
		})
	}
}

// compareByStart puts live events first, then known start times ascending,
// then everything else.
func compareByStart(i, j *event.Event) bool {
	liveI, liveJ := i.Status == event.StatusLive, j.Status == event.StatusLive
	if liveI != liveJ {
		return liveI
	}

	startI := i.StartTime(time.UTC)
	startJ := j.StartTime(time.UTC)

	if !startI.IsZero() && !startJ.IsZero() {
		return startI.Before(startJ)
	}
	if !startI.IsZero() {
		return true
	}
	return false
}
