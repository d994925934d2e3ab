package report

import (
	"testing"

	"github.com/pfrederiksen/ace-monitor/internal/event"
)

func TestSortEvents(t *testing.T) {
	mk := func(title, league string, status event.Status, start int64) *event.Event {
		evt := &event.Event{Title: title, League: league, Status: status}
		if start > 0 {
			evt.StartTimeEpoch = &start
		}
		return evt
	}

	tests := []struct {
		name  string
		order SortOrder
		want  []string
	}{
		{"listing", SortByListing, []string{"delta", "Alpha", "charlie", "bravo"}},
		{"start", SortByStart, []string{"charlie", "bravo", "delta", "Alpha"}},
		{"league", SortByLeague, []string{"bravo", "charlie", "Alpha", "delta"}},
		{"title", SortByTitle, []string{"Alpha", "bravo", "charlie", "delta"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events := []*event.Event{
				mk("delta", "NHL", event.StatusUpcoming, 2000),
				mk("Alpha", "NBA", event.StatusUnknown, 0),
				mk("charlie", "NBA", event.StatusLive, 0),
				mk("bravo", "EPL", event.StatusUpcoming, 1000),
			}
			SortEvents(events, tt.order)

			for i, evt := range events {
				if evt.Title != tt.want[i] {
					t.Fatalf("position %d = %q, want order %v", i, evt.Title, tt.want)
				}
			}
		})
	}
}

func TestParseSortOrder(t *testing.T) {
	for _, in := range []string{"", "listing", "Start", "league", "title"} {
		if _, err := ParseSortOrder(in); err != nil {
			t.Errorf("ParseSortOrder(%q) returned error: %v", in, err)
		}
	}
	if _, err := ParseSortOrder("date"); err == nil {
		t.Error("expected error for unknown sort order")
	}
}
