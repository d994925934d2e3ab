// Package report renders repository contents for people and other tools:
// JSON reports, XMLTV guides, an HTML dashboard and plain text listings.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/pfrederiksen/ace-monitor/internal/event"
	"github.com/pfrederiksen/ace-monitor/internal/filter"
	"github.com/pfrederiksen/ace-monitor/internal/store"
)

// Format specifies the output format
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// ParseFormat validates a format name
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatText, FormatJSON:
		return f, nil
	default:
		return "", fmt.Errorf("unknown format: %s", s)
	}
}

// Report is the repository state as served by /report.json
type Report struct {
	GeneratedAt time.Time            `json:"generated_at"`
	LastRunUTC  string               `json:"last_run_utc"`
	LastCycle   uint64               `json:"last_cycle"`
	Tracked     int                  `json:"tracked"`
	Filter      string               `json:"filter,omitempty"`
	Counts      map[event.Status]int `json:"counts"`
	Events      []*event.Event       `json:"events"`
	Changes     []*event.EventChange `json:"changes,omitempty"`
}

// Build assembles a report from the repository. A nil filter keeps every event.
func Build(repo *store.Repository, f *filter.Filter) *Report {
	events := repo.ListAll()
	rep := &Report{
		GeneratedAt: time.Now().UTC(),
		LastRunUTC:  formatRun(repo.LastRun()),
		LastCycle:   repo.LastCycle(),
		Tracked:     len(events),
		Counts:      repo.CountByStatus(),
		Events:      events,
		Changes:     repo.Changes(),
	}
	if f != nil && !f.IsEmpty() {
		rep.Filter = f.String()
		rep.Events = f.Apply(events)
	}
	return rep
}

// Health is the body of /healthz
type Health struct {
	OK         bool   `json:"ok"`
	LastRunUTC string `json:"last_run_utc"`
	Tracked    int    `json:"tracked"`
}

// HealthOf reports repository liveness
func HealthOf(repo *store.Repository) Health {
	return Health{
		OK:         true,
		LastRunUTC: formatRun(repo.LastRun()),
		Tracked:    repo.Len(),
	}
}

func formatRun(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// WriteJSON writes v as indented JSON
func WriteJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// WriteEvents writes events in the given format. Text output is grouped by league.
func WriteEvents(w io.Writer, events []*event.Event, format Format, loc *time.Location, verbose bool) error {
	switch format {
	case FormatJSON:
		return WriteJSON(w, events)
	case FormatText:
		return writeText(w, events, loc, verbose)
	default:
		return fmt.Errorf("unknown format: %s", format)
	}
}

func writeText(w io.Writer, events []*event.Event, loc *time.Location, verbose bool) error {
	if len(events) == 0 {
		fmt.Fprintln(w, "No events found.")
		return nil
	}

	byLeague := make(map[string][]*event.Event)
	for _, evt := range events {
		byLeague[evt.League] = append(byLeague[evt.League], evt)
	}
	leagues := make([]string, 0, len(byLeague))
	for league := range byLeague {
		leagues = append(leagues, league)
	}
	sort.Strings(leagues)

	for _, league := range leagues {
		group := byLeague[league]
		fmt.Fprintf(w, "\n%s (%d):\n", league, len(group))
		for _, evt := range group {
			line := fmt.Sprintf("  %-8s %s", strings.ToUpper(string(evt.Status)), evt.Title)
			if start := evt.FormatStart(loc, "Mon Jan 2 15:04 MST"); start != "" {
				line += " @ " + start
			}
			fmt.Fprintln(w, line)

			if !verbose {
				continue
			}
			fmt.Fprintf(w, "           ID: %s\n", evt.ID)
			if evt.EventURL != "" {
				fmt.Fprintf(w, "           Event: %s\n", evt.EventURL)
			}
			if evt.IframeSrcObservable != "" {
				fmt.Fprintf(w, "           Iframe: %s\n", evt.IframeSrcObservable)
			}
			if ro := evt.RequestObservables; ro != nil {
				fmt.Fprintf(w, "           Origin*: %s  Referrer*: %s\n", ro.OriginCandidate, ro.ReferrerCandidate)
			}
			if head := evt.IframeHead; head != nil {
				fmt.Fprintf(w, "           HEAD: %d %s\n", head.Status, head.ServerIP)
			}
		}
	}
	fmt.Fprintf(w, "\nTotal: %d events across %d leagues\n", len(events), len(leagues))
	return nil
}
