// Package store holds the latest known state of every event.
//
// The Repository is the single point of mutation across scrape cycles. Writes
// carry the cycle sequence number that produced them and a write from an
// older cycle than the stored record is dropped, whatever order the cycles
// finish in. Records are never expired.
package store

import (
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/pfrederiksen/ace-monitor/internal/event"
	"github.com/pfrederiksen/ace-monitor/internal/logger"
	"github.com/pfrederiksen/ace-monitor/internal/metrics"
)

// DefaultChangeLogSize bounds the change log when no size is configured
const DefaultChangeLogSize = 500

// Repository is an in-memory event store keyed by event ID
type Repository struct {
	mu         sync.RWMutex
	events     map[string]*event.Event
	order      []string // first-sighting order
	changes    []*event.EventChange
	maxChanges int
	lastCycle  uint64
	lastRun    time.Time
	metrics    *metrics.Metrics
}

// New creates an empty Repository. m may be nil.
func New(changeLogSize int, m *metrics.Metrics) *Repository {
	if changeLogSize <= 0 {
		changeLogSize = DefaultChangeLogSize
	}
	return &Repository{
		events:     make(map[string]*event.Event),
		order:      make([]string, 0),
		changes:    make([]*event.EventChange, 0),
		maxChanges: changeLogSize,
		metrics:    m,
	}
}

// Upsert stores evt as written by cycle. It returns false when the write was
// dropped because the stored record comes from a newer cycle.
//
// The record is replaced wholesale, except that evidence captured earlier is
// not lost to a cycle that failed to reproduce it: an empty listing hash keeps
// the previous one, and a live event whose reveal came back empty keeps the
// previous iframe src, observables and HEAD snapshot. Non-live events never
// carry those fields.
func (r *Repository) Upsert(cycle uint64, evt *event.Event) bool {
	if evt == nil || evt.ID == "" {
		return false
	}
	evt = evt.Clone()
	evt.Cycle = cycle

	r.mu.Lock()
	defer r.mu.Unlock()

	prev, exists := r.events[evt.ID]
	if exists && cycle < prev.Cycle {
		r.metrics.StaleUpsert()
		logger.Debug("stale upsert dropped", logger.Fields{
			"event_id":     evt.ID,
			"cycle":        cycle,
			"stored_cycle": prev.Cycle,
		})
		return false
	}

	if exists {
		evt.FirstSeen = prev.FirstSeen
		if evt.Evidence.ListingHTMLSHA256 == "" {
			evt.Evidence.ListingHTMLSHA256 = prev.Evidence.ListingHTMLSHA256
		}
		if evt.Status == event.StatusLive {
			retainEnrichment(prev, evt)
		}
	} else {
		r.order = append(r.order, evt.ID)
	}

	if err := evt.Validate(); errors.Is(err, event.ErrEnrichedNotLive) {
		logger.Warn("dropping enrichment on non-live event", logger.Fields{"event_id": evt.ID, "status": string(evt.Status)}, err)
		evt.ClearEnrichment()
	}

	if exists {
		r.appendChanges(event.DetectChanges(prev, evt))
	} else {
		r.appendChanges(event.DetectChanges(nil, evt))
	}

	r.events[evt.ID] = evt
	if cycle > r.lastCycle {
		r.lastCycle = cycle
	}
	return true
}

// retainEnrichment fills enrichment that cur lacks from prev. A HEAD snapshot
// or observables are only reused while they describe the same iframe URL.
func retainEnrichment(prev, cur *event.Event) {
	if !prev.Enriched() {
		return
	}
	if cur.IframeSrcObservable == "" {
		cur.IframeSrcObservable = prev.IframeSrcObservable
	}
	if cur.IframeSrcObservable != prev.IframeSrcObservable {
		return
	}
	saved := prev.Clone()
	if cur.RequestObservables == nil {
		cur.RequestObservables = saved.RequestObservables
	}
	if cur.IframeHead == nil {
		cur.IframeHead = saved.IframeHead
	}
}

func (r *Repository) appendChanges(changes []*event.EventChange) {
	r.changes = append(r.changes, changes...)
	if over := len(r.changes) - r.maxChanges; over > 0 {
		r.changes = slices.Clone(r.changes[over:])
	}
}

// ListAll returns copies of all events in first-sighting order
func (r *Repository) ListAll() []*event.Event {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*event.Event, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.events[id].Clone())
	}
	return out
}

// Get returns a copy of the event with the given ID
func (r *Repository) Get(id string) (*event.Event, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	evt, ok := r.events[id]
	if !ok {
		return nil, false
	}
	return evt.Clone(), true
}

// Len returns the number of stored events
func (r *Repository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.events)
}

// Changes returns the change log, oldest first
func (r *Repository) Changes() []*event.EventChange {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*event.EventChange, len(r.changes))
	for i, c := range r.changes {
		cp := *c
		out[i] = &cp
	}
	return out
}

// CountByStatus tallies stored events by status
func (r *Repository) CountByStatus() map[event.Status]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := map[event.Status]int{
		event.StatusLive:     0,
		event.StatusUpcoming: 0,
		event.StatusUnknown:  0,
	}
	for _, evt := range r.events {
		counts[evt.Status]++
	}
	return counts
}

// LastCycle returns the highest cycle that has written a record
func (r *Repository) LastCycle() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastCycle
}

// MarkRun records the completion time of a cycle and publishes gauges
func (r *Repository) MarkRun(cycle uint64, at time.Time) {
	r.mu.Lock()
	r.lastRun = at.UTC()
	if cycle > r.lastCycle {
		r.lastCycle = cycle
	}
	total := len(r.events)
	r.mu.Unlock()

	byStatus := make(map[string]int)
	for status, n := range r.CountByStatus() {
		byStatus[string(status)] = n
	}
	r.metrics.SetEvents(total, byStatus)
}

// LastRun returns the completion time of the last cycle, zero if none ran
func (r *Repository) LastRun() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastRun
}

// Snapshot captures the repository contents for persistence
func (r *Repository) Snapshot() *event.Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := event.NewSnapshot()
	for _, id := range r.order {
		snap.Events[id] = r.events[id].Clone()
	}
	snap.Order = slices.Clone(r.order)
	for _, c := range r.changes {
		cp := *c
		snap.ChangeLog = append(snap.ChangeLog, &cp)
	}
	snap.LastCycle = r.lastCycle
	if !r.lastRun.IsZero() {
		snap.LastRunUTC = r.lastRun.Format(time.RFC3339)
	}
	return snap
}

// Restore replaces the repository contents with snap. IDs missing from
// snap.Order are appended in sorted order.
func (r *Repository) Restore(snap *event.Snapshot) {
	if snap == nil {
		return
	}

	events := make(map[string]*event.Event, len(snap.Events))
	for id, evt := range snap.Events {
		if evt == nil || evt.ID != id {
			continue
		}
		evt = evt.Clone()
		if evt.Status != event.StatusLive {
			evt.ClearEnrichment()
		}
		events[id] = evt
	}

	order := make([]string, 0, len(events))
	seen := make(map[string]bool, len(events))
	for _, id := range snap.Order {
		if _, ok := events[id]; ok && !seen[id] {
			order = append(order, id)
			seen[id] = true
		}
	}
	var rest []string
	for id := range events {
		if !seen[id] {
			rest = append(rest, id)
		}
	}
	slices.Sort(rest)
	order = append(order, rest...)

	changes := make([]*event.EventChange, 0, len(snap.ChangeLog))
	for _, c := range snap.ChangeLog {
		if c != nil {
			cp := *c
			changes = append(changes, &cp)
		}
	}

	var lastRun time.Time
	if snap.LastRunUTC != "" {
		if t, err := time.Parse(time.RFC3339, snap.LastRunUTC); err == nil {
			lastRun = t
		}
	}

	r.mu.Lock()
	r.events = events
	r.order = order
	r.changes = nil
	r.appendChanges(changes)
	r.lastCycle = snap.LastCycle
	for _, evt := range events {
		if evt.Cycle > r.lastCycle {
			r.lastCycle = evt.Cycle
		}
	}
	r.lastRun = lastRun
	r.mu.Unlock()
}
