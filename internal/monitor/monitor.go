// Package monitor runs scrape cycles: fetch every listing page, classify its
// cards, enrich live events and commit the results to the repository.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/pfrederiksen/ace-monitor/internal/config"
	"github.com/pfrederiksen/ace-monitor/internal/event"
	"github.com/pfrederiksen/ace-monitor/internal/logger"
	"github.com/pfrederiksen/ace-monitor/internal/metrics"
	"github.com/pfrederiksen/ace-monitor/internal/observe"
	"github.com/pfrederiksen/ace-monitor/internal/probe"
	"github.com/pfrederiksen/ace-monitor/internal/reveal"
	"github.com/pfrederiksen/ace-monitor/internal/scraper"
	"github.com/pfrederiksen/ace-monitor/internal/storage"
	"github.com/pfrederiksen/ace-monitor/internal/store"
)

// EvidenceNotes is recorded on every event's evidence
const EvidenceNotes = "Parsed listing; for live events, minimal user interaction revealed the iframe src. No request headers were forged."

// Deps are the collaborators of a Monitor. Revealer, Storage and Metrics may be nil.
type Deps struct {
	Scraper    *scraper.Scraper
	Revealer   *reveal.Revealer
	Prober     *probe.Prober
	Repository *store.Repository
	Storage    *storage.Storage
	Metrics    *metrics.Metrics
}

// Monitor schedules and runs scrape cycles
type Monitor struct {
	cfg      config.Config
	scraper  *scraper.Scraper
	revealer *reveal.Revealer
	prober   *probe.Prober
	repo     *store.Repository
	storage  *storage.Storage
	metrics  *metrics.Metrics

	seq    atomic.Uint64
	flight singleflight.Group
}

// New creates a Monitor. Cycle numbers continue after the repository's last cycle.
func New(cfg config.Config, d Deps) *Monitor {
	m := &Monitor{
		cfg:      cfg,
		scraper:  d.Scraper,
		revealer: d.Revealer,
		prober:   d.Prober,
		repo:     d.Repository,
		storage:  d.Storage,
		metrics:  d.Metrics,
	}
	m.seq.Store(d.Repository.LastCycle())
	return m
}

// Repository returns the repository the monitor writes to
func (m *Monitor) Repository() *store.Repository {
	return m.repo
}

// Restore loads the persisted snapshot, if storage is configured
func (m *Monitor) Restore() error {
	if m.storage == nil {
		return nil
	}
	snap, err := m.storage.LoadSnapshot()
	if err != nil {
		return fmt.Errorf("restoring snapshot: %w", err)
	}
	m.repo.Restore(snap)
	if last := m.repo.LastCycle(); last > m.seq.Load() {
		m.seq.Store(last)
	}
	logger.Info("snapshot restored", logger.Fields{"events": m.repo.Len(), "last_cycle": m.repo.LastCycle()})
	return nil
}

// PageReport summarizes one listing page within a cycle
type PageReport struct {
	URL     string `json:"url"`
	Status  int    `json:"status,omitempty"`
	Entries int    `json:"entries"`
	Skipped int    `json:"skipped"`
	Error   string `json:"error,omitempty"`
}

// CycleReport summarizes one cycle
type CycleReport struct {
	Cycle      uint64       `json:"cycle"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Pages      []PageReport `json:"pages"`
	Upserted   int          `json:"upserted"`
	Stale      int          `json:"stale"`
	Live       int          `json:"live"`
	Revealed   int          `json:"revealed"`
	Partial    bool         `json:"partial"` // deadline or cancellation cut the cycle short
}

// counters are shared by the goroutines of one cycle
type counters struct {
	upserted atomic.Int64
	stale    atomic.Int64
	live     atomic.Int64
	revealed atomic.Int64
}

// RunCycle runs one scrape cycle. Concurrent callers share a single in-flight
// cycle. The report is always returned; the error is non-nil only when the
// context ended before the cycle finished, in which case the report covers
// what was committed.
func (m *Monitor) RunCycle(ctx context.Context) (*CycleReport, error) {
	v, err, shared := m.flight.Do("cycle", func() (any, error) {
		return m.runCycle(ctx)
	})
	if shared {
		logger.Debug("joined in-flight cycle", nil)
	}
	report, _ := v.(*CycleReport)
	return report, err
}

func (m *Monitor) runCycle(parent context.Context) (*CycleReport, error) {
	cycle := m.seq.Add(1)
	ctx, cancel := context.WithTimeout(parent, m.cfg.CycleDeadline)
	defer cancel()

	report := &CycleReport{
		Cycle:     cycle,
		StartedAt: time.Now().UTC(),
		Pages:     make([]PageReport, len(m.cfg.ListingURLs)),
	}
	logger.Info("cycle started", logger.Fields{"cycle": cycle, "pages": len(m.cfg.ListingURLs)})

	var c counters
	commit := func(_ int, evt *event.Event) {
		if m.repo.Upsert(cycle, evt) {
			c.upserted.Add(1)
		} else {
			c.stale.Add(1)
		}
	}

	// page failures land in the report, never in the group
	var g errgroup.Group
	for i, pageURL := range m.cfg.ListingURLs {
		g.Go(func() error {
			report.Pages[i] = m.processPage(ctx, pageURL, true, &c, commit)
			return nil
		})
	}
	_ = g.Wait()

	report.FinishedAt = time.Now().UTC()
	report.Upserted = int(c.upserted.Load())
	report.Stale = int(c.stale.Load())
	report.Live = int(c.live.Load())
	report.Revealed = int(c.revealed.Load())
	report.Partial = ctx.Err() != nil

	m.repo.MarkRun(cycle, report.FinishedAt)
	m.persist()

	duration := report.FinishedAt.Sub(report.StartedAt)
	result := "ok"
	failed := 0
	for _, p := range report.Pages {
		if p.Error != "" {
			failed++
		}
	}
	switch {
	case report.Partial:
		result = "partial"
	case failed > 0:
		result = "page_errors"
	}
	m.metrics.ObserveCycle(result, duration)

	logger.Info("cycle finished", logger.Fields{
		"cycle":        cycle,
		"result":       result,
		"duration":     duration.String(),
		"upserted":     report.Upserted,
		"stale":        report.Stale,
		"live":         report.Live,
		"revealed":     report.Revealed,
		"failed_pages": failed,
		"tracked":      m.repo.Len(),
	})

	if report.Partial {
		return report, fmt.Errorf("cycle %d cut short: %w", cycle, ctx.Err())
	}
	return report, nil
}

func (m *Monitor) persist() {
	if m.storage == nil {
		return
	}
	if err := m.storage.SaveSnapshot(m.repo.Snapshot()); err != nil {
		logger.Error("saving snapshot", logger.Fields{"path": m.storage.Path()}, err)
	}
}

// processPage scans one listing page and hands every event to commit
func (m *Monitor) processPage(ctx context.Context, pageURL string, enrich bool, c *counters, commit func(int, *event.Event)) PageReport {
	pr := PageReport{URL: pageURL}

	page, listing, err := m.scraper.Scan(ctx, pageURL)
	if err != nil {
		var fe *scraper.FetchError
		if errors.As(err, &fe) {
			pr.Status = fe.Status
		}
		pr.Error = err.Error()
		logger.Warn("listing page failed", logger.Fields{"url": pageURL}, err)
		return pr
	}

	pr.Status = page.Status
	pr.Entries = listing.Len()
	pr.Skipped = listing.Skipped

	m.processListing(ctx, listing, page.Evidence(EvidenceNotes), enrich, c, commit)
	return pr
}

// processListing classifies entries in listing order. Live events take a
// reveal slot in that same order and are enriched concurrently. Once the
// page is done every event is committed in listing order with its index.
func (m *Monitor) processListing(ctx context.Context, listing *scraper.Listing, evidence event.Evidence, enrich bool, c *counters, commit func(int, *event.Event)) {
	events := make([]*event.Event, 0, listing.Len())
	var g errgroup.Group
	for raw := range listing.Entries() {
		evt := event.NewEvent(raw, evidence)
		events = append(events, evt)

		if evt.Status != event.StatusLive {
			continue
		}
		c.live.Add(1)

		if !enrich || m.revealer == nil {
			continue
		}

		lease, err := m.revealer.Acquire(ctx)
		if err != nil {
			continue
		}

		g.Go(func() error {
			if m.enrich(ctx, lease, evt) {
				c.revealed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	for i, evt := range events {
		commit(i, evt)
	}
}

// enrich reveals, derives and probes one live event. It reports whether an
// iframe was revealed. Every failure leaves the optional fields empty.
func (m *Monitor) enrich(ctx context.Context, lease *reveal.Lease, evt *event.Event) bool {
	res, err := lease.Reveal(ctx, evt.EventURL)
	lease.Release()
	if err != nil || !res.Found() {
		return false
	}

	evt.IframeSrcObservable = res.IframeSrc

	obs, err := observe.Derive(res.IframeSrc, evt.EventURL)
	if err != nil {
		logger.Warn("deriving observables", logger.Fields{"event_id": evt.ID, "iframe_src": res.IframeSrc}, err)
	} else {
		evt.RequestObservables = obs
	}

	if m.prober != nil {
		if head, err := m.prober.Head(ctx, res.IframeSrc); err == nil {
			evt.IframeHead = head
		}
	}
	return true
}

// ScanOptions controls a targeted scan
type ScanOptions struct {
	Reveal bool // enrich live events; requires a Revealer
}

// ScanResult is the outcome of a targeted scan
type ScanResult struct {
	Page     PageReport     `json:"page"`
	Evidence event.Evidence `json:"evidence"`
	Events   []*event.Event `json:"events"`
}

// ScanListing scans a single listing URL and returns its events in listing
// order without touching the repository. It is bounded by the cycle deadline.
func (m *Monitor) ScanListing(ctx context.Context, pageURL string, opts ScanOptions) (*ScanResult, error) {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.CycleDeadline)
	defer cancel()

	page, listing, err := m.scraper.Scan(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	res := &ScanResult{
		Page: PageReport{
			URL:     pageURL,
			Status:  page.Status,
			Entries: listing.Len(),
			Skipped: listing.Skipped,
		},
		Evidence: page.Evidence(EvidenceNotes),
		Events:   make([]*event.Event, listing.Len()),
	}

	var c counters
	m.processListing(ctx, listing, res.Evidence, opts.Reveal, &c, func(i int, evt *event.Event) {
		res.Events[i] = evt
	})

	return res, nil
}

// Run runs a cycle immediately and then every ScrapeInterval until ctx is done
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.ScrapeInterval)
	defer ticker.Stop()

	for {
		if _, err := m.RunCycle(ctx); err != nil && ctx.Err() == nil {
			logger.Warn("cycle incomplete", nil, err)
		}

		select {
		case <-ctx.Done():
			logger.Info("monitor stopped", nil)
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
