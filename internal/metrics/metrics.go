// Package metrics holds the Prometheus collectors for the monitor.
//
// All methods are safe to call on a nil *Metrics, so components built without
// metrics (tests, one-shot CLI scans) need no special casing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ace"

// Metrics tracks cycle, listing, reveal and probe activity
type Metrics struct {
	registry *prometheus.Registry

	cyclesTotal     *prometheus.CounterVec
	cycleDuration   prometheus.Histogram
	fetchErrors     *prometheus.CounterVec
	cardsParsed     *prometheus.CounterVec
	cardsSkipped    *prometheus.CounterVec
	revealsTotal    *prometheus.CounterVec
	revealDuration  prometheus.Histogram
	sessionsOpen    prometheus.Gauge
	probesTotal     *prometheus.CounterVec
	eventsTracked   prometheus.Gauge
	eventsByStatus  *prometheus.GaugeVec
	upsertsRejected prometheus.Counter
}

// New creates and registers the collectors on a fresh registry,
// together with the Go and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		cyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Scrape cycles by result.",
		}, []string{"result"}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Duration of scrape cycles.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		fetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "listing_fetch_errors_total",
			Help:      "Listing pages that could not be fetched or were not HTML.",
		}, []string{"page"}),
		cardsParsed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "listing_cards_parsed_total",
			Help:      "Listing cards parsed into entries, by badge.",
		}, []string{"badge"}),
		cardsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "listing_cards_skipped_total",
			Help:      "Malformed listing cards skipped.",
		}, []string{"page"}),
		revealsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reveals_total",
			Help:      "Reveal attempts by outcome.",
		}, []string{"outcome"}),
		revealDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reveal_duration_seconds",
			Help:      "Time a reveal held a browser session.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 80},
		}),
		sessionsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reveal_sessions_open",
			Help:      "Browser sessions currently open for reveals.",
		}),
		probesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probes_total",
			Help:      "HEAD probes by outcome.",
		}, []string{"outcome"}),
		eventsTracked: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "events_tracked",
			Help:      "Events held in the repository.",
		}),
		eventsByStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "events_by_status",
			Help:      "Repository events by current status.",
		}, []string{"status"}),
		upsertsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upserts_stale_total",
			Help:      "Upserts dropped because a newer cycle already wrote the event.",
		}),
	}

	reg.MustRegister(
		m.cyclesTotal,
		m.cycleDuration,
		m.fetchErrors,
		m.cardsParsed,
		m.cardsSkipped,
		m.revealsTotal,
		m.revealDuration,
		m.sessionsOpen,
		m.probesTotal,
		m.eventsTracked,
		m.eventsByStatus,
		m.upsertsRejected,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry, mainly for tests
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler returns the Prometheus scrape handler for this registry
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveCycle records a finished cycle
func (m *Metrics) ObserveCycle(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.cyclesTotal.WithLabelValues(result).Inc()
	m.cycleDuration.Observe(d.Seconds())
}

// FetchError counts a listing page that failed. page is a bounded label, not a URL.
func (m *Metrics) FetchError(page string) {
	if m == nil {
		return
	}
	m.fetchErrors.WithLabelValues(page).Inc()
}

// CardParsed counts a parsed card by badge kind
func (m *Metrics) CardParsed(badge string) {
	if m == nil {
		return
	}
	m.cardsParsed.WithLabelValues(badge).Inc()
}

// CardsSkipped adds n skipped cards for the page label
func (m *Metrics) CardsSkipped(page string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.cardsSkipped.WithLabelValues(page).Add(float64(n))
}

// Reveal records a reveal outcome and how long the session was held
func (m *Metrics) Reveal(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.revealsTotal.WithLabelValues(outcome).Inc()
	m.revealDuration.Observe(d.Seconds())
}

// SessionOpened increments the open-session gauge
func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.sessionsOpen.Inc()
}

// SessionClosed decrements the open-session gauge
func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.sessionsOpen.Dec()
}

// Probe records a HEAD probe outcome
func (m *Metrics) Probe(outcome string) {
	if m == nil {
		return
	}
	m.probesTotal.WithLabelValues(outcome).Inc()
}

// SetEvents publishes repository size and status breakdown
func (m *Metrics) SetEvents(total int, byStatus map[string]int) {
	if m == nil {
		return
	}
	m.eventsTracked.Set(float64(total))
	for status, n := range byStatus {
		m.eventsByStatus.WithLabelValues(status).Set(float64(n))
	}
}

// StaleUpsert counts an upsert dropped by cycle ordering
func (m *Metrics) StaleUpsert() {
	if m == nil {
		return
	}
	m.upsertsRejected.Inc()
}
