package reveal

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/pfrederiksen/ace-monitor/internal/config"
	"github.com/pfrederiksen/ace-monitor/internal/logger"
	"github.com/pfrederiksen/ace-monitor/internal/metrics"
)

// ErrRevealTimeout is returned when no interaction produced an iframe
var ErrRevealTimeout = errors.New("no iframe revealed within the interaction budget")

// Browser hands out isolated sessions
type Browser interface {
	NewSession(ctx context.Context) (Session, error)
}

// Session is one isolated browser context with a single page
type Session interface {
	Navigate(ctx context.Context, pageURL string) error
	// FindVisible reports whether any element matching selector is visible
	FindVisible(ctx context.Context, selector string) (bool, error)
	// Click clicks the first visible element matching selector
	Click(ctx context.Context, selector string) error
	// IframeSrc returns the src attribute of the first element matching
	// selector, or "" when there is none
	IframeSrc(ctx context.Context, selector string) (string, error)
	Close() error
}

// State is a step of the reveal protocol
type State int

const (
	StateNotAttempted State = iota
	StateChecking
	StateInteracting
	StateFound
	StateNextInteraction
	StateExhausted
)

func (s State) String() string {
	switch s {
	case StateNotAttempted:
		return "not_attempted"
	case StateChecking:
		return "checking"
	case StateInteracting:
		return "interacting"
	case StateFound:
		return "found"
	case StateNextInteraction:
		return "next_interaction"
	case StateExhausted:
		return "exhausted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Step is one transition in a reveal trace
type Step struct {
	State    State  `json:"state"`
	Selector string `json:"selector,omitempty"`
	Err      string `json:"error,omitempty"`
}

// Result describes one reveal attempt
type Result struct {
	EventURL  string        `json:"event_url"`
	IframeSrc string        `json:"iframe_src,omitempty"` // absolute
	Steps     []Step        `json:"steps"`
	Duration  time.Duration `json:"duration"`
}

// Found reports whether an iframe URL was revealed
func (r *Result) Found() bool {
	return r.IframeSrc != ""
}

// Final returns the last state reached
func (r *Result) Final() State {
	if len(r.Steps) == 0 {
		return StateNotAttempted
	}
	return r.Steps[len(r.Steps)-1].State
}

func (r *Result) step(s State, selector string, err error) {
	st := Step{State: s, Selector: selector}
	if err != nil {
		st.Err = err.Error()
	}
	r.Steps = append(r.Steps, st)
}

// Revealer runs the reveal protocol under a fixed session budget
type Revealer struct {
	browser Browser
	cfg     config.RevealConfig
	sem     *semaphore.Weighted
	open    atomic.Int64
	metrics *metrics.Metrics
}

// New creates a Revealer. m may be nil.
func New(b Browser, cfg config.RevealConfig, m *metrics.Metrics) *Revealer {
	budget := cfg.SessionBudget
	if budget < 1 {
		budget = 1
	}
	if cfg.StepTimeout <= 0 {
		cfg.StepTimeout = config.Default().Reveal.StepTimeout
	}
	return &Revealer{
		browser: b,
		cfg:     cfg,
		sem:     semaphore.NewWeighted(int64(budget)),
		metrics: m,
	}
}

// OpenSessions returns the number of sessions currently open
func (r *Revealer) OpenSessions() int64 {
	return r.open.Load()
}

// Lease is a reserved slot of the session budget
type Lease struct {
	r    *Revealer
	once sync.Once
}

// Acquire reserves a session slot. Waiters are served in the order they
// called Acquire.
func (r *Revealer) Acquire(ctx context.Context) (*Lease, error) {
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return &Lease{r: r}, nil
}

// Release returns the slot; extra calls are ignored
func (l *Lease) Release() {
	l.once.Do(func() { l.r.sem.Release(1) })
}

// Reveal runs the protocol on the leased slot
func (l *Lease) Reveal(ctx context.Context, eventURL string) (*Result, error) {
	return l.r.run(ctx, eventURL)
}

// Reveal acquires a slot, runs the protocol and releases the slot
func (r *Revealer) Reveal(ctx context.Context, eventURL string) (*Result, error) {
	lease, err := r.Acquire(ctx)
	if err != nil {
		return &Result{EventURL: eventURL, Steps: []Step{{State: StateNotAttempted}}}, err
	}
	defer lease.Release()
	return lease.Reveal(ctx, eventURL)
}

func (r *Revealer) run(ctx context.Context, eventURL string) (*Result, error) {
	start := time.Now()
	res := &Result{EventURL: eventURL}
	res.step(StateNotAttempted, "", nil)

	base, err := url.Parse(eventURL)
	if err != nil {
		return r.finish(res, start, fmt.Errorf("parsing event url: %w", err))
	}

	sess, err := r.browser.NewSession(ctx)
	if err != nil {
		return r.finish(res, start, fmt.Errorf("opening session: %w", err))
	}
	r.open.Add(1)
	r.metrics.SessionOpened()
	defer func() {
		if err := sess.Close(); err != nil {
			logger.Debug("closing session", logger.Fields{"event_url": eventURL, "error": err.Error()})
		}
		r.open.Add(-1)
		r.metrics.SessionClosed()
	}()

	navCtx, cancel := context.WithTimeout(ctx, r.cfg.NavigationTimeout)
	err = sess.Navigate(navCtx, eventURL)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return r.finish(res, start, ctx.Err())
		}
		return r.finish(res, start, fmt.Errorf("navigating to %s: %w", eventURL, err))
	}

	res.step(StateChecking, "", nil)
	src, err := r.check(ctx, sess, base)
	if err != nil {
		return r.finish(res, start, err)
	}
	if src != "" {
		res.IframeSrc = src
		res.step(StateFound, "", nil)
		return r.finish(res, start, nil)
	}

	for _, sel := range r.cfg.ClickSelectors {
		if err := ctx.Err(); err != nil {
			return r.finish(res, start, err)
		}

		res.step(StateInteracting, sel, nil)
		stepCtx, cancel := context.WithTimeout(ctx, r.cfg.StepTimeout)
		visible, err := sess.FindVisible(stepCtx, sel)
		if err == nil && visible {
			err = sess.Click(stepCtx, sel)
		}
		cancel()
		if ctx.Err() != nil {
			return r.finish(res, start, ctx.Err())
		}
		if err != nil || !visible {
			res.step(StateNextInteraction, sel, err)
			continue
		}

		res.step(StateChecking, sel, nil)
		src, err := r.poll(ctx, sess, base)
		if err != nil {
			return r.finish(res, start, err)
		}
		if src != "" {
			res.IframeSrc = src
			res.step(StateFound, sel, nil)
			return r.finish(res, start, nil)
		}
		res.step(StateNextInteraction, sel, nil)
	}

	res.step(StateExhausted, "", nil)
	return r.finish(res, start, ErrRevealTimeout)
}

// check looks for an iframe once, trying selectors in order
func (r *Revealer) check(ctx context.Context, sess Session, base *url.URL) (string, error) {
	for _, sel := range r.cfg.IframeSelectors {
		stepCtx, cancel := context.WithTimeout(ctx, r.cfg.StepTimeout)
		src, err := sess.IframeSrc(stepCtx, sel)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			continue
		}
		if abs := resolveSrc(base, src); abs != "" {
			return abs, nil
		}
	}
	return "", nil
}

// poll repeats check every PollInterval until PollTimeout elapses
func (r *Revealer) poll(ctx context.Context, sess Session, base *url.URL) (string, error) {
	deadline := time.NewTimer(r.cfg.PollTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		src, err := r.check(ctx, sess, base)
		if err != nil || src != "" {
			return src, err
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-deadline.C:
			return "", nil
		case <-ticker.C:
		}
	}
}

func (r *Revealer) finish(res *Result, start time.Time, err error) (*Result, error) {
	res.Duration = time.Since(start)
	fields := logger.Fields{
		"event_url": res.EventURL,
		"state":     res.Final().String(),
		"steps":     len(res.Steps),
		"duration":  res.Duration.String(),
	}

	switch {
	case err == nil:
		r.metrics.Reveal("found", res.Duration)
		fields["iframe_src"] = res.IframeSrc
		logger.Info("iframe revealed", fields)
	case errors.Is(err, ErrRevealTimeout):
		r.metrics.Reveal("exhausted", res.Duration)
		logger.Info("no iframe revealed", fields)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		r.metrics.Reveal("cancelled", res.Duration)
		logger.Warn("reveal abandoned", fields, err)
	default:
		r.metrics.Reveal("error", res.Duration)
		logger.Warn("reveal failed", fields, err)
	}
	return res, err
}

// resolveSrc makes src absolute against the event page; only http(s) results count
func resolveSrc(base *url.URL, src string) string {
	if src == "" {
		return ""
	}
	ref, err := url.Parse(src)
	if err != nil {
		return ""
	}
	u := base.ResolveReference(ref)
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return u.String()
}
