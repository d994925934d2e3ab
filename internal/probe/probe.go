// Package probe takes a single HEAD snapshot of a revealed URL.
package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptrace"
	"strings"
	"sync/atomic"
	"time"

	"github.com/pfrederiksen/ace-monitor/internal/config"
	"github.com/pfrederiksen/ace-monitor/internal/event"
	"github.com/pfrederiksen/ace-monitor/internal/logger"
	"github.com/pfrederiksen/ace-monitor/internal/metrics"
)

// hopByHop headers describe the connection, not the resource
var hopByHop = map[string]bool{
	"Connection":          true,
	"Keep-Alive":          true,
	"Proxy-Authenticate":  true,
	"Proxy-Authorization": true,
	"Proxy-Connection":    true,
	"Te":                  true,
	"Trailer":             true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
}

// ProbeError reports a HEAD request that produced no snapshot
type ProbeError struct {
	URL     string
	Timeout bool
	Err     error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("probing %s: %v", e.URL, e.Err)
}

func (e *ProbeError) Unwrap() error { return e.Err }

// Prober issues HEAD requests. Redirects are not followed and nothing is retried.
type Prober struct {
	client    *http.Client
	userAgent string
	metrics   *metrics.Metrics
}

// New creates a Prober from the configuration. m may be nil.
func New(cfg config.Config, m *metrics.Metrics) *Prober {
	return &Prober{
		client: &http.Client{
			Timeout: cfg.ProbeTimeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		userAgent: cfg.UserAgent,
		metrics:   m,
	}
}

// Head sends exactly one HEAD request to rawURL and records the response
func (p *Prober) Head(ctx context.Context, rawURL string) (*event.HeadSnapshot, error) {
	snap, err := p.head(ctx, rawURL)
	if err != nil {
		var pe *ProbeError
		if errors.As(err, &pe) && pe.Timeout {
			p.metrics.Probe("timeout")
		} else {
			p.metrics.Probe("error")
		}
		logger.Warn("head probe failed", logger.Fields{"url": rawURL}, err)
		return nil, err
	}
	p.metrics.Probe("ok")
	logger.Debug("head probe", logger.Fields{"url": rawURL, "status": snap.Status, "server_ip": snap.ServerIP})
	return snap, nil
}

func (p *Prober) head(ctx context.Context, rawURL string) (*event.HeadSnapshot, error) {
	var remote atomic.Pointer[string]
	trace := &httptrace.ClientTrace{
		GotConn: func(info httptrace.GotConnInfo) {
			if info.Conn == nil {
				return
			}
			addr := info.Conn.RemoteAddr().String()
			if host, _, err := net.SplitHostPort(addr); err == nil {
				addr = host
			}
			remote.Store(&addr)
		},
	}

	req, err := http.NewRequestWithContext(httptrace.WithClientTrace(ctx, trace), http.MethodHead, rawURL, nil)
	if err != nil {
		return nil, &ProbeError{URL: rawURL, Err: fmt.Errorf("creating request: %w", err)}
	}
	req.Header.Set("User-Agent", p.userAgent)

	probedAt := time.Now().UTC()
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, &ProbeError{URL: rawURL, Timeout: isTimeout(err), Err: err}
	}
	resp.Body.Close()

	snap := &event.HeadSnapshot{
		URL:      rawURL,
		Status:   resp.StatusCode,
		Headers:  flattenHeaders(resp.Header),
		ProbedAt: probedAt,
	}
	if ip := remote.Load(); ip != nil {
		snap.ServerIP = *ip
	}
	return snap, nil
}

// flattenHeaders joins repeated values with ", " and drops hop-by-hop headers
func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for name, values := range h {
		if hopByHop[http.CanonicalHeaderKey(name)] {
			continue
		}
		out[name] = strings.Join(values, ", ")
	}
	return out
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
