package scraper

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pfrederiksen/ace-monitor/internal/config"
	"github.com/pfrederiksen/ace-monitor/internal/event"
	"github.com/pfrederiksen/ace-monitor/internal/metrics"
)

func TestScan(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		contentType string
		statusCode  int
		wantStatus  int
		wantNotHTML bool
		wantEntries int
	}{
		{
			name:        "successful fetch with cards",
			body:        sampleListing,
			contentType: "text/html; charset=utf-8",
			statusCode:  http.StatusOK,
			wantEntries: 6,
		},
		{
			name:       "HTTP error",
			body:       "",
			statusCode: http.StatusNotFound,
			wantStatus: http.StatusNotFound,
		},
		{
			name:        "not HTML",
			body:        `{"events":[]}`,
			contentType: "application/json",
			statusCode:  http.StatusOK,
			wantStatus:  http.StatusOK,
			wantNotHTML: true,
		},
		{
			name:        "empty page",
			body:        "<html><body><p>No events</p></body></html>",
			contentType: "text/html",
			statusCode:  http.StatusOK,
			wantEntries: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agents := make(chan string, 1)
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				agents <- r.Header.Get("User-Agent")
				if tt.contentType != "" {
					w.Header().Set("Content-Type", tt.contentType)
				}
				w.WriteHeader(tt.statusCode)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			cfg := config.Default()
			s := New(cfg, nil)
			page, listing, err := s.Scan(context.Background(), server.URL+"/")

			if gotUA := <-agents; gotUA != cfg.UserAgent {
				t.Errorf("expected User-Agent %q, got %q", cfg.UserAgent, gotUA)
			}

			if tt.wantStatus != 0 {
				var fe *FetchError
				if !errors.As(err, &fe) {
					t.Fatalf("expected *FetchError, got %v", err)
				}
				if fe.Status != tt.wantStatus {
					t.Errorf("expected status %d, got %d", tt.wantStatus, fe.Status)
				}
				if tt.wantNotHTML && !errors.Is(err, ErrNotHTML) {
					t.Errorf("expected ErrNotHTML, got %v", err)
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if listing.Len() != tt.wantEntries {
				t.Errorf("expected %d entries, got %d", tt.wantEntries, listing.Len())
			}
			if page.SHA256 != event.HashListing([]byte(tt.body)) {
				t.Errorf("listing hash does not match body")
			}
			if page.Status != http.StatusOK {
				t.Errorf("expected status 200, got %d", page.Status)
			}
			ev := page.Evidence("note")
			if ev.PageURL != server.URL+"/" || ev.ListingHTMLSHA256 != page.SHA256 || ev.Notes != "note" {
				t.Errorf("unexpected evidence: %+v", ev)
			}
		})
	}
}

func TestScanResolvesAgainstFinalURL(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/new/", http.StatusFound)
	})
	mux.HandleFunc("/new/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<div class="match-card"><a class="match-title-link" href="game">Game</a></div>`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	s := New(config.Default(), nil)
	_, listing, err := s.Scan(context.Background(), server.URL+"/old")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := listing.All()
	if len(got) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(got))
	}
	if got[0].EventURL != server.URL+"/new/game" {
		t.Errorf("expected link resolved against final URL, got %q", got[0].EventURL)
	}
	if got[0].PageURL != server.URL+"/old" {
		t.Errorf("expected page url to stay as requested, got %q", got[0].PageURL)
	}
}

func TestFetchTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	s := New(config.Default(), nil)
	_, err := s.Fetch(context.Background(), url)

	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *FetchError, got %v", err)
	}
	if fe.Status != 0 {
		t.Errorf("expected status 0 for transport error, got %d", fe.Status)
	}
}

func TestFetchTooLarge(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(sampleListing))
	}))
	defer server.Close()

	s := New(config.Default(), nil)
	s.maxBytes = int64(len(sampleListing)) - 1
	_, err := s.Fetch(context.Background(), server.URL)
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}

	s.maxBytes = int64(len(sampleListing))
	page, err := s.Fetch(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("unexpected error at exact limit: %v", err)
	}
	if page.SHA256 != event.HashListing([]byte(sampleListing)) {
		t.Errorf("listing hash does not match body")
	}
}

func TestScanMetricLabels(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/listing" {
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte(sampleListing))
			return
		}
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.ListingURLs = []string{server.URL + "/down", server.URL + "/listing"}
	m := metrics.New()
	s := New(cfg, m)

	for _, path := range []string{"/down", "/listing", "/elsewhere?a=1", "/elsewhere?a=2"} {
		_, _, _ = s.Scan(context.Background(), server.URL+path)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()

	for _, want := range []string{
		`ace_listing_fetch_errors_total{page="0"} 1`,
		`ace_listing_fetch_errors_total{page="debug"} 2`,
		`ace_listing_cards_skipped_total{page="1"} 3`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %q in metrics output", want)
		}
	}
	if strings.Contains(body, server.URL) {
		t.Errorf("metrics output contains a page URL")
	}
}
