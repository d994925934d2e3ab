package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/pfrederiksen/ace-monitor/internal/config"
	"github.com/pfrederiksen/ace-monitor/internal/event"
	"github.com/pfrederiksen/ace-monitor/internal/logger"
	"github.com/pfrederiksen/ace-monitor/internal/metrics"
)

// MaxListingBytes caps how much of a listing page is read
const MaxListingBytes = 10 << 20

// DebugPageLabel is the metrics label for pages outside the configured listings
const DebugPageLabel = "debug"

var (
	// ErrNotHTML is returned when a listing response is not an HTML document
	ErrNotHTML = errors.New("listing is not an HTML document")
	// ErrTooLarge is returned when a listing body exceeds MaxListingBytes
	ErrTooLarge = errors.New("listing body exceeds size limit")
)

// FetchError reports a listing page that could not be used at all.
// Status is 0 when no response was received.
type FetchError struct {
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetching listing %s (status %d): %v", e.URL, e.Status, e.Err)
	}
	return fmt.Sprintf("fetching listing %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Page is a fetched listing page together with its custody data
type Page struct {
	URL       string // as requested
	FinalURL  string // after redirects; base for relative links
	Status    int
	Body      []byte
	SHA256    string
	FetchedAt time.Time
}

// Evidence builds the evidence record for events seen on this page
func (p *Page) Evidence(notes string) event.Evidence {
	return event.Evidence{
		PageURL:           p.URL,
		FetchedAtUTC:      p.FetchedAt,
		Status:            p.Status,
		ListingHTMLSHA256: p.SHA256,
		Notes:             notes,
	}
}

// Listing is the parse result of one listing page
type Listing struct {
	PageURL string
	Skipped int // malformed cards dropped during parsing
	entries []event.RawEntry
}

// Entries yields the parsed entries in document order
func (l *Listing) Entries() iter.Seq[event.RawEntry] {
	return func(yield func(event.RawEntry) bool) {
		for _, e := range l.entries {
			if !yield(e) {
				return
			}
		}
	}
}

// All returns a copy of the parsed entries in document order
func (l *Listing) All() []event.RawEntry {
	out := make([]event.RawEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of parsed entries
func (l *Listing) Len() int {
	return len(l.entries)
}

// Scraper fetches and parses listing pages
type Scraper struct {
	client    *http.Client
	userAgent string
	selectors config.ListingSelectors
	maxBytes  int64
	labels    map[string]string // configured listing URL to metrics label
	metrics   *metrics.Metrics
}

// New creates a new Scraper from the configuration. m may be nil.
func New(cfg config.Config, m *metrics.Metrics) *Scraper {
	labels := make(map[string]string, len(cfg.ListingURLs))
	for i, u := range cfg.ListingURLs {
		labels[u] = strconv.Itoa(i)
	}
	return &Scraper{
		client: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		userAgent: cfg.UserAgent,
		selectors: cfg.Listing,
		maxBytes:  MaxListingBytes,
		labels:    labels,
		metrics:   m,
	}
}

// pageLabel maps a configured listing URL to its index and any other URL to
// DebugPageLabel
func (s *Scraper) pageLabel(pageURL string) string {
	if label, ok := s.labels[pageURL]; ok {
		return label
	}
	return DebugPageLabel
}

// Fetch downloads a listing page. Transport failures, non-2xx responses and
// non-HTML bodies are reported as *FetchError.
func (s *Scraper) Fetch(ctx context.Context, pageURL string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, &FetchError{URL: pageURL, Err: fmt.Errorf("creating request: %w", err)}
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: pageURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{URL: pageURL, Status: resp.StatusCode, Err: errors.New("unexpected status code")}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBytes+1))
	if err != nil {
		return nil, &FetchError{URL: pageURL, Status: resp.StatusCode, Err: fmt.Errorf("reading body: %w", err)}
	}
	if int64(len(body)) > s.maxBytes {
		return nil, &FetchError{URL: pageURL, Status: resp.StatusCode, Err: ErrTooLarge}
	}

	if !isHTML(resp.Header.Get("Content-Type"), body) {
		return nil, &FetchError{URL: pageURL, Status: resp.StatusCode, Err: ErrNotHTML}
	}

	logger.Info("listing fetched", logger.Fields{"url": pageURL, "status": resp.StatusCode, "bytes": len(body)})

	return &Page{
		URL:       pageURL,
		FinalURL:  resp.Request.URL.String(),
		Status:    resp.StatusCode,
		Body:      body,
		SHA256:    event.HashListing(body),
		FetchedAt: time.Now().UTC(),
	}, nil
}

// Scan fetches a listing page and parses its cards
func (s *Scraper) Scan(ctx context.Context, pageURL string) (*Page, *Listing, error) {
	label := s.pageLabel(pageURL)

	page, err := s.Fetch(ctx, pageURL)
	if err != nil {
		s.metrics.FetchError(label)
		return nil, nil, err
	}

	base, err := url.Parse(page.FinalURL)
	if err != nil {
		s.metrics.FetchError(label)
		return page, nil, &FetchError{URL: pageURL, Status: page.Status, Err: fmt.Errorf("parsing page url: %w", err)}
	}

	listing, err := parseListing(bytes.NewReader(page.Body), pageURL, base, s.selectors)
	if err != nil {
		s.metrics.FetchError(label)
		return page, nil, &FetchError{URL: pageURL, Status: page.Status, Err: err}
	}

	for e := range listing.Entries() {
		s.metrics.CardParsed(string(e.Badge))
	}
	s.metrics.CardsSkipped(label, listing.Skipped)

	return page, listing, nil
}

// ParseListing extracts entries from listing markup. Relative event links are
// resolved against pageURL.
func ParseListing(r io.Reader, pageURL string, sel config.ListingSelectors) (*Listing, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parsing page url: %w", err)
	}
	return parseListing(r, pageURL, base, sel)
}

// parseListing walks every card in document order. Cards without a usable
// title link are counted in Skipped.
func parseListing(r io.Reader, pageURL string, base *url.URL, sel config.ListingSelectors) (*Listing, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parsing HTML: %w", err)
	}

	listing := &Listing{
		PageURL: pageURL,
		entries: make([]event.RawEntry, 0),
	}

	doc.Find(sel.Card).Each(func(i int, card *goquery.Selection) {
		raw, ok := parseCard(card, pageURL, base, sel)
		if !ok {
			listing.Skipped++
			return
		}
		listing.entries = append(listing.entries, raw)
	})

	if listing.Skipped > 0 {
		logger.Debug("listing cards skipped", logger.Fields{"url": pageURL, "skipped": listing.Skipped})
	}

	return listing, nil
}

// parseCard extracts one entry; ok is false for malformed cards
func parseCard(card *goquery.Selection, pageURL string, base *url.URL, sel config.ListingSelectors) (event.RawEntry, bool) {
	link := card.Find(sel.TitleLink).First()
	if link.Length() == 0 {
		return event.RawEntry{}, false
	}

	title := normalizeText(link.Text())
	href := strings.TrimSpace(link.AttrOr("href", ""))
	if title == "" || href == "" {
		return event.RawEntry{}, false
	}

	eventURL, ok := resolveLink(base, href)
	if !ok {
		return event.RawEntry{}, false
	}

	raw := event.RawEntry{
		League:   leagueFor(card, sel),
		Title:    title,
		EventURL: eventURL,
		PageURL:  pageURL,
	}

	hasLive := false
	if sel.LiveBadge != "" {
		card.Find(sel.LiveBadge).EachWithBreak(func(_ int, b *goquery.Selection) bool {
			hasLive = strings.Contains(strings.ToLower(b.Text()), "live")
			return !hasLive
		})
	}

	var upcoming *goquery.Selection
	if sel.UpcomingBadge != "" {
		upcoming = card.Find(sel.UpcomingBadge).First()
	}
	hasUpcoming := upcoming != nil && upcoming.Length() > 0

	raw.Badge = event.ResolveBadge(hasLive, hasUpcoming)
	if raw.Badge == event.BadgeUpcoming && sel.StartAttr != "" {
		raw.StartTimeEpoch = parseEpoch(upcoming.AttrOr(sel.StartAttr, ""))
	}

	return raw, true
}

// leagueFor returns the header text of the card's nearest enclosing category
func leagueFor(card *goquery.Selection, sel config.ListingSelectors) string {
	if sel.Category == "" || sel.CategoryName == "" {
		return event.UnknownLeague
	}
	header := card.Closest(sel.Category).Find(sel.CategoryName).First()
	if header.Length() == 0 {
		return event.UnknownLeague
	}
	if league := normalizeText(header.Text()); league != "" {
		return league
	}
	return event.UnknownLeague
}

// resolveLink resolves href against base and accepts only http(s) targets
func resolveLink(base *url.URL, href string) (string, bool) {
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	u := base.ResolveReference(ref)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	return u.String(), true
}

// parseEpoch parses a non-negative integer seconds value; nil on failure
func parseEpoch(v string) *int64 {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	n, err := strconv.ParseUint(v, 10, 63)
	if err != nil {
		return nil
	}
	epoch := int64(n)
	return &epoch
}

// normalizeText collapses runs of whitespace and trims the result
func normalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// isHTML decides from the declared content type, or by sniffing when none is declared
func isHTML(contentType string, body []byte) bool {
	if contentType == "" {
		contentType = http.DetectContentType(body)
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}
