package event

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// Status is the classification of a listed event
type Status string

const (
	StatusLive     Status = "live"
	StatusUpcoming Status = "upcoming"
	StatusUnknown  Status = "unknown"
)

// BadgeKind is the status marker found on a listing card
type BadgeKind string

const (
	BadgeNone     BadgeKind = "none"
	BadgeUpcoming BadgeKind = "upcoming"
	BadgeLive     BadgeKind = "live"
)

// UnknownLeague is used for cards with no enclosing category header
const UnknownLeague = "unknown"

// RawEntry is one listing card as parsed, before classification
type RawEntry struct {
	League         string    `json:"league"`
	Title          string    `json:"title"`
	EventURL       string    `json:"event_url"`
	PageURL        string    `json:"page_url"`
	Badge          BadgeKind `json:"badge_kind"`
	StartTimeEpoch *int64    `json:"start_time_epoch,omitempty"`
}

// RequestObservables are URL-derived request metadata candidates.
// They are never captured request headers.
type RequestObservables struct {
	Scheme            string `json:"scheme"`
	Authority         string `json:"authority"`
	Path              string `json:"path"`
	OriginCandidate   string `json:"origin_candidate"`
	ReferrerCandidate string `json:"referrer_candidate"`
}

// HeadSnapshot is the result of a single HEAD request against a revealed URL
type HeadSnapshot struct {
	URL      string            `json:"url"`
	Status   int               `json:"status"`
	ServerIP string            `json:"server_ip,omitempty"`
	Headers  map[string]string `json:"headers"`
	ProbedAt time.Time         `json:"probed_at"`
}

// Evidence anchors an event to the listing fetch it was observed in
type Evidence struct {
	PageURL           string    `json:"page_url"`
	FetchedAtUTC      time.Time `json:"fetched_at_utc"`
	Status            int       `json:"status"`
	ListingHTMLSHA256 string    `json:"listing_html_sha256"`
	Notes             string    `json:"notes,omitempty"`
}

// Event is the durable record for one listed event
type Event struct {
	ID                  string              `json:"id"`
	League              string              `json:"league"`
	Title               string              `json:"title"`
	Status              Status              `json:"status"`
	StartTimeEpoch      *int64              `json:"start_time_epoch,omitempty"`
	PageURL             string              `json:"page_url"`
	EventURL            string              `json:"event_url"`
	IframeSrcObservable string              `json:"iframe_src_observable,omitempty"` // live only
	RequestObservables  *RequestObservables `json:"request_observables,omitempty"`   // live only
	IframeHead          *HeadSnapshot       `json:"iframe_head,omitempty"`           // live only
	Evidence            Evidence            `json:"evidence"`
	FirstSeen           time.Time           `json:"first_seen"`
	LastSeen            time.Time           `json:"last_seen"`
	Cycle               uint64              `json:"cycle"`
}

// ErrEnrichedNotLive is returned by Validate when enrichment fields are set on a non-live event
var ErrEnrichedNotLive = errors.New("enrichment fields set on non-live event")

// GenerateID creates a deterministic ID from the event identity triple
func GenerateID(league, title, eventURL string) string {
	sum := sha256.Sum256([]byte(league + "|" + title + "|" + eventURL))
	return hex.EncodeToString(sum[:])[:16]
}

// HashListing returns the hex SHA-256 of raw listing markup
func HashListing(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// NewEvent creates an Event from a classified raw entry. Enrichment fields are left empty.
func NewEvent(raw RawEntry, evidence Evidence) *Event {
	status, start := Classify(raw)
	now := time.Now().UTC()
	return &Event{
		ID:             GenerateID(raw.League, raw.Title, raw.EventURL),
		League:         raw.League,
		Title:          raw.Title,
		Status:         status,
		StartTimeEpoch: start,
		PageURL:        raw.PageURL,
		EventURL:       raw.EventURL,
		Evidence:       evidence,
		FirstSeen:      now,
		LastSeen:       now,
	}
}

// Enriched reports whether any live-only field is populated
func (e *Event) Enriched() bool {
	return e.IframeSrcObservable != "" || e.RequestObservables != nil || e.IframeHead != nil
}

// ClearEnrichment drops the live-only fields
func (e *Event) ClearEnrichment() {
	e.IframeSrcObservable = ""
	e.RequestObservables = nil
	e.IframeHead = nil
}

// Validate checks that live-only fields appear only on live events
func (e *Event) Validate() error {
	if e.ID == "" {
		return errors.New("event has empty id")
	}
	if e.Status != StatusLive && e.Enriched() {
		return fmt.Errorf("event %s (%s): %w", e.ID, e.Status, ErrEnrichedNotLive)
	}
	return nil
}

// Clone returns a copy that shares no mutable state with e
func (e *Event) Clone() *Event {
	if e == nil {
		return nil
	}
	c := *e
	if e.StartTimeEpoch != nil {
		v := *e.StartTimeEpoch
		c.StartTimeEpoch = &v
	}
	if e.RequestObservables != nil {
		ro := *e.RequestObservables
		c.RequestObservables = &ro
	}
	if e.IframeHead != nil {
		h := *e.IframeHead
		h.Headers = make(map[string]string, len(e.IframeHead.Headers))
		for k, v := range e.IframeHead.Headers {
			h.Headers[k] = v
		}
		c.IframeHead = &h
	}
	return &c
}
