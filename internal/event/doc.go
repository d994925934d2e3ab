// Package event provides the record types for monitored listing events.
//
// The event package defines raw listing entries, the durable Event record and its
// URL-derived enrichment (request observables, HEAD snapshot, evidence), status
// classification, and change detection between cycles. Each event is assigned a
// deterministic SHA-256 based ID from its league, title and event URL, so the same
// logical event keeps its ID across scrape cycles.
package event
