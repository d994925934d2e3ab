// Package scraper provides HTTP fetching and HTML parsing for event listing pages.
//
// The scraper package fetches a permitted listing page, keeps the raw markup and its
// SHA-256 for chain-of-custody, and extracts one raw entry per listing card: league
// (from the enclosing category header), title and event link, and the status badge
// with an optional start time. Malformed cards are skipped and counted; pages that
// cannot be fetched or are not HTML are reported as a FetchError.
package scraper
