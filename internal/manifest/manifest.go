// Package manifest reads HLS playlist text offline.
//
// Parse never fetches anything. It collects key URIs, segment references
// (resolved against an optional base URL) and a few stream-level tags.
// Variant playlist entries are treated like segments.
package manifest

import (
	"net/url"
	"slices"
	"strconv"
	"strings"
)

const (
	tagHeader                = "#EXTM3U"
	tagKey                   = "#EXT-X-KEY:"
	tagSessionKey            = "#EXT-X-SESSION-KEY:"
	tagTargetDuration        = "#EXT-X-TARGETDURATION:"
	tagMediaSequence         = "#EXT-X-MEDIA-SEQUENCE:"
	tagDiscontinuitySequence = "#EXT-X-DISCONTINUITY-SEQUENCE:"
)

// Result is the structure extracted from one manifest
type Result struct {
	Keys                  []string `json:"keys"`
	SegmentURLs           []string `json:"segment_urls"`
	DistinctHosts         []string `json:"distinct_hosts"` // sorted
	TargetDuration        *float64 `json:"target_duration,omitempty"`
	MediaSequence         *int64   `json:"media_sequence,omitempty"`
	DiscontinuitySequence *int64   `json:"discontinuity_sequence,omitempty"`
}

// IsEmpty reports whether nothing was extracted
func (r *Result) IsEmpty() bool {
	return len(r.Keys) == 0 && len(r.SegmentURLs) == 0 &&
		r.TargetDuration == nil && r.MediaSequence == nil && r.DiscontinuitySequence == nil
}

// Parse scans manifest text. base may be nil, in which case relative
// segment references are kept as written. Text whose first non-blank line
// is not #EXTM3U yields an empty result.
func Parse(text string, base *url.URL) *Result {
	res := &Result{
		Keys:          []string{},
		SegmentURLs:   []string{},
		DistinctHosts: []string{},
	}

	header := false
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if !header {
			if line == "" {
				continue
			}
			if !strings.HasPrefix(strings.TrimPrefix(line, "\ufeff"), tagHeader) {
				return res
			}
			header = true
			continue
		}
		switch {
		case line == "":
		case strings.HasPrefix(line, tagKey):
			if uri := keyURI(line[len(tagKey):]); uri != "" {
				res.Keys = append(res.Keys, uri)
			}
		case strings.HasPrefix(line, tagSessionKey):
			if uri := keyURI(line[len(tagSessionKey):]); uri != "" {
				res.Keys = append(res.Keys, uri)
			}
		case strings.HasPrefix(line, tagTargetDuration):
			if v, err := strconv.ParseFloat(strings.TrimSpace(line[len(tagTargetDuration):]), 64); err == nil {
				res.TargetDuration = &v
			}
		case strings.HasPrefix(line, tagMediaSequence):
			res.MediaSequence = parseInt(line[len(tagMediaSequence):])
		case strings.HasPrefix(line, tagDiscontinuitySequence):
			res.DiscontinuitySequence = parseInt(line[len(tagDiscontinuitySequence):])
		case strings.HasPrefix(line, "#"):
		default:
			res.SegmentURLs = append(res.SegmentURLs, resolve(base, line))
		}
	}

	seen := make(map[string]struct{})
	for _, s := range res.SegmentURLs {
		u, err := url.Parse(s)
		if err != nil || u.Host == "" {
			continue
		}
		if _, ok := seen[u.Host]; ok {
			continue
		}
		seen[u.Host] = struct{}{}
		res.DistinctHosts = append(res.DistinctHosts, u.Host)
	}
	slices.Sort(res.DistinctHosts)

	return res
}

// keyURI returns the URI attribute of a key tag, or "" when absent
// (METHOD=NONE carries no URI).
func keyURI(attrs string) string {
	return parseAttributes(attrs)["URI"]
}

// parseAttributes splits an attribute list on commas outside quoted strings
func parseAttributes(s string) map[string]string {
	attrs := make(map[string]string)
	var (
		inQuote bool
		start   int
	)
	flush := func(part string) {
		name, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return
		}
		attrs[strings.TrimSpace(name)] = strings.Trim(strings.TrimSpace(value), `"`)
	}
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"':
			inQuote = !inQuote
		case ',':
			if !inQuote {
				flush(s[start:i])
				start = i + 1
			}
		}
	}
	flush(s[start:])
	return attrs
}

// resolve makes ref absolute against base when ref is relative
func resolve(base *url.URL, ref string) string {
	if base == nil {
		return ref
	}
	u, err := url.Parse(ref)
	if err != nil || u.IsAbs() {
		return ref
	}
	return base.ResolveReference(u).String()
}

func parseInt(v string) *int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return nil
	}
	return &n
}
