// Package observe derives request observables from a revealed URL.
//
// Every field comes from the two input URLs. Nothing is read from headers,
// cookies or the network.
package observe

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/pfrederiksen/ace-monitor/internal/event"
)

// ErrInvalidURL is returned for candidates that cannot be decomposed
var ErrInvalidURL = errors.New("invalid url")

// Derive splits candidate into scheme, authority and path and pairs it with
// the referring page URL. The path is taken as written in candidate. On error
// the result is nil.
func Derive(candidate, referrer string) (*event.RequestObservables, error) {
	u, err := url.Parse(candidate)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidURL, candidate, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w %q: missing scheme or host", ErrInvalidURL, candidate)
	}

	return &event.RequestObservables{
		Scheme:            u.Scheme,
		Authority:         u.Host,
		Path:              rawPath(candidate),
		OriginCandidate:   u.Scheme + "://" + u.Host,
		ReferrerCandidate: referrer,
	}, nil
}

// rawPath returns the path of an absolute URL exactly as written, without
// query or fragment
func rawPath(candidate string) string {
	_, rest, ok := strings.Cut(candidate, "//")
	if !ok {
		return ""
	}
	i := strings.IndexAny(rest, "/?#")
	if i < 0 || rest[i] != '/' {
		return ""
	}
	rest = rest[i:]
	if j := strings.IndexAny(rest, "?#"); j >= 0 {
		rest = rest[:j]
	}
	return rest
}
