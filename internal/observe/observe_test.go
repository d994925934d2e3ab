package observe

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pfrederiksen/ace-monitor/internal/event"
)

func TestDerive(t *testing.T) {
	got, err := Derive("https://player.example/embed/x/playlist.m3u8", "https://event/detail")
	require.NoError(t, err)

	assert.Equal(t, &event.RequestObservables{
		Scheme:            "https",
		Authority:         "player.example",
		Path:              "/embed/x/playlist.m3u8",
		OriginCandidate:   "https://player.example",
		ReferrerCandidate: "https://event/detail",
	}, got)
}

func TestDeriveKeepsPortAndDropsUserinfo(t *testing.T) {
	got, err := Derive("http://user:pw@cdn.example:8443/a%20b/c?token=1#frag", "https://listing.example/game?id=7")
	require.NoError(t, err)

	assert.Equal(t, "http", got.Scheme)
	assert.Equal(t, "cdn.example:8443", got.Authority)
	assert.Equal(t, "/a%20b/c", got.Path)
	assert.Equal(t, "http://cdn.example:8443", got.OriginCandidate)
	assert.Equal(t, "https://listing.example/game?id=7", got.ReferrerCandidate)
}

func TestDerivePathAsWritten(t *testing.T) {
	tests := []struct {
		candidate string
		want      string
	}{
		{"https://p.example/a b/x.m3u8", "/a b/x.m3u8"},
		{"https://p.example/a%2Fb/x.m3u8?s=1", "/a%2Fb/x.m3u8"},
		{"https://p.example/%7Euser/", "/%7Euser/"},
		{"https://p.example", ""},
		{"https://p.example?x=1", ""},
		{"https://p.example#top", ""},
	}

	for _, tt := range tests {
		t.Run(tt.candidate, func(t *testing.T) {
			got, err := Derive(tt.candidate, "https://event/detail")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Path)
		})
	}
}

func TestDeriveInvalid(t *testing.T) {
	tests := []struct {
		name      string
		candidate string
	}{
		{"unparsable", "http://[::1"},
		{"control character", "https://player.example/\x7f"},
		{"relative", "/embed/x"},
		{"no host", "https:///embed/x"},
		{"empty", ""},
		{"opaque", "mailto:someone@example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Derive(tt.candidate, "https://event/detail")
			assert.Nil(t, got)
			assert.True(t, errors.Is(err, ErrInvalidURL), "expected ErrInvalidURL, got %v", err)
		})
	}
}
