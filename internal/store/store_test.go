package store

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pfrederiksen/ace-monitor/internal/event"
)

func liveEvent(title string) *event.Event {
	evt := event.NewEvent(event.RawEntry{
		League:   "NBA",
		Title:    title,
		EventURL: "https://listing.example/nba/" + title,
		PageURL:  "https://listing.example/",
		Badge:    event.BadgeLive,
	}, event.Evidence{
		PageURL:           "https://listing.example/",
		FetchedAtUTC:      time.Now().UTC(),
		Status:            200,
		ListingHTMLSHA256: "hash-" + title,
	})
	return evt
}

func enrich(evt *event.Event, src string) {
	evt.IframeSrcObservable = src
	evt.RequestObservables = &event.RequestObservables{Scheme: "https", Authority: "player.example", Path: "/embed", OriginCandidate: "https://player.example", ReferrerCandidate: evt.EventURL}
	evt.IframeHead = &event.HeadSnapshot{URL: src, Status: 200, Headers: map[string]string{"Server": "edge"}}
}

func TestUpsertRetainsEvidence(t *testing.T) {
	repo := New(10, nil)

	first := liveEvent("lakers")
	enrich(first, "https://player.example/embed")
	require.True(t, repo.Upsert(1, first))

	second := liveEvent("lakers")
	second.Evidence.ListingHTMLSHA256 = ""
	require.True(t, repo.Upsert(2, second))

	got, ok := repo.Get(first.ID)
	require.True(t, ok)
	assert.Equal(t, "hash-lakers", got.Evidence.ListingHTMLSHA256)
	assert.Equal(t, "https://player.example/embed", got.IframeSrcObservable)
	require.NotNil(t, got.IframeHead)
	assert.Equal(t, 200, got.IframeHead.Status)
	require.NotNil(t, got.RequestObservables)
	assert.Equal(t, uint64(2), got.Cycle)
	assert.Equal(t, first.FirstSeen, got.FirstSeen)
}

func TestUpsertNewIframeDoesNotReuseOldHead(t *testing.T) {
	repo := New(10, nil)

	first := liveEvent("lakers")
	enrich(first, "https://player.example/old")
	repo.Upsert(1, first)

	second := liveEvent("lakers")
	second.IframeSrcObservable = "https://player.example/new"
	repo.Upsert(2, second)

	got, _ := repo.Get(first.ID)
	assert.Equal(t, "https://player.example/new", got.IframeSrcObservable)
	assert.Nil(t, got.IframeHead)
	assert.Nil(t, got.RequestObservables)
}

func TestUpsertClearsEnrichmentWhenNotLive(t *testing.T) {
	repo := New(10, nil)

	first := liveEvent("lakers")
	enrich(first, "https://player.example/embed")
	repo.Upsert(1, first)

	ended := liveEvent("lakers")
	ended.Status = event.StatusUnknown
	repo.Upsert(2, ended)

	got, _ := repo.Get(first.ID)
	assert.Equal(t, event.StatusUnknown, got.Status)
	assert.False(t, got.Enriched())
	assert.NoError(t, got.Validate())

	// a non-live draft that somehow carries enrichment is cleaned too
	bad := liveEvent("lakers")
	bad.Status = event.StatusUpcoming
	enrich(bad, "https://player.example/embed")
	repo.Upsert(3, bad)

	got, _ = repo.Get(first.ID)
	assert.False(t, got.Enriched())
}

func TestUpsertStaleCycle(t *testing.T) {
	repo := New(10, nil)

	newer := liveEvent("lakers")
	enrich(newer, "https://player.example/fast")
	require.True(t, repo.Upsert(5, newer))

	older := liveEvent("lakers")
	enrich(older, "https://player.example/slow")
	assert.False(t, repo.Upsert(4, older))

	got, _ := repo.Get(newer.ID)
	assert.Equal(t, "https://player.example/fast", got.IframeSrcObservable)
	assert.Equal(t, uint64(5), got.Cycle)
	assert.Equal(t, uint64(5), repo.LastCycle())

	// same cycle is accepted
	assert.True(t, repo.Upsert(5, liveEvent("lakers")))
}

func TestUpsertRejectsEmpty(t *testing.T) {
	repo := New(10, nil)
	assert.False(t, repo.Upsert(1, nil))
	assert.False(t, repo.Upsert(1, &event.Event{}))
	assert.Equal(t, 0, repo.Len())
}

func TestUpsertDoesNotAliasCaller(t *testing.T) {
	repo := New(10, nil)
	evt := liveEvent("lakers")
	enrich(evt, "https://player.example/embed")
	repo.Upsert(1, evt)

	evt.Title = "mutated"
	evt.IframeHead.Headers["Server"] = "mutated"

	got, _ := repo.Get(evt.ID)
	assert.Equal(t, "lakers", got.Title)
	assert.Equal(t, "edge", got.IframeHead.Headers["Server"])
}

func TestListAllOrder(t *testing.T) {
	repo := New(10, nil)
	for i, title := range []string{"c", "a", "b"} {
		repo.Upsert(uint64(i+1), liveEvent(title))
	}
	repo.Upsert(9, liveEvent("a"))

	var titles []string
	for _, evt := range repo.ListAll() {
		titles = append(titles, evt.Title)
	}
	assert.Equal(t, []string{"c", "a", "b"}, titles)
	assert.Equal(t, 3, repo.Len())
}

func TestChangeLog(t *testing.T) {
	repo := New(3, nil)

	evt := liveEvent("lakers")
	repo.Upsert(1, evt)

	upcoming := liveEvent("lakers")
	upcoming.Status = event.StatusUpcoming
	repo.Upsert(2, upcoming)

	changes := repo.Changes()
	require.Len(t, changes, 2)
	assert.Equal(t, event.ChangeNew, changes[0].ChangeType)
	assert.Equal(t, event.ChangeStatus, changes[1].ChangeType)
	assert.Equal(t, "live", changes[1].OldValue)
	assert.Equal(t, "upcoming", changes[1].NewValue)

	for i := 0; i < 5; i++ {
		repo.Upsert(uint64(3+i), liveEvent(fmt.Sprintf("extra-%d", i)))
	}
	changes = repo.Changes()
	assert.Len(t, changes, 3)
	assert.Equal(t, uint64(7), changes[2].Cycle)
}

func TestCountByStatus(t *testing.T) {
	repo := New(10, nil)
	repo.Upsert(1, liveEvent("a"))
	up := liveEvent("b")
	up.Status = event.StatusUpcoming
	repo.Upsert(1, up)

	counts := repo.CountByStatus()
	assert.Equal(t, 1, counts[event.StatusLive])
	assert.Equal(t, 1, counts[event.StatusUpcoming])
	assert.Equal(t, 0, counts[event.StatusUnknown])
}

func TestSnapshotRestore(t *testing.T) {
	repo := New(10, nil)
	a := liveEvent("a")
	enrich(a, "https://player.example/a")
	repo.Upsert(1, a)
	repo.Upsert(2, liveEvent("b"))
	ran := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo.MarkRun(2, ran)

	snap := repo.Snapshot()
	assert.Equal(t, uint64(2), snap.LastCycle)
	assert.Equal(t, "2026-03-01T12:00:00Z", snap.LastRunUTC)
	assert.Len(t, snap.Order, 2)

	restored := New(10, nil)
	restored.Restore(snap)

	assert.Equal(t, repo.Len(), restored.Len())
	assert.Equal(t, uint64(2), restored.LastCycle())
	assert.True(t, restored.LastRun().Equal(ran))
	assert.Equal(t, len(repo.Changes()), len(restored.Changes()))

	titles := []string{}
	for _, evt := range restored.ListAll() {
		titles = append(titles, evt.Title)
	}
	assert.Equal(t, []string{"a", "b"}, titles)

	got, ok := restored.Get(a.ID)
	require.True(t, ok)
	assert.Equal(t, "https://player.example/a", got.IframeSrcObservable)

	// restored records are protected against replays of older cycles
	assert.False(t, restored.Upsert(1, liveEvent("b")))
}

func TestRestoreRepairsOrder(t *testing.T) {
	b := liveEvent("b")
	a := liveEvent("a")
	snap := event.NewSnapshot()
	snap.Events[a.ID] = a
	snap.Events[b.ID] = b
	snap.Order = []string{b.ID, "missing", b.ID}

	repo := New(10, nil)
	repo.Restore(snap)

	all := repo.ListAll()
	require.Len(t, all, 2)
	assert.Equal(t, "b", all[0].Title)
	assert.Equal(t, "a", all[1].Title)
}

func TestConcurrentUpserts(t *testing.T) {
	repo := New(1000, nil)

	var wg sync.WaitGroup
	for cycle := 1; cycle <= 20; cycle++ {
		wg.Add(1)
		go func(cycle uint64) {
			defer wg.Done()
			evt := liveEvent("lakers")
			enrich(evt, fmt.Sprintf("https://player.example/%d", cycle))
			repo.Upsert(cycle, evt)
		}(uint64(cycle))
	}
	wg.Wait()

	got, _ := repo.Get(liveEvent("lakers").ID)
	assert.Equal(t, uint64(20), got.Cycle)
	assert.Equal(t, "https://player.example/20", got.IframeSrcObservable)
}
