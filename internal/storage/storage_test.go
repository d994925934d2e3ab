package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pfrederiksen/ace-monitor/internal/event"
)

func TestSaveAndLoadSnapshot(t *testing.T) {
	tmpDir := t.TempDir()

	storage, err := New(tmpDir)
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}

	start := int64(1760000000)
	event1 := &event.Event{
		ID:                  "event-123",
		League:              "NBA",
		Title:               "Lakers vs Celtics",
		Status:              event.StatusLive,
		PageURL:             "https://listing.example/",
		EventURL:            "https://listing.example/nba/lakers-celtics",
		IframeSrcObservable: "https://player.example/embed",
		IframeHead: &event.HeadSnapshot{
			URL:     "https://player.example/embed",
			Status:  200,
			Headers: map[string]string{"Server": "edge"},
		},
		Evidence: event.Evidence{
			PageURL:           "https://listing.example/",
			Status:            200,
			ListingHTMLSHA256: "abc",
		},
		FirstSeen: time.Now().UTC().Truncate(time.Second),
		Cycle:     3,
	}
	event2 := &event.Event{
		ID:             "event-456",
		League:         "NHL",
		Title:          "Bruins vs Rangers",
		Status:         event.StatusUpcoming,
		StartTimeEpoch: &start,
		Cycle:          3,
	}

	snapshot := event.NewSnapshot()
	snapshot.Events[event1.ID] = event1
	snapshot.Events[event2.ID] = event2
	snapshot.Order = []string{event2.ID, event1.ID}
	snapshot.LastCycle = 3
	snapshot.LastRunUTC = "2026-03-01T12:00:00Z"

	if err := storage.SaveSnapshot(snapshot); err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}
	if snapshot.UpdatedAt == "" {
		t.Error("expected UpdatedAt to be set")
	}

	loaded, err := storage.LoadSnapshot()
	if err != nil {
		t.Fatalf("LoadSnapshot failed: %v", err)
	}

	if len(loaded.Events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(loaded.Events))
	}
	if loaded.Order[0] != event2.ID || loaded.Order[1] != event1.ID {
		t.Errorf("order not preserved: %v", loaded.Order)
	}
	if loaded.LastCycle != 3 || loaded.LastRunUTC != "2026-03-01T12:00:00Z" {
		t.Errorf("unexpected cycle metadata: %d %q", loaded.LastCycle, loaded.LastRunUTC)
	}

	got := loaded.Events[event1.ID]
	if got.IframeHead == nil || got.IframeHead.Headers["Server"] != "edge" {
		t.Errorf("iframe head not round-tripped: %+v", got.IframeHead)
	}
	if !got.FirstSeen.Equal(event1.FirstSeen) {
		t.Errorf("first seen = %v, want %v", got.FirstSeen, event1.FirstSeen)
	}
	if s := loaded.Events[event2.ID].StartTimeEpoch; s == nil || *s != start {
		t.Errorf("start time not round-tripped")
	}

	entries, err := os.ReadDir(tmpDir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "snapshot.json" {
		t.Errorf("expected only snapshot.json in data dir, got %v", entries)
	}
}

func TestLoadSnapshotMissing(t *testing.T) {
	storage, err := New(filepath.Join(t.TempDir(), "nested", "dir"))
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}

	snapshot, err := storage.LoadSnapshot()
	if err != nil {
		t.Fatalf("LoadSnapshot failed: %v", err)
	}
	if snapshot.Events == nil || len(snapshot.Events) != 0 {
		t.Errorf("expected empty events map, got %v", snapshot.Events)
	}
	if snapshot.Order == nil || snapshot.ChangeLog == nil {
		t.Error("expected initialized slices")
	}
}

func TestLoadSnapshotCorrupt(t *testing.T) {
	tmpDir := t.TempDir()
	storage, err := New(tmpDir)
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}

	if err := os.WriteFile(storage.Path(), []byte("{not json"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	if _, err := storage.LoadSnapshot(); err == nil {
		t.Error("expected error for corrupt snapshot")
	}
}

func TestLoadSnapshotNullFields(t *testing.T) {
	tmpDir := t.TempDir()
	storage, err := New(tmpDir)
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}

	if err := os.WriteFile(storage.Path(), []byte(`{"events":null,"last_cycle":7}`), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	snapshot, err := storage.LoadSnapshot()
	if err != nil {
		t.Fatalf("LoadSnapshot failed: %v", err)
	}
	if snapshot.Events == nil || snapshot.Order == nil || snapshot.ChangeLog == nil {
		t.Error("expected nil collections to be initialized")
	}
	if snapshot.LastCycle != 7 {
		t.Errorf("expected last cycle 7, got %d", snapshot.LastCycle)
	}
}

func TestNewExpandsHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	storage, err := New("~/ace-data")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if want := filepath.Join(home, "ace-data", "snapshot.json"); storage.Path() != want {
		t.Errorf("Path() = %q, want %q", storage.Path(), want)
	}
}
