package event

import (
	"fmt"
	"time"
)

// Snapshot represents the repository contents at a point in time
type Snapshot struct {
	Events     map[string]*Event `json:"events"`       // keyed by Event.ID
	Order      []string          `json:"order"`        // IDs in first-sighting order
	ChangeLog  []*EventChange    `json:"change_log"`   // Recent changes
	LastCycle  uint64            `json:"last_cycle"`   // Highest cycle committed
	LastRunUTC string            `json:"last_run_utc"` // RFC3339 timestamp of the last finished cycle
	UpdatedAt  string            `json:"updated_at"`   // RFC3339 timestamp
}

// NewSnapshot creates an empty snapshot
func NewSnapshot() *Snapshot {
	return &Snapshot{
		Events:    make(map[string]*Event),
		Order:     make([]string, 0),
		ChangeLog: make([]*EventChange, 0),
	}
}

// Change types recorded in the change log
const (
	ChangeNew       = "new"
	ChangeStatus    = "status"
	ChangeStartTime = "start_time"
	ChangeIframe    = "iframe"
)

// EventChange represents a change detected in an event between two cycles
type EventChange struct {
	EventID    string    `json:"event_id"`
	ChangeType string    `json:"change_type"`
	OldValue   string    `json:"old_value"`
	NewValue   string    `json:"new_value"`
	Cycle      uint64    `json:"cycle"`
	DetectedAt time.Time `json:"detected_at"`
}

// DetectChanges compares two versions of an event and returns detected changes
func DetectChanges(previous, current *Event) []*EventChange {
	now := time.Now().UTC()

	if previous == nil {
		return []*EventChange{
			{
				EventID:    current.ID,
				ChangeType: ChangeNew,
				NewValue:   string(current.Status),
				Cycle:      current.Cycle,
				DetectedAt: now,
			},
		}
	}

	var changes []*EventChange

	if previous.Status != current.Status {
		changes = append(changes, &EventChange{
			EventID:    current.ID,
			ChangeType: ChangeStatus,
			OldValue:   string(previous.Status),
			NewValue:   string(current.Status),
			Cycle:      current.Cycle,
			DetectedAt: now,
		})
	}

	if formatEpoch(previous.StartTimeEpoch) != formatEpoch(current.StartTimeEpoch) {
		changes = append(changes, &EventChange{
			EventID:    current.ID,
			ChangeType: ChangeStartTime,
			OldValue:   formatEpoch(previous.StartTimeEpoch),
			NewValue:   formatEpoch(current.StartTimeEpoch),
			Cycle:      current.Cycle,
			DetectedAt: now,
		})
	}

	if current.IframeSrcObservable != "" && previous.IframeSrcObservable != current.IframeSrcObservable {
		changes = append(changes, &EventChange{
			EventID:    current.ID,
			ChangeType: ChangeIframe,
			OldValue:   previous.IframeSrcObservable,
			NewValue:   current.IframeSrcObservable,
			Cycle:      current.Cycle,
			DetectedAt: now,
		})
	}

	return changes
}

func formatEpoch(v *int64) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%d", *v)
}
