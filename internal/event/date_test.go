package event

import (
	"testing"
	"time"
)

func TestFormatStart(t *testing.T) {
	start := int64(1767225600) // 2026-01-01T00:00:00Z
	evt := &Event{StartTimeEpoch: &start}

	la, err := time.LoadLocation("America/Los_Angeles")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}

	tests := []struct {
		name string
		loc  *time.Location
		want string
	}{
		{"utc", time.UTC, "20260101000000 +0000"},
		{"nil location is utc", nil, "20260101000000 +0000"},
		{"los angeles", la, "20251231160000 -0800"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := evt.FormatStart(tt.loc, XMLTVTimeLayout); got != tt.want {
				t.Errorf("FormatStart() = %q, want %q", got, tt.want)
			}
		})
	}

	if got := (&Event{}).FormatStart(time.UTC, XMLTVTimeLayout); got != "" {
		t.Errorf("FormatStart() without start = %q, want empty", got)
	}
}

func TestStartsWithin(t *testing.T) {
	soon := time.Now().Add(30 * time.Minute).Unix()
	later := time.Now().Add(5 * time.Hour).Unix()

	if !(&Event{StartTimeEpoch: &soon}).StartsWithin(time.Hour) {
		t.Error("expected event to start within the hour")
	}
	if (&Event{StartTimeEpoch: &later}).StartsWithin(time.Hour) {
		t.Error("expected event not to start within the hour")
	}
}
