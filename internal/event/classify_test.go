package event

import "testing"

func TestClassify(t *testing.T) {
	start := int64(1767225600)

	tests := []struct {
		name      string
		raw       RawEntry
		want      Status
		wantStart bool
	}{
		{
			name: "live badge",
			raw:  RawEntry{Badge: BadgeLive},
			want: StatusLive,
		},
		{
			name: "live badge drops start time",
			raw:  RawEntry{Badge: BadgeLive, StartTimeEpoch: &start},
			want: StatusLive,
		},
		{
			name:      "upcoming with start",
			raw:       RawEntry{Badge: BadgeUpcoming, StartTimeEpoch: &start},
			want:      StatusUpcoming,
			wantStart: true,
		},
		{
			name: "upcoming without start",
			raw:  RawEntry{Badge: BadgeUpcoming},
			want: StatusUpcoming,
		},
		{
			name: "no badge",
			raw:  RawEntry{Badge: BadgeNone},
			want: StatusUnknown,
		},
		{
			name: "zero value badge",
			raw:  RawEntry{},
			want: StatusUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, got := Classify(tt.raw)
			if status != tt.want {
				t.Errorf("Classify() status = %s, want %s", status, tt.want)
			}
			if tt.wantStart {
				if got == nil || *got != start {
					t.Errorf("Classify() start = %v, want %d", got, start)
				}
			} else if got != nil {
				t.Errorf("Classify() start = %d, want nil", *got)
			}
		})
	}
}

func TestResolveBadge_LiveWins(t *testing.T) {
	tests := []struct {
		hasLive, hasUpcoming bool
		want                 BadgeKind
	}{
		{true, true, BadgeLive},
		{true, false, BadgeLive},
		{false, true, BadgeUpcoming},
		{false, false, BadgeNone},
	}

	for _, tt := range tests {
		if got := ResolveBadge(tt.hasLive, tt.hasUpcoming); got != tt.want {
			t.Errorf("ResolveBadge(%v, %v) = %s, want %s", tt.hasLive, tt.hasUpcoming, got, tt.want)
		}
	}

	status, _ := Classify(RawEntry{Badge: ResolveBadge(true, true)})
	if status != StatusLive {
		t.Errorf("conflicting badges classified as %s, want live", status)
	}
}
