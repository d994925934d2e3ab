package event

import "time"

// XMLTVTimeLayout is the programme time layout used by XMLTV guides
const XMLTVTimeLayout = "20060102150405 -0700"

// StartTime returns the start time in loc, or the zero time if unknown.
func (e *Event) StartTime(loc *time.Location) time.Time {
	if e.StartTimeEpoch == nil || *e.StartTimeEpoch <= 0 {
		return time.Time{}
	}
	if loc == nil {
		loc = time.UTC
	}
	return time.Unix(*e.StartTimeEpoch, 0).In(loc)
}

// FormatStart renders the start time with layout, or "" if unknown
func (e *Event) FormatStart(loc *time.Location, layout string) string {
	t := e.StartTime(loc)
	if t.IsZero() {
		return ""
	}
	return t.Format(layout)
}

// StartsWithin checks if the event starts within d from now.
// Returns false if the start time is unknown.
func (e *Event) StartsWithin(d time.Duration) bool {
	t := e.StartTime(time.UTC)
	if t.IsZero() {
		return false
	}
	now := time.Now()
	return t.After(now) && t.Before(now.Add(d))
}
