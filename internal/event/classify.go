package event

// Classify maps a raw entry to a status. A start time is only carried for upcoming entries.
func Classify(raw RawEntry) (Status, *int64) {
	switch raw.Badge {
	case BadgeLive:
		return StatusLive, nil
	case BadgeUpcoming:
		if raw.StartTimeEpoch == nil {
			return StatusUpcoming, nil
		}
		v := *raw.StartTimeEpoch
		return StatusUpcoming, &v
	default:
		return StatusUnknown, nil
	}
}

// ResolveBadge picks the badge for a card given which markers are present.
// Live wins over upcoming when a card carries both.
func ResolveBadge(hasLive, hasUpcoming bool) BadgeKind {
	switch {
	case hasLive:
		return BadgeLive
	case hasUpcoming:
		return BadgeUpcoming
	default:
		return BadgeNone
	}
}
