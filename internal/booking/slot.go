package booking

import (
	"fmt"
	"strings"
	"time"
)

// TimeOfDay is a wall-clock time expressed as minutes since midnight. Slot
// arithmetic is plain minute addition; nothing here is timezone aware.
type TimeOfDay int

func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("parse time of day %q: %w", s, err)
	}
	return TimeOfDay(t.Hour()*60 + t.Minute()), nil
}

// String renders the 12-hour clock form used in slot labels, e.g. "9:00 AM".
func (t TimeOfDay) String() string {
	return time.Date(0, 1, 1, int(t)/60, int(t)%60, 0, 0, time.UTC).Format("3:04 PM")
}

// Slot is one fixed-duration bookable interval inside an availability window.
type Slot struct {
	Start TimeOfDay
	End   TimeOfDay
}

// Label is the canonical textual form of a slot. It is the only place slot
// labels are produced; conflict checks and stored appointments rely on every
// label passing through here.
func (s Slot) Label() string {
	return s.Start.String() + " - " + s.End.String()
}

// ParseSlot recovers a slot from its label. It accepts surrounding whitespace
// and zero-padded hours ("09:00 AM") but always re-emits the canonical form.
func ParseSlot(label string) (Slot, error) {
	parts := strings.Split(label, "-")
	if len(parts) != 2 {
		return Slot{}, fmt.Errorf("malformed slot label %q", label)
	}

	start, err := parseClock(parts[0])
	if err != nil {
		return Slot{}, fmt.Errorf("slot label %q: %w", label, err)
	}
	end, err := parseClock(parts[1])
	if err != nil {
		return Slot{}, fmt.Errorf("slot label %q: %w", label, err)
	}

	return Slot{Start: start, End: end}, nil
}

func parseClock(s string) (TimeOfDay, error) {
	t, err := time.Parse("3:04 PM", strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	return TimeOfDay(t.Hour()*60 + t.Minute()), nil
}

// GenerateSlots enumerates the fixed-duration slots covering a window. The
// cursor starts at the window start and stops as soon as the next slot end
// would pass the window end, so a window shorter than one duration yields
// nothing. Slots never span midnight.
func GenerateSlots(w AvailabilityWindow, duration time.Duration) ([]Slot, error) {
	if w.Status != WindowAvailable {
		return nil, nil
	}

	step := int(duration.Minutes())
	if step <= 0 {
		return nil, fmt.Errorf("slot duration %s is not positive", duration)
	}

	start, err := ParseTimeOfDay(w.StartTime)
	if err != nil {
		return nil, fmt.Errorf("window start: %w", err)
	}
	end, err := ParseTimeOfDay(w.EndTime)
	if err != nil {
		return nil, fmt.Errorf("window end: %w", err)
	}

	var slots []Slot
	for cur := start; cur+TimeOfDay(step) <= end; cur += TimeOfDay(step) {
		slots = append(slots, Slot{Start: cur, End: cur + TimeOfDay(step)})
	}
	return slots, nil
}

// EndDateTime combines an appointment's calendar date with the slot's end
// time, yielding the moment after which a still-Booked appointment is
// eligible for auto-cancellation.
func (s Slot) EndDateTime(date time.Time) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(),
		int(s.End)/60, int(s.End)%60, 0, 0, date.Location())
}
