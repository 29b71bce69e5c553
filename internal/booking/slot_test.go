package booking

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func testWindow(start, end string, status WindowStatus) AvailabilityWindow {
	return AvailabilityWindow{
		ID:        uuid.New(),
		DoctorID:  uuid.New(),
		Weekday:   time.Monday,
		StartTime: start,
		EndTime:   end,
		Status:    status,
	}
}

func TestTimeOfDay_String(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"09:00", "9:00 AM"},
		{"00:00", "12:00 AM"},
		{"12:00", "12:00 PM"},
		{"13:30", "1:30 PM"},
		{"23:45", "11:45 PM"},
	}
	for _, tc := range cases {
		tod, err := ParseTimeOfDay(tc.in)
		if err != nil {
			t.Fatalf("ParseTimeOfDay(%q): %v", tc.in, err)
		}
		if got := tod.String(); got != tc.want {
			t.Errorf("ParseTimeOfDay(%q).String() = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestParseTimeOfDay_Invalid(t *testing.T) {
	for _, in := range []string{"", "9am", "25:00", "09:99", "9:00 AM"} {
		if _, err := ParseTimeOfDay(in); err == nil {
			t.Errorf("ParseTimeOfDay(%q): expected error", in)
		}
	}
}

func TestSlot_Label(t *testing.T) {
	s := Slot{Start: 9 * 60, End: 10 * 60}
	if got := s.Label(); got != "9:00 AM - 10:00 AM" {
		t.Errorf("Label() = %q, want %q", got, "9:00 AM - 10:00 AM")
	}

	s = Slot{Start: 11*60 + 30, End: 12*60 + 30}
	if got := s.Label(); got != "11:30 AM - 12:30 PM" {
		t.Errorf("Label() = %q, want %q", got, "11:30 AM - 12:30 PM")
	}
}

func TestParseSlot_RoundTrip(t *testing.T) {
	labels := []string{
		"9:00 AM - 10:00 AM",
		"12:00 PM - 1:00 PM",
		"11:00 PM - 11:45 PM",
	}
	for _, label := range labels {
		slot, err := ParseSlot(label)
		if err != nil {
			t.Fatalf("ParseSlot(%q): %v", label, err)
		}
		if got := slot.Label(); got != label {
			t.Errorf("ParseSlot(%q).Label() = %q", label, got)
		}
	}
}

func TestParseSlot_TolerantInput(t *testing.T) {
	// Zero-padded hours and extra whitespace normalize to the canonical form.
	cases := []struct {
		in   string
		want string
	}{
		{"09:00 AM - 10:00 AM", "9:00 AM - 10:00 AM"},
		{"  9:00 AM -  10:00 AM ", "9:00 AM - 10:00 AM"},
		{"09:00 AM-10:00 AM", "9:00 AM - 10:00 AM"},
	}
	for _, tc := range cases {
		slot, err := ParseSlot(tc.in)
		if err != nil {
			t.Fatalf("ParseSlot(%q): %v", tc.in, err)
		}
		if got := slot.Label(); got != tc.want {
			t.Errorf("ParseSlot(%q).Label() = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestParseSlot_Malformed(t *testing.T) {
	for _, in := range []string{"", "9:00 AM", "9:00 AM to 10:00 AM", "9:00 - 10:00", "a - b - c"} {
		if _, err := ParseSlot(in); err == nil {
			t.Errorf("ParseSlot(%q): expected error", in)
		}
	}
}

func TestGenerateSlots_HourlyWindow(t *testing.T) {
	w := testWindow("09:00", "12:00", WindowAvailable)

	slots, err := GenerateSlots(w, time.Hour)
	if err != nil {
		t.Fatalf("GenerateSlots: %v", err)
	}

	want := []string{
		"9:00 AM - 10:00 AM",
		"10:00 AM - 11:00 AM",
		"11:00 AM - 12:00 PM",
	}
	if len(slots) != len(want) {
		t.Fatalf("got %d slots, want %d", len(slots), len(want))
	}
	for i, label := range want {
		if got := slots[i].Label(); got != label {
			t.Errorf("slot[%d] = %q, want %q", i, got, label)
		}
	}
}

func TestGenerateSlots_PartialTailDropped(t *testing.T) {
	// 09:00-10:30 with hourly slots: the 10:00-11:00 slot would overrun.
	w := testWindow("09:00", "10:30", WindowAvailable)

	slots, err := GenerateSlots(w, time.Hour)
	if err != nil {
		t.Fatalf("GenerateSlots: %v", err)
	}
	if len(slots) != 1 {
		t.Fatalf("got %d slots, want 1", len(slots))
	}
	if got := slots[0].Label(); got != "9:00 AM - 10:00 AM" {
		t.Errorf("slot = %q", got)
	}
}

func TestGenerateSlots_WindowShorterThanDuration(t *testing.T) {
	w := testWindow("09:00", "09:30", WindowAvailable)

	slots, err := GenerateSlots(w, time.Hour)
	if err != nil {
		t.Fatalf("GenerateSlots: %v", err)
	}
	if len(slots) != 0 {
		t.Errorf("got %d slots, want 0", len(slots))
	}
}

func TestGenerateSlots_UnavailableWindow(t *testing.T) {
	for _, status := range []WindowStatus{WindowUnavailable, WindowBusy} {
		w := testWindow("09:00", "17:00", status)
		slots, err := GenerateSlots(w, time.Hour)
		if err != nil {
			t.Fatalf("GenerateSlots(%s): %v", status, err)
		}
		if len(slots) != 0 {
			t.Errorf("status %s: got %d slots, want 0", status, len(slots))
		}
	}
}

func TestGenerateSlots_InvalidInput(t *testing.T) {
	if _, err := GenerateSlots(testWindow("09:00", "17:00", WindowAvailable), 0); err == nil {
		t.Error("zero duration: expected error")
	}
	if _, err := GenerateSlots(testWindow("late", "17:00", WindowAvailable), time.Hour); err == nil {
		t.Error("bad start time: expected error")
	}
}

func TestGenerateSlots_ThirtyMinuteDuration(t *testing.T) {
	w := testWindow("14:00", "16:00", WindowAvailable)

	slots, err := GenerateSlots(w, 30*time.Minute)
	if err != nil {
		t.Fatalf("GenerateSlots: %v", err)
	}
	if len(slots) != 4 {
		t.Fatalf("got %d slots, want 4", len(slots))
	}
	if got := slots[0].Label(); got != "2:00 PM - 2:30 PM" {
		t.Errorf("first slot = %q", got)
	}
	if got := slots[3].Label(); got != "3:30 PM - 4:00 PM" {
		t.Errorf("last slot = %q", got)
	}
}

func TestSlot_EndDateTime(t *testing.T) {
	slot, err := ParseSlot("9:00 AM - 10:00 AM")
	if err != nil {
		t.Fatalf("ParseSlot: %v", err)
	}

	date := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	end := slot.EndDateTime(date)

	want := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)
	if !end.Equal(want) {
		t.Errorf("EndDateTime = %s, want %s", end, want)
	}
}
