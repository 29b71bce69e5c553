package booking

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	StatusBooked    AppointmentStatus = "Booked"
	StatusCancelled AppointmentStatus = "Cancelled"
	StatusCompleted AppointmentStatus = "Completed"
)

type PaymentStatus string

const (
	PaymentUnpaid PaymentStatus = "Unpaid"
	PaymentPaid   PaymentStatus = "Paid"
)

type WindowStatus string

const (
	WindowAvailable   WindowStatus = "Available"
	WindowUnavailable WindowStatus = "Unavailable"
	WindowBusy        WindowStatus = "Busy"
)

type Doctor struct {
	ID        uuid.UUID
	Name      string
	Specialty *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Patient struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AvailabilityWindow is one recurring weekly interval during which a doctor
// accepts bookings. StartTime and EndTime are wall-clock "HH:MM" strings.
type AvailabilityWindow struct {
	ID        uuid.UUID
	DoctorID  uuid.UUID
	Weekday   time.Weekday
	StartTime string
	EndTime   string
	Status    WindowStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Appointment occupies one (doctor, date, slot) triple. Date carries calendar
// date only; TimeSlot is the canonical slot label, e.g. "9:00 AM - 10:00 AM".
type Appointment struct {
	ID            uuid.UUID
	DoctorID      uuid.UUID
	PatientID     uuid.UUID
	Date          time.Time
	TimeSlot      string
	Status        AppointmentStatus
	PaymentStatus PaymentStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type Payment struct {
	ID            uuid.UUID
	AppointmentID uuid.UUID
	Amount        int64
	Reference     string
	CreatedAt     time.Time
}

type Prescription struct {
	ID            uuid.UUID
	AppointmentID uuid.UUID
	DoctorID      uuid.UUID
	PatientID     uuid.UUID
	Details       string
	CreatedAt     time.Time
}

type BookingEvent struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

// AppointmentDetail is an appointment hydrated with participant names and the
// read-time expiry evaluation.
type AppointmentDetail struct {
	Appointment
	DoctorName     string
	PatientName    string
	ExpiryEligible bool
}
