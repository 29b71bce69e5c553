package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrDoctorNotFound       = errors.New("doctor not found")
	ErrPatientNotFound      = errors.New("patient not found")
	ErrAppointmentNotFound  = errors.New("appointment not found")
	ErrSlotAlreadyBooked    = errors.New("slot already booked")
	ErrDuplicateWindow      = errors.New("duplicate availability window for weekday")
	ErrPrescriptionNotFound = errors.New("prescription not found")
)

// Repository contains all DB interactions needed by the service.
type Repository interface {
	GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)

	// Availability windows
	ListWindowsByDoctor(ctx context.Context, doctorID uuid.UUID) ([]AvailabilityWindow, error)
	ReplaceWindows(ctx context.Context, doctorID uuid.UUID, windows []AvailabilityWindow) error

	// Conflict checks: labels of non-cancelled appointments on a calendar date
	BookedSlotLabels(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]string, error)

	// Creation and updates
	CreateAppointment(ctx context.Context, doctorID, patientID uuid.UUID, date time.Time, slotLabel string) (*Appointment, error)
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	GetAppointmentDetail(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error)
	ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]AppointmentDetail, error)
	ListAppointmentsByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]AppointmentDetail, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error)
	UpdatePaymentStatus(ctx context.Context, id uuid.UUID, from, to PaymentStatus) (*Appointment, error)

	// Expiry worker: still-Booked appointments dated on or before the given day
	FindBookedThrough(ctx context.Context, date time.Time) ([]Appointment, error)

	// Collaterals
	CreatePayment(ctx context.Context, p *Payment) error
	CreatePrescription(ctx context.Context, p *Prescription) error
	ListPrescriptionsByPatient(ctx context.Context, patientID uuid.UUID) ([]Prescription, error)

	// Event logging
	InsertEvent(ctx context.Context, ev BookingEvent) error
}
