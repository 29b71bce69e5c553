package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/carelink/televisit/internal/booking"
)

type BookAppointmentRequest struct {
	DoctorID  string `json:"doctor_id" validate:"required,uuid"`
	PatientID string `json:"patient_id" validate:"required,uuid"`
	Date      string `json:"date" validate:"required,datetime=2006-01-02"`
	TimeSlot  string `json:"time_slot" validate:"required"`
}

type AppointmentResponse struct {
	ID             uuid.UUID `json:"id"`
	DoctorID       uuid.UUID `json:"doctor_id"`
	PatientID      uuid.UUID `json:"patient_id"`
	DoctorName     string    `json:"doctor_name,omitempty"`
	PatientName    string    `json:"patient_name,omitempty"`
	Date           string    `json:"date"`
	TimeSlot       string    `json:"time_slot"`
	Status         string    `json:"status"`
	PaymentStatus  string    `json:"payment_status"`
	ExpiryEligible bool      `json:"expiry_eligible,omitempty"`
}

func appointmentResponse(a *booking.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:            a.ID,
		DoctorID:      a.DoctorID,
		PatientID:     a.PatientID,
		Date:          a.Date.Format("2006-01-02"),
		TimeSlot:      a.TimeSlot,
		Status:        string(a.Status),
		PaymentStatus: string(a.PaymentStatus),
	}
}

func appointmentDetailResponse(d *booking.AppointmentDetail) AppointmentResponse {
	resp := appointmentResponse(&d.Appointment)
	resp.DoctorName = d.DoctorName
	resp.PatientName = d.PatientName
	resp.ExpiryEligible = d.ExpiryEligible
	return resp
}

type SlotsResponse struct {
	DoctorID uuid.UUID `json:"doctor_id"`
	Date     string    `json:"date"`
	Slots    []string  `json:"slots"`
}

type AvailabilityWindowPayload struct {
	Weekday   string `json:"weekday" validate:"required,oneof=Sunday Monday Tuesday Wednesday Thursday Friday Saturday"`
	StartTime string `json:"start_time" validate:"required,datetime=15:04"`
	EndTime   string `json:"end_time" validate:"required,datetime=15:04"`
	Status    string `json:"status" validate:"required,oneof=Available Unavailable Busy"`
}

type SetAvailabilityRequest struct {
	Windows []AvailabilityWindowPayload `json:"windows" validate:"required,dive"`
}

type RecordPaymentRequest struct {
	Amount    int64  `json:"amount" validate:"required,gt=0"`
	Reference string `json:"reference" validate:"required"`
}

type PaymentResponse struct {
	ID            uuid.UUID `json:"id"`
	AppointmentID uuid.UUID `json:"appointment_id"`
	Amount        int64     `json:"amount"`
	Reference     string    `json:"reference"`
}

type CreatePrescriptionRequest struct {
	Details string `json:"details" validate:"required"`
}

type PrescriptionResponse struct {
	ID            uuid.UUID `json:"id"`
	AppointmentID uuid.UUID `json:"appointment_id"`
	DoctorID      uuid.UUID `json:"doctor_id"`
	PatientID     uuid.UUID `json:"patient_id"`
	Details       string    `json:"details"`
	CreatedAt     time.Time `json:"created_at"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

var weekdays = map[string]time.Weekday{
	"Sunday":    time.Sunday,
	"Monday":    time.Monday,
	"Tuesday":   time.Tuesday,
	"Wednesday": time.Wednesday,
	"Thursday":  time.Thursday,
	"Friday":    time.Friday,
	"Saturday":  time.Saturday,
}
