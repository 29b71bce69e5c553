package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carelink/televisit/internal/config"
	redisclient "github.com/carelink/televisit/internal/redis"
)

const (
	EventAppointmentBooked    = "APPOINTMENT_BOOKED"
	EventAppointmentPaid      = "APPOINTMENT_PAID"
	EventAppointmentCompleted = "APPOINTMENT_COMPLETED"
	EventAppointmentCancelled = "APPOINTMENT_CANCELLED"
	EventAppointmentExpired   = "APPOINTMENT_EXPIRED"
	EventPrescriptionIssued   = "PRESCRIPTION_ISSUED"
)

var (
	ErrDoctorUnavailable        = errors.New("doctor not available")
	ErrInvalidSlot              = errors.New("slot is not one of the doctor's bookable slots")
	ErrSlotBeingBooked          = errors.New("slot is currently being booked, please retry")
	ErrInvalidTransition        = errors.New("invalid status transition")
	ErrConsultationNotCompleted = errors.New("consultation is not completed")
	ErrInvalidWindow            = errors.New("invalid availability window")
)

type Service struct {
	repo   Repository
	locker redisclient.Locker
	cfg    config.Config
	log    zerolog.Logger
}

func NewService(repo Repository, locker redisclient.Locker, cfg config.Config, log zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		locker: locker,
		cfg:    cfg,
		log:    log,
	}
}

// BookAppointment reserves a slot on a doctor's calendar for a patient.
// The conflict check and insert run inside a distributed lock keyed by the
// (doctor, date, slot) triple, so concurrent requests for the same slot
// cannot both pass the check; a partial unique index on the appointments
// table backs the lock up.
func (s *Service) BookAppointment(ctx context.Context, doctorID, patientID uuid.UUID, date time.Time, slotLabel string) (*AppointmentDetail, error) {
	if _, err := s.repo.GetDoctorByID(ctx, doctorID); err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load doctor: %w", err)
	}

	if _, err := s.repo.GetPatientByID(ctx, patientID); err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}

	window, err := s.availableWindowForDay(ctx, doctorID, date.Weekday())
	if err != nil {
		return nil, err
	}

	slot, err := s.resolveSlot(*window, slotLabel)
	if err != nil {
		return nil, err
	}
	label := slot.Label()

	var created *Appointment

	lockKey := fmt.Sprintf("%s:%s:%s", doctorID, date.Format("2006-01-02"), label)
	err = s.locker.WithBookingLock(ctx, lockKey, func(lockCtx context.Context) error {
		// Inside the critical section re-check the occupied labels
		booked, err := s.repo.BookedSlotLabels(lockCtx, doctorID, date)
		if err != nil {
			return fmt.Errorf("check booked slots: %w", err)
		}
		for _, b := range booked {
			if strings.TrimSpace(b) == label {
				return ErrSlotAlreadyBooked
			}
		}

		appt, err := s.repo.CreateAppointment(lockCtx, doctorID, patientID, date, label)
		if err != nil {
			return fmt.Errorf("create appointment: %w", err)
		}

		created = appt

		s.logEvent(lockCtx, appt.ID, EventAppointmentBooked, map[string]any{
			"doctor_id":  doctorID.String(),
			"patient_id": patientID.String(),
			"date":       date.Format("2006-01-02"),
			"time_slot":  label,
		})

		return nil
	})

	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBeingBooked
		}
		return nil, err
	}

	detail, err := s.repo.GetAppointmentDetail(ctx, created.ID)
	if err != nil {
		return nil, fmt.Errorf("load created appointment: %w", err)
	}
	return detail, nil
}

// ListAvailableSlots returns the generated slots for the doctor's window on
// the date's weekday minus the ones already booked, order preserved.
func (s *Service) ListAvailableSlots(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]string, error) {
	if _, err := s.repo.GetDoctorByID(ctx, doctorID); err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load doctor: %w", err)
	}

	window, err := s.availableWindowForDay(ctx, doctorID, date.Weekday())
	if err != nil {
		return nil, err
	}

	slots, err := GenerateSlots(*window, s.cfg.SlotDuration)
	if err != nil {
		return nil, fmt.Errorf("generate slots: %w", err)
	}

	booked, err := s.repo.BookedSlotLabels(ctx, doctorID, date)
	if err != nil {
		return nil, fmt.Errorf("load booked slots: %w", err)
	}
	occupied := make(map[string]bool, len(booked))
	for _, b := range booked {
		occupied[strings.TrimSpace(b)] = true
	}

	var free []string
	for _, sl := range slots {
		if !occupied[sl.Label()] {
			free = append(free, sl.Label())
		}
	}
	return free, nil
}

// GetAppointment returns the hydrated appointment including the read-time
// expiry evaluation.
func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	detail, err := s.repo.GetAppointmentDetail(ctx, id)
	if err != nil {
		return nil, err
	}
	detail.ExpiryEligible = ExpiryEligible(detail.Appointment, time.Now())
	return detail, nil
}

func (s *Service) ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]AppointmentDetail, error) {
	limit, offset = clampPage(limit, offset)
	return s.repo.ListAppointmentsByPatient(ctx, patientID, limit, offset)
}

func (s *Service) ListAppointmentsByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]AppointmentDetail, error) {
	limit, offset = clampPage(limit, offset)
	return s.repo.ListAppointmentsByDoctor(ctx, doctorID, limit, offset)
}

// MarkPaid flips the payment status to Paid. Calling it on an already-paid
// appointment is a no-op.
func (s *Service) MarkPaid(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.PaymentStatus == PaymentPaid {
		return appt, nil
	}

	updated, err := s.repo.UpdatePaymentStatus(ctx, id, PaymentUnpaid, PaymentPaid)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			// Lost the race with a concurrent MarkPaid; re-read
			return s.repo.GetAppointmentByID(ctx, id)
		}
		return nil, fmt.Errorf("mark paid: %w", err)
	}

	s.logEvent(ctx, updated.ID, EventAppointmentPaid, map[string]any{})
	return updated, nil
}

// MarkCompleted moves a Booked appointment to Completed. Completed and
// Cancelled are terminal.
func (s *Service) MarkCompleted(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.Status != StatusBooked {
		return nil, fmt.Errorf("%w: cannot complete a %s appointment", ErrInvalidTransition, appt.Status)
	}

	updated, err := s.repo.UpdateStatus(ctx, id, StatusBooked, StatusCompleted)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, ErrInvalidTransition
		}
		return nil, fmt.Errorf("mark completed: %w", err)
	}

	s.logEvent(ctx, updated.ID, EventAppointmentCompleted, map[string]any{})
	return updated, nil
}

// Cancel moves a Booked appointment to Cancelled, freeing its slot.
// Cancelling an already-cancelled appointment is a no-op.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	switch appt.Status {
	case StatusCancelled:
		return appt, nil
	case StatusCompleted:
		return nil, fmt.Errorf("%w: cannot cancel a completed appointment", ErrInvalidTransition)
	}

	updated, err := s.repo.UpdateStatus(ctx, id, StatusBooked, StatusCancelled)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			// Lost a race; settle on whatever state won
			current, gerr := s.repo.GetAppointmentByID(ctx, id)
			if gerr != nil {
				return nil, gerr
			}
			if current.Status == StatusCancelled {
				return current, nil
			}
			return nil, ErrInvalidTransition
		}
		return nil, fmt.Errorf("cancel: %w", err)
	}

	s.logEvent(ctx, updated.ID, EventAppointmentCancelled, map[string]any{})
	return updated, nil
}

// ExpiryEligible reports whether a still-Booked appointment's slot end has
// passed. Pure evaluation; the caller decides whether to cancel.
func ExpiryEligible(a Appointment, now time.Time) bool {
	if a.Status != StatusBooked {
		return false
	}
	slot, err := ParseSlot(a.TimeSlot)
	if err != nil {
		return false
	}
	return now.After(slot.EndDateTime(a.Date))
}

// ExpirePastAppointments cancels every Booked appointment whose slot end has
// passed. Called periodically by the expiry worker.
func (s *Service) ExpirePastAppointments(ctx context.Context, now time.Time) (int, error) {
	candidates, err := s.repo.FindBookedThrough(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("find booked appointments: %w", err)
	}

	expired := 0
	for _, appt := range candidates {
		if !ExpiryEligible(appt, now) {
			continue
		}
		_, err := s.repo.UpdateStatus(ctx, appt.ID, StatusBooked, StatusCancelled)
		if err != nil && !errors.Is(err, ErrAppointmentNotFound) {
			s.log.Error().Err(err).Str("appointment_id", appt.ID.String()).Msg("failed to expire appointment")
			continue
		}
		expired++
		s.logEvent(ctx, appt.ID, EventAppointmentExpired, map[string]any{
			"reason": "worker",
		})
	}

	return expired, nil
}

// RecordPayment stores the gateway correlation record for an appointment and
// marks it paid.
func (s *Service) RecordPayment(ctx context.Context, appointmentID uuid.UUID, amount int64, reference string) (*Payment, error) {
	if _, err := s.repo.GetAppointmentByID(ctx, appointmentID); err != nil {
		return nil, err
	}

	payment := &Payment{
		AppointmentID: appointmentID,
		Amount:        amount,
		Reference:     reference,
	}
	if err := s.repo.CreatePayment(ctx, payment); err != nil {
		return nil, fmt.Errorf("record payment: %w", err)
	}

	if _, err := s.MarkPaid(ctx, appointmentID); err != nil {
		return nil, fmt.Errorf("mark paid after payment: %w", err)
	}

	return payment, nil
}

// CreatePrescription issues a prescription for a completed consultation.
func (s *Service) CreatePrescription(ctx context.Context, appointmentID uuid.UUID, details string) (*Prescription, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if appt.Status != StatusCompleted {
		return nil, ErrConsultationNotCompleted
	}

	rx := &Prescription{
		AppointmentID: appt.ID,
		DoctorID:      appt.DoctorID,
		PatientID:     appt.PatientID,
		Details:       details,
	}
	if err := s.repo.CreatePrescription(ctx, rx); err != nil {
		return nil, fmt.Errorf("create prescription: %w", err)
	}

	s.logEvent(ctx, appt.ID, EventPrescriptionIssued, map[string]any{
		"prescription_id": rx.ID.String(),
	})
	return rx, nil
}

func (s *Service) ListPrescriptionsByPatient(ctx context.Context, patientID uuid.UUID) ([]Prescription, error) {
	return s.repo.ListPrescriptionsByPatient(ctx, patientID)
}

// SetAvailability replaces a doctor's weekly schedule. At most one window per
// weekday; start must precede end when the window is Available.
func (s *Service) SetAvailability(ctx context.Context, doctorID uuid.UUID, windows []AvailabilityWindow) error {
	if _, err := s.repo.GetDoctorByID(ctx, doctorID); err != nil {
		return err
	}

	seen := make(map[time.Weekday]bool, len(windows))
	for i := range windows {
		w := &windows[i]
		w.DoctorID = doctorID

		if seen[w.Weekday] {
			return fmt.Errorf("%w: %s", ErrDuplicateWindow, w.Weekday)
		}
		seen[w.Weekday] = true

		switch w.Status {
		case WindowAvailable, WindowUnavailable, WindowBusy:
		default:
			return fmt.Errorf("%w: unknown status %q", ErrInvalidWindow, w.Status)
		}

		start, err := ParseTimeOfDay(w.StartTime)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidWindow, err)
		}
		end, err := ParseTimeOfDay(w.EndTime)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidWindow, err)
		}
		if w.Status == WindowAvailable && start >= end {
			return fmt.Errorf("%w: start %s is not before end %s", ErrInvalidWindow, w.StartTime, w.EndTime)
		}
	}

	return s.repo.ReplaceWindows(ctx, doctorID, windows)
}

func (s *Service) ListAvailability(ctx context.Context, doctorID uuid.UUID) ([]AvailabilityWindow, error) {
	if _, err := s.repo.GetDoctorByID(ctx, doctorID); err != nil {
		return nil, err
	}
	return s.repo.ListWindowsByDoctor(ctx, doctorID)
}

// availableWindowForDay resolves the first Available window matching the
// weekday. Duplicate windows cannot be written anymore, but reads stay
// first-match tolerant for rows that predate the uniqueness rule.
func (s *Service) availableWindowForDay(ctx context.Context, doctorID uuid.UUID, day time.Weekday) (*AvailabilityWindow, error) {
	windows, err := s.repo.ListWindowsByDoctor(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("load availability: %w", err)
	}
	for i := range windows {
		if windows[i].Weekday == day && windows[i].Status == WindowAvailable {
			return &windows[i], nil
		}
	}
	return nil, fmt.Errorf("%w on %s", ErrDoctorUnavailable, day)
}

// resolveSlot validates the requested label against the window's generated
// slots and returns the canonical slot, so the stored label always comes
// from the one formatter.
func (s *Service) resolveSlot(window AvailabilityWindow, slotLabel string) (Slot, error) {
	requested, err := ParseSlot(slotLabel)
	if err != nil {
		return Slot{}, fmt.Errorf("%w: %v", ErrInvalidSlot, err)
	}

	slots, err := GenerateSlots(window, s.cfg.SlotDuration)
	if err != nil {
		return Slot{}, fmt.Errorf("generate slots: %w", err)
	}
	for _, sl := range slots {
		if sl == requested {
			return sl, nil
		}
	}
	return Slot{}, fmt.Errorf("%w: %s", ErrInvalidSlot, strings.TrimSpace(slotLabel))
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Error().Err(err).Str("event_type", eventType).Msg("failed to marshal event payload")
		data = nil
	}

	apptID := appointmentID

	ev := BookingEvent{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     time.Now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.log.Error().Err(err).
			Str("event_type", eventType).
			Str("appointment_id", appointmentID.String()).
			Msg("failed to insert booking event")
	}
}
