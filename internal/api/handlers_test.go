package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carelink/televisit/internal/booking"
	"github.com/carelink/televisit/internal/config"
)

// ---------- Fixtures ----------

// stubRepo backs the handler tests with one doctor, one patient and an hourly
// Monday window. The embedded interface covers the methods no handler under
// test reaches.
type stubRepo struct {
	booking.Repository

	mu      sync.Mutex
	doctor  booking.Doctor
	patient booking.Patient
	window  booking.AvailabilityWindow
	appts   map[uuid.UUID]*booking.Appointment
}

func newStubRepo() *stubRepo {
	doctorID := uuid.New()
	return &stubRepo{
		doctor:  booking.Doctor{ID: doctorID, Name: "Dr. Meera Pillai"},
		patient: booking.Patient{ID: uuid.New(), Name: "Tomasz Nowak"},
		window: booking.AvailabilityWindow{
			ID:        uuid.New(),
			DoctorID:  doctorID,
			Weekday:   time.Monday,
			StartTime: "09:00",
			EndTime:   "11:00",
			Status:    booking.WindowAvailable,
		},
		appts: make(map[uuid.UUID]*booking.Appointment),
	}
}

func (r *stubRepo) GetDoctorByID(ctx context.Context, id uuid.UUID) (*booking.Doctor, error) {
	if id != r.doctor.ID {
		return nil, booking.ErrDoctorNotFound
	}
	d := r.doctor
	return &d, nil
}

func (r *stubRepo) GetPatientByID(ctx context.Context, id uuid.UUID) (*booking.Patient, error) {
	if id != r.patient.ID {
		return nil, booking.ErrPatientNotFound
	}
	p := r.patient
	return &p, nil
}

func (r *stubRepo) ListWindowsByDoctor(ctx context.Context, doctorID uuid.UUID) ([]booking.AvailabilityWindow, error) {
	return []booking.AvailabilityWindow{r.window}, nil
}

func (r *stubRepo) BookedSlotLabels(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var labels []string
	for _, a := range r.appts {
		if a.DoctorID == doctorID && a.Date.Equal(date) && a.Status != booking.StatusCancelled {
			labels = append(labels, a.TimeSlot)
		}
	}
	return labels, nil
}

func (r *stubRepo) CreateAppointment(ctx context.Context, doctorID, patientID uuid.UUID, date time.Time, slotLabel string) (*booking.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.appts {
		if a.DoctorID == doctorID && a.Date.Equal(date) && a.TimeSlot == slotLabel && a.Status != booking.StatusCancelled {
			return nil, booking.ErrSlotAlreadyBooked
		}
	}
	appt := &booking.Appointment{
		ID:            uuid.New(),
		DoctorID:      doctorID,
		PatientID:     patientID,
		Date:          date,
		TimeSlot:      slotLabel,
		Status:        booking.StatusBooked,
		PaymentStatus: booking.PaymentUnpaid,
	}
	r.appts[appt.ID] = appt
	cp := *appt
	return &cp, nil
}

func (r *stubRepo) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*booking.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appts[id]
	if !ok {
		return nil, booking.ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *stubRepo) GetAppointmentDetail(ctx context.Context, id uuid.UUID) (*booking.AppointmentDetail, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appts[id]
	if !ok {
		return nil, booking.ErrAppointmentNotFound
	}
	return &booking.AppointmentDetail{
		Appointment: *a,
		DoctorName:  r.doctor.Name,
		PatientName: r.patient.Name,
	}, nil
}

func (r *stubRepo) UpdateStatus(ctx context.Context, id uuid.UUID, from, to booking.AppointmentStatus) (*booking.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appts[id]
	if !ok || a.Status != from {
		return nil, booking.ErrAppointmentNotFound
	}
	a.Status = to
	cp := *a
	return &cp, nil
}

func (r *stubRepo) UpdatePaymentStatus(ctx context.Context, id uuid.UUID, from, to booking.PaymentStatus) (*booking.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appts[id]
	if !ok || a.PaymentStatus != from {
		return nil, booking.ErrAppointmentNotFound
	}
	a.PaymentStatus = to
	cp := *a
	return &cp, nil
}

func (r *stubRepo) InsertEvent(ctx context.Context, ev booking.BookingEvent) error {
	return nil
}

type noopLocker struct{}

func (noopLocker) WithBookingLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type handlerFixture struct {
	repo   *stubRepo
	router chi.Router
}

func newHandlerFixture() *handlerFixture {
	repo := newStubRepo()
	svc := booking.NewService(repo, noopLocker{}, config.Config{SlotDuration: time.Hour}, zerolog.Nop())

	r := chi.NewRouter()
	r.Post("/appointments", bookAppointmentHandler(svc))
	r.Get("/appointments/{id}", getAppointmentHandler(svc))
	r.Post("/appointments/{id}/pay", markPaidHandler(svc))
	r.Post("/appointments/{id}/complete", markCompletedHandler(svc))
	r.Post("/appointments/{id}/cancel", cancelHandler(svc))
	r.Get("/doctors/{id}/slots", listSlotsHandler(svc))

	return &handlerFixture{repo: repo, router: r}
}

func (f *handlerFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *handlerFixture) book(t *testing.T, slot string) AppointmentResponse {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/appointments", map[string]string{
		"doctor_id":  f.repo.doctor.ID.String(),
		"patient_id": f.repo.patient.ID.String(),
		"date":       "2025-06-02", // a Monday
		"time_slot":  slot,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("book %q: status %d, body %s", slot, rec.Code, rec.Body.String())
	}
	var resp AppointmentResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode booking response: %v", err)
	}
	return resp
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error response (%s): %v", rec.Body.String(), err)
	}
	return resp
}

// ---------- Booking ----------

func TestBookAppointmentHandler(t *testing.T) {
	f := newHandlerFixture()

	resp := f.book(t, "9:00 AM - 10:00 AM")
	if resp.ID == uuid.Nil {
		t.Error("no appointment id returned")
	}
	if resp.TimeSlot != "9:00 AM - 10:00 AM" {
		t.Errorf("time_slot = %q", resp.TimeSlot)
	}
	if resp.Status != "Booked" || resp.PaymentStatus != "Unpaid" {
		t.Errorf("status = %s/%s", resp.Status, resp.PaymentStatus)
	}
	if resp.DoctorName != "Dr. Meera Pillai" || resp.PatientName != "Tomasz Nowak" {
		t.Errorf("names = %q/%q", resp.DoctorName, resp.PatientName)
	}
}

func TestBookAppointmentHandler_Conflict(t *testing.T) {
	f := newHandlerFixture()
	f.book(t, "9:00 AM - 10:00 AM")

	rec := f.do(t, http.MethodPost, "/appointments", map[string]string{
		"doctor_id":  f.repo.doctor.ID.String(),
		"patient_id": f.repo.patient.ID.String(),
		"date":       "2025-06-02",
		"time_slot":  "9:00 AM - 10:00 AM",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("status %d, want 409", rec.Code)
	}
	if got := decodeError(t, rec).Error; got != "slot_already_booked" {
		t.Errorf("error code = %q", got)
	}
}

func TestBookAppointmentHandler_BadRequests(t *testing.T) {
	f := newHandlerFixture()

	cases := []struct {
		name string
		body map[string]string
	}{
		{"missing fields", map[string]string{"doctor_id": f.repo.doctor.ID.String()}},
		{"bad uuid", map[string]string{
			"doctor_id": "not-a-uuid", "patient_id": f.repo.patient.ID.String(),
			"date": "2025-06-02", "time_slot": "9:00 AM - 10:00 AM",
		}},
		{"bad date", map[string]string{
			"doctor_id": f.repo.doctor.ID.String(), "patient_id": f.repo.patient.ID.String(),
			"date": "02/06/2025", "time_slot": "9:00 AM - 10:00 AM",
		}},
	}
	for _, tc := range cases {
		rec := f.do(t, http.MethodPost, "/appointments", tc.body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status %d, want 400", tc.name, rec.Code)
		}
	}
}

func TestBookAppointmentHandler_InvalidSlot(t *testing.T) {
	f := newHandlerFixture()

	rec := f.do(t, http.MethodPost, "/appointments", map[string]string{
		"doctor_id":  f.repo.doctor.ID.String(),
		"patient_id": f.repo.patient.ID.String(),
		"date":       "2025-06-02",
		"time_slot":  "9:30 AM - 10:30 AM",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", rec.Code)
	}
	if got := decodeError(t, rec).Error; got != "invalid_slot" {
		t.Errorf("error code = %q", got)
	}
}

func TestBookAppointmentHandler_DoctorUnavailable(t *testing.T) {
	f := newHandlerFixture()

	rec := f.do(t, http.MethodPost, "/appointments", map[string]string{
		"doctor_id":  f.repo.doctor.ID.String(),
		"patient_id": f.repo.patient.ID.String(),
		"date":       "2025-06-03", // Tuesday, no window
		"time_slot":  "9:00 AM - 10:00 AM",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("status %d, want 409", rec.Code)
	}
	if got := decodeError(t, rec).Error; got != "doctor_unavailable" {
		t.Errorf("error code = %q", got)
	}
}

// ---------- Slot listing ----------

func TestListSlotsHandler(t *testing.T) {
	f := newHandlerFixture()
	f.book(t, "9:00 AM - 10:00 AM")

	rec := f.do(t, http.MethodGet, fmt.Sprintf("/doctors/%s/slots?date=2025-06-02", f.repo.doctor.ID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d, body %s", rec.Code, rec.Body.String())
	}

	var resp SlotsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Slots) != 1 || resp.Slots[0] != "10:00 AM - 11:00 AM" {
		t.Errorf("slots = %v", resp.Slots)
	}
}

func TestListSlotsHandler_MissingDate(t *testing.T) {
	f := newHandlerFixture()

	rec := f.do(t, http.MethodGet, fmt.Sprintf("/doctors/%s/slots", f.repo.doctor.ID), nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", rec.Code)
	}
}

// ---------- Status actions ----------

func TestStatusActionHandlers(t *testing.T) {
	f := newHandlerFixture()
	booked := f.book(t, "9:00 AM - 10:00 AM")

	rec := f.do(t, http.MethodPost, "/appointments/"+booked.ID.String()+"/pay", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("pay: status %d, body %s", rec.Code, rec.Body.String())
	}
	var paid AppointmentResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &paid); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if paid.PaymentStatus != "Paid" {
		t.Errorf("payment_status = %q", paid.PaymentStatus)
	}

	rec = f.do(t, http.MethodPost, "/appointments/"+booked.ID.String()+"/complete", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("complete: status %d", rec.Code)
	}

	// Completed appointments cannot be cancelled.
	rec = f.do(t, http.MethodPost, "/appointments/"+booked.ID.String()+"/cancel", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("cancel after complete: status %d, want 409", rec.Code)
	}
	if got := decodeError(t, rec).Error; got != "invalid_status_transition" {
		t.Errorf("error code = %q", got)
	}
}

func TestGetAppointmentHandler_NotFound(t *testing.T) {
	f := newHandlerFixture()

	rec := f.do(t, http.MethodGet, "/appointments/"+uuid.NewString(), nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status %d, want 404", rec.Code)
	}

	rec = f.do(t, http.MethodGet, "/appointments/not-a-uuid", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad uuid: status %d, want 400", rec.Code)
	}
}

// ---------- Error mapping ----------

func TestHandleBookingError(t *testing.T) {
	cases := []struct {
		err        error
		wantStatus int
		wantCode   string
	}{
		{booking.ErrDoctorNotFound, http.StatusNotFound, "doctor_not_found"},
		{booking.ErrPatientNotFound, http.StatusNotFound, "patient_not_found"},
		{booking.ErrAppointmentNotFound, http.StatusNotFound, "appointment_not_found"},
		{fmt.Errorf("%w on Monday", booking.ErrDoctorUnavailable), http.StatusConflict, "doctor_unavailable"},
		{booking.ErrInvalidSlot, http.StatusBadRequest, "invalid_slot"},
		{fmt.Errorf("create appointment: %w", booking.ErrSlotAlreadyBooked), http.StatusConflict, "slot_already_booked"},
		{booking.ErrSlotBeingBooked, http.StatusConflict, "slot_being_booked"},
		{booking.ErrInvalidTransition, http.StatusConflict, "invalid_status_transition"},
		{booking.ErrConsultationNotCompleted, http.StatusConflict, "consultation_not_completed"},
		{booking.ErrDuplicateWindow, http.StatusBadRequest, "invalid_availability"},
		{booking.ErrInvalidWindow, http.StatusBadRequest, "invalid_availability"},
		{fmt.Errorf("pool exhausted"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tc := range cases {
		rec := httptest.NewRecorder()
		handleBookingError(rec, tc.err)
		if rec.Code != tc.wantStatus {
			t.Errorf("%v: status %d, want %d", tc.err, rec.Code, tc.wantStatus)
		}
		if got := decodeError(t, rec).Error; got != tc.wantCode {
			t.Errorf("%v: code %q, want %q", tc.err, got, tc.wantCode)
		}
	}
}

func TestIntQuery(t *testing.T) {
	if got := intQuery("", 20); got != 20 {
		t.Errorf("empty = %d", got)
	}
	if got := intQuery("35", 20); got != 35 {
		t.Errorf("35 = %d", got)
	}
	if got := intQuery("-1", 20); got != 20 {
		t.Errorf("-1 = %d", got)
	}
	if got := intQuery("abc", 20); got != 20 {
		t.Errorf("abc = %d", got)
	}
}
