package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/carelink/televisit/internal/auth"
	"github.com/carelink/televisit/internal/booking"
)

type RouterConfig struct {
	Service   *booking.Service
	PgPool    *pgxpool.Pool
	Redis     *redis.Client
	JWTSecret []byte
	Env       string
	Version   string
	Logger    zerolog.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	// Health endpoints stay outside auth
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(cfg.JWTSecret))

		// Doctor availability and slots
		r.Get("/doctors/{id}/slots", listSlotsHandler(cfg.Service))
		r.Get("/doctors/{id}/availability", getAvailabilityHandler(cfg.Service))
		r.With(auth.RequireRole(auth.RoleDoctor, auth.RoleAdmin)).
			Put("/doctors/{id}/availability", setAvailabilityHandler(cfg.Service))

		// Appointments
		r.With(auth.RequireRole(auth.RolePatient, auth.RoleAdmin)).
			Post("/appointments", bookAppointmentHandler(cfg.Service))
		r.Get("/appointments", listAppointmentsHandler(cfg.Service))
		r.Get("/appointments/{id}", getAppointmentHandler(cfg.Service))
		r.Post("/appointments/{id}/pay", markPaidHandler(cfg.Service))
		r.Post("/appointments/{id}/payments", recordPaymentHandler(cfg.Service))
		r.With(auth.RequireRole(auth.RoleDoctor, auth.RoleAdmin)).
			Post("/appointments/{id}/complete", markCompletedHandler(cfg.Service))
		r.Post("/appointments/{id}/cancel", cancelHandler(cfg.Service))

		// Prescriptions
		r.With(auth.RequireRole(auth.RoleDoctor)).
			Post("/appointments/{id}/prescription", createPrescriptionHandler(cfg.Service))
		r.Get("/patients/{id}/prescriptions", listPrescriptionsHandler(cfg.Service))
	})

	return r
}
