// Package handler exposes the scheduling service over HTTP.
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"coaching-schedule-api/internal/middleware"
	"coaching-schedule-api/internal/scheduling"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	svc      *scheduling.Service
	db       Pinger
	validate *validator.Validate
}

func New(svc *scheduling.Service, db Pinger) *Handler {
	return &Handler{svc: svc, db: db, validate: newValidator()}
}

type RouterConfig struct {
	Secret     string
	CORSOrigin string
	Limiter    *middleware.RateLimiter
}

func (h *Handler) Routes(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Observe)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{cfg.CORSOrigin},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
		ExposedHeaders: []string{middleware.RequestIDHeader},
		MaxAge:         300,
	}))
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeFail(w, r, http.StatusNotFound, "route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeFail(w, r, http.StatusMethodNotAllowed, "method not allowed", nil)
	})

	r.Get("/healthz", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/appointments", func(r chi.Router) {
		if cfg.Limiter != nil {
			r.Use(middleware.RateLimit(cfg.Limiter, tooManyRequests))
		}
		r.Use(middleware.Auth(cfg.Secret, unauthorized))

		r.Post("/", h.CreateAppointment)
		r.Get("/", h.ListAppointments)
		r.Get("/upcoming", h.UpcomingAppointments)
		r.Get("/calendar.ics", h.Calendar)
		r.Get("/{id}", h.GetAppointment)
		r.Put("/{id}/confirm", h.ConfirmAppointment)
		r.Put("/{id}/cancel", h.CancelAppointment)
		r.Delete("/{id}", h.DeleteAppointment)
	})
	return r
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.db.Ping(r.Context()); err != nil {
		writeFail(w, r, http.StatusServiceUnavailable, "store unavailable", nil)
		return
	}
	writeOK(w, http.StatusOK, "ok", nil)
}
