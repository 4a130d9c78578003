package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"coaching-schedule-api/internal/apperr"
	"coaching-schedule-api/internal/middleware"
	"coaching-schedule-api/internal/model"
	"coaching-schedule-api/internal/scheduling"
)

type createRequest struct {
	Title           string     `json:"title" validate:"required,max=200"`
	ClientID        *string    `json:"clientId" validate:"omitempty,max=64"`
	StartAt         *time.Time `json:"startAt" validate:"required"`
	DurationMinutes int        `json:"durationMinutes" validate:"gt=0,lte=1440"`
	LocationType    string     `json:"locationType" validate:"required,oneof=IN_PERSON VIDEO PHONE"`
	LocationDetail  *string    `json:"locationDetail" validate:"omitempty,max=500"`
	RecurrenceRule  *string    `json:"recurrenceRule" validate:"omitempty,max=500"`
}

type createResponse struct {
	Appointment *model.Appointment  `json:"appointment"`
	Children    []model.Appointment `json:"children,omitempty"`
	Message     *model.Message      `json:"message,omitempty"`
	Warnings    []string            `json:"warnings,omitempty"`
}

type cancelResponse struct {
	Appointment *model.Appointment `json:"appointment"`
	Cancelled   int                `json:"cancelled"`
	Message     *model.Message     `json:"message,omitempty"`
	Warnings    []string           `json:"warnings,omitempty"`
}

type deleteResponse struct {
	Deleted int `json:"deleted"`
}

func actor(r *http.Request) model.Actor {
	a, _ := middleware.ActorFromContext(r.Context())
	return a
}

func (h *Handler) CreateAppointment(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeFail(w, r, http.StatusBadRequest, "validation failed", validationErrors(err))
		return
	}

	res, err := h.svc.Create(r.Context(), actor(r), scheduling.CreateInput{
		Title:           req.Title,
		ClientID:        req.ClientID,
		StartAt:         *req.StartAt,
		DurationMinutes: req.DurationMinutes,
		LocationType:    model.LocationType(req.LocationType),
		LocationDetail:  req.LocationDetail,
		RecurrenceRule:  req.RecurrenceRule,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	msg := "appointment created"
	if len(res.Children) > 0 {
		msg = "recurring appointments created"
	}
	writeOK(w, http.StatusCreated, msg, createResponse{
		Appointment: res.Appointment,
		Children:    res.Children,
		Message:     res.Message,
		Warnings:    res.Warnings,
	})
}

func (h *Handler) ListAppointments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lq := scheduling.ListQuery{Status: model.Status(q.Get("status"))}
	var err error
	if lq.From, err = parseTimeParam(q.Get("from"), "from"); err != nil {
		writeError(w, r, err)
		return
	}
	if lq.To, err = parseTimeParam(q.Get("to"), "to"); err != nil {
		writeError(w, r, err)
		return
	}

	out, err := h.svc.List(r.Context(), actor(r), lq)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "appointments retrieved", nonNil(out))
}

func (h *Handler) UpcomingAppointments(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.Upcoming(r.Context(), actor(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "upcoming appointments retrieved", nonNil(out))
}

func (h *Handler) GetAppointment(w http.ResponseWriter, r *http.Request) {
	a, err := h.svc.Get(r.Context(), actor(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "appointment retrieved", a)
}

func (h *Handler) ConfirmAppointment(w http.ResponseWriter, r *http.Request) {
	a, err := h.svc.Confirm(r.Context(), actor(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "appointment confirmed", a)
}

func (h *Handler) CancelAppointment(w http.ResponseWriter, r *http.Request) {
	scope, err := scheduling.ParseScope(r.URL.Query().Get("scope"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.svc.Cancel(r.Context(), actor(r), chi.URLParam(r, "id"), scope)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "appointment cancelled", cancelResponse{
		Appointment: res.Appointment,
		Cancelled:   res.Cancelled,
		Message:     res.Message,
		Warnings:    res.Warnings,
	})
}

func (h *Handler) DeleteAppointment(w http.ResponseWriter, r *http.Request) {
	scope, err := scheduling.ParseScope(r.URL.Query().Get("scope"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.svc.Delete(r.Context(), actor(r), chi.URLParam(r, "id"), scope)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "appointment deleted", deleteResponse{Deleted: res.Deleted})
}

func parseTimeParam(v, name string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, apperr.Validation("%s must be an RFC 3339 timestamp", name)
	}
	t = t.UTC()
	return &t, nil
}

// nonNil keeps empty listings as [] rather than null.
func nonNil(in []model.Appointment) []model.Appointment {
	if in == nil {
		return []model.Appointment{}
	}
	return in
}
