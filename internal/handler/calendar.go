package handler

import (
	"net/http"

	ical "github.com/arran4/golang-ical"

	"coaching-schedule-api/internal/model"
	"coaching-schedule-api/internal/scheduling"
)

const prodID = "-//coaching-schedule-api//appointments//EN"

// Calendar serves the caller's non-cancelled appointments as an iCalendar
// feed that calendar clients can subscribe to.
func (h *Handler) Calendar(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.List(r.Context(), actor(r), scheduling.ListQuery{ExcludeCancelled: true})
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="appointments.ics"`)
	_, _ = w.Write([]byte(buildCalendar(out).Serialize()))
}

func buildCalendar(appts []model.Appointment) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(prodID)
	for i := range appts {
		a := &appts[i]
		ev := cal.AddEvent(a.ID + "@coaching-schedule-api")
		ev.SetDtStampTime(a.UpdatedAt.UTC())
		ev.SetCreatedTime(a.CreatedAt.UTC())
		ev.SetModifiedAt(a.UpdatedAt.UTC())
		ev.SetStartAt(a.StartAt.UTC())
		ev.SetEndAt(a.EndAt.UTC())
		ev.SetSummary(a.Title)
		ev.SetProperty(ical.ComponentPropertyStatus, icsStatus(a.Status))
		loc := string(a.LocationType)
		if a.LocationDetail != nil {
			loc += ": " + *a.LocationDetail
		}
		ev.SetLocation(loc)
	}
	return cal
}

func icsStatus(s model.Status) string {
	if s == model.StatusConfirmed {
		return "CONFIRMED"
	}
	return "TENTATIVE"
}
