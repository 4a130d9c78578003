package scheduling

import (
	"coaching-schedule-api/internal/apperr"
	"coaching-schedule-api/internal/model"
)

// Each role implements only the capabilities it has. A missing capability
// is a Forbidden error, never a silent no-op.

type creator interface {
	ownerID() string
}

type confirmer interface {
	authorizeConfirm(a *model.Appointment) error
}

type canceller interface {
	authorizeCancel(a *model.Appointment) error
	// notifiesOnCancel reports whether cancelling should message the coach.
	notifiesOnCancel() bool
}

type deleter interface {
	authorizeDelete(a *model.Appointment) error
}

type lister interface {
	scope(f *model.ListFilter)
}

type coach struct{ model.Actor }

func (c coach) ownerID() string { return c.ProfileID }

func (c coach) authorizeCancel(a *model.Appointment) error {
	if a.CoachID != c.ProfileID {
		return apperr.Forbidden("not your appointment")
	}
	return nil
}

func (coach) notifiesOnCancel() bool { return false }

func (c coach) authorizeDelete(a *model.Appointment) error {
	if a.CoachID != c.ProfileID {
		return apperr.Forbidden("only the owning coach can delete this appointment")
	}
	return nil
}

func (c coach) scope(f *model.ListFilter) { f.CoachID = c.ProfileID }

type client struct{ model.Actor }

func (c client) isNamed(a *model.Appointment) bool {
	return a.HasClient() && *a.ClientID == c.ProfileID
}

func (c client) authorizeConfirm(a *model.Appointment) error {
	if !c.isNamed(a) {
		return apperr.Forbidden("only the invited client can confirm this appointment")
	}
	return nil
}

func (c client) authorizeCancel(a *model.Appointment) error {
	if !c.isNamed(a) {
		return apperr.Forbidden("not your appointment")
	}
	return nil
}

func (client) notifiesOnCancel() bool { return true }

func (c client) scope(f *model.ListFilter) { f.ClientID = c.ProfileID }

func roleOf(actor model.Actor) (any, error) {
	if actor.ProfileID == "" {
		return nil, apperr.Forbidden("no profile attached to caller")
	}
	switch actor.Role {
	case model.RoleCoach:
		return coach{actor}, nil
	case model.RoleClient:
		return client{actor}, nil
	default:
		return nil, apperr.Forbidden("unknown role")
	}
}

// capability resolves actor to the role implementing T.
func capability[T any](actor model.Actor, denied string) (T, error) {
	var zero T
	r, err := roleOf(actor)
	if err != nil {
		return zero, err
	}
	c, ok := r.(T)
	if !ok {
		return zero, apperr.Forbidden(denied)
	}
	return c, nil
}

// canView reports whether actor is the coach or the client of a.
func canView(actor model.Actor, a *model.Appointment) bool {
	switch actor.Role {
	case model.RoleCoach:
		return a.CoachID == actor.ProfileID
	case model.RoleClient:
		return a.HasClient() && *a.ClientID == actor.ProfileID
	}
	return false
}
