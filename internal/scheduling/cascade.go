package scheduling

import (
	"context"

	"coaching-schedule-api/internal/apperr"
	"coaching-schedule-api/internal/model"
	"coaching-schedule-api/internal/store"
)

// ParseScope maps the query parameter; empty means single.
func ParseScope(s string) (model.Scope, error) {
	switch model.Scope(s) {
	case "", model.ScopeSingle:
		return model.ScopeSingle, nil
	case model.ScopeSeries:
		return model.ScopeSeries, nil
	}
	return "", apperr.Validation("scope must be %q or %q", model.ScopeSingle, model.ScopeSeries)
}

// cascadeTargets returns target plus, for series scope, its children. The
// children come first so a delete never leaves an orphan behind mid-way.
// A child has no descendants, so series scope on it yields just the child.
func cascadeTargets(ctx context.Context, tx store.Tx, target *model.Appointment, scope model.Scope) ([]model.Appointment, error) {
	if scope != model.ScopeSeries {
		return []model.Appointment{*target}, nil
	}
	children, err := tx.Children(ctx, target.ID)
	if err != nil {
		return nil, err
	}
	return append(children, *target), nil
}

// cancelCascade moves every target that is not already CANCELLED to
// CANCELLED and returns how many changed.
func cancelCascade(ctx context.Context, tx store.Tx, targets []model.Appointment) (int, error) {
	var ids []string
	for _, a := range targets {
		next, err := transition(a.Status, eventCancel)
		if err != nil {
			return 0, err
		}
		if next != a.Status {
			ids = append(ids, a.ID)
		}
	}
	if err := tx.SetStatus(ctx, model.StatusCancelled, ids...); err != nil {
		return 0, err
	}
	return len(ids), nil
}

func deleteCascade(ctx context.Context, tx store.Tx, targets []model.Appointment) (int, error) {
	ids := make([]string, len(targets))
	for i, a := range targets {
		ids[i] = a.ID
	}
	if err := tx.DeleteAppointments(ctx, ids...); err != nil {
		return 0, err
	}
	return len(ids), nil
}
