package scheduling

import (
	"coaching-schedule-api/internal/apperr"
	"coaching-schedule-api/internal/model"
)

type event string

const (
	eventConfirm event = "confirm"
	eventCancel  event = "cancel"
)

// transitions lists the legal moves. CANCELLED has no outgoing edge other
// than the idempotent cancel.
var transitions = map[model.Status]map[event]model.Status{
	model.StatusProposed: {
		eventConfirm: model.StatusConfirmed,
		eventCancel:  model.StatusCancelled,
	},
	model.StatusConfirmed: {
		eventCancel: model.StatusCancelled,
	},
	model.StatusCancelled: {
		eventCancel: model.StatusCancelled,
	},
}

func transition(from model.Status, ev event) (model.Status, error) {
	to, ok := transitions[from][ev]
	if !ok {
		return from, apperr.Validation("cannot %s an appointment that is %s", ev, from)
	}
	return to, nil
}

// initialStatus: a proposal waits for the client, a blocked slot is booked at once.
func initialStatus(hasClient bool) model.Status {
	if hasClient {
		return model.StatusProposed
	}
	return model.StatusConfirmed
}
