package scheduling

import (
	"context"
	"time"

	"coaching-schedule-api/internal/apperr"
	"coaching-schedule-api/internal/metrics"
	"coaching-schedule-api/internal/model"
	"coaching-schedule-api/internal/recurrence"
	"coaching-schedule-api/internal/store"
)

type ConflictQuery struct {
	CoachID   string
	ClientID  *string
	Start     time.Time
	End       time.Time
	ExcludeID string
}

// FindConflict returns the first CONFIRMED booking that overlaps
// [Start, End) for the same coach or, when both sides have one, the same
// client. PROPOSED and CANCELLED rows and series anchors never block. Pass
// the transaction handle when the answer must hold until commit.
func FindConflict(ctx context.Context, q store.Querier, c ConflictQuery) (*model.Appointment, error) {
	if !c.End.After(c.Start) {
		return nil, apperr.Validation("interval end must be after start")
	}
	return q.FirstOverlap(ctx, store.OverlapQuery{
		CoachID:   c.CoachID,
		ClientID:  c.ClientID,
		Start:     c.Start,
		End:       c.End,
		ExcludeID: c.ExcludeID,
	})
}

func conflictError(op string, with *model.Appointment) error {
	metrics.Conflicts.WithLabelValues(op).Inc()
	return apperr.Conflict("time slot conflicts with an existing appointment (" +
		with.StartAt.UTC().Format(time.RFC3339) + " - " + with.EndAt.UTC().Format(time.RFC3339) + ")")
}

// checkOccurrences rejects a set of intervals that overlap each other or any
// existing confirmed booking. occ must be sorted by start.
func checkOccurrences(ctx context.Context, q store.Querier, coachID string, clientID *string, occ []recurrence.Occurrence) error {
	for i, o := range occ {
		if i > 0 && o.Start.Before(occ[i-1].End) {
			metrics.Conflicts.WithLabelValues("create").Inc()
			return apperr.Conflict("recurring occurrences overlap each other")
		}
		hit, err := FindConflict(ctx, q, ConflictQuery{CoachID: coachID, ClientID: clientID, Start: o.Start, End: o.End})
		if err != nil {
			return err
		}
		if hit != nil {
			return conflictError("create", hit)
		}
	}
	return nil
}
