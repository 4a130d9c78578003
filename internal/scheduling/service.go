// Package scheduling is the appointment engine: it creates single and
// recurring appointments, keeps confirmed bookings free of overlaps, and
// drives the proposal, confirmation and cancellation lifecycle including
// series-wide cascades.
//
// Every mutation runs inside one store transaction. Notifications are sent
// only after commit and never undo the change they describe.
package scheduling

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"coaching-schedule-api/internal/apperr"
	"coaching-schedule-api/internal/logging"
	"coaching-schedule-api/internal/messaging"
	"coaching-schedule-api/internal/metrics"
	"coaching-schedule-api/internal/model"
	"coaching-schedule-api/internal/recurrence"
	"coaching-schedule-api/internal/store"
)

const DefaultUpcomingLimit = 3

type Service struct {
	store         store.Store
	notify        notifier
	now           func() time.Time
	horizon       time.Duration
	upcomingLimit int
}

type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithHorizon(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.horizon = d
		}
	}
}

func WithUpcomingLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.upcomingLimit = n
		}
	}
}

func New(st store.Store, sink messaging.Sink, opts ...Option) *Service {
	if sink == nil {
		sink = messaging.Discard{}
	}
	s := &Service{
		store:         st,
		notify:        notifier{sink: sink},
		now:           time.Now,
		horizon:       recurrence.DefaultHorizon,
		upcomingLimit: DefaultUpcomingLimit,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) clock() time.Time { return s.now().UTC().Truncate(time.Second) }

type CreateInput struct {
	Title           string
	ClientID        *string
	StartAt         time.Time
	DurationMinutes int
	LocationType    model.LocationType
	LocationDetail  *string
	RecurrenceRule  *string
}

type CreateResult struct {
	Appointment *model.Appointment
	Children    []model.Appointment
	Message     *model.Message
	Warnings    []string
}

func (in *CreateInput) validate() error {
	in.Title = strings.TrimSpace(in.Title)
	switch {
	case in.Title == "":
		return apperr.Validation("title is required")
	case in.StartAt.IsZero():
		return apperr.Validation("startAt is required")
	case in.DurationMinutes <= 0:
		return apperr.Validation("durationMinutes must be positive")
	case !in.LocationType.Valid():
		return apperr.Validation("locationType must be one of IN_PERSON, VIDEO, PHONE")
	}
	if in.ClientID != nil && strings.TrimSpace(*in.ClientID) == "" {
		in.ClientID = nil
	}
	if in.RecurrenceRule != nil && strings.TrimSpace(*in.RecurrenceRule) == "" {
		in.RecurrenceRule = nil
	}
	return nil
}

// Create books a standalone appointment or a recurring series. With a client
// the appointment is PROPOSED and the client is notified; without one it is
// a CONFIRMED blocked slot and every interval it covers must be free.
func (s *Service) Create(ctx context.Context, actor model.Actor, in CreateInput) (*CreateResult, error) {
	owner, err := capability[creator](actor, "only coaches can create appointments")
	if err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	now := s.clock()
	start := in.StartAt.UTC().Truncate(time.Second)
	dur := time.Duration(in.DurationMinutes) * time.Minute
	status := initialStatus(in.ClientID != nil)

	anchor := &model.Appointment{
		ID:              uuid.New().String(),
		Title:           in.Title,
		CoachID:         owner.ownerID(),
		ClientID:        in.ClientID,
		StartAt:         start,
		EndAt:           start.Add(dur),
		DurationMinutes: in.DurationMinutes,
		LocationType:    in.LocationType,
		LocationDetail:  in.LocationDetail,
		Status:          status,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	// expansion is pure, so it runs before the transaction opens
	occ := []recurrence.Occurrence{{Start: anchor.StartAt, End: anchor.EndAt}}
	if in.RecurrenceRule != nil {
		occ, err = recurrence.Expand(*in.RecurrenceRule, start, in.DurationMinutes, s.horizon)
		if err != nil {
			return nil, err
		}
		rule := recurrence.Canonical(*in.RecurrenceRule)
		anchor.RecurrenceRule = &rule
	}

	var children []model.Appointment
	err = s.store.InTx(ctx, func(tx store.Tx) error {
		if err := tx.LockParticipants(ctx, anchor.CoachID, anchor.ClientID); err != nil {
			return err
		}
		if status == model.StatusConfirmed {
			if err := checkOccurrences(ctx, tx, anchor.CoachID, anchor.ClientID, occ); err != nil {
				return err
			}
		}

		rows := []*model.Appointment{anchor}
		children = nil
		if anchor.IsAnchor() {
			for _, o := range occ {
				c := *anchor
				c.ID = uuid.New().String()
				c.StartAt, c.EndAt = o.Start, o.End
				c.RecurrenceRule = nil
				c.ParentID = &anchor.ID
				children = append(children, c)
			}
			for i := range children {
				rows = append(rows, &children[i])
			}
		}
		return tx.InsertAppointments(ctx, rows...)
	})
	if err != nil {
		return nil, s.fail(ctx, "create", err)
	}

	metrics.Transitions.WithLabelValues(string(status)).Add(float64(1 + len(children)))
	if anchor.IsAnchor() {
		metrics.SeriesOccurrences.Observe(float64(len(children)))
	}
	logging.Ctx(ctx).Info().
		Str("appointment_id", anchor.ID).
		Str("coach_id", anchor.CoachID).
		Str("status", string(status)).
		Int("occurrences", len(children)).
		Msg("appointment created")

	res := &CreateResult{Appointment: anchor, Children: children}
	if anchor.HasClient() {
		res.Message = ProposalMessage(anchor, now)
		if w := s.notify.emit(ctx, res.Message); w != "" {
			res.Warnings = append(res.Warnings, w)
		}
	}
	return res, nil
}

// Confirm moves a PROPOSED appointment to CONFIRMED on behalf of its client,
// re-checking for overlaps inside the same transaction as the write.
func (s *Service) Confirm(ctx context.Context, actor model.Actor, id string) (*model.Appointment, error) {
	who, err := capability[confirmer](actor, "only the invited client can confirm an appointment")
	if err != nil {
		return nil, err
	}

	var out *model.Appointment
	err = s.store.InTx(ctx, func(tx store.Tx) error {
		a, err := tx.Appointment(ctx, id)
		if err != nil {
			return err
		}
		if err := who.authorizeConfirm(a); err != nil {
			return err
		}
		if err := tx.LockParticipants(ctx, a.CoachID, a.ClientID); err != nil {
			return err
		}
		// re-read under the lock; a racing transaction may have moved it
		if a, err = tx.LockAppointment(ctx, id); err != nil {
			return err
		}
		next, err := transition(a.Status, eventConfirm)
		if err != nil {
			return err
		}
		if !a.IsAnchor() {
			hit, err := FindConflict(ctx, tx, ConflictQuery{
				CoachID: a.CoachID, ClientID: a.ClientID, Start: a.StartAt, End: a.EndAt, ExcludeID: a.ID,
			})
			if err != nil {
				return err
			}
			if hit != nil {
				return conflictError("confirm", hit)
			}
		}
		if err := tx.SetStatus(ctx, next, a.ID); err != nil {
			return err
		}
		a.Status = next
		a.UpdatedAt = s.clock()
		out = a
		return nil
	})
	if err != nil {
		return nil, s.fail(ctx, "confirm", err)
	}

	metrics.Transitions.WithLabelValues(string(out.Status)).Inc()
	logging.Ctx(ctx).Info().Str("appointment_id", id).Msg("appointment confirmed")
	return out, nil
}

type CancelResult struct {
	Appointment *model.Appointment
	// Cancelled counts rows that actually changed status.
	Cancelled int
	Message   *model.Message
	Warnings  []string
}

// Cancel sets the target, and with series scope its children, to CANCELLED.
// Cancelling something already cancelled succeeds without changes.
func (s *Service) Cancel(ctx context.Context, actor model.Actor, id string, scope model.Scope) (*CancelResult, error) {
	who, err := capability[canceller](actor, "you cannot cancel appointments")
	if err != nil {
		return nil, err
	}

	var (
		target  *model.Appointment
		changed int
		moved   bool
	)
	err = s.store.InTx(ctx, func(tx store.Tx) error {
		a, err := tx.LockAppointment(ctx, id)
		if err != nil {
			return err
		}
		if err := who.authorizeCancel(a); err != nil {
			return err
		}
		targets, err := cascadeTargets(ctx, tx, a, scope)
		if err != nil {
			return err
		}
		if changed, err = cancelCascade(ctx, tx, targets); err != nil {
			return err
		}
		moved = a.Status != model.StatusCancelled
		a.Status = model.StatusCancelled
		target = a
		return nil
	})
	if err != nil {
		return nil, s.fail(ctx, "cancel", err)
	}

	metrics.Transitions.WithLabelValues(string(model.StatusCancelled)).Add(float64(changed))
	logging.Ctx(ctx).Info().
		Str("appointment_id", id).
		Str("scope", string(scope)).
		Int("cancelled", changed).
		Msg("appointment cancelled")

	res := &CancelResult{Appointment: target, Cancelled: changed}
	if moved && who.notifiesOnCancel() && target.HasClient() {
		res.Message = CancellationMessage(target, actor, s.clock())
		if w := s.notify.emit(ctx, res.Message); w != "" {
			res.Warnings = append(res.Warnings, w)
		}
	}
	return res, nil
}

type DeleteResult struct {
	Deleted int
}

// Delete removes the target, and with series scope its children, in one
// transaction. Single-scope delete of an anchor leaves its children in place
// as standalone appointments.
func (s *Service) Delete(ctx context.Context, actor model.Actor, id string, scope model.Scope) (*DeleteResult, error) {
	who, err := capability[deleter](actor, "only coaches can delete appointments")
	if err != nil {
		return nil, err
	}

	var n int
	err = s.store.InTx(ctx, func(tx store.Tx) error {
		a, err := tx.LockAppointment(ctx, id)
		if err != nil {
			return err
		}
		if err := who.authorizeDelete(a); err != nil {
			return err
		}
		targets, err := cascadeTargets(ctx, tx, a, scope)
		if err != nil {
			return err
		}
		n, err = deleteCascade(ctx, tx, targets)
		return err
	})
	if err != nil {
		return nil, s.fail(ctx, "delete", err)
	}

	logging.Ctx(ctx).Info().Str("appointment_id", id).Str("scope", string(scope)).Int("deleted", n).Msg("appointment deleted")
	return &DeleteResult{Deleted: n}, nil
}

// Get returns one appointment, anchors included, if actor takes part in it.
func (s *Service) Get(ctx context.Context, actor model.Actor, id string) (*model.Appointment, error) {
	a, err := s.store.Appointment(ctx, id)
	if err != nil {
		return nil, s.fail(ctx, "get", err)
	}
	if !canView(actor, a) {
		return nil, apperr.Forbidden("not your appointment")
	}
	return a, nil
}

type ListQuery struct {
	Status           model.Status
	From             *time.Time
	To               *time.Time
	ExcludeCancelled bool
}

// List returns the caller's standalone appointments and series occurrences
// ordered by start. Anchors are never listed.
func (s *Service) List(ctx context.Context, actor model.Actor, q ListQuery) ([]model.Appointment, error) {
	l, err := capability[lister](actor, "unknown role")
	if err != nil {
		return nil, err
	}
	if q.Status != "" && !q.Status.Valid() {
		return nil, apperr.Validation("status must be one of PROPOSED, CONFIRMED, CANCELLED")
	}
	if q.From != nil && q.To != nil && q.To.Before(*q.From) {
		return nil, apperr.Validation("to must not be before from")
	}

	f := model.ListFilter{Status: q.Status, From: q.From, To: q.To, ExcludeCancelled: q.ExcludeCancelled}
	l.scope(&f)
	out, err := s.store.ListAppointments(ctx, f)
	if err != nil {
		return nil, s.fail(ctx, "list", err)
	}
	return out, nil
}

// Upcoming returns the caller's next non-cancelled appointments, soonest first.
func (s *Service) Upcoming(ctx context.Context, actor model.Actor) ([]model.Appointment, error) {
	l, err := capability[lister](actor, "unknown role")
	if err != nil {
		return nil, err
	}
	now := s.clock()
	f := model.ListFilter{From: &now, ExcludeCancelled: true, Limit: s.upcomingLimit}
	l.scope(&f)
	out, err := s.store.ListAppointments(ctx, f)
	if err != nil {
		return nil, s.fail(ctx, "upcoming", err)
	}
	return out, nil
}

// fail maps storage errors onto the apperr taxonomy and logs internal ones.
func (s *Service) fail(ctx context.Context, op string, err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return apperr.NotFound("appointment")
	case errors.Is(err, store.ErrCancelled):
		return apperr.Validation("appointment was cancelled")
	case errors.Is(err, store.ErrConflict):
		metrics.Conflicts.WithLabelValues(op).Inc()
		return apperr.Conflict("time slot was booked concurrently")
	}
	e := apperr.As(err)
	if e.Kind == apperr.KindInternal {
		logging.Ctx(ctx).Error().Err(err).Str("op", op).Msg("scheduling operation failed")
	}
	return e
}
