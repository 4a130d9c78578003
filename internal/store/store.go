// Package store persists appointments and notification messages.
//
// Two drivers implement Store: Postgres (production, pgxpool) and Badger
// (embedded, also used by hermetic tests). All booking mutations go through
// InTx so that the conflict check and the write commit or fail together.
package store

import (
	"context"
	"errors"
	"time"

	"coaching-schedule-api/internal/model"
)

var (
	ErrNotFound = errors.New("store: not found")
	// ErrConflict is returned when the storage layer itself rejects a write
	// because of a concurrent booking (exclusion constraint, serialization
	// failure).
	ErrConflict = errors.New("store: booking conflict")
	// ErrCancelled is returned by SetStatus when a row it would move away
	// from CANCELLED was cancelled concurrently.
	ErrCancelled = errors.New("store: appointment is cancelled")
)

// OverlapQuery selects CONFIRMED, non-anchor appointments whose interval
// intersects [Start, End) and that share the coach or, when ClientID is set,
// the client.
type OverlapQuery struct {
	CoachID   string
	ClientID  *string
	Start     time.Time
	End       time.Time
	ExcludeID string
}

// Querier is the read side shared by Store and Tx.
type Querier interface {
	Appointment(ctx context.Context, id string) (*model.Appointment, error)
	FirstOverlap(ctx context.Context, q OverlapQuery) (*model.Appointment, error)
	Children(ctx context.Context, parentID string) ([]model.Appointment, error)
	// ListAppointments never returns series anchors.
	ListAppointments(ctx context.Context, f model.ListFilter) ([]model.Appointment, error)
	// ConfirmedStartingBetween returns CONFIRMED non-anchor appointments with from <= start <= to.
	ConfirmedStartingBetween(ctx context.Context, from, to time.Time) ([]model.Appointment, error)
}

// Tx is a transaction handle. It is only valid inside the InTx callback.
type Tx interface {
	Querier
	// LockParticipants serializes booking transactions touching the same
	// coach or client until the transaction ends.
	LockParticipants(ctx context.Context, coachID string, clientID *string) error
	// LockAppointment reads one row and keeps concurrent writers off it
	// until the transaction ends.
	LockAppointment(ctx context.Context, id string) (*model.Appointment, error)
	InsertAppointments(ctx context.Context, as ...*model.Appointment) error
	// SetStatus never moves a CANCELLED row to another status (ErrCancelled)
	// and fails with ErrNotFound when an id no longer exists.
	SetStatus(ctx context.Context, status model.Status, ids ...string) error
	DeleteAppointments(ctx context.Context, ids ...string) error
}

type Store interface {
	Querier
	// InTx runs fn in one transaction, committing when fn returns nil.
	InTx(ctx context.Context, fn func(tx Tx) error) error
	InsertMessage(ctx context.Context, m *model.Message) error
	MessagesForAppointment(ctx context.Context, appointmentID string) ([]model.Message, error)
	Ping(ctx context.Context) error
	Close() error
}
