package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"coaching-schedule-api/internal/model"
)

const appointmentCols = `id, title, coach_id, client_id, start_at, end_at, duration_minutes,
	location_type, location_detail, status, recurrence_rule, parent_id, created_at, updated_at`

func scanAppointment(row pgx.Row) (*model.Appointment, error) {
	a := &model.Appointment{}
	err := row.Scan(
		&a.ID, &a.Title, &a.CoachID, &a.ClientID, &a.StartAt, &a.EndAt, &a.DurationMinutes,
		&a.LocationType, &a.LocationDetail, &a.Status, &a.RecurrenceRule, &a.ParentID,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.StartAt = a.StartAt.UTC()
	a.EndAt = a.EndAt.UTC()
	return a, nil
}

func collectAppointments(rows pgx.Rows) ([]model.Appointment, error) {
	defer rows.Close()

	var out []model.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (s pgQuerier) Appointment(ctx context.Context, id string) (*model.Appointment, error) {
	a, err := scanAppointment(s.q.QueryRow(ctx,
		`SELECT `+appointmentCols+` FROM appointments WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get appointment %s: %w", id, err)
	}
	return a, nil
}

func (s pgQuerier) FirstOverlap(ctx context.Context, o OverlapQuery) (*model.Appointment, error) {
	q := `SELECT ` + appointmentCols + ` FROM appointments
		WHERE status = 'CONFIRMED'
		  AND recurrence_rule IS NULL
		  AND start_at < $2
		  AND end_at > $1
		  AND (coach_id = $3 OR ($4::text IS NOT NULL AND client_id = $4))`

	var client any
	if o.ClientID != nil && *o.ClientID != "" {
		client = *o.ClientID
	}
	args := []any{o.Start, o.End, o.CoachID, client}

	if o.ExcludeID != "" {
		q += ` AND id <> $5`
		args = append(args, o.ExcludeID)
	}
	q += ` ORDER BY start_at LIMIT 1`

	a, err := scanAppointment(s.q.QueryRow(ctx, q, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("overlap query: %w", err)
	}
	return a, nil
}

func (s pgQuerier) Children(ctx context.Context, parentID string) ([]model.Appointment, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+appointmentCols+` FROM appointments WHERE parent_id = $1 ORDER BY start_at, id`, parentID)
	if err != nil {
		return nil, fmt.Errorf("children of %s: %w", parentID, err)
	}
	return collectAppointments(rows)
}

func (s pgQuerier) ListAppointments(ctx context.Context, f model.ListFilter) ([]model.Appointment, error) {
	where := []string{"recurrence_rule IS NULL"}
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.CoachID != "" {
		where = append(where, "coach_id = "+arg(f.CoachID))
	}
	if f.ClientID != "" {
		where = append(where, "client_id = "+arg(f.ClientID))
	}
	if f.Status != "" {
		where = append(where, "status = "+arg(string(f.Status)))
	}
	if f.ExcludeCancelled {
		where = append(where, "status <> 'CANCELLED'")
	}
	if f.From != nil {
		where = append(where, "start_at >= "+arg(*f.From))
	}
	if f.To != nil {
		where = append(where, "start_at <= "+arg(*f.To))
	}

	q := `SELECT ` + appointmentCols + ` FROM appointments WHERE ` +
		strings.Join(where, " AND ") + ` ORDER BY start_at, id`
	if f.Limit > 0 {
		q += " LIMIT " + arg(f.Limit)
	}

	rows, err := s.q.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return collectAppointments(rows)
}

func (s pgQuerier) ConfirmedStartingBetween(ctx context.Context, from, to time.Time) ([]model.Appointment, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+appointmentCols+` FROM appointments
		 WHERE status = 'CONFIRMED'
		   AND recurrence_rule IS NULL
		   AND start_at >= $1 AND start_at <= $2
		 ORDER BY start_at, id`, from, to)
	if err != nil {
		return nil, fmt.Errorf("confirmed between: %w", err)
	}
	return collectAppointments(rows)
}

var insertCols = []string{
	"id", "title", "coach_id", "client_id", "start_at", "end_at", "duration_minutes",
	"location_type", "location_detail", "status", "recurrence_rule", "parent_id",
	"created_at", "updated_at",
}

const insertAppointmentSQL = `INSERT INTO appointments (` + appointmentCols + `)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`

func appointmentRow(a *model.Appointment) []any {
	return []any{
		a.ID, a.Title, a.CoachID, a.ClientID, a.StartAt, a.EndAt, a.DurationMinutes,
		string(a.LocationType), a.LocationDetail, string(a.Status), a.RecurrenceRule, a.ParentID,
		a.CreatedAt, a.UpdatedAt,
	}
}

// InsertAppointments writes rows that have no parent one by one, then COPYs
// the generated occurrences, so an anchor always lands before its children.
func (t *pgTx) InsertAppointments(ctx context.Context, as ...*model.Appointment) error {
	var children []*model.Appointment
	for _, a := range as {
		if a.ParentID != nil {
			children = append(children, a)
			continue
		}
		if _, err := t.tx.Exec(ctx, insertAppointmentSQL, appointmentRow(a)...); err != nil {
			return fmt.Errorf("insert appointment: %w", err)
		}
	}
	if len(children) == 0 {
		return nil
	}

	_, err := t.tx.CopyFrom(ctx, pgx.Identifier{"appointments"}, insertCols,
		pgx.CopyFromSlice(len(children), func(i int) ([]any, error) {
			return appointmentRow(children[i]), nil
		}))
	if err != nil {
		return fmt.Errorf("copy occurrences: %w", err)
	}
	return nil
}

func (t *pgTx) LockAppointment(ctx context.Context, id string) (*model.Appointment, error) {
	a, err := scanAppointment(t.tx.QueryRow(ctx,
		`SELECT `+appointmentCols+` FROM appointments WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock appointment %s: %w", id, err)
	}
	return a, nil
}

// SetStatus re-evaluates the CANCELLED guard after waiting on a concurrent
// writer, so a row cancelled meanwhile is left alone.
func (t *pgTx) SetStatus(ctx context.Context, status model.Status, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	rows, err := t.tx.Query(ctx,
		`UPDATE appointments SET status = $1, updated_at = NOW()
		WHERE id = ANY($2) AND (status <> 'CANCELLED' OR $1 = 'CANCELLED')
		RETURNING id`,
		string(status), ids)
	if err != nil {
		return fmt.Errorf("set status %s: %w", status, err)
	}
	changed, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return fmt.Errorf("set status %s: %w", status, err)
	}
	if len(changed) == len(ids) {
		return nil
	}

	var found int
	if err := t.tx.QueryRow(ctx, `SELECT count(*) FROM appointments WHERE id = ANY($1)`, ids).Scan(&found); err != nil {
		return fmt.Errorf("set status %s: %w", status, err)
	}
	if found < len(ids) {
		return ErrNotFound
	}
	return ErrCancelled
}

func (t *pgTx) DeleteAppointments(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := t.tx.Exec(ctx, `DELETE FROM appointments WHERE id = ANY($1)`, ids); err != nil {
		return fmt.Errorf("delete appointments: %w", err)
	}
	return nil
}
