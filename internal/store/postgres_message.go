package store

import (
	"context"
	"fmt"

	"coaching-schedule-api/internal/model"
)

func (p *Postgres) InsertMessage(ctx context.Context, m *model.Message) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO messages (id, coach_id, client_id, content, type, is_sent_by_coach, appointment_id, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		m.ID, m.CoachID, m.ClientID, m.Content, string(m.Type), m.SentByCoach, m.AppointmentID, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (p *Postgres) MessagesForAppointment(ctx context.Context, appointmentID string) ([]model.Message, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, coach_id, client_id, content, type, is_sent_by_coach, appointment_id, created_at
		 FROM messages WHERE appointment_id = $1 ORDER BY created_at, id`, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("messages for %s: %w", appointmentID, err)
	}
	defer rows.Close()

	var out []model.Message
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.ID, &m.CoachID, &m.ClientID, &m.Content, &m.Type,
			&m.SentByCoach, &m.AppointmentID, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
