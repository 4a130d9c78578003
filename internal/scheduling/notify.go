package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"coaching-schedule-api/internal/logging"
	"coaching-schedule-api/internal/messaging"
	"coaching-schedule-api/internal/model"
)

const displayLayout = "Mon Jan 2, 2006 15:04 MST"

func newMessage(a *model.Appointment, typ model.MessageType, fromCoach bool, content string, now time.Time) *model.Message {
	id := a.ID
	return &model.Message{
		ID:            uuid.New().String(),
		CoachID:       a.CoachID,
		ClientID:      *a.ClientID,
		Content:       content,
		Type:          typ,
		SentByCoach:   fromCoach,
		AppointmentID: &id,
		CreatedAt:     now,
	}
}

func ProposalMessage(a *model.Appointment, now time.Time) *model.Message {
	return newMessage(a, model.MessageProposal, true,
		fmt.Sprintf("New appointment proposed: %q on %s.", a.Title, a.StartAt.UTC().Format(displayLayout)), now)
}

func CancellationMessage(a *model.Appointment, by model.Actor, now time.Time) *model.Message {
	name := by.Name
	if name == "" {
		name = "The client"
	}
	return newMessage(a, model.MessageTip, false,
		fmt.Sprintf("%s cancelled the appointment %q scheduled for %s.", name, a.Title, a.StartAt.UTC().Format(displayLayout)), now)
}

func ReminderMessage(a *model.Appointment, now time.Time) *model.Message {
	return newMessage(a, model.MessageTip, true,
		fmt.Sprintf("Reminder: appointment %q on %s.", a.Title, a.StartAt.UTC().Format(displayLayout)), now)
}

// notifier delivers after commit. A failed delivery becomes a warning on
// the result; the appointment change stands.
type notifier struct {
	sink messaging.Sink
}

func (n notifier) emit(ctx context.Context, m *model.Message) (warning string) {
	if err := n.sink.Send(ctx, m); err != nil {
		logging.Ctx(ctx).Warn().Err(err).
			Str("sink", n.sink.Name()).
			Str("message_type", string(m.Type)).
			Str("appointment_id", *m.AppointmentID).
			Msg("notification not delivered")
		return "notification could not be delivered"
	}
	return ""
}
