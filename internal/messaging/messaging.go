// Package messaging delivers appointment notifications to the chat
// collaborator. A Sink is fire-and-continue from the caller's point of view:
// the scheduling core logs a failed Send and carries on.
package messaging

import (
	"context"
	"errors"
	"fmt"

	"coaching-schedule-api/internal/metrics"
	"coaching-schedule-api/internal/model"
)

type Sink interface {
	Send(ctx context.Context, m *model.Message) error
	Name() string
}

// MessageWriter is the slice of store.Store that StoreSink needs.
type MessageWriter interface {
	InsertMessage(ctx context.Context, m *model.Message) error
}

// StoreSink writes messages into the local messages table.
type StoreSink struct {
	w MessageWriter
}

func NewStoreSink(w MessageWriter) *StoreSink { return &StoreSink{w: w} }

func (s *StoreSink) Name() string { return "store" }

func (s *StoreSink) Send(ctx context.Context, m *model.Message) error {
	if err := s.w.InsertMessage(ctx, m); err != nil {
		return fmt.Errorf("store message: %w", err)
	}
	return nil
}

// Fanout sends to every sink and joins their errors.
type Fanout []Sink

func (f Fanout) Name() string { return "fanout" }

func (f Fanout) Send(ctx context.Context, m *model.Message) error {
	var errs []error
	for _, s := range f {
		err := s.Send(ctx, m)
		result := "ok"
		if err != nil {
			result = "error"
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
		metrics.Notifications.WithLabelValues(s.Name(), result).Inc()
	}
	return errors.Join(errs...)
}

// Discard drops every message.
type Discard struct{}

func (Discard) Name() string                               { return "discard" }
func (Discard) Send(context.Context, *model.Message) error { return nil }
