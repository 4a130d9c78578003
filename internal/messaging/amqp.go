package messaging

import (
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/rabbitmq/amqp091-go"

	"coaching-schedule-api/internal/model"
)

type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
}

// AMQPSink publishes messages as persistent JSON to a topic exchange with
// routing key "message.<type>", e.g. message.appointment_proposal.
type AMQPSink struct {
	ch       publisher
	exchange string
	closer   func() error
}

// DialAMQP connects, opens a channel and declares the exchange.
func DialAMQP(url, exchange string) (*AMQPSink, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	s := newAMQPSink(ch, exchange)
	s.closer = conn.Close
	return s, nil
}

func newAMQPSink(ch publisher, exchange string) *AMQPSink {
	return &AMQPSink{ch: ch, exchange: exchange}
}

func (s *AMQPSink) Name() string { return "amqp" }

func (s *AMQPSink) Send(ctx context.Context, m *model.Message) error {
	body, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	pub := amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		MessageId:    m.ID,
		Timestamp:    m.CreatedAt,
		Type:         string(m.Type),
		Body:         body,
	}
	if err := s.ch.PublishWithContext(ctx, s.exchange, routingKey(m), false, false, pub); err != nil {
		return fmt.Errorf("publish message: %w", err)
	}
	return nil
}

func (s *AMQPSink) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}

func routingKey(m *model.Message) string {
	return "message." + strings.ToLower(string(m.Type))
}
