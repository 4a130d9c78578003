package messaging

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"coaching-schedule-api/internal/model"
)

// SendMethod is the full method name of the remote messaging service.
const SendMethod = "/messaging.v1.MessagingService/Send"

// GRPCSink calls a remote messaging service. The payload is a
// google.protobuf.Struct so no generated stubs are needed on either side.
type GRPCSink struct {
	conn grpc.ClientConnInterface
}

// DialGRPC opens a plaintext client connection to addr.
func DialGRPC(addr string) (*GRPCSink, *grpc.ClientConn, error) {
	cc, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, nil, fmt.Errorf("grpc client %s: %w", addr, err)
	}
	return NewGRPCSink(cc), cc, nil
}

func NewGRPCSink(conn grpc.ClientConnInterface) *GRPCSink {
	return &GRPCSink{conn: conn}
}

func (s *GRPCSink) Name() string { return "grpc" }

func (s *GRPCSink) Send(ctx context.Context, m *model.Message) error {
	req, err := MessageToStruct(m)
	if err != nil {
		return err
	}
	var resp structpb.Struct
	if err := s.conn.Invoke(ctx, SendMethod, req, &resp); err != nil {
		return fmt.Errorf("grpc send: %w", err)
	}
	return nil
}

func MessageToStruct(m *model.Message) (*structpb.Struct, error) {
	fields := map[string]any{
		"id":            m.ID,
		"coachId":       m.CoachID,
		"clientId":      m.ClientID,
		"content":       m.Content,
		"type":          string(m.Type),
		"isSentByCoach": m.SentByCoach,
		"createdAt":     m.CreatedAt.UTC().Format(time.RFC3339),
	}
	if m.AppointmentID != nil {
		fields["appointmentId"] = *m.AppointmentID
	}
	st, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return st, nil
}
