package outbox

import (
	"context"
	"log/slog"

	"github.com/hurttlocker/leasebot/internal/lead"
)

// Event types announced after a successful write.
const (
	TypeLeadUpserted    = "lead.upserted.v1"
	TypeMessageAppended = "lead.message.appended.v1"
)

// Publisher announces persisted changes to other systems.
type Publisher interface {
	Publish(ctx context.Context, eventType string, data any) error
}

// MessageAppended is the payload of TypeMessageAppended.
type MessageAppended struct {
	LeadID  string       `json:"leadId"`
	Message lead.Message `json:"message"`
}

type publishingSink struct {
	Sink
	pub    Publisher
	logger *slog.Logger
}

// WithPublisher wraps sink so every successful write is also published.
// Publish failures are logged and never fail the write.
func WithPublisher(sink Sink, pub Publisher, logger *slog.Logger) Sink {
	if pub == nil {
		return sink
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &publishingSink{Sink: sink, pub: pub, logger: logger}
}

func (s *publishingSink) UpsertLead(ctx context.Context, l LeadSummary) (string, error) {
	id, err := s.Sink.UpsertLead(ctx, l)
	if err != nil {
		return "", err
	}
	l.ID = id
	s.publish(ctx, TypeLeadUpserted, l)
	return id, nil
}

func (s *publishingSink) AppendMessage(ctx context.Context, leadID string, m lead.Message) error {
	if err := s.Sink.AppendMessage(ctx, leadID, m); err != nil {
		return err
	}
	s.publish(ctx, TypeMessageAppended, MessageAppended{LeadID: leadID, Message: m})
	return nil
}

func (s *publishingSink) publish(ctx context.Context, eventType string, data any) {
	if err := s.pub.Publish(ctx, eventType, data); err != nil {
		s.logger.Warn("publish failed", slog.String("type", eventType), slog.Any("error", err))
	}
}

// CorrelationKey ties every event for one conversation together.
func (s LeadSummary) CorrelationKey() string { return s.SessionID }

func (m MessageAppended) CorrelationKey() string { return m.LeadID }
