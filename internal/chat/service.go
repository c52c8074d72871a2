package chat

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	tferrors "github.com/felixgeelhaar/tradeflow/internal/errors"
	"github.com/felixgeelhaar/tradeflow/internal/log"
	"github.com/felixgeelhaar/tradeflow/internal/metrics"
	"github.com/felixgeelhaar/tradeflow/internal/notify"
)

// SendInput is the body of a send request.
type SendInput struct {
	Content string `json:"content"`
	PlanID  string `json:"planId,omitempty"`
	// Type may only be empty or user.
	Type MessageType `json:"type,omitempty"`
}

// Service appends to and reads from the chat log and announces new messages.
type Service struct {
	store     Store
	publisher notify.Publisher
	now       func() time.Time
	newID     func() string
	logger    *log.Logger
	metrics   *metrics.Metrics
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator overrides the uuid message id generator.
func WithIDGenerator(gen func() string) Option {
	return func(s *Service) { s.newID = gen }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService creates a Service. A nil publisher discards notifications.
func NewService(store Store, publisher notify.Publisher, opts ...Option) *Service {
	if publisher == nil {
		publisher = notify.Nop{}
	}
	s := &Service{
		store:     store,
		publisher: publisher,
		now:       time.Now,
		newID:     uuid.NewString,
		logger:    log.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithComponent("chat")
	return s
}

// Send appends a user message and publishes it on the user's topic.
func (s *Service) Send(ctx context.Context, userID string, in SendInput) (*Message, error) {
	if in.Type != "" && in.Type != TypeUser {
		return nil, tferrors.NewValidationError("only user messages can be sent, got type " + string(in.Type))
	}
	content := strings.TrimSpace(in.Content)
	if content == "" {
		return nil, tferrors.NewValidationError("content is required")
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		return nil, tferrors.NewValidationError("content is too long").
			WithSuggestion("Keep messages under 10000 characters")
	}
	return s.append(ctx, &Message{
		UserID:  userID,
		PlanID:  in.PlanID,
		Type:    TypeUser,
		Content: content,
	})
}

// Post appends a message of any type, e.g. a system note about a run.
func (s *Service) Post(ctx context.Context, msg Message) (*Message, error) {
	if !msg.Type.Valid() {
		return nil, tferrors.NewValidationError("unknown message type: " + string(msg.Type))
	}
	if strings.TrimSpace(msg.Content) == "" {
		return nil, tferrors.NewValidationError("content is required")
	}
	return s.append(ctx, &msg)
}

func (s *Service) append(ctx context.Context, msg *Message) (*Message, error) {
	msg.ID = s.newID()
	msg.Timestamp = s.now().UTC()

	if err := s.store.Append(ctx, msg); err != nil {
		s.metrics.RecordError(string(tferrors.ErrCodeChatStore), "chat")
		s.logger.With("user_id", msg.UserID, "type", msg.Type).LogErrorContext(ctx, err)
		return nil, err
	}
	s.metrics.RecordChat("send")
	s.logger.DebugContext(ctx, "chat message stored", "message_id", msg.ID, "user_id", msg.UserID, "type", msg.Type)

	topic := notify.UserTopic(msg.UserID)
	s.publisher.Publish(topic, notify.Message{
		Topic:     topic,
		Type:      notify.TypeNewMessage,
		Data:      *msg,
		Timestamp: msg.Timestamp,
	})
	return msg, nil
}

// List returns a page of the user's messages, newest first.
func (s *Service) List(ctx context.Context, q Query) ([]Message, error) {
	if q.UserID == "" {
		return nil, tferrors.NewValidationError("user id is required")
	}
	if q.Limit < 0 || q.Offset < 0 {
		return nil, tferrors.NewValidationError("limit and offset must not be negative")
	}
	msgs, err := s.store.List(ctx, q)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordChat("list")
	return msgs, nil
}

// Delete removes one of the user's messages.
func (s *Service) Delete(ctx context.Context, userID, messageID string) error {
	if err := s.store.Delete(ctx, userID, messageID); err != nil {
		return err
	}
	s.metrics.RecordChat("delete")
	return nil
}

// Ping checks the underlying store.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}
