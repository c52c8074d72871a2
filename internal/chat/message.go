// Package chat keeps the per-user conversation log.
package chat

import (
	"context"
	"time"
)

// MessageType identifies the author of a message.
type MessageType string

const (
	TypeUser      MessageType = "user"
	TypeAssistant MessageType = "assistant"
	TypeSystem    MessageType = "system"
)

// Valid reports whether t is a known message type.
func (t MessageType) Valid() bool {
	switch t {
	case TypeUser, TypeAssistant, TypeSystem:
		return true
	}
	return false
}

const (
	DefaultLimit     = 50
	MaxLimit         = 500
	MaxContentLength = 10000
)

// Message is one entry of a user's chat log.
type Message struct {
	ID        string         `json:"id"`
	UserID    string         `json:"userId"`
	PlanID    string         `json:"planId,omitempty"`
	Type      MessageType    `json:"type"`
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Query selects a page of one user's messages, newest first.
type Query struct {
	UserID string
	PlanID string
	Limit  int
	Offset int
}

// normalize applies the default page size and clamps out-of-range values.
func (q Query) normalize() Query {
	if q.Limit <= 0 {
		q.Limit = DefaultLimit
	}
	if q.Limit > MaxLimit {
		q.Limit = MaxLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	return q
}

// Store persists messages. Implementations are safe for concurrent use.
type Store interface {
	Append(ctx context.Context, msg *Message) error
	// List returns messages newest first. Equal timestamps keep reverse
	// insertion order.
	List(ctx context.Context, q Query) ([]Message, error)
	// Delete removes a message owned by userID. Unknown ids and messages of
	// other users both report not found.
	Delete(ctx context.Context, userID, id string) error
	Ping(ctx context.Context) error
	Close() error
}
