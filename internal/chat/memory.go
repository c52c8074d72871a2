package chat

import (
	"context"
	"sort"
	"sync"

	tferrors "github.com/felixgeelhaar/tradeflow/internal/errors"
)

// MemoryStore keeps messages in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	messages []Message
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(ctx context.Context, msg *Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, cloneMessage(*msg))
	return nil
}

func (s *MemoryStore) List(ctx context.Context, q Query) ([]Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q = q.normalize()

	s.mu.RLock()
	matched := make([]Message, 0)
	for i := len(s.messages) - 1; i >= 0; i-- {
		m := s.messages[i]
		if m.UserID != q.UserID || (q.PlanID != "" && m.PlanID != q.PlanID) {
			continue
		}
		matched = append(matched, cloneMessage(m))
	}
	s.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})

	if q.Offset >= len(matched) {
		return []Message{}, nil
	}
	end := min(q.Offset+q.Limit, len(matched))
	return matched[q.Offset:end], nil
}

func (s *MemoryStore) Delete(ctx context.Context, userID, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, m := range s.messages {
		if m.ID == id && m.UserID == userID {
			s.messages = append(s.messages[:i], s.messages[i+1:]...)
			return nil
		}
	}
	return newMessageNotFoundError(id)
}

// Len returns the number of stored messages across all users.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

func (s *MemoryStore) Ping(ctx context.Context) error { return ctx.Err() }

func (s *MemoryStore) Close() error { return nil }

func cloneMessage(m Message) Message {
	if m.Metadata != nil {
		md := make(map[string]any, len(m.Metadata))
		for k, v := range m.Metadata {
			md[k] = v
		}
		m.Metadata = md
	}
	return m
}

func newMessageNotFoundError(id string) *tferrors.TradeflowError {
	return tferrors.New(tferrors.ErrCodeMessageNotFound, "message not found: "+id)
}
