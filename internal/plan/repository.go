package plan

import (
	"context"
	"sync"

	"github.com/felixgeelhaar/tradeflow/internal/errors"
)

// Repository persists plans. Update and Delete are atomic read-check-write
// operations; every returned Plan is a copy the caller may keep.
type Repository interface {
	Insert(ctx context.Context, p *Plan) error
	Get(ctx context.Context, id string) (*Plan, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*Plan, error)
	// Update applies mutate to a copy of the stored plan and commits it
	// only when mutate returns nil.
	Update(ctx context.Context, id string, mutate func(*Plan) error) (*Plan, error)
	// Delete removes the plan when guard returns nil.
	Delete(ctx context.Context, id string, guard func(*Plan) error) error
}

// MemoryRepository is a process-local Repository that keeps insertion order.
type MemoryRepository struct {
	mu    sync.RWMutex
	plans map[string]*Plan
	order []string
}

// NewMemoryRepository creates an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{plans: make(map[string]*Plan)}
}

func (r *MemoryRepository) Insert(_ context.Context, p *Plan) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.plans[p.ID]; exists {
		return errors.New(errors.ErrCodeInternal, "duplicate plan id "+p.ID)
	}
	r.plans[p.ID] = p.Clone()
	r.order = append(r.order, p.ID)
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, id string) (*Plan, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.plans[id]
	if !ok {
		return nil, errors.NewPlanNotFoundError(id)
	}
	return p.Clone(), nil
}

func (r *MemoryRepository) ListByOwner(_ context.Context, ownerID string) ([]*Plan, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Plan, 0)
	for _, id := range r.order {
		if p := r.plans[id]; p.UserID == ownerID {
			out = append(out, p.Clone())
		}
	}
	return out, nil
}

func (r *MemoryRepository) Update(_ context.Context, id string, mutate func(*Plan) error) (*Plan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.plans[id]
	if !ok {
		return nil, errors.NewPlanNotFoundError(id)
	}

	next := current.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	r.plans[id] = next
	return next.Clone(), nil
}

func (r *MemoryRepository) Delete(_ context.Context, id string, guard func(*Plan) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.plans[id]
	if !ok {
		return errors.NewPlanNotFoundError(id)
	}
	if guard != nil {
		if err := guard(p.Clone()); err != nil {
			return err
		}
	}

	delete(r.plans, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// Len returns the number of stored plans.
func (r *MemoryRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plans)
}
