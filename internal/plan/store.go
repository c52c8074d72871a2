package plan

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/tradeflow/internal/errors"
	"github.com/felixgeelhaar/tradeflow/internal/log"
	"github.com/felixgeelhaar/tradeflow/internal/metrics"
)

// Store implements the ownership-scoped plan operations on top of a Repository.
type Store struct {
	repo    Repository
	now     func() time.Time
	newID   func() string
	logger  *log.Logger
	metrics *metrics.Metrics
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator overrides the uuid plan id generator.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) { s.newID = gen }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithMetrics records plan operations.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// NewStore creates a Store. A nil repo gets a MemoryRepository.
func NewStore(repo Repository, opts ...Option) *Store {
	if repo == nil {
		repo = NewMemoryRepository()
	}
	s := &Store{
		repo:   repo,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
		logger: log.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithComponent("plan")
	return s
}

// StepID returns the id of the n-th (1-based) step of a plan.
func StepID(planID string, n int) string {
	return fmt.Sprintf("%s-step-%d", planID, n)
}

func buildSteps(planID string, in []StepInput) []Step {
	steps := make([]Step, len(in))
	for i, si := range in {
		params := cloneMap(si.Parameters)
		if params == nil {
			params = map[string]any{}
		}
		modules := append([]string{}, si.Modules...)
		steps[i] = Step{
			ID:          StepID(planID, i+1),
			PlanID:      planID,
			Title:       si.Title,
			Description: si.Description,
			Order:       si.Order,
			Type:        si.Type,
			Modules:     modules,
			Parameters:  params,
			Prompt:      si.Prompt,
			UseAgent:    si.UseAgent,
			Status:      StepPending,
		}
	}
	return steps
}

// Create validates in and stores a new draft plan owned by ownerID.
func (s *Store) Create(ctx context.Context, ownerID string, in CreateInput) (p *Plan, err error) {
	defer func() { s.metrics.RecordPlanOperation("create", err) }()

	if err := in.Validate(); err != nil {
		return nil, err
	}

	now := s.now()
	id := s.newID()
	p = &Plan{
		ID:          id,
		UserID:      ownerID,
		Title:       in.Title,
		Description: in.Description,
		Steps:       buildSteps(id, in.Steps),
		Status:      StatusDraft,
		CreatedAt:   now,
		UpdatedAt:   now,
		Metadata:    cloneMap(in.Metadata),
	}
	if err := s.repo.Insert(ctx, p); err != nil {
		return nil, err
	}

	s.logger.Debug("plan created", "plan_id", id, "user_id", ownerID, "steps", len(p.Steps))
	return p.Clone(), nil
}

// Get returns the plan when it exists and belongs to ownerID.
func (s *Store) Get(ctx context.Context, planID, ownerID string) (*Plan, error) {
	p, err := s.repo.Get(ctx, planID)
	if err != nil {
		return nil, err
	}
	if p.UserID != ownerID {
		return nil, errors.NewPlanNotFoundError(planID)
	}
	return p, nil
}

// List returns the plans of ownerID in creation order.
func (s *Store) List(ctx context.Context, ownerID string) ([]*Plan, error) {
	return s.repo.ListByOwner(ctx, ownerID)
}

// Update merges patch into the plan.
//
// Executing plans reject every patch. A status patch may only move between
// draft and approved; replacing the steps of a finished plan is rejected.
func (s *Store) Update(ctx context.Context, planID, ownerID string, patch Patch) (p *Plan, err error) {
	defer func() { s.metrics.RecordPlanOperation("update", err) }()

	if err := patch.Validate(); err != nil {
		return nil, err
	}

	return s.repo.Update(ctx, planID, func(p *Plan) error {
		if p.UserID != ownerID {
			return errors.NewPlanNotFoundError(planID)
		}
		if p.Status == StatusExecuting {
			return errors.NewPlanExecutingError(planID)
		}
		if patch.Status != nil && !manualTransitionAllowed(p.Status, *patch.Status) {
			return errors.NewInvalidTransitionError(planID, string(p.Status), string(*patch.Status))
		}
		if patch.Steps != nil && p.Status.IsTerminal() {
			return errors.New(errors.ErrCodePlanAlreadyRun,
				fmt.Sprintf("plan %s has already run; its steps can no longer be replaced", planID)).
				WithSuggestion("Create a new plan with the revised steps")
		}

		if patch.Title != nil {
			p.Title = *patch.Title
		}
		if patch.Description != nil {
			p.Description = *patch.Description
		}
		if patch.Steps != nil {
			p.Steps = buildSteps(p.ID, *patch.Steps)
		}
		if patch.Status != nil {
			p.Status = *patch.Status
		}
		p.UpdatedAt = s.now()
		return nil
	})
}

func manualTransitionAllowed(from, to Status) bool {
	manual := func(st Status) bool { return st == StatusDraft || st == StatusApproved }
	return manual(from) && manual(to)
}

// Delete removes the plan unless it is executing.
func (s *Store) Delete(ctx context.Context, planID, ownerID string) (err error) {
	defer func() { s.metrics.RecordPlanOperation("delete", err) }()

	return s.repo.Delete(ctx, planID, func(p *Plan) error {
		if p.UserID != ownerID {
			return errors.NewPlanNotFoundError(planID)
		}
		if p.Status == StatusExecuting {
			return errors.NewPlanExecutingError(planID)
		}
		return nil
	})
}

// BeginExecution atomically checks and claims the plan for a run. Exactly one
// of several concurrent callers succeeds; the rest get a Conflict. Draft
// plans are implicitly approved.
func (s *Store) BeginExecution(ctx context.Context, planID, ownerID string) (p *Plan, err error) {
	defer func() { s.metrics.RecordPlanOperation("execute", err) }()

	return s.repo.Update(ctx, planID, func(p *Plan) error {
		if p.UserID != ownerID {
			return errors.NewPlanNotFoundError(planID)
		}
		switch {
		case p.Status == StatusExecuting:
			return errors.NewPlanExecutingError(planID)
		case p.Status.IsTerminal():
			return errors.New(errors.ErrCodePlanAlreadyRun,
				fmt.Sprintf("plan %s already %s", planID, p.Status)).
				WithSuggestion("Create a new plan to run the workflow again")
		}

		now := s.now()
		p.Status = StatusExecuting
		p.ExecutionStartAt = &now
		p.ExecutionEndAt = nil
		p.Error = ""
		p.UpdatedAt = now
		for i := range p.Steps {
			p.Steps[i].reset()
		}
		return nil
	})
}

// UpdateStep applies mutate to one step of an executing plan.
func (s *Store) UpdateStep(ctx context.Context, planID, stepID string, mutate func(*Step)) (*Step, error) {
	var out Step
	_, err := s.repo.Update(ctx, planID, func(p *Plan) error {
		if p.Status != StatusExecuting {
			return errors.New(errors.ErrCodePlanInvalidTransition,
				fmt.Sprintf("plan %s is %s, not executing", planID, p.Status))
		}
		st := p.Step(stepID)
		if st == nil {
			return errors.New(errors.ErrCodePlanNotFound, fmt.Sprintf("step not found: %s", stepID))
		}
		mutate(st)
		p.UpdatedAt = s.now()
		out = st.clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// FinishExecution moves an executing plan to completed or failed.
func (s *Store) FinishExecution(ctx context.Context, planID string, status Status, errMsg string) (*Plan, error) {
	if !status.IsTerminal() {
		return nil, errors.NewValidationError(fmt.Sprintf("%s is not a terminal status", status))
	}
	return s.repo.Update(ctx, planID, func(p *Plan) error {
		if p.Status != StatusExecuting {
			return errors.NewInvalidTransitionError(planID, string(p.Status), string(status))
		}
		now := s.now()
		p.Status = status
		p.ExecutionEndAt = &now
		p.Error = errMsg
		p.UpdatedAt = now
		return nil
	})
}

// Now returns the store clock's current time.
func (s *Store) Now() time.Time {
	return s.now()
}
