// Package orchestrator runs plans: it claims a plan, walks its steps in
// order, dispatches each step's modules and reports progress as events.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/felixgeelhaar/tradeflow/internal/chat"
	"github.com/felixgeelhaar/tradeflow/internal/log"
	"github.com/felixgeelhaar/tradeflow/internal/metrics"
	"github.com/felixgeelhaar/tradeflow/internal/module"
	"github.com/felixgeelhaar/tradeflow/internal/notify"
	"github.com/felixgeelhaar/tradeflow/internal/plan"
	"github.com/felixgeelhaar/tradeflow/internal/telemetry"
)

// Dispatcher calls a single module.
type Dispatcher interface {
	Dispatch(ctx context.Context, req module.Request) (*module.Response, error)
}

// Journal stores chat messages on behalf of the system.
type Journal interface {
	Post(ctx context.Context, msg chat.Message) (*chat.Message, error)
}

// Config wires an Orchestrator.
type Config struct {
	// MaxConcurrent caps runs in flight; 0 means unlimited. Runs over the
	// cap are claimed immediately and wait for a slot in the background.
	MaxConcurrent int
	Publisher     notify.Publisher
	// Journal, when set, gets a system message summarising each finished run.
	Journal Journal
	Logger  *log.Logger
	Metrics *metrics.Metrics
}

// Orchestrator executes plans in the background.
type Orchestrator struct {
	plans      *plan.Store
	dispatcher Dispatcher
	publisher  notify.Publisher
	journal    Journal
	slots      chan struct{}
	logger     *log.Logger
	metrics    *metrics.Metrics

	wg   sync.WaitGroup
	mu   sync.Mutex
	runs map[string]*Execution
}

// New creates an Orchestrator.
func New(plans *plan.Store, dispatcher Dispatcher, cfg Config) *Orchestrator {
	o := &Orchestrator{
		plans:      plans,
		dispatcher: dispatcher,
		publisher:  cfg.Publisher,
		journal:    cfg.Journal,
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
		runs:       make(map[string]*Execution),
	}
	if o.publisher == nil {
		o.publisher = notify.Nop{}
	}
	if o.logger == nil {
		o.logger = log.Discard()
	}
	o.logger = o.logger.WithComponent("orchestrator")
	if cfg.MaxConcurrent > 0 {
		o.slots = make(chan struct{}, cfg.MaxConcurrent)
	}
	return o
}

// Execute claims the plan and starts running it in the background.
//
// It fails with NotFound for an absent or foreign plan and with Conflict when
// the plan is already executing or has finished. On success the plan is
// executing and the run continues after ctx is cancelled.
func (o *Orchestrator) Execute(ctx context.Context, planID, ownerID string) (*Execution, error) {
	p, err := o.plans.BeginExecution(ctx, planID, ownerID)
	if err != nil {
		return nil, err
	}

	exec := newExecution(p)
	o.mu.Lock()
	o.runs[p.ID] = exec
	o.mu.Unlock()

	o.logger.InfoContext(ctx, "plan execution started", "plan_id", p.ID, "user_id", p.UserID, "steps", len(p.Steps))
	o.emit(notify.Event{Kind: notify.KindPlanStatus, PlanID: p.ID, Status: string(plan.StatusExecuting)})

	o.wg.Add(1)
	go o.run(context.WithoutCancel(ctx), p, exec)

	return exec, nil
}

// Run executes the plan and blocks until it finishes or ctx is done.
func (o *Orchestrator) Run(ctx context.Context, planID, ownerID string) (*plan.Plan, error) {
	exec, err := o.Execute(ctx, planID, ownerID)
	if err != nil {
		return nil, err
	}
	return exec.Wait(ctx)
}

// Lookup returns the in-flight execution of a plan.
func (o *Orchestrator) Lookup(planID string) (*Execution, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	e, ok := o.runs[planID]
	return e, ok
}

// Running returns the number of runs in flight.
func (o *Orchestrator) Running() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.runs)
}

// Wait blocks until every run has finished or ctx is done.
func (o *Orchestrator) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for %d running plans: %w", o.Running(), ctx.Err())
	}
}

func (o *Orchestrator) run(ctx context.Context, p *plan.Plan, exec *Execution) {
	defer o.wg.Done()
	defer func() {
		o.mu.Lock()
		delete(o.runs, p.ID)
		o.mu.Unlock()
	}()

	if o.slots != nil {
		o.slots <- struct{}{}
		defer func() { <-o.slots }()
	}

	ctx, span := telemetry.StartExecutionSpan(ctx, p.ID, p.UserID, len(p.Steps))
	defer span.End()

	start := time.Now()
	o.metrics.ExecutionStarted()
	logger := o.logger.With("plan_id", p.ID)

	status, errMsg := o.runSteps(ctx, p, logger)

	final, err := o.plans.FinishExecution(ctx, p.ID, status, errMsg)
	if err != nil {
		logger.WithError(err).ErrorContext(ctx, "failed to record plan outcome", "status", status)
	}

	elapsed := time.Since(start)
	o.metrics.ExecutionFinished(string(status), elapsed)
	telemetry.RecordDuration(span, "execution.duration_ms", elapsed)

	if status == plan.StatusCompleted {
		telemetry.RecordSuccess(span)
		logger.InfoContext(ctx, "plan execution completed", "duration_ms", elapsed.Milliseconds())
	} else {
		telemetry.RecordError(span, errors.New(errMsg))
		logger.WarnContext(ctx, "plan execution failed", "error", errMsg, "duration_ms", elapsed.Milliseconds())
	}

	// The terminal event is the last event of the run.
	o.emit(notify.Event{Kind: notify.KindPlanStatus, PlanID: p.ID, Status: string(status), Error: errMsg})
	o.summarise(ctx, p, status, errMsg, logger)
	exec.finish(status, errMsg, final)
}

// summarise posts the outcome of a run to the owner's chat log.
func (o *Orchestrator) summarise(ctx context.Context, p *plan.Plan, status plan.Status, errMsg string, logger *log.Logger) {
	if o.journal == nil {
		return
	}
	content := fmt.Sprintf("Plan %q completed", p.Title)
	if status != plan.StatusCompleted {
		content = fmt.Sprintf("Plan %q failed: %s", p.Title, errMsg)
	}
	_, err := o.journal.Post(ctx, chat.Message{
		UserID:   p.UserID,
		PlanID:   p.ID,
		Type:     chat.TypeSystem,
		Content:  content,
		Metadata: map[string]any{"status": string(status)},
	})
	if err != nil {
		logger.WithError(err).WarnContext(ctx, "failed to post run summary")
	}
}

// runSteps walks the steps in order and stops at the first failure.
func (o *Orchestrator) runSteps(ctx context.Context, p *plan.Plan, logger *log.Logger) (plan.Status, string) {
	for _, idx := range p.ExecutionOrder() {
		st := p.Steps[idx]
		if errMsg, ok := o.runStep(ctx, p, st, logger); !ok {
			return plan.StatusFailed, errMsg
		}
	}
	return plan.StatusCompleted, ""
}

func (o *Orchestrator) runStep(ctx context.Context, p *plan.Plan, st plan.Step, logger *log.Logger) (string, bool) {
	ctx, span := telemetry.StartStepSpan(ctx, st.ID, string(st.Type), st.Order)
	defer span.End()
	start := time.Now()

	if _, err := o.plans.UpdateStep(ctx, p.ID, st.ID, func(s *plan.Step) {
		now := o.plans.Now()
		s.Status = plan.StepRunning
		s.StartedAt = &now
	}); err != nil {
		telemetry.RecordError(span, err)
		return err.Error(), false
	}
	logger.DebugContext(ctx, "step running", "step_id", st.ID, "type", st.Type)
	o.emit(notify.Event{Kind: notify.KindStepStatus, PlanID: p.ID, StepID: st.ID, Status: string(plan.StepRunning)})

	result, dispatchErr := o.dispatchStep(ctx, st)

	status := plan.StepCompleted
	errMsg := ""
	if dispatchErr != nil {
		status = plan.StepFailed
		errMsg = module.ErrorMessage(dispatchErr)
	}

	if _, err := o.plans.UpdateStep(ctx, p.ID, st.ID, func(s *plan.Step) {
		now := o.plans.Now()
		s.Status = status
		s.CompletedAt = &now
		s.Error = errMsg
		if dispatchErr == nil {
			s.Result = result
		}
	}); err != nil {
		telemetry.RecordError(span, err)
		return err.Error(), false
	}

	o.metrics.RecordStep(string(st.Type), string(status), time.Since(start))
	o.emit(notify.Event{Kind: notify.KindStepStatus, PlanID: p.ID, StepID: st.ID, Status: string(status), Error: errMsg})

	if dispatchErr != nil {
		telemetry.RecordError(span, dispatchErr)
		logger.WithError(dispatchErr).DebugContext(ctx, "step failed", "step_id", st.ID)
		return errMsg, false
	}
	telemetry.RecordSuccess(span, attribute.Int("step.modules", len(st.Modules)))
	logger.DebugContext(ctx, "step completed", "step_id", st.ID)
	return "", true
}

// dispatchStep calls every module of the step concurrently and merges the
// payloads by module id. The returned error is the first failure in module
// order.
func (o *Orchestrator) dispatchStep(ctx context.Context, st plan.Step) (map[string]any, error) {
	params := make(map[string]any, len(st.Parameters)+1)
	for k, v := range st.Parameters {
		params[k] = v
	}
	if st.Prompt != "" {
		params["prompt"] = st.Prompt
	}

	responses := make([]*module.Response, len(st.Modules))
	errs := make([]error, len(st.Modules))

	var g errgroup.Group
	for i, moduleID := range st.Modules {
		g.Go(func() error {
			responses[i], errs[i] = o.dispatcher.Dispatch(ctx, module.Request{
				ModuleID:   moduleID,
				Method:     string(st.Type),
				Parameters: params,
			})
			return nil
		})
	}
	_ = g.Wait()

	result := make(map[string]any, len(st.Modules))
	for i, moduleID := range st.Modules {
		if errs[i] != nil {
			return nil, errs[i]
		}
		result[moduleID] = responses[i].Data
	}
	return result, nil
}

func (o *Orchestrator) emit(ev notify.Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = o.plans.Now().UTC()
	}
	notify.PublishEvent(o.publisher, ev)
}
