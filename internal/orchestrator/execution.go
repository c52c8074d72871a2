package orchestrator

import (
	"context"
	"sync"

	"github.com/felixgeelhaar/tradeflow/internal/plan"
)

// Execution is the handle of one background run.
type Execution struct {
	planID  string
	ownerID string
	started *plan.Plan
	done    chan struct{}

	mu     sync.RWMutex
	status plan.Status
	err    string
	final  *plan.Plan
}

func newExecution(p *plan.Plan) *Execution {
	return &Execution{
		planID:  p.ID,
		ownerID: p.UserID,
		started: p,
		done:    make(chan struct{}),
		status:  plan.StatusExecuting,
	}
}

// PlanID returns the id of the running plan.
func (e *Execution) PlanID() string { return e.planID }

// Started returns the plan as it was when the run was claimed.
func (e *Execution) Started() *plan.Plan { return e.started.Clone() }

// Done is closed once the run reaches a terminal status.
func (e *Execution) Done() <-chan struct{} { return e.done }

// Status returns executing until the run finishes, then completed or failed.
func (e *Execution) Status() plan.Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.status
}

// Err returns the failing step's error, empty unless the run failed.
func (e *Execution) Err() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.err
}

// Result returns the final plan, or nil while the run is in flight.
func (e *Execution) Result() *plan.Plan {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.final == nil {
		return nil
	}
	return e.final.Clone()
}

// Wait blocks until the run finishes or ctx is done.
func (e *Execution) Wait(ctx context.Context) (*plan.Plan, error) {
	select {
	case <-e.done:
		return e.Result(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (e *Execution) finish(status plan.Status, errMsg string, final *plan.Plan) {
	e.mu.Lock()
	e.status = status
	e.err = errMsg
	e.final = final
	e.mu.Unlock()
	close(e.done)
}
