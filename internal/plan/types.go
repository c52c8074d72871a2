package plan

import (
	"cmp"
	"encoding/json"
	"slices"
	"time"
)

// Status is the lifecycle state of a Plan.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusApproved  Status = "approved"
	StatusExecuting Status = "executing"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// IsTerminal reports whether an execution has finished.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusApproved, StatusExecuting, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// StepStatus is the execution state of a single Step.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
)

// StepType says what a step produces. It doubles as the dispatch method name.
type StepType string

const (
	StepDataCollection   StepType = "data_collection"
	StepAnalysis         StepType = "analysis"
	StepReportGeneration StepType = "report_generation"
)

// Valid reports whether t is a known step type.
func (t StepType) Valid() bool {
	switch t {
	case StepDataCollection, StepAnalysis, StepReportGeneration:
		return true
	}
	return false
}

// Plan is a user-owned analysis workflow.
type Plan struct {
	ID               string         `json:"id"`
	UserID           string         `json:"userId"`
	Title            string         `json:"title"`
	Description      string         `json:"description"`
	Steps            []Step         `json:"steps"`
	Status           Status         `json:"status"`
	CreatedAt        time.Time      `json:"createdAt"`
	UpdatedAt        time.Time      `json:"updatedAt"`
	ExecutionStartAt *time.Time     `json:"executionStartAt,omitempty"`
	ExecutionEndAt   *time.Time     `json:"executionEndAt,omitempty"`
	Error            string         `json:"error,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

// Step is one unit of a Plan. It is owned by its Plan and never shared.
type Step struct {
	ID          string         `json:"id"`
	PlanID      string         `json:"planId"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Order       int            `json:"order"`
	Type        StepType       `json:"type"`
	Modules     []string       `json:"mcpModules"`
	Parameters  map[string]any `json:"parameters"`
	Prompt      string         `json:"prompt,omitempty"`
	UseAgent    bool           `json:"useAgent,omitempty"`
	Status      StepStatus     `json:"status"`
	Result      map[string]any `json:"result,omitempty"`
	Error       string         `json:"error,omitempty"`
	StartedAt   *time.Time     `json:"startedAt,omitempty"`
	CompletedAt *time.Time     `json:"completedAt,omitempty"`
}

// StepInput carries the user-settable fields of a Step.
type StepInput struct {
	Title       string         `json:"title" yaml:"title"`
	Description string         `json:"description" yaml:"description"`
	Order       int            `json:"order" yaml:"order"`
	Type        StepType       `json:"type" yaml:"type"`
	Modules     []string       `json:"mcpModules" yaml:"mcpModules"`
	Parameters  map[string]any `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	Prompt      string         `json:"prompt,omitempty" yaml:"prompt,omitempty"`
	UseAgent    bool           `json:"useAgent,omitempty" yaml:"useAgent,omitempty"`

	// Server-owned Step fields. Clients that send back a fetched plan may
	// include them; they are decoded and discarded.
	ID          string          `json:"id,omitempty" yaml:"-"`
	PlanID      string          `json:"planId,omitempty" yaml:"-"`
	Status      json.RawMessage `json:"status,omitempty" yaml:"-"`
	Result      json.RawMessage `json:"result,omitempty" yaml:"-"`
	Error       json.RawMessage `json:"error,omitempty" yaml:"-"`
	StartedAt   json.RawMessage `json:"startedAt,omitempty" yaml:"-"`
	CompletedAt json.RawMessage `json:"completedAt,omitempty" yaml:"-"`
}

// CreateInput is the payload of Store.Create.
type CreateInput struct {
	Title       string         `json:"title" yaml:"title"`
	Description string         `json:"description" yaml:"description"`
	Steps       []StepInput    `json:"steps" yaml:"steps"`
	Metadata    map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Patch lists the fields of an update. Nil fields are left untouched.
type Patch struct {
	Title       *string      `json:"title,omitempty"`
	Description *string      `json:"description,omitempty"`
	Steps       *[]StepInput `json:"steps,omitempty"`
	Status      *Status      `json:"status,omitempty"`
}

// ExecutionOrder returns step indexes sorted by Order. Ties keep list position.
func (p *Plan) ExecutionOrder() []int {
	idx := make([]int, len(p.Steps))
	for i := range idx {
		idx[i] = i
	}
	slices.SortStableFunc(idx, func(a, b int) int {
		return cmp.Compare(p.Steps[a].Order, p.Steps[b].Order)
	})
	return idx
}

// Step returns a pointer to the step with the given id, or nil.
func (p *Plan) Step(id string) *Step {
	for i := range p.Steps {
		if p.Steps[i].ID == id {
			return &p.Steps[i]
		}
	}
	return nil
}

// Clone returns a deep copy.
func (p *Plan) Clone() *Plan {
	if p == nil {
		return nil
	}
	c := *p
	c.ExecutionStartAt = cloneTime(p.ExecutionStartAt)
	c.ExecutionEndAt = cloneTime(p.ExecutionEndAt)
	c.Metadata = cloneMap(p.Metadata)
	if p.Steps != nil {
		c.Steps = make([]Step, len(p.Steps))
		for i := range p.Steps {
			c.Steps[i] = p.Steps[i].clone()
		}
	}
	return &c
}

func (s Step) clone() Step {
	c := s
	c.Modules = slices.Clone(s.Modules)
	c.Parameters = cloneMap(s.Parameters)
	c.Result = cloneMap(s.Result)
	c.StartedAt = cloneTime(s.StartedAt)
	c.CompletedAt = cloneTime(s.CompletedAt)
	return c
}

func (s *Step) reset() {
	s.Status = StepPending
	s.Result = nil
	s.Error = ""
	s.StartedAt = nil
	s.CompletedAt = nil
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return val
	}
}
