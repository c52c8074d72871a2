package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/felixgeelhaar/tradeflow/internal/plan"
)

func (a *API) listPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := a.plans.List(r.Context(), identity(r).ID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, plans, "")
}

func (a *API) createPlan(w http.ResponseWriter, r *http.Request) {
	var in plan.CreateInput
	if err := decodeJSON(r, &in); err != nil {
		a.writeError(w, r, err)
		return
	}
	p, err := a.plans.Create(r.Context(), identity(r).ID, in)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/plans/"+p.ID)
	writeData(w, http.StatusCreated, p, "plan created")
}

func (a *API) getPlan(w http.ResponseWriter, r *http.Request) {
	p, err := a.plans.Get(r.Context(), r.PathValue("id"), identity(r).ID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	fp, err := plan.Fingerprint(p)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	etag := `"` + fp + `"`
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "private, no-cache")
	if etagMatches(r.Header.Get("If-None-Match"), etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	writeData(w, http.StatusOK, p, "")
}

func (a *API) updatePlan(w http.ResponseWriter, r *http.Request) {
	var patch plan.Patch
	if err := decodeJSON(r, &patch); err != nil {
		a.writeError(w, r, err)
		return
	}
	p, err := a.plans.Update(r.Context(), r.PathValue("id"), identity(r).ID, patch)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, p, "plan updated")
}

func (a *API) deletePlan(w http.ResponseWriter, r *http.Request) {
	if err := a.plans.Delete(r.Context(), r.PathValue("id"), identity(r).ID); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, nil, "plan deleted")
}

// ExecutionAccepted is the body of a started execution.
type ExecutionAccepted struct {
	PlanID           string      `json:"planId"`
	Status           plan.Status `json:"status"`
	ExecutionStartAt *time.Time  `json:"executionStartAt,omitempty"`
}

func (a *API) executePlan(w http.ResponseWriter, r *http.Request) {
	exec, err := a.orch.Execute(r.Context(), r.PathValue("id"), identity(r).ID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	started := exec.Started()
	writeData(w, http.StatusAccepted, ExecutionAccepted{
		PlanID:           started.ID,
		Status:           started.Status,
		ExecutionStartAt: started.ExecutionStartAt,
	}, "plan execution started")
}

// ExecutionView reports how far a plan's latest run has come.
type ExecutionView struct {
	PlanID           string      `json:"planId"`
	Status           plan.Status `json:"status"`
	Active           bool        `json:"active"`
	CurrentStepID    string      `json:"currentStepId,omitempty"`
	CompletedSteps   int         `json:"completedSteps"`
	TotalSteps       int         `json:"totalSteps"`
	ExecutionStartAt *time.Time  `json:"executionStartAt,omitempty"`
	ExecutionEndAt   *time.Time  `json:"executionEndAt,omitempty"`
	Error            string      `json:"error,omitempty"`
}

func (a *API) getExecution(w http.ResponseWriter, r *http.Request) {
	p, err := a.plans.Get(r.Context(), r.PathValue("id"), identity(r).ID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	view := ExecutionView{
		PlanID:           p.ID,
		Status:           p.Status,
		TotalSteps:       len(p.Steps),
		ExecutionStartAt: p.ExecutionStartAt,
		ExecutionEndAt:   p.ExecutionEndAt,
		Error:            p.Error,
	}
	for _, st := range p.Steps {
		switch st.Status {
		case plan.StepCompleted:
			view.CompletedSteps++
		case plan.StepRunning:
			view.CurrentStepID = st.ID
		}
	}
	// A run stays registered until its terminal event has been published.
	if exec, ok := a.orch.Lookup(p.ID); ok {
		view.Active = true
		view.Status = exec.Status()
	}
	writeData(w, http.StatusOK, view, "")
}

// etagMatches evaluates an If-None-Match header against etag using weak
// comparison.
func etagMatches(header, etag string) bool {
	if header == "" {
		return false
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || strings.TrimPrefix(candidate, "W/") == etag {
			return true
		}
	}
	return false
}
