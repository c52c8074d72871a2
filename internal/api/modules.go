package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/felixgeelhaar/tradeflow/internal/errors"
	"github.com/felixgeelhaar/tradeflow/internal/module"
)

func (a *API) listModules(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := module.Filter{Category: module.Category(q.Get("type"))}
	if raw := q.Get("isActive"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			a.writeError(w, r, errors.NewValidationError("isActive must be true or false"))
			return
		}
		f.Active = &active
	}
	writeData(w, http.StatusOK, a.dispatcher.Catalog().List(f), "")
}

func (a *API) getModule(w http.ResponseWriter, r *http.Request) {
	m, err := a.dispatcher.Catalog().Get(r.PathValue("id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, m, "")
}

func (a *API) executeModule(w http.ResponseWriter, r *http.Request) {
	var req module.Request
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	resp, err := a.dispatcher.Dispatch(r.Context(), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, resp, "")
}

type batchRequest struct {
	Requests []module.Request `json:"requests"`
}

func (a *API) executeModuleBatch(w http.ResponseWriter, r *http.Request) {
	var body batchRequest
	if err := decodeJSON(r, &body); err != nil {
		a.writeError(w, r, err)
		return
	}
	results, err := a.dispatcher.DispatchBatch(r.Context(), body.Requests)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, results, fmt.Sprintf("%d requests processed", len(results)))
}
