package api

import (
	"net/http"

	"github.com/felixgeelhaar/tradeflow/internal/auth"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (a *API) register(w http.ResponseWriter, r *http.Request) {
	var in auth.RegisterInput
	if err := decodeJSON(r, &in); err != nil {
		a.writeError(w, r, err)
		return
	}
	res, err := a.auth.Register(r.Context(), in)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, res, "registration successful")
}

func (a *API) loginUser(w http.ResponseWriter, r *http.Request) {
	var in loginRequest
	if err := decodeJSON(r, &in); err != nil {
		a.writeError(w, r, err)
		return
	}
	res, err := a.auth.Login(r.Context(), in.Email, in.Password)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, res, "login successful")
}

func (a *API) verify(w http.ResponseWriter, r *http.Request) {
	u, err := a.auth.Current(r.Context(), identity(r))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"user": u}, "")
}

func (a *API) me(w http.ResponseWriter, r *http.Request) {
	u, err := a.auth.Current(r.Context(), identity(r))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, u, "")
}

func (a *API) refresh(w http.ResponseWriter, r *http.Request) {
	res, err := a.auth.Refresh(r.Context(), identity(r))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, res, "token refreshed")
}

func (a *API) updateAccount(w http.ResponseWriter, r *http.Request) {
	var patch auth.AccountPatch
	if err := decodeJSON(r, &patch); err != nil {
		a.writeError(w, r, err)
		return
	}
	u, err := a.auth.UpdateAccount(r.Context(), r.PathValue("id"), patch)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, u, "account updated")
}
