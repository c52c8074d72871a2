package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/felixgeelhaar/tradeflow/internal/auth"
	"github.com/felixgeelhaar/tradeflow/internal/chat"
)

func (a *API) listMessages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := chat.Query{
		UserID: identity(r).ID,
		PlanID: q.Get("planId"),
	}
	query.Limit, _ = strconv.Atoi(q.Get("limit"))
	query.Offset, _ = strconv.Atoi(q.Get("offset"))

	msgs, err := a.chat.List(r.Context(), query)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, msgs, "")
}

func (a *API) sendMessage(w http.ResponseWriter, r *http.Request) {
	var in chat.SendInput
	if err := decodeJSON(r, &in); err != nil {
		a.writeError(w, r, err)
		return
	}
	msg, err := a.chat.Send(r.Context(), identity(r).ID, in)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, msg, "message sent")
}

func (a *API) deleteMessage(w http.ResponseWriter, r *http.Request) {
	if err := a.chat.Delete(r.Context(), identity(r).ID, r.PathValue("id")); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, nil, "message deleted")
}

// authorizeWorkflow lets a socket follow only plans its user owns.
func (a *API) authorizeWorkflow(ctx context.Context, id *auth.Identity, planID string) error {
	_, err := a.plans.Get(ctx, planID, id.ID)
	return err
}

func (a *API) chatFromSocket(ctx context.Context, id *auth.Identity, planID, content string) (any, error) {
	return a.chat.Send(ctx, id.ID, chat.SendInput{Content: content, PlanID: planID})
}
