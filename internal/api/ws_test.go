package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/tradeflow/internal/notify"
	"github.com/felixgeelhaar/tradeflow/internal/plan"
)

type wireFrame struct {
	Topic string          `json:"topic"`
	Type  string          `json:"type"`
	Data  json.RawMessage `json:"data"`
}

func dialSocket(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// nextFrame reads until a frame of one of the given types arrives.
func nextFrame(t *testing.T, conn *websocket.Conn, types ...string) wireFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var f wireFrame
		require.NoError(t, conn.ReadJSON(&f))
		for _, typ := range types {
			if f.Type == typ {
				return f
			}
		}
	}
}

func TestWebSocketFollowsExecution(t *testing.T) {
	h := newHarness(t)
	srv := httptest.NewServer(h.api)
	t.Cleanup(srv.Close)

	token := h.token(t, "kim@example.com")
	rec := h.do(t, http.MethodPost, "/api/plans", token, samplePlan())
	require.Equal(t, http.StatusCreated, rec.Code)
	id := dataOf[plan.Plan](t, rec).ID

	conn := dialSocket(t, srv, token)
	require.NoError(t, conn.WriteJSON(notify.ClientFrame{Action: notify.ActionSubscribeWorkflow, PlanID: id}))
	nextFrame(t, conn, notify.TypeSubscribed)

	rec = h.do(t, http.MethodPost, "/api/plans/"+id+"/execute", token, nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var steps int
	for {
		f := nextFrame(t, conn, notify.TypeWorkflowStatus, notify.TypeStepStatus)
		assert.Equal(t, notify.WorkflowTopic(id), f.Topic)
		var ev notify.Event
		require.NoError(t, json.Unmarshal(f.Data, &ev))
		if f.Type == notify.TypeStepStatus && ev.Status == string(plan.StepCompleted) {
			steps++
		}
		if f.Type == notify.TypeWorkflowStatus && plan.Status(ev.Status).IsTerminal() {
			assert.Equal(t, string(plan.StatusCompleted), ev.Status)
			break
		}
	}
	assert.Equal(t, 2, steps)
}

func TestWebSocketRejectsForeignPlan(t *testing.T) {
	h := newHarness(t)
	srv := httptest.NewServer(h.api)
	t.Cleanup(srv.Close)

	owner := h.token(t, "kim@example.com")
	rec := h.do(t, http.MethodPost, "/api/plans", owner, samplePlan())
	id := dataOf[plan.Plan](t, rec).ID

	conn := dialSocket(t, srv, h.token(t, "lee@example.com"))
	require.NoError(t, conn.WriteJSON(notify.ClientFrame{Action: notify.ActionSubscribeWorkflow, PlanID: id}))
	f := nextFrame(t, conn, notify.TypeError, notify.TypeSubscribed)
	assert.Equal(t, notify.TypeError, f.Type)
}

func TestWebSocketSendMessageStoresChat(t *testing.T) {
	h := newHarness(t)
	srv := httptest.NewServer(h.api)
	t.Cleanup(srv.Close)

	token := h.token(t, "kim@example.com")
	conn := dialSocket(t, srv, token)
	require.NoError(t, conn.WriteJSON(notify.ClientFrame{Action: notify.ActionSendMessage, Content: "hello"}))
	nextFrame(t, conn, notify.TypeMessageReceived)

	rec := h.do(t, http.MethodGet, "/api/chat", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"content":"hello"`)
}

func TestWebSocketRequiresToken(t *testing.T) {
	h := newHarness(t)
	srv := httptest.NewServer(h.api)
	t.Cleanup(srv.Close)

	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
