package notify

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/tradeflow/internal/auth"
)

type staticVerifier map[string]*auth.Identity

func (v staticVerifier) Verify(token string) (*auth.Identity, error) {
	if id, ok := v[token]; ok {
		return id, nil
	}
	return nil, auth.NewError(auth.ErrTokenInvalid, "unknown token", nil)
}

type wsFixture struct {
	hub    *Hub
	server *httptest.Server
}

func newWSFixture(t *testing.T, cfg WebSocketConfig) *wsFixture {
	t.Helper()
	hub := NewHub(HubConfig{})
	if cfg.Verifier == nil {
		cfg.Verifier = staticVerifier{"tok-alice": {ID: "alice", Email: "alice@example.com", Role: "user"}}
	}
	if cfg.Authorize == nil {
		cfg.Authorize = func(_ context.Context, id *auth.Identity, planID string) error {
			if planID == "alice-plan" && id.ID == "alice" {
				return nil
			}
			return errors.New("not found")
		}
	}
	srv := httptest.NewServer(NewWebSocketHandler(hub, cfg))
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return &wsFixture{hub: hub, server: srv}
}

func (f *wsFixture) dial(t *testing.T, token string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws"
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	return websocket.DefaultDialer.Dial(url, header)
}

func readFrame(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func closeAndWait(t *testing.T, f *wsFixture, conn *websocket.Conn, topic string) {
	t.Helper()
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = conn.Close()
	require.Eventually(t, func() bool { return f.hub.Subscribers(topic) == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestWebSocket_RejectsMissingOrBadToken(t *testing.T) {
	f := newWSFixture(t, WebSocketConfig{})

	for _, token := range []string{"", "tok-mallory"} {
		_, resp, err := f.dial(t, token)
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		_ = resp.Body.Close()
	}
}

func TestWebSocket_TokenQueryParameter(t *testing.T) {
	f := newWSFixture(t, WebSocketConfig{})
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws?token=tok-alice"

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return f.hub.Subscribers(UserTopic("alice")) == 1 }, time.Second, 10*time.Millisecond)
	closeAndWait(t, f, conn, UserTopic("alice"))
}

func TestWebSocket_UserTopicDelivery(t *testing.T) {
	f := newWSFixture(t, WebSocketConfig{})
	conn, _, err := f.dial(t, "tok-alice")
	require.NoError(t, err)

	require.Eventually(t, func() bool { return f.hub.Subscribers(UserTopic("alice")) == 1 }, time.Second, 10*time.Millisecond)
	f.hub.Publish(UserTopic("alice"), Message{Type: TypeNewMessage, Data: map[string]string{"content": "hello"}})

	msg := readFrame(t, conn)
	assert.Equal(t, "user:alice", msg.Topic)
	assert.Equal(t, TypeNewMessage, msg.Type)
	assert.Equal(t, "hello", msg.Data.(map[string]any)["content"])

	closeAndWait(t, f, conn, UserTopic("alice"))
}

func TestWebSocket_ClientActions(t *testing.T) {
	f := newWSFixture(t, WebSocketConfig{
		OnMessage: func(_ context.Context, id *auth.Identity, planID, content string) (any, error) {
			return map[string]string{"from": id.ID, "content": content}, nil
		},
	})
	conn, _, err := f.dial(t, "tok-alice")
	require.NoError(t, err)

	require.NoError(t, conn.WriteJSON(ClientFrame{Action: ActionPing}))
	assert.Equal(t, TypePong, readFrame(t, conn).Type)

	require.NoError(t, conn.WriteJSON(ClientFrame{Action: ActionSubscribeWorkflow, PlanID: "bob-plan"}))
	assert.Equal(t, TypeError, readFrame(t, conn).Type)
	assert.Equal(t, 0, f.hub.Subscribers(WorkflowTopic("bob-plan")))

	require.NoError(t, conn.WriteJSON(ClientFrame{Action: ActionSubscribeWorkflow, PlanID: "alice-plan"}))
	assert.Equal(t, TypeSubscribed, readFrame(t, conn).Type)

	PublishEvent(f.hub, Event{Kind: KindStepStatus, PlanID: "alice-plan", StepID: "s1", Status: "running"})
	msg := readFrame(t, conn)
	assert.Equal(t, TypeStepStatus, msg.Type)
	assert.Equal(t, "workflow:alice-plan", msg.Topic)

	require.NoError(t, conn.WriteJSON(ClientFrame{Action: ActionUnsubscribeWorkflow, PlanID: "alice-plan"}))
	assert.Equal(t, TypeUnsubscribed, readFrame(t, conn).Type)
	assert.Equal(t, 0, f.hub.Subscribers(WorkflowTopic("alice-plan")))

	require.NoError(t, conn.WriteJSON(ClientFrame{Action: ActionSendMessage, Content: "buy?"}))
	msg = readFrame(t, conn)
	assert.Equal(t, TypeMessageReceived, msg.Type)
	assert.Equal(t, "buy?", msg.Data.(map[string]any)["content"])

	require.NoError(t, conn.WriteJSON(ClientFrame{Action: "dance"}))
	assert.Equal(t, TypeError, readFrame(t, conn).Type)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	assert.Equal(t, TypeError, readFrame(t, conn).Type)

	closeAndWait(t, f, conn, UserTopic("alice"))
}

func TestWebSocket_HubCloseEndsConnection(t *testing.T) {
	f := newWSFixture(t, WebSocketConfig{})
	conn, _, err := f.dial(t, "tok-alice")
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return f.hub.Subscribers(UserTopic("alice")) == 1 }, time.Second, 10*time.Millisecond)
	f.hub.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestCheckOrigin(t *testing.T) {
	h := NewWebSocketHandler(NewHub(HubConfig{}), WebSocketConfig{AllowedOrigins: []string{"http://localhost:5173"}})

	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"http://localhost:5173", true},
		{"http://evil.example", false},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/ws", nil)
		if tt.origin != "" {
			r.Header.Set("Origin", tt.origin)
		}
		assert.Equal(t, tt.want, h.checkOrigin(r), tt.origin)
	}
}
