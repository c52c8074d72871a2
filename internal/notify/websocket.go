package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/felixgeelhaar/tradeflow/internal/auth"
	"github.com/felixgeelhaar/tradeflow/internal/log"
	"github.com/felixgeelhaar/tradeflow/internal/metrics"
)

// Client actions.
const (
	ActionSubscribeWorkflow   = "subscribe_workflow"
	ActionUnsubscribeWorkflow = "unsubscribe_workflow"
	ActionPing                = "ping"
	ActionSendMessage         = "send_message"
)

// Reply types sent only to the requesting connection.
const (
	TypeSubscribed      = "subscribed"
	TypeUnsubscribed    = "unsubscribed"
	TypePong            = "pong"
	TypeMessageReceived = "message_received"
	TypeError           = "error"
)

const (
	maxFrameBytes = 64 << 10
	replyBuffer   = 16
)

// ClientFrame is a message sent by a WebSocket client.
type ClientFrame struct {
	Action  string `json:"action"`
	PlanID  string `json:"planId,omitempty"`
	Content string `json:"content,omitempty"`
}

// Authorizer decides whether id may follow the runs of planID.
type Authorizer func(ctx context.Context, id *auth.Identity, planID string) error

// MessageHandler handles send_message frames. The result is echoed back as
// message_received.
type MessageHandler func(ctx context.Context, id *auth.Identity, planID, content string) (any, error)

// WebSocketConfig wires the endpoint to the rest of the server.
type WebSocketConfig struct {
	Verifier       auth.Verifier
	Authorize      Authorizer
	OnMessage      MessageHandler
	AllowedOrigins []string
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	Logger         *log.Logger
	Metrics        *metrics.Metrics
}

// WebSocketHandler upgrades authenticated requests and bridges them to a Hub.
type WebSocketHandler struct {
	hub      *Hub
	cfg      WebSocketConfig
	upgrader websocket.Upgrader
	logger   *log.Logger
}

// NewWebSocketHandler creates the /ws endpoint.
func NewWebSocketHandler(hub *Hub, cfg WebSocketConfig) *WebSocketHandler {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 25 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Discard()
	}
	h := &WebSocketHandler{
		hub:    hub,
		cfg:    cfg,
		logger: cfg.Logger.WithComponent("websocket"),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	return slices.Contains(h.cfg.AllowedOrigins, "*") || slices.Contains(h.cfg.AllowedOrigins, origin)
}

// ServeHTTP authenticates the handshake, then serves the connection until
// either side closes it.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := auth.ExtractTokenFromRequest(r)
	if token == "" {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}
	id, err := h.cfg.Verifier.Verify(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		h.logger.Debug("websocket upgrade failed", "error", err)
		return
	}

	c := &wsConn{
		handler: h,
		conn:    conn,
		id:      id,
		sub:     h.hub.Subscribe(UserTopic(id.ID)),
		replies: make(chan Message, replyBuffer),
		done:    make(chan struct{}),
		logger:  h.logger.With("user_id", id.ID),
	}

	h.cfg.Metrics.WebSocketOpened()
	defer h.cfg.Metrics.WebSocketClosed()
	c.logger.Info("websocket connected")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.writePump()
	}()

	c.readPump(r.Context())

	c.sub.Close()
	close(c.done)
	wg.Wait()
	c.logger.Info("websocket disconnected")
}

type wsConn struct {
	handler *WebSocketHandler
	conn    *websocket.Conn
	id      *auth.Identity
	sub     *Subscription
	replies chan Message
	done    chan struct{}
	logger  *log.Logger
}

func (c *wsConn) pongWait() time.Duration {
	return 2 * c.handler.cfg.PingInterval
}

func (c *wsConn) readPump(ctx context.Context) {
	c.conn.SetReadLimit(maxFrameBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.pongWait()))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.pongWait()))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug("websocket read failed", "error", err)
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(c.pongWait()))

		var frame ClientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.reply(TypeError, map[string]string{"message": "malformed frame"})
			continue
		}
		c.handle(ctx, frame)
	}
}

func (c *wsConn) handle(ctx context.Context, frame ClientFrame) {
	switch frame.Action {
	case ActionPing:
		c.reply(TypePong, nil)

	case ActionSubscribeWorkflow:
		if frame.PlanID == "" {
			c.reply(TypeError, map[string]string{"message": "planId is required"})
			return
		}
		if authz := c.handler.cfg.Authorize; authz != nil {
			if err := authz(ctx, c.id, frame.PlanID); err != nil {
				c.reply(TypeError, map[string]string{"message": "plan not found", "planId": frame.PlanID})
				return
			}
		}
		c.sub.Join(WorkflowTopic(frame.PlanID))
		c.reply(TypeSubscribed, map[string]string{"planId": frame.PlanID})

	case ActionUnsubscribeWorkflow:
		c.sub.Leave(WorkflowTopic(frame.PlanID))
		c.reply(TypeUnsubscribed, map[string]string{"planId": frame.PlanID})

	case ActionSendMessage:
		onMessage := c.handler.cfg.OnMessage
		if onMessage == nil {
			c.reply(TypeError, map[string]string{"message": "messaging is not enabled"})
			return
		}
		result, err := onMessage(ctx, c.id, frame.PlanID, frame.Content)
		if err != nil {
			c.reply(TypeError, map[string]string{"message": err.Error()})
			return
		}
		c.reply(TypeMessageReceived, result)

	default:
		c.reply(TypeError, map[string]string{"message": "unknown action", "action": frame.Action})
	}
}

// reply queues a frame for this connection only. A slow client loses replies
// the same way it loses topic messages.
func (c *wsConn) reply(typ string, data any) {
	msg := Message{Type: typ, Data: data, Timestamp: time.Now().UTC()}
	select {
	case c.replies <- msg:
	default:
		c.sub.dropped.Add(1)
	}
}

func (c *wsConn) writePump() {
	ticker := time.NewTicker(c.handler.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.sub.C():
			if !ok {
				c.writeClose()
				return
			}
			if err := c.write(msg); err != nil {
				return
			}
		case msg := <-c.replies:
			if err := c.write(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.handler.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			c.writeClose()
			return
		}
	}
}

func (c *wsConn) write(msg Message) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.handler.cfg.WriteTimeout))
	if err := c.conn.WriteJSON(msg); err != nil {
		c.logger.Debug("websocket write failed", "error", err)
		return err
	}
	return nil
}

func (c *wsConn) writeClose() {
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.handler.cfg.WriteTimeout))
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
