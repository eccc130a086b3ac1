package http

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"clubhub/internal/chat"
	"clubhub/internal/config"
	"clubhub/internal/service"
)

// envelope es el formato de cada frame: {"event": "...", "data": {...}}.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// wsClient adapta una conexión gorilla a chat.Conn.
type wsClient struct {
	id     string
	conn   *websocket.Conn
	cfg    config.WebSocketConfig
	logger *zap.Logger

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

func newWSClient(id string, conn *websocket.Conn, cfg config.WebSocketConfig, logger *zap.Logger) *wsClient {
	return &wsClient{
		id:     id,
		conn:   conn,
		cfg:    cfg,
		logger: logger,
		send:   make(chan []byte, cfg.SendBuffer),
	}
}

func (c *wsClient) ID() string { return c.id }

// Deliver encola sin bloquear. Con el buffer lleno la conexión se cierra:
// un cliente lento pierde la conexión, nunca eventos intermedios.
func (c *wsClient) Deliver(evt chat.Event) bool {
	data, err := json.Marshal(evt)
	if err != nil {
		c.logger.Error("encode event failed", zap.Error(err), zap.String("conn_id", c.id), zap.String("event", evt.Name))
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		c.logger.Warn("send buffer full, closing connection", zap.String("conn_id", c.id))
		c.closeLocked()
		return false
	}
}

func (c *wsClient) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *wsClient) closeLocked() {
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// readPump procesa los frames de a uno, en orden de llegada.
func (c *wsClient) readPump(ctx context.Context, session *chat.Session) {
	reason := "client closed"
	defer func() {
		session.Disconnect(reason)
		c.close()
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(c.cfg.MaxFrameBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.logger.Info("websocket read error", zap.String("conn_id", c.id), zap.Error(err))
				reason = err.Error()
			}
			return
		}

		var env envelope
		if err := json.Unmarshal(frame, &env); err != nil || env.Event == "" {
			c.Deliver(chat.NewErrorEvent("Invalid message format", chat.ReasonBadRequest))
			continue
		}

		opCtx := ctx
		if env.Event == chat.EventJoinRoom {
			opCtx = service.BypassIdentityCache(ctx)
		}
		if err := session.Dispatch(opCtx, env.Event, env.Data); err != nil {
			c.logger.Debug("event rejected", zap.String("conn_id", c.id), zap.String("event", env.Event), zap.Error(err))
		}
	}
}

// writePump es el único escritor de la conexión.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
