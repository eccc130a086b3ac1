package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"clubhub/internal/chat"
	"clubhub/internal/config"
)

// WSHandler acepta conexiones de chat y las conecta al manejador de sesiones.
type WSHandler struct {
	logger   *zap.Logger
	chat     *chat.Handler
	cfg      config.WebSocketConfig
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[string]*wsClient
	closing bool
	active  sync.WaitGroup
}

func NewWSHandler(logger *zap.Logger, chatH *chat.Handler, cfg config.WebSocketConfig, allowedOrigin string) *WSHandler {
	return &WSHandler{
		logger: logger,
		chat:   chatH,
		cfg:    cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigin),
		},
		clients: make(map[string]*wsClient),
	}
}

func originChecker(allowed string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || allowed == "*" || origin == allowed
	}
}

// Serve maneja GET /ws. Bloquea hasta que la conexión termina.
func (h *WSHandler) Serve(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := newWSClient(uuid.NewString(), conn, h.cfg, h.logger)
	if !h.track(client) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(h.cfg.WriteWait))
		_ = conn.Close()
		return
	}
	defer h.untrack(client)

	var opts []chat.SessionOption
	fields := []zap.Field{zap.String("conn_id", client.id), zap.String("remote", c.ClientIP())}
	if user, ok := GetAuthUser(c); ok {
		opts = append(opts, chat.WithIdentity(user.ID))
		fields = append(fields, zap.String("user_id", user.ID))
	}
	session := h.chat.NewSession(client, opts...)
	h.logger.Info("websocket connected", fields...)

	ctx, cancel := context.WithCancel(context.WithoutCancel(c.Request.Context()))
	defer cancel()

	go client.writePump()
	client.readPump(ctx, session)
}

// Shutdown deja de aceptar conexiones, cierra las abiertas y espera a que cada
// una termine el evento que estaba procesando.
func (h *WSHandler) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closing = true
	h.mu.Unlock()

	h.CloseAll()

	done := make(chan struct{})
	go func() {
		h.active.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CloseAll cierra todas las conexiones abiertas.
func (h *WSHandler) CloseAll() {
	h.mu.Lock()
	clients := make([]*wsClient, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
	h.logger.Info("websocket connections closed", zap.Int("count", len(clients)))
}

func (h *WSHandler) Connections() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *WSHandler) track(c *wsClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closing {
		return false
	}
	h.active.Add(1)
	h.clients[c.id] = c
	return true
}

func (h *WSHandler) untrack(c *wsClient) {
	h.mu.Lock()
	delete(h.clients, c.id)
	h.mu.Unlock()
	h.active.Done()
}
