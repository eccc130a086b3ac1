package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"clubhub/internal/domain"
)

// IdentityResolver confirma que un usuario existe.
type IdentityResolver interface {
	Exists(ctx context.Context, userID string) (bool, error)
}

// MessageStore persiste mensajes en orden de llegada por sala.
type MessageStore interface {
	Append(ctx context.Context, msg domain.Message) error
}

const defaultMaxMessageLength = 2000

// Handler contiene las dependencias compartidas por todas las sesiones.
type Handler struct {
	logger   *zap.Logger
	resolver IdentityResolver
	store    MessageStore
	registry *Registry
	clock    Clock
	rooms    *roomLocks
	maxBody  int
}

type HandlerOption func(*Handler)

func WithClock(clock Clock) HandlerOption {
	return func(h *Handler) {
		if clock != nil {
			h.clock = clock
		}
	}
}

func WithMaxMessageLength(n int) HandlerOption {
	return func(h *Handler) {
		if n > 0 {
			h.maxBody = n
		}
	}
}

func NewHandler(logger *zap.Logger, resolver IdentityResolver, store MessageStore, registry *Registry, opts ...HandlerOption) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{
		logger:   logger,
		resolver: resolver,
		store:    store,
		registry: registry,
		clock:    NewMonotonicClock(),
		rooms:    newRoomLocks(),
		maxBody:  defaultMaxMessageLength,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type SessionOption func(*Session)

// WithIdentity ata la sesión a un usuario autenticado: fromUserId debe coincidir.
func WithIdentity(userID string) SessionOption {
	return func(s *Session) {
		s.identity = strings.TrimSpace(userID)
	}
}

// NewSession crea la máquina de estados de una conexión recién aceptada.
func (h *Handler) NewSession(conn Conn, opts ...SessionOption) *Session {
	s := &Session{h: h, conn: conn, state: StateConnected}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// verifyParticipants resuelve ambas identidades en paralelo.
func (h *Handler) verifyParticipants(ctx context.Context, ids ...string) error {
	found := make([]bool, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	for i, id := range ids {
		g.Go(func() error {
			ok, err := h.resolver.Exists(gctx, id)
			if err != nil {
				return fmt.Errorf("%w: %s: %v", ErrIdentityLookup, id, err)
			}
			found[i] = ok
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for i, ok := range found {
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownUser, ids[i])
		}
	}
	return nil
}

// publish persiste y luego difunde, con la sala bloqueada durante ambos pasos
// para que el orden de entrega coincida con el orden guardado.
func (h *Handler) publish(ctx context.Context, room, fromUserID, toUserID, body string) (domain.Message, error) {
	unlock := h.rooms.lock(room)
	defer unlock()

	msg := domain.Message{
		ID:         uuid.NewString(),
		FromUserID: fromUserID,
		ToUserID:   toUserID,
		RoomID:     room,
		Body:       body,
		CreatedAt:  h.clock.Now(),
	}
	// La escritura no se cancela si el remitente se desconecta.
	if err := h.store.Append(context.WithoutCancel(ctx), msg); err != nil {
		h.logger.Error("persist message failed", zap.Error(err), zap.String("room_id", room), zap.String("from_user_id", fromUserID))
		return domain.Message{}, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	delivered := h.registry.Broadcast(room, Event{
		Name:    EventMessageReceived,
		Payload: MessageReceivedPayload{FromUserID: msg.FromUserID, Message: msg.Body},
	})
	h.logger.Debug("message published",
		zap.String("message_id", msg.ID),
		zap.String("room_id", room),
		zap.Int("delivered", delivered),
	)
	return msg, nil
}

type State int

const (
	StateConnected State = iota
	StateInRoom
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateInRoom:
		return "in_room"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session es el estado de protocolo de una conexión. El transporte debe invocar
// sus operaciones de a una por conexión; Disconnect puede llegar en cualquier momento.
type Session struct {
	h        *Handler
	conn     Conn
	identity string

	mu    sync.Mutex
	state State
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Identity devuelve el usuario al que está atada la sesión, o "" si es anónima.
func (s *Session) Identity() string { return s.identity }

func (s *Session) Rooms() []string {
	return s.h.registry.RoomsOf(s.conn)
}

// Join valida ambos usuarios y registra la conexión en su sala.
func (s *Session) Join(ctx context.Context, fromUserID, toUserID string) error {
	if s.State() == StateClosed {
		return ErrSessionClosed
	}
	if err := s.checkSender(fromUserID); err != nil {
		return s.fail(err)
	}
	room, err := DeriveRoom(fromUserID, toUserID)
	if err != nil {
		return s.fail(err)
	}
	if err := s.h.verifyParticipants(ctx, strings.TrimSpace(fromUserID), strings.TrimSpace(toUserID)); err != nil {
		return s.fail(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return ErrSessionClosed
	}
	if err := s.h.registry.Join(s.conn, room); err != nil {
		s.conn.Deliver(errorEvent(err))
		return err
	}
	s.state = StateInRoom
	s.h.logger.Info("user joined room",
		zap.String("conn_id", s.conn.ID()),
		zap.String("from_user_id", fromUserID),
		zap.String("room_id", room),
	)
	return nil
}

// Send persiste el mensaje y lo difunde a la sala, incluido el remitente.
// No requiere un join previo.
func (s *Session) Send(ctx context.Context, fromUserID, toUserID, body string) (domain.Message, error) {
	if s.State() == StateClosed {
		return domain.Message{}, ErrSessionClosed
	}
	if err := s.checkSender(fromUserID); err != nil {
		return domain.Message{}, s.fail(err)
	}
	if strings.TrimSpace(body) == "" {
		return domain.Message{}, s.fail(fmt.Errorf("%w: empty body", ErrInvalidMessage))
	}
	if utf8.RuneCountInString(body) > s.h.maxBody {
		return domain.Message{}, s.fail(fmt.Errorf("%w: body longer than %d", ErrInvalidMessage, s.h.maxBody))
	}
	room, err := DeriveRoom(fromUserID, toUserID)
	if err != nil {
		return domain.Message{}, s.fail(err)
	}
	from := strings.TrimSpace(fromUserID)
	to := strings.TrimSpace(toUserID)
	if err := s.h.verifyParticipants(ctx, from, to); err != nil {
		return domain.Message{}, s.fail(err)
	}

	msg, err := s.h.publish(ctx, room, from, to, body)
	if err != nil {
		return domain.Message{}, s.fail(err)
	}
	return msg, nil
}

// Disconnect saca la conexión de todas sus salas. Es idempotente.
func (s *Session) Disconnect(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return
	}
	s.state = StateClosed
	rooms := s.h.registry.Leave(s.conn)
	s.h.logger.Info("connection closed",
		zap.String("conn_id", s.conn.ID()),
		zap.String("reason", reason),
		zap.Strings("rooms", rooms),
	)
}

// Dispatch decodifica un evento entrante y ejecuta la operación correspondiente.
func (s *Session) Dispatch(ctx context.Context, event string, data json.RawMessage) error {
	switch event {
	case EventJoinRoom:
		var p JoinRoomPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return s.badRequest("Invalid joinRoom payload", err)
		}
		return s.Join(ctx, p.FromUserID, p.ToUserID)
	case EventSendMessage:
		var p SendMessagePayload
		if err := json.Unmarshal(data, &p); err != nil {
			return s.badRequest("Invalid sendMessage payload", err)
		}
		_, err := s.Send(ctx, p.FromUserID, p.ToUserID, p.Message)
		return err
	default:
		return s.badRequest("Unknown event", fmt.Errorf("unknown event %q", event))
	}
}

func (s *Session) checkSender(fromUserID string) error {
	if s.identity != "" && strings.TrimSpace(fromUserID) != s.identity {
		return fmt.Errorf("%w: %s", ErrSenderMismatch, strings.TrimSpace(fromUserID))
	}
	return nil
}

func (s *Session) fail(err error) error {
	if s.State() != StateClosed {
		s.conn.Deliver(errorEvent(err))
	}
	s.h.logger.Debug("operation rejected", zap.String("conn_id", s.conn.ID()), zap.Error(err))
	return err
}

func (s *Session) badRequest(message string, err error) error {
	if s.State() == StateClosed {
		return ErrSessionClosed
	}
	s.conn.Deliver(NewErrorEvent(message, ReasonBadRequest))
	return err
}
