package service

import (
	"context"
	"errors"
	"strings"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"clubhub/internal/chat"
	"clubhub/internal/domain"
	"clubhub/internal/repository"
)

// userSummaryReader resuelve nombre y avatar para la vista de lectura.
type userSummaryReader interface {
	GetSummaries(ctx context.Context, ids []string) (map[string]domain.UserSummary, error)
}

// MessageService expone el historial de las conversaciones.
type MessageService struct {
	logger   *zap.Logger
	messages repository.MessageRepository
	users    userSummaryReader
}

var ErrMessageServiceNotConfigured = errors.New("message service not configured")

func NewMessageService(logger *zap.Logger, messages repository.MessageRepository, users userSummaryReader) *MessageService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MessageService{logger: logger, messages: messages, users: users}
}

// ListRoom devuelve la conversación completa de una sala, de la más antigua a la
// más reciente, con remitente y destinatario resueltos.
func (s *MessageService) ListRoom(ctx context.Context, roomID string) ([]domain.MessageView, error) {
	if s == nil || s.messages == nil || s.users == nil {
		return nil, ErrMessageServiceNotConfigured
	}
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		return nil, chat.ErrMissingRoomID
	}

	msgs, err := s.messages.ListByRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return []domain.MessageView{}, nil
	}

	ids := lo.Uniq(lo.FlatMap(msgs, func(m domain.Message, _ int) []string {
		return []string{m.FromUserID, m.ToUserID}
	}))
	summaries, err := s.users.GetSummaries(ctx, ids)
	if err != nil {
		return nil, err
	}
	summaryOf := func(id string) domain.UserSummary {
		if sum, ok := summaries[id]; ok {
			return sum
		}
		s.logger.Warn("message references unknown user", zap.String("user_id", id), zap.String("room_id", roomID))
		return domain.UserSummary{ID: id}
	}

	return lo.Map(msgs, func(m domain.Message, _ int) domain.MessageView {
		return domain.MessageView{
			ID:        m.ID,
			From:      summaryOf(m.FromUserID),
			To:        summaryOf(m.ToUserID),
			Body:      m.Body,
			CreatedAt: m.CreatedAt,
		}
	}), nil
}

// ListRoomAs es ListRoom restringido a los participantes de la sala.
func (s *MessageService) ListRoomAs(ctx context.Context, viewerID, roomID string) ([]domain.MessageView, error) {
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		return nil, chat.ErrMissingRoomID
	}
	if !chat.IsRoomMember(roomID, viewerID) {
		return nil, chat.ErrNotRoomMember
	}
	return s.ListRoom(ctx, roomID)
}

// ListConversation lista la sala que comparten dos usuarios.
func (s *MessageService) ListConversation(ctx context.Context, userID, otherUserID string) ([]domain.MessageView, error) {
	room, err := chat.DeriveRoom(userID, otherUserID)
	if err != nil {
		return nil, err
	}
	return s.ListRoom(ctx, room)
}
