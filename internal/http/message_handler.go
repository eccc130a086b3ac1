package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"clubhub/internal/chat"
	"clubhub/internal/domain"
	"clubhub/internal/service"
)

// MessageHandler expone el historial de conversaciones.
type MessageHandler struct {
	logger   *zap.Logger
	messages *service.MessageService
}

func NewMessageHandler(logger *zap.Logger, messages *service.MessageService) *MessageHandler {
	return &MessageHandler{logger: logger, messages: messages}
}

// GetMessages maneja GET /api/messages?roomId=...
// Sólo los dos participantes de la sala pueden leerla.
func (h *MessageHandler) GetMessages(c *gin.Context) {
	user, ok := GetAuthUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "unauthorized"})
		return
	}
	roomID := c.Query("roomId")
	views, err := h.messages.ListRoomAs(c.Request.Context(), user.ID, roomID)
	h.respond(c, roomID, views, err)
}

// GetConversation maneja GET /api/messages/with/:userId.
func (h *MessageHandler) GetConversation(c *gin.Context) {
	user, ok := GetAuthUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "unauthorized"})
		return
	}
	other := c.Param("userId")
	views, err := h.messages.ListConversation(c.Request.Context(), user.ID, other)
	h.respond(c, other, views, err)
}

func (h *MessageHandler) respond(c *gin.Context, key string, views []domain.MessageView, err error) {
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrMissingRoomID):
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "RoomId is required"})
		case errors.Is(err, chat.ErrNotRoomMember):
			c.JSON(http.StatusForbidden, gin.H{"success": false, "message": "You are not a participant of this room"})
		case errors.Is(err, chat.ErrInvalidParticipants):
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid participants"})
		default:
			h.logger.Error("list messages failed", zap.Error(err), zap.String("key", key))
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Unknown error occurred while getting messages"})
		}
		return
	}

	message := "Messages fetched successfully"
	if len(views) == 0 {
		message = "No messages found"
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "messages": views, "message": message})
}
