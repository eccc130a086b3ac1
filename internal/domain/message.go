package domain

import "time"

// Message es un mensaje directo persistido. Nunca se modifica ni se borra.
type Message struct {
	ID         string    `json:"_id"`
	FromUserID string    `json:"fromUserId"`
	ToUserID   string    `json:"toUserId"`
	RoomID     string    `json:"roomId"`
	Body       string    `json:"message"`
	CreatedAt  time.Time `json:"createdAt"`
}

// MessageView es un mensaje con remitente y destinatario resueltos para lectura.
type MessageView struct {
	ID        string      `json:"_id"`
	From      UserSummary `json:"fromUserId"`
	To        UserSummary `json:"toUserId"`
	Body      string      `json:"message"`
	CreatedAt time.Time   `json:"createdAt"`
}
