package chat

// Eventos del protocolo de chat.
const (
	EventJoinRoom        = "joinRoom"
	EventSendMessage     = "sendMessage"
	EventMessageReceived = "messageReceived"
	EventErrorMessage    = "errorMessage"
)

// Event es lo que se entrega a una conexión; el transporte decide cómo serializarlo.
type Event struct {
	Name    string `json:"event"`
	Payload any    `json:"data"`
}

type JoinRoomPayload struct {
	FromUserID string `json:"fromUserId"`
	ToUserID   string `json:"toUserId"`
}

type SendMessagePayload struct {
	FromUserID string `json:"fromUserId"`
	ToUserID   string `json:"toUserId"`
	Message    string `json:"message"`
}

type MessageReceivedPayload struct {
	FromUserID string `json:"fromUserId"`
	Message    string `json:"message"`
}

type ErrorPayload struct {
	Error  string `json:"error"`
	Reason string `json:"reason"`
}

func NewErrorEvent(message, reason string) Event {
	return Event{Name: EventErrorMessage, Payload: ErrorPayload{Error: message, Reason: reason}}
}
