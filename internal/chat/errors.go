package chat

import "errors"

var (
	ErrInvalidParticipants = errors.New("invalid participants")
	ErrUnknownUser         = errors.New("unknown user")
	ErrIdentityLookup      = errors.New("identity lookup failed")
	ErrPersistence         = errors.New("persistence failure")
	ErrMissingRoomID       = errors.New("missing room id")
	ErrNotRoomMember       = errors.New("not a room member")
	ErrSenderMismatch      = errors.New("sender does not match authenticated user")
	ErrInvalidMessage      = errors.New("invalid message")
	ErrSessionClosed       = errors.New("session closed")
	ErrRegistryClosed      = errors.New("registry closed")
)

// Razones legibles por máquina que viajan en errorMessage.
const (
	ReasonInvalidParticipants = "InvalidParticipants"
	ReasonUnknownUser         = "UnknownUser"
	ReasonIdentityLookup      = "IdentityLookupFailed"
	ReasonPersistence         = "PersistenceFailure"
	ReasonInvalidMessage      = "InvalidMessage"
	ReasonBadRequest          = "BadRequest"
	ReasonForbidden           = "Forbidden"
	ReasonUnavailable         = "Unavailable"
)

// errorEvent traduce un error del dominio al evento que recibe el cliente.
func errorEvent(err error) Event {
	switch {
	case errors.Is(err, ErrInvalidParticipants):
		return NewErrorEvent("Invalid participants", ReasonInvalidParticipants)
	case errors.Is(err, ErrSenderMismatch):
		return NewErrorEvent("You can only act as yourself", ReasonForbidden)
	case errors.Is(err, ErrUnknownUser):
		return NewErrorEvent("Invalid users", ReasonUnknownUser)
	case errors.Is(err, ErrIdentityLookup):
		return NewErrorEvent("Could not verify users", ReasonIdentityLookup)
	case errors.Is(err, ErrRegistryClosed):
		return NewErrorEvent("Server is shutting down", ReasonUnavailable)
	case errors.Is(err, ErrInvalidMessage):
		return NewErrorEvent("Message must not be empty or too long", ReasonInvalidMessage)
	default:
		return NewErrorEvent("Failed to send message", ReasonPersistence)
	}
}
