package chat

import (
	"fmt"
	"sort"
	"strings"
)

// RoomSeparator une los dos participantes de una sala.
const RoomSeparator = "_"

// DeriveRoom devuelve la clave canónica de la sala entre dos usuarios.
// El orden de los argumentos no importa. Los mensajes a uno mismo se rechazan.
func DeriveRoom(a, b string) (string, error) {
	a = strings.TrimSpace(a)
	b = strings.TrimSpace(b)
	if a == "" || b == "" {
		return "", fmt.Errorf("%w: missing participant", ErrInvalidParticipants)
	}
	if strings.Contains(a, RoomSeparator) || strings.Contains(b, RoomSeparator) {
		return "", fmt.Errorf("%w: participant contains %q", ErrInvalidParticipants, RoomSeparator)
	}
	if a == b {
		return "", fmt.Errorf("%w: self room", ErrInvalidParticipants)
	}
	ids := []string{a, b}
	sort.Strings(ids)
	return strings.Join(ids, RoomSeparator), nil
}

// RoomParticipants separa la clave de una sala en sus dos participantes.
func RoomParticipants(room string) (string, string, error) {
	parts := strings.Split(strings.TrimSpace(room), RoomSeparator)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("%w: malformed room %q", ErrInvalidParticipants, room)
	}
	canonical, err := DeriveRoom(parts[0], parts[1])
	if err != nil {
		return "", "", err
	}
	if canonical != strings.TrimSpace(room) {
		return "", "", fmt.Errorf("%w: room %q is not canonical", ErrInvalidParticipants, room)
	}
	return parts[0], parts[1], nil
}

// IsRoomMember dice si userID es uno de los dos participantes de la sala.
func IsRoomMember(room, userID string) bool {
	a, b, err := RoomParticipants(room)
	if err != nil {
		return false
	}
	userID = strings.TrimSpace(userID)
	return userID != "" && (userID == a || userID == b)
}
