package chat

import (
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Conn es el extremo de transporte al que el registro entrega eventos.
// Deliver no debe bloquear: devuelve false si el evento no pudo encolarse.
type Conn interface {
	ID() string
	Deliver(evt Event) bool
}

// Registry mantiene qué conexiones pertenecen a qué salas.
// Un único RWMutex protege ambos índices: Broadcast encola bajo lectura y Leave
// elimina bajo escritura, así una difusión nunca ve una membresía a medias.
type Registry struct {
	logger *zap.Logger

	mu     sync.RWMutex
	rooms  map[string]map[string]Conn     // room -> connID -> conn
	conns  map[string]map[string]struct{} // connID -> rooms
	closed bool
}

func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		logger: logger,
		rooms:  make(map[string]map[string]Conn),
		conns:  make(map[string]map[string]struct{}),
	}
}

// Join agrega la conexión a la sala. Repetir el join es un no-op exitoso.
func (r *Registry) Join(conn Conn, room string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRegistryClosed
	}

	members, ok := r.rooms[room]
	if !ok {
		members = make(map[string]Conn)
		r.rooms[room] = members
	}
	if _, already := members[conn.ID()]; already {
		return nil
	}
	members[conn.ID()] = conn

	joined, ok := r.conns[conn.ID()]
	if !ok {
		joined = make(map[string]struct{})
		r.conns[conn.ID()] = joined
	}
	joined[room] = struct{}{}

	r.logger.Debug("connection joined room", zap.String("conn_id", conn.ID()), zap.String("room_id", room))
	return nil
}

// Leave quita la conexión de todas sus salas y devuelve cuáles eran.
func (r *Registry) Leave(conn Conn) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	joined, ok := r.conns[conn.ID()]
	if !ok {
		return nil
	}
	left := make([]string, 0, len(joined))
	for room := range joined {
		if members, ok := r.rooms[room]; ok {
			delete(members, conn.ID())
			if len(members) == 0 {
				delete(r.rooms, room)
			}
		}
		left = append(left, room)
	}
	delete(r.conns, conn.ID())
	sort.Strings(left)
	return left
}

// Broadcast entrega el evento a los miembros actuales de la sala y devuelve
// cuántos lo aceptaron. Una sala vacía es un no-op silencioso.
func (r *Registry) Broadcast(room string, evt Event) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	delivered := 0
	for id, conn := range r.rooms[room] {
		if conn.Deliver(evt) {
			delivered++
			continue
		}
		r.logger.Warn("event dropped", zap.String("conn_id", id), zap.String("room_id", room), zap.String("event", evt.Name))
	}
	return delivered
}

func (r *Registry) Members(room string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[room])
}

func (r *Registry) RoomsOf(conn Conn) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rooms := make([]string, 0, len(r.conns[conn.ID()]))
	for room := range r.conns[conn.ID()] {
		rooms = append(rooms, room)
	}
	sort.Strings(rooms)
	return rooms
}

// Shutdown vacía el registro y rechaza nuevos joins.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.rooms = make(map[string]map[string]Conn)
	r.conns = make(map[string]map[string]struct{})
	r.logger.Info("connection registry shut down")
}
