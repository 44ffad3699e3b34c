// Package runtime owns the transient connection state: which sockets belong to
// which users, which rooms they joined, and the fan-out path events take to
// reach them. It contains no business rules.
package runtime

import (
	"chatline/apperrors"
	"chatline/contract"
	"chatline/domain"
	"fmt"
	"sync"
)

type connSet map[string]struct{}

// Registry is the session registry. It is the single mutable map of live
// connections, passed explicitly to whoever needs it rather than living in a
// package-level variable. Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*entry          // connID -> session + sink
	rooms    map[domain.RoomKey]connSet // room -> connIDs
}

type entry struct {
	session *domain.Session
	sink    contract.EventSink
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*entry),
		rooms:    make(map[domain.RoomKey]connSet),
	}
}

// Register binds a connection to its authenticated user. Registering an
// already-registered connection replaces its sink and keeps its rooms.
func (r *Registry) Register(connID, userID string, sink contract.EventSink) *domain.Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.sessions[connID]; ok {
		e.sink = sink
		return e.session
	}
	session := domain.NewSession(connID, userID)
	r.sessions[connID] = &entry{session: session, sink: sink}
	return session
}

// Join subscribes a registered connection to a room. Joining a room twice is
// a no-op; joining before registering fails.
func (r *Registry) Join(connID string, room domain.RoomKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[connID]
	if !ok {
		return fmt.Errorf("%w: connection %s", apperrors.ErrNotAuthenticated, connID)
	}
	e.session.Rooms[room] = struct{}{}
	if _, ok := r.rooms[room]; !ok {
		r.rooms[room] = make(connSet)
	}
	r.rooms[room][connID] = struct{}{}
	return nil
}

// Leave removes one room subscription. Unknown connections or rooms are a
// no-op.
func (r *Registry) Leave(connID string, room domain.RoomKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(connID, room)
}

func (r *Registry) leaveLocked(connID string, room domain.RoomKey) {
	if e, ok := r.sessions[connID]; ok {
		delete(e.session.Rooms, room)
	}
	if members, ok := r.rooms[room]; ok {
		delete(members, connID)
		// No empty sets left behind; rooms disappear with their last member.
		if len(members) == 0 {
			delete(r.rooms, room)
		}
	}
}

// Unregister drops the session and every room subscription it holds, in one
// critical section: no subscription outlives its session. Idempotent.
func (r *Registry) Unregister(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[connID]
	if !ok {
		return
	}
	for room := range e.session.Rooms {
		if members, ok := r.rooms[room]; ok {
			delete(members, connID)
			if len(members) == 0 {
				delete(r.rooms, room)
			}
		}
	}
	delete(r.sessions, connID)
}

// MembersOf returns the connection ids currently subscribed to a room.
func (r *Registry) MembersOf(room domain.RoomKey) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, ok := r.rooms[room]
	if !ok {
		return nil
	}
	connIDs := make([]string, 0, len(members))
	for connID := range members {
		connIDs = append(connIDs, connID)
	}
	return connIDs
}

// SinksFor resolves a room to the live sinks behind it. Two-step lookup: the
// room set names connections, the session directory resolves their sinks, so
// a connection in many rooms is managed in a single place.
func (r *Registry) SinksFor(room domain.RoomKey) []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, ok := r.rooms[room]
	if !ok {
		return nil
	}
	var sinks []contract.EventSink
	for connID := range members {
		if e, exists := r.sessions[connID]; exists {
			sinks = append(sinks, e.sink)
		}
	}
	return sinks
}

// EvictRoom force-removes a room from every session that holds it. Used when
// a group is deleted so no later fan-out can target the dead room.
func (r *Registry) EvictRoom(room domain.RoomKey) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[room]
	if !ok {
		return
	}
	for connID := range members {
		if e, exists := r.sessions[connID]; exists {
			delete(e.session.Rooms, room)
		}
	}
	delete(r.rooms, room)
}
