package runtime

import (
	"sync"

	"presence-lab/contract"
	"presence-lab/domain"
)

type Set map[domain.UserID]struct{}

// Registry is the directory of live connections: which sink speaks for
// which user, and which users are members of which room. It also keeps
// the reverse user-to-rooms index so that disconnect cleanup touches
// only the rooms the user was actually in.
type Registry struct {
	mu          sync.RWMutex
	sessions    map[domain.UserID]contract.EventSink
	roomMembers map[domain.RoomID]Set
	userRooms   map[domain.UserID]map[domain.RoomID]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		sessions:    make(map[domain.UserID]contract.EventSink),
		roomMembers: make(map[domain.RoomID]Set),
		userRooms:   make(map[domain.UserID]map[domain.RoomID]struct{}),
	}
}

// GetSinksForRoom retrieves all active communication channels for a specific room.
// It performs a two-step lookup:
// 1. Identifies user IDs associated with the room via roomMembers.
// 2. Resolves those IDs into actual EventSinks using the sessions map.
//
// This decoupled approach ensures that even if a user is in multiple rooms,
// their connection (Sink) is managed in a single place.
// Returns nil if the room doesn't exist or has no members.
func (r *Registry) GetSinksForRoom(roomID domain.RoomID) []contract.EventSink {
	return r.GetSinksForRoomExcept(roomID, "")
}

// GetSinksForRoomExcept is GetSinksForRoom minus one member, typically
// the user whose action is being announced.
func (r *Registry) GetSinksForRoomExcept(roomID domain.RoomID, excluded domain.UserID) []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, ok := r.roomMembers[roomID]
	if !ok {
		return nil
	}
	var activeSinks []contract.EventSink
	for userID := range members {
		if userID == excluded {
			continue
		}
		if sink, exists := r.sessions[userID]; exists {
			activeSinks = append(activeSinks, sink)
		}
	}
	return activeSinks
}

// Subscribe registers a user's active connection and assigns them to a room.
// If the room does not yet exist in the registry, it is initialized on the fly.
// Subscribing the same user again replaces the stored sink, so a reconnect
// transparently supersedes the old connection.
func (r *Registry) Subscribe(userID domain.UserID, roomID domain.RoomID, sink contract.EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[userID] = sink

	if _, ok := r.roomMembers[roomID]; !ok {
		r.roomMembers[roomID] = make(Set)
	}
	r.roomMembers[roomID][userID] = struct{}{}

	if _, ok := r.userRooms[userID]; !ok {
		r.userRooms[userID] = make(map[domain.RoomID]struct{})
	}
	r.userRooms[userID][roomID] = struct{}{}
}

// Unsubscribe removes a user from one room. The session itself is only
// dropped once the user is in no room at all. No empty sets are left
// behind in either index.
func (r *Registry) Unsubscribe(userID domain.UserID, roomID domain.RoomID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unsubscribeLocked(userID, roomID)
}

// UnsubscribeAll disconnects a user from every room they were in and
// returns those rooms, so the caller can run per-room cleanup.
func (r *Registry) UnsubscribeAll(userID domain.UserID) []domain.RoomID {
	r.mu.Lock()
	defer r.mu.Unlock()

	rooms := make([]domain.RoomID, 0, len(r.userRooms[userID]))
	for roomID := range r.userRooms[userID] {
		rooms = append(rooms, roomID)
	}
	for _, roomID := range rooms {
		r.unsubscribeLocked(userID, roomID)
	}
	return rooms
}

func (r *Registry) unsubscribeLocked(userID domain.UserID, roomID domain.RoomID) {
	if members, ok := r.roomMembers[roomID]; ok {
		delete(members, userID)
		if len(members) == 0 {
			delete(r.roomMembers, roomID)
		}
	}
	if rooms, ok := r.userRooms[userID]; ok {
		delete(rooms, roomID)
		if len(rooms) == 0 {
			delete(r.userRooms, userID)
			delete(r.sessions, userID)
		}
	}
}
