// Package runtime owns the mutable presence state and its propagation.
// It orchestrates timers, eviction and broadcasts without containing
// transport or UI logic.
package runtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"presence-lab/contract"
	"presence-lab/domain"
	"presence-lab/domain/event"
	"presence-lab/errors"
)

const DefaultTypingTTL = 10 * time.Second

// liveEntry pairs a TypingEntry with the timer currently armed for it.
// The timer is owned by the coordinator mutex: it is only armed, stopped
// or replaced while the lock is held.
type liveEntry struct {
	domain.TypingEntry
	timer contract.Timer
}

// Coordinator is the single source of truth for "who is typing where".
// One instance is owned by the composition root; there is no package
// level state, so tests can run several isolated coordinators.
//
// Every mutation for a given (room, user) pair is serialized behind one
// mutex. Timer fires re-enter through expire and take the same lock, so
// a fire racing a refresh or a removal can never observe half a
// transition. A fire that lost such a race is detected by comparing
// generations and dropped silently.
type Coordinator struct {
	mu          sync.Mutex
	log         *slog.Logger
	clock       contract.Clock
	broadcaster contract.Broadcaster
	ttl         time.Duration
	rooms       map[domain.RoomID]map[domain.UserID]*liveEntry
	generations uint64
	closed      bool
}

func NewCoordinator(log *slog.Logger, clock contract.Clock, broadcaster contract.Broadcaster, ttl time.Duration) *Coordinator {
	if ttl <= 0 {
		ttl = DefaultTypingTTL
	}
	return &Coordinator{
		log:         log,
		clock:       clock,
		broadcaster: broadcaster,
		ttl:         ttl,
		rooms:       make(map[domain.RoomID]map[domain.UserID]*liveEntry),
	}
}

// Begin records that a user started (or is still) typing in a room and
// arms the expiry timer. A repeated Begin refreshes the deadline of the
// existing entry instead of duplicating it; StartedAt keeps the time of
// the first keystroke. The typing announcement is re-emitted on every
// call, refreshes included, so observers that missed one keep hearing
// about the active user.
//
// Returns false on missing ids or when the announcement could not be
// delivered. State is committed either way: a failed broadcast never
// rolls back the entry.
func (c *Coordinator) Begin(roomID domain.RoomID, userID domain.UserID, displayName string) bool {
	if roomID == "" {
		c.log.Warn("Rejecting typing start", "user", userID, "error", errors.ErrEmptyRoomID)
		return false
	}
	if userID == "" {
		c.log.Warn("Rejecting typing start", "room", roomID, "error", errors.ErrEmptyUserID)
		return false
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.log.Warn("Rejecting typing start", "room", roomID, "error", errors.ErrCoordinatorClosed)
		return false
	}

	members, ok := c.rooms[roomID]
	if !ok {
		members = make(map[domain.UserID]*liveEntry)
		c.rooms[roomID] = members
	}

	now := c.clock.Now()
	e, ok := members[userID]
	if ok {
		// Refresh path. Stop is advisory: the old callback may already be
		// blocked on the mutex. The generation bump below is what actually
		// neutralizes it.
		e.timer.Stop()
		e.DisplayName = displayName
	} else {
		e = &liveEntry{TypingEntry: domain.TypingEntry{
			UserID:      userID,
			DisplayName: displayName,
			StartedAt:   now,
		}}
		members[userID] = e
	}

	c.generations++
	e.Generation = c.generations
	gen := e.Generation
	e.timer = c.clock.AfterFunc(c.ttl, func() {
		c.expire(roomID, userID, gen)
	})
	c.mu.Unlock()

	return c.emit(roomID, userID, event.UserTyping{
		ID:       uuid.New(),
		Room:     roomID,
		User:     userID,
		UserName: displayName,
		Typing:   true,
		At:       now,
	})
}

// End removes a user's typing entry and announces the stop to the rest
// of the room, using the display name cached at Begin time (the user may
// already be unreachable). Returns true iff an entry was actually removed.
func (c *Coordinator) End(roomID domain.RoomID, userID domain.UserID) bool {
	if roomID == "" || userID == "" {
		return false
	}

	c.mu.Lock()
	e, ok := c.removeLocked(roomID, userID)
	now := c.clock.Now()
	c.mu.Unlock()
	if !ok {
		return false
	}

	c.emit(roomID, userID, stopped(roomID, e.TypingEntry, now))
	return true
}

// expire is the timer fire path: the client went silent for the whole
// TTL, which is treated exactly like an explicit End. A fire whose
// generation no longer matches lost a race against a refresh or a
// removal and is discarded without any broadcast.
func (c *Coordinator) expire(roomID domain.RoomID, userID domain.UserID, gen uint64) {
	c.mu.Lock()
	members, ok := c.rooms[roomID]
	if !ok {
		c.mu.Unlock()
		return
	}
	e, ok := members[userID]
	if !ok || e.Generation != gen {
		// Expected race outcome, not an error.
		c.mu.Unlock()
		return
	}

	delete(members, userID)
	if len(members) == 0 {
		delete(c.rooms, roomID)
	}
	now := c.clock.Now()
	c.mu.Unlock()

	c.log.Debug("Typing entry expired", "room", roomID, "user", userID)
	c.emit(roomID, userID, stopped(roomID, e.TypingEntry, now))
}

// IsTyping is a pure membership test.
func (c *Coordinator) IsTyping(roomID domain.RoomID, userID domain.UserID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	members, ok := c.rooms[roomID]
	if !ok {
		return false
	}
	_, ok = members[userID]
	return ok
}

// Query returns a snapshot of the room's live entries at call time.
// Mutations after Query is answered are not reflected in the result.
func (c *Coordinator) Query(roomID domain.RoomID) []domain.TypingSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	members, ok := c.rooms[roomID]
	if !ok {
		return nil
	}
	return lo.MapToSlice(members, func(_ domain.UserID, e *liveEntry) domain.TypingSnapshot {
		return e.Snapshot()
	})
}

// PurgeUser runs the End sequence for every room holding an entry for
// the user. It is called on disconnect and is a no-op for unknown users.
func (c *Coordinator) PurgeUser(userID domain.UserID) {
	if userID == "" {
		return
	}

	type removal struct {
		room  domain.RoomID
		entry domain.TypingEntry
	}

	c.mu.Lock()
	var removed []removal
	for roomID := range c.rooms {
		if e, ok := c.removeLocked(roomID, userID); ok {
			removed = append(removed, removal{room: roomID, entry: e.TypingEntry})
		}
	}
	now := c.clock.Now()
	c.mu.Unlock()

	for _, r := range removed {
		c.log.Debug("Purged typing entry on disconnect", "room", r.room, "user", userID)
		c.emit(r.room, userID, stopped(r.room, r.entry, now))
	}
}

// PurgeRoom force-stops every entry in a room and drops the room set,
// e.g. when the room itself is deleted or archived.
func (c *Coordinator) PurgeRoom(roomID domain.RoomID) {
	if roomID == "" {
		return
	}

	c.mu.Lock()
	members, ok := c.rooms[roomID]
	if !ok {
		c.mu.Unlock()
		return
	}
	entries := make([]domain.TypingEntry, 0, len(members))
	for _, e := range members {
		e.timer.Stop()
		entries = append(entries, e.TypingEntry)
	}
	delete(c.rooms, roomID)
	now := c.clock.Now()
	c.mu.Unlock()

	for _, e := range entries {
		c.emit(roomID, e.UserID, stopped(roomID, e, now))
	}
}

// Stats derives a diagnostic snapshot of the current state. No side effects.
func (c *Coordinator) Stats() domain.Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := domain.Stats{
		TotalRooms: len(c.rooms),
		Rooms:      make(map[domain.RoomID]domain.RoomStats, len(c.rooms)),
	}
	for roomID, members := range c.rooms {
		stats.TotalTypingUsers += len(members)
		stats.Rooms[roomID] = domain.RoomStats{
			Count:   len(members),
			UserIDs: lo.Keys(members),
		}
	}
	return stats
}

// Sweep force-expires every entry older than olderThan, regardless of
// its timer, and reports how many were evicted. It backstops the
// per-entry timers against timer subsystem anomalies; under normal
// operation it finds nothing.
func (c *Coordinator) Sweep(olderThan time.Duration) int {
	type removal struct {
		room  domain.RoomID
		entry domain.TypingEntry
	}

	c.mu.Lock()
	cutoff := c.clock.Now().Add(-olderThan)
	var removed []removal
	for roomID, members := range c.rooms {
		for userID, e := range members {
			if e.StartedAt.After(cutoff) {
				continue
			}
			e.timer.Stop()
			delete(members, userID)
			removed = append(removed, removal{room: roomID, entry: e.TypingEntry})
		}
		if len(members) == 0 {
			delete(c.rooms, roomID)
		}
	}
	now := c.clock.Now()
	c.mu.Unlock()

	for _, r := range removed {
		c.log.Info("Force-expired stale typing entry",
			"room", r.room, "user", r.entry.UserID, "started_at", r.entry.StartedAt)
		c.emit(r.room, r.entry.UserID, stopped(r.room, r.entry, now))
	}
	return len(removed)
}

// Close stops all outstanding timers and rejects further Begin calls.
// No stop events are emitted: the process is going away and typing
// state dies with it.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	for _, members := range c.rooms {
		for _, e := range members {
			e.timer.Stop()
		}
	}
	c.rooms = make(map[domain.RoomID]map[domain.UserID]*liveEntry)
}

// removeLocked deletes the entry, stops its timer and garbage collects
// the room set when it becomes empty. Caller holds the mutex.
func (c *Coordinator) removeLocked(roomID domain.RoomID, userID domain.UserID) (*liveEntry, bool) {
	members, ok := c.rooms[roomID]
	if !ok {
		return nil, false
	}
	e, ok := members[userID]
	if !ok {
		return nil, false
	}
	e.timer.Stop()
	delete(members, userID)
	if len(members) == 0 {
		delete(c.rooms, roomID)
	}
	return e, true
}

func (c *Coordinator) emit(roomID domain.RoomID, actor domain.UserID, e event.UserTyping) bool {
	if err := c.broadcaster.EmitExcept(context.Background(), roomID, actor, e); err != nil {
		c.log.Error("Presence broadcast failed", "room", roomID, "user", actor, "error", err)
		return false
	}
	return true
}

func stopped(roomID domain.RoomID, e domain.TypingEntry, at time.Time) event.UserTyping {
	return event.UserTyping{
		ID:       uuid.New(),
		Room:     roomID,
		User:     e.UserID,
		UserName: e.DisplayName,
		Typing:   false,
		At:       at,
	}
}
