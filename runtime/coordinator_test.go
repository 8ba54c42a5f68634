package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"

	"presence-lab/contract"
	"presence-lab/domain"
	"presence-lab/domain/event"
)

// fakeClock drives expiry deterministically: timers only fire when the
// test advances the clock past their deadline. Setting suspended
// simulates a timer subsystem that stopped firing, which is the
// anomaly the reaper sweep exists for.
type fakeClock struct {
	mu        sync.Mutex
	now       time.Time
	timers    []*fakeTimer
	suspended bool
}

type fakeTimer struct {
	deadline time.Time
	fn       func()
	stopped  bool
	fired    bool
}

func (t *fakeTimer) Stop() bool {
	t.stopped = true
	return !t.fired
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1700000000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, fn func()) contract.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{deadline: c.now.Add(d), fn: fn}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves the clock and fires every due, unstopped timer.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	var remaining []*fakeTimer
	for _, t := range c.timers {
		switch {
		case t.stopped:
		case !c.suspended && !t.deadline.After(c.now):
			t.fired = true
			due = append(due, t)
		default:
			remaining = append(remaining, t)
		}
	}
	c.timers = remaining
	c.mu.Unlock()

	// Fire outside the clock lock, like the runtime would.
	for _, t := range due {
		t.fn()
	}
}

// recordingBroadcaster keeps every emitted event and exclusion for assertions.
type recordingBroadcaster struct {
	mu       sync.Mutex
	events   []event.UserTyping
	excluded []domain.UserID
	err      error
}

func (b *recordingBroadcaster) EmitExcept(_ context.Context, _ domain.RoomID, excluded domain.UserID, e event.DomainEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e.(event.UserTyping))
	b.excluded = append(b.excluded, excluded)
	return b.err
}

func (b *recordingBroadcaster) Events() []event.UserTyping {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]event.UserTyping(nil), b.events...)
}

func newTestCoordinator(t *testing.T) (*Coordinator, *fakeClock, *recordingBroadcaster) {
	t.Helper()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	clock := newFakeClock()
	broadcaster := &recordingBroadcaster{}
	return NewCoordinator(log, clock, broadcaster, DefaultTypingTTL), clock, broadcaster
}

func Test_Begin_creates_entry_and_announces(t *testing.T) {
	req := require.New(t)
	coordinator, clock, broadcaster := newTestCoordinator(t)

	// Given nobody is typing
	req.False(coordinator.IsTyping("room1", "alice"))

	// When alice starts typing
	req.True(coordinator.Begin("room1", "alice", "Alice"))

	// Then she is the room's only live entry
	req.True(coordinator.IsTyping("room1", "alice"))
	snapshots := coordinator.Query("room1")
	req.Len(snapshots, 1)
	req.Equal(domain.UserID("alice"), snapshots[0].UserID)
	req.Equal("Alice", snapshots[0].DisplayName)
	req.Equal(clock.Now(), snapshots[0].StartedAt)

	// And the rest of the room heard about it, excluding alice herself
	events := broadcaster.Events()
	req.Len(events, 1)
	req.True(events[0].Typing)
	req.Equal("Alice", events[0].UserName)
	req.Equal(domain.UserID("alice"), broadcaster.excluded[0])
}

func Test_Begin_rejects_missing_ids(t *testing.T) {
	req := require.New(t)
	coordinator, _, broadcaster := newTestCoordinator(t)

	req.False(coordinator.Begin("", "alice", "Alice"))
	req.False(coordinator.Begin("room1", "", "Alice"))

	req.Empty(broadcaster.Events())
	req.Zero(coordinator.Stats().TotalRooms)
}

func TestCoordinator_RefreshKeepsSingleEntry(t *testing.T) {
	req := require.New(t)
	coordinator, clock, broadcaster := newTestCoordinator(t)

	startedAt := clock.Now()
	for i := 0; i < 5; i++ {
		req.True(coordinator.Begin("room1", "alice", "Alice"))
		clock.Advance(time.Second)
	}

	// One live entry, N announcements: a refresh re-announces but never duplicates
	snapshots := coordinator.Query("room1")
	req.Len(snapshots, 1)
	req.Len(broadcaster.Events(), 5)

	// StartedAt keeps the time of the first keystroke
	req.Equal(startedAt, snapshots[0].StartedAt)
	req.Equal(1, coordinator.Stats().TotalTypingUsers)
}

func TestCoordinator_ExpiryWithoutExplicitStop(t *testing.T) {
	req := require.New(t)
	coordinator, clock, broadcaster := newTestCoordinator(t)

	coordinator.Begin("room1", "alice", "Alice")
	req.True(coordinator.IsTyping("room1", "alice"))

	// The client goes silent for the whole TTL
	clock.Advance(DefaultTypingTTL)

	req.False(coordinator.IsTyping("room1", "alice"))
	req.Empty(coordinator.Query("room1"))
	req.Zero(coordinator.Stats().TotalRooms)

	events := broadcaster.Events()
	req.Len(events, 2)
	req.False(events[1].Typing)
	req.Equal("Alice", events[1].UserName)
}

func TestCoordinator_RefreshExtendsDeadline(t *testing.T) {
	req := require.New(t)
	coordinator, clock, broadcaster := newTestCoordinator(t)

	// t=0: first keystroke, expiry armed for t=10
	coordinator.Begin("room1", "alice", "Alice")

	// t=8: refresh, expiry re-armed for t=18
	clock.Advance(8 * time.Second)
	coordinator.Begin("room1", "alice", "Alice")

	// t=10: the original deadline passes without effect
	clock.Advance(2 * time.Second)
	req.True(coordinator.IsTyping("room1", "alice"))

	// No spurious stop was announced for the still-active user
	for _, e := range broadcaster.Events() {
		req.True(e.Typing)
	}

	// t=18: the refreshed deadline fires
	clock.Advance(8 * time.Second)
	req.False(coordinator.IsTyping("room1", "alice"))
}

func Test_End_uses_cached_display_name(t *testing.T) {
	req := require.New(t)
	coordinator, _, broadcaster := newTestCoordinator(t)

	coordinator.Begin("room1", "alice", "Alice")

	// When she stops explicitly
	req.True(coordinator.End("room1", "alice"))

	// Then the stop announcement reuses the name cached at Begin time
	events := broadcaster.Events()
	req.Len(events, 2)
	req.False(events[1].Typing)
	req.Equal("Alice", events[1].UserName)

	req.Empty(coordinator.Query("room1"))
	req.Zero(coordinator.Stats().TotalRooms)

	// Ending an absent entry is a no-op
	req.False(coordinator.End("room1", "alice"))
	req.Len(broadcaster.Events(), 2)
}

func TestCoordinator_RoomGarbageCollection(t *testing.T) {
	req := require.New(t)
	coordinator, _, _ := newTestCoordinator(t)

	coordinator.Begin("room1", "alice", "Alice")
	coordinator.Begin("room1", "bob", "Bob")
	req.Equal(1, coordinator.Stats().TotalRooms)

	coordinator.End("room1", "alice")
	req.Equal(1, coordinator.Stats().TotalRooms)

	// The set disappears the moment its last entry does
	coordinator.End("room1", "bob")
	stats := coordinator.Stats()
	req.Zero(stats.TotalRooms)
	req.Empty(stats.Rooms)
}

func TestCoordinator_PurgeUserAcrossRooms(t *testing.T) {
	req := require.New(t)
	coordinator, _, broadcaster := newTestCoordinator(t)

	// Given alice typing in two rooms and bob in one
	coordinator.Begin("roomA", "alice", "Alice")
	coordinator.Begin("roomB", "alice", "Alice")
	coordinator.Begin("roomA", "bob", "Bob")
	req.Equal(3, coordinator.Stats().TotalTypingUsers)

	// When her connection drops
	coordinator.PurgeUser("alice")

	// Then both of her entries are gone, one stop announcement per room
	req.False(coordinator.IsTyping("roomA", "alice"))
	req.False(coordinator.IsTyping("roomB", "alice"))
	req.True(coordinator.IsTyping("roomA", "bob"))
	req.Equal(1, coordinator.Stats().TotalTypingUsers)

	var stops int
	for _, e := range broadcaster.Events() {
		if !e.Typing {
			stops++
			req.Equal(domain.UserID("alice"), e.User)
		}
	}
	req.Equal(2, stops)

	// Purging an unknown user is a no-op
	before := len(broadcaster.Events())
	coordinator.PurgeUser("nobody")
	req.Len(broadcaster.Events(), before)
}

func TestCoordinator_PurgeRoom(t *testing.T) {
	req := require.New(t)
	coordinator, _, broadcaster := newTestCoordinator(t)

	coordinator.Begin("roomA", "alice", "Alice")
	coordinator.Begin("roomA", "bob", "Bob")
	coordinator.Begin("roomB", "carol", "Carol")

	coordinator.PurgeRoom("roomA")

	req.Empty(coordinator.Query("roomA"))
	req.True(coordinator.IsTyping("roomB", "carol"))

	var stops int
	for _, e := range broadcaster.Events() {
		if !e.Typing {
			stops++
			req.Equal(domain.RoomID("roomA"), e.Room)
		}
	}
	req.Equal(2, stops)
}

func TestCoordinator_SweepBackstopsDeadTimers(t *testing.T) {
	req := require.New(t)
	coordinator, clock, broadcaster := newTestCoordinator(t)

	coordinator.Begin("room1", "alice", "Alice")

	// The timer subsystem silently stops firing
	clock.suspended = true
	clock.Advance(31 * time.Second)
	req.True(coordinator.IsTyping("room1", "alice"))

	// A fresh entry must survive the sweep
	coordinator.Begin("room1", "bob", "Bob")

	evicted := coordinator.Sweep(30 * time.Second)

	req.Equal(1, evicted)
	req.False(coordinator.IsTyping("room1", "alice"))
	req.True(coordinator.IsTyping("room1", "bob"))

	events := broadcaster.Events()
	last := events[len(events)-1]
	req.False(last.Typing)
	req.Equal(domain.UserID("alice"), last.User)

	// Nothing left to evict
	req.Zero(coordinator.Sweep(30 * time.Second))
}

func TestCoordinator_StaleTimerFireIsDiscarded(t *testing.T) {
	req := require.New(t)
	coordinator, _, broadcaster := newTestCoordinator(t)

	coordinator.Begin("room1", "alice", "Alice")
	staleGen := coordinator.rooms["room1"]["alice"].Generation

	// A refresh supersedes the first arming
	coordinator.Begin("room1", "alice", "Alice")

	// The superseded fire sneaks in anyway: it must change nothing
	coordinator.expire("room1", "alice", staleGen)
	req.True(coordinator.IsTyping("room1", "alice"))
	for _, e := range broadcaster.Events() {
		req.True(e.Typing)
	}

	// Same for a fire targeting an already removed entry
	currentGen := coordinator.rooms["room1"]["alice"].Generation
	coordinator.End("room1", "alice")
	before := len(broadcaster.Events())
	coordinator.expire("room1", "alice", currentGen)
	req.Len(broadcaster.Events(), before)
}

func Test_Begin_keeps_state_on_broadcast_failure(t *testing.T) {
	req := require.New(t)
	coordinator, _, broadcaster := newTestCoordinator(t)
	broadcaster.err = fmt.Errorf("fabric unreachable")

	// The call reports the failure but the entry is still committed
	req.False(coordinator.Begin("room1", "alice", "Alice"))
	req.True(coordinator.IsTyping("room1", "alice"))
}

func TestCoordinator_CloseStopsOutstandingTimers(t *testing.T) {
	req := require.New(t)
	coordinator, clock, broadcaster := newTestCoordinator(t)

	coordinator.Begin("room1", "alice", "Alice")
	coordinator.Close()

	clock.Advance(DefaultTypingTTL)
	req.Len(broadcaster.Events(), 1) // only the start, no post-shutdown stop

	req.False(coordinator.Begin("room1", "alice", "Alice"))
}

func TestCoordinator_ConcurrentBeginEndSameKey(t *testing.T) {
	req := require.New(t)
	coordinator, _, _ := newTestCoordinator(t)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			coordinator.Begin("room1", "alice", "Alice")
			coordinator.End("room1", "alice")
		}()
	}
	wg.Wait()

	// Whatever the interleaving, state is consistent: either one live
	// entry with its room set, or nothing at all.
	stats := coordinator.Stats()
	if coordinator.IsTyping("room1", "alice") {
		req.Equal(1, stats.TotalTypingUsers)
		req.Equal(1, stats.TotalRooms)
	} else {
		req.Zero(stats.TotalTypingUsers)
		req.Zero(stats.TotalRooms)
	}
}
