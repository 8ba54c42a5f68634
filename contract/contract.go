//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"
	"time"

	"presence-lab/domain"
	"presence-lab/domain/event"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}

// Broadcaster delivers an event to every member of a room except one.
// Delivery is best-effort; the coordinator never retries and never
// rolls back state on a failed emit.
type Broadcaster interface {
	EmitExcept(ctx context.Context, roomID domain.RoomID, excluded domain.UserID, e event.DomainEvent) error
}

type IRegistry interface {
	GetSinksForRoom(roomID domain.RoomID) []EventSink
	GetSinksForRoomExcept(roomID domain.RoomID, excluded domain.UserID) []EventSink
	Subscribe(userID domain.UserID, roomID domain.RoomID, sink EventSink)
	Unsubscribe(userID domain.UserID, roomID domain.RoomID)
	UnsubscribeAll(userID domain.UserID) []domain.RoomID
}

// ICoordinator is the single source of truth for "who is typing where".
type ICoordinator interface {
	Begin(roomID domain.RoomID, userID domain.UserID, displayName string) bool
	End(roomID domain.RoomID, userID domain.UserID) bool
	IsTyping(roomID domain.RoomID, userID domain.UserID) bool
	Query(roomID domain.RoomID) []domain.TypingSnapshot
	PurgeUser(userID domain.UserID)
	PurgeRoom(roomID domain.RoomID)
	Stats() domain.Stats
	Sweep(olderThan time.Duration) int
	Close()
}

// Timer is the cancelable handle returned by Clock.AfterFunc.
// Stop reports whether the fire was prevented, mirroring time.Timer.
type Timer interface {
	Stop() bool
}

// Clock abstracts time so that expiry can be driven deterministically
// in tests. The production implementation delegates to package time.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) Timer
}
