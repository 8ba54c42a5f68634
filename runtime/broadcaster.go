package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"presence-lab/contract"
	"presence-lab/domain"
	"presence-lab/domain/event"
)

// RegistryBroadcaster fans a presence event out to the sinks of a room's
// members, skipping the excluded user, plus any permanent sinks (remote
// fabric bridges, diagnostics). Each sink gets its own timeout so one
// slow consumer cannot stall the rest of the fan-out.
//
// Permanent sinks receive every event including the actor's own; a remote
// fabric filters on the payload's userId on its side of the wire.
type RegistryBroadcaster struct {
	log         *slog.Logger
	registry    contract.IRegistry
	sinkTimeout time.Duration
	permanent   []contract.EventSink
}

func NewRegistryBroadcaster(log *slog.Logger, registry contract.IRegistry, sinkTimeout time.Duration) *RegistryBroadcaster {
	return &RegistryBroadcaster{
		log:         log,
		registry:    registry,
		sinkTimeout: sinkTimeout,
	}
}

// Add registers permanent sinks consulted on every emit, regardless of room.
func (b *RegistryBroadcaster) Add(sinks ...contract.EventSink) *RegistryBroadcaster {
	b.permanent = append(b.permanent, sinks...)
	return b
}

func (b *RegistryBroadcaster) EmitExcept(ctx context.Context, roomID domain.RoomID, excluded domain.UserID, e event.DomainEvent) error {
	sinks := b.registry.GetSinksForRoomExcept(roomID, excluded)
	sinks = append(sinks, b.permanent...)

	failed := 0
	for _, sink := range sinks {
		if err := b.consume(ctx, sink, e); err != nil {
			failed++
			b.log.Warn("Sink rejected presence event", "room", roomID, "error", err)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d sinks failed for room %s", failed, len(sinks), roomID)
	}
	return nil
}

func (b *RegistryBroadcaster) consume(ctx context.Context, sink contract.EventSink, e event.DomainEvent) error {
	sinkCtx, cancel := context.WithTimeout(ctx, b.sinkTimeout)
	defer cancel()
	return sink.Consume(sinkCtx, e)
}
