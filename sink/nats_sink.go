package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"presence-lab/domain/event"
)

// Publisher is the slice of the NATS connection the sink needs.
// *nats.Conn satisfies it.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSSink bridges presence events onto a NATS fabric so remote
// processes can deliver them to their own connected clients. One
// subject per room; the payload is the event's wire JSON. Exclusion of
// the acting user happens on the consuming side, which knows the
// actor from the payload's userId.
type NATSSink struct {
	log           *slog.Logger
	publisher     Publisher
	subjectPrefix string
}

func NewNATSSink(log *slog.Logger, publisher Publisher, subjectPrefix string) *NATSSink {
	return &NATSSink{
		log:           log,
		publisher:     publisher,
		subjectPrefix: subjectPrefix,
	}
}

func (s *NATSSink) Consume(_ context.Context, e event.DomainEvent) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal presence event: %w", err)
	}
	subject := fmt.Sprintf("%s.%s", s.subjectPrefix, e.RoomID())
	return s.publisher.Publish(subject, payload)
}
