// Package transport bridges the NATS fabric to the presence service:
// client-originated typing signals and disconnect notifications arrive
// here and are relayed to the coordinator through the service facade.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nats-io/nats.go"

	"presence-lab/domain"
	"presence-lab/services"
)

// TypingSignal is the inbound payload for typing start/stop subjects.
type TypingSignal struct {
	Room     domain.RoomID `json:"roomId"`
	User     domain.UserID `json:"userId"`
	UserName string        `json:"userName"`
}

// DisconnectSignal is published by edge processes when a client's
// connection drops.
type DisconnectSignal struct {
	User domain.UserID `json:"userId"`
}

// Subscriber is the slice of the NATS connection the listener needs.
// *nats.Conn satisfies it.
type Subscriber interface {
	ChanSubscribe(subject string, ch chan *nats.Msg) (*nats.Subscription, error)
}

// NATSListener consumes typing and disconnect signals from the fabric.
// It is a Worker: run it under the supervisor.
type NATSListener struct {
	log        *slog.Logger
	subscriber Subscriber
	presence   services.IPresenceService
	prefix     string
	buffer     int
}

func NewNATSListener(log *slog.Logger, subscriber Subscriber,
	presence services.IPresenceService, prefix string, buffer int) *NATSListener {
	return &NATSListener{
		log:        log,
		subscriber: subscriber,
		presence:   presence,
		prefix:     prefix,
		buffer:     buffer,
	}
}

func (l *NATSListener) Run(ctx context.Context) error {
	msgs := make(chan *nats.Msg, l.buffer)

	subjects := []string{
		l.prefix + ".typing.start",
		l.prefix + ".typing.stop",
		l.prefix + ".disconnect",
	}
	var subs []*nats.Subscription
	for _, subject := range subjects {
		sub, err := l.subscriber.ChanSubscribe(subject, msgs)
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", subject, err)
		}
		subs = append(subs, sub)
	}
	defer func() {
		for _, sub := range subs {
			_ = sub.Unsubscribe()
		}
	}()

	l.log.Info("Listening for presence signals", "prefix", l.prefix)
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-msgs:
			l.handle(msg)
		}
	}
}

func (l *NATSListener) handle(msg *nats.Msg) {
	switch {
	case strings.HasSuffix(msg.Subject, ".typing.start"):
		var signal TypingSignal
		if err := json.Unmarshal(msg.Data, &signal); err != nil {
			l.log.Warn("Dropping malformed typing start", "error", err)
			return
		}
		l.presence.StartTyping(signal.Room, signal.User, signal.UserName)
	case strings.HasSuffix(msg.Subject, ".typing.stop"):
		var signal TypingSignal
		if err := json.Unmarshal(msg.Data, &signal); err != nil {
			l.log.Warn("Dropping malformed typing stop", "error", err)
			return
		}
		l.presence.StopTyping(signal.Room, signal.User)
	case strings.HasSuffix(msg.Subject, ".disconnect"):
		var signal DisconnectSignal
		if err := json.Unmarshal(msg.Data, &signal); err != nil {
			l.log.Warn("Dropping malformed disconnect", "error", err)
			return
		}
		l.presence.Disconnect(signal.User)
	default:
		l.log.Warn("Unexpected subject", "subject", msg.Subject)
	}
}
