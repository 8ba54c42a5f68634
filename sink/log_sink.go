package sink

import (
	"context"
	"log/slog"

	"presence-lab/domain/event"
)

// LogSink writes presence transitions to the log, for local diagnostics.
type LogSink struct {
	log *slog.Logger
}

func NewLogSink(log *slog.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Consume(_ context.Context, e event.DomainEvent) error {
	switch evt := e.(type) {
	case event.UserTyping:
		s.log.Debug("Typing state changed",
			"room", evt.Room, "user", evt.User, "typing", evt.Typing, "at", evt.At)
	}
	return nil
}
