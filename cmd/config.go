package main

import "time"

type Config struct {
	TypingTTL      time.Duration `env:"TYPING_TTL,default=10s" validate:"gt=0"`
	StaleAfter     time.Duration `env:"STALE_AFTER,default=30s" validate:"gt=0"`
	ReaperInterval time.Duration `env:"REAPER_INTERVAL,default=60s" validate:"gt=0"`
	SinkTimeout    time.Duration `env:"SINK_TIMEOUT,required=true" validate:"gt=0"`
	MetricInterval time.Duration `env:"METRIC_INTERVAL,required=true" validate:"gt=0"`
	CommandBuffer  int           `env:"COMMAND_BUFFER,default=256" validate:"gt=0"`
	NatsURL        string        `env:"NATS_URL,required=true" validate:"required"`
	SubjectPrefix  string        `env:"NATS_SUBJECT_PREFIX,default=presence"`
	LogLevel       string        `env:"LOG_LEVEL,required=true"`
	DebugPort      int           `env:"DEBUG_PORT,default=6060" validate:"gt=0"`
}
