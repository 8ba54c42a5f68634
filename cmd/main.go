package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
	"github.com/nats-io/nats.go"

	"presence-lab/internal"
	"presence-lab/observability"
	"presence-lab/runtime"
	"presence-lab/runtime/workers"
	"presence-lab/services"
	"presence-lab/sink"
	"presence-lab/transport"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes all components, manages the process lifecycle, and centralizes
// error reporting. This pattern is preferred over calling os.Exit or panic directly because:
// 1. It ensures all 'defer' statements (like draining NATS) are executed before the program exits.
// 2. It improves testability by decoupling the initialization logic from the main entry point.
// 3. It provides a structured way to handle graceful shutdowns for background workers.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if err := validator.New().Struct(config); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. NATS fabric
	nc, err := nats.Connect(config.NatsURL, nats.Name("presence-lab"))
	if err != nil {
		return fmt.Errorf("nats connection failed: %w", err)
	}
	//  Defer will be executed before run() returned anything to main()
	defer func() {
		log.Info("Draining NATS connection...")
		_ = nc.Drain()
	}()

	// 3. Coordinator & broadcast plumbing
	// The coordinator instance is owned here and handed to call sites;
	// there is no process-global presence state.
	registry := runtime.NewRegistry()
	broadcaster := runtime.NewRegistryBroadcaster(log, registry, config.SinkTimeout).
		Add(
			sink.NewNATSSink(log, nc, config.SubjectPrefix+".room"),
			sink.NewLogSink(log),
		)
	coordinator := runtime.NewCoordinator(log, runtime.NewSystemClock(), broadcaster, config.TypingTTL)
	defer coordinator.Close()

	presence := services.NewPresenceService(registry, coordinator)

	monitoring, err := observability.NewMonitoringManager(log)
	if err != nil {
		return fmt.Errorf("monitoring init failed: %w", err)
	}

	// 4. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 5. Diagnostic surface
	internal.StartDebugServer(log, config.DebugPort, func() map[string]any {
		return map[string]any{
			"presence": presence.Stats(),
			"gauges":   monitoring.Latest(),
		}
	})

	// 6. Background workers
	sup := workers.NewSupervisor(log)
	sup.Add(
		transport.NewNATSListener(log, nc, presence, config.SubjectPrefix, config.CommandBuffer),
		workers.NewReaperWorker(log, coordinator, config.ReaperInterval, config.StaleAfter),
		workers.NewTelemetryWorker(log, config.MetricInterval, coordinator, monitoring),
	)

	log.Info("Presence coordinator started",
		"ttl", config.TypingTTL, "reaper_interval", config.ReaperInterval, "debug_port", config.DebugPort)
	sup.Run(ctx)

	log.Info("Presence coordinator stopped")
	return nil
}
