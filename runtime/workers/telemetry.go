package workers

import (
	"context"
	"log/slog"
	"time"

	"presence-lab/contract"
	"presence-lab/observability"
)

// TelemetryWorker samples coordinator and process gauges on a fixed
// interval and logs them. The same snapshot feeds the debug endpoint
// through the MonitoringManager.
type TelemetryWorker struct {
	log         *slog.Logger
	interval    time.Duration
	coordinator contract.ICoordinator
	monitoring  *observability.MonitoringManager
}

func NewTelemetryWorker(log *slog.Logger, interval time.Duration,
	coordinator contract.ICoordinator, monitoring *observability.MonitoringManager) *TelemetryWorker {
	return &TelemetryWorker{
		log:         log,
		interval:    interval,
		coordinator: coordinator,
		monitoring:  monitoring,
	}
}

func (w *TelemetryWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			g := w.monitoring.Collect(w.coordinator.Stats())
			w.log.Debug("Presence telemetry",
				"rooms", g.Rooms,
				"typing_users", g.TypingUsers,
				"alloc_mem_mb", g.AllocMemMb,
				"cpu_percent", g.CPUPercent,
			)
		}
	}
}
