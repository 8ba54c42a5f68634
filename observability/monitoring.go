package observability

import (
	"log/slog"
	"os"
	goruntime "runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/process"

	"presence-lab/domain"
)

// Gauges aggregates coordinator and process metrics for operational
// introspection (telemetry logs and the debug endpoint).
type Gauges struct {
	Rooms       int       `json:"rooms"`
	TypingUsers int       `json:"typing_users"`
	AllocMemMb  uint64    `json:"alloc_mem_mb"`
	NumGC       uint32    `json:"num_gc"`
	CPUPercent  float64   `json:"cpu_percent"`
	RSSMb       uint64    `json:"rss_mb"`
	CollectedAt time.Time `json:"collected_at"`
}

// MonitoringManager keeps the latest gauge snapshot for readers that
// must not pay the collection cost themselves.
type MonitoringManager struct {
	log    *slog.Logger
	mu     sync.RWMutex
	proc   *process.Process
	latest Gauges
}

func NewMonitoringManager(log *slog.Logger) (*MonitoringManager, error) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, err
	}
	return &MonitoringManager{log: log, proc: p}, nil
}

// Collect refreshes the gauges from a coordinator snapshot and the OS.
func (m *MonitoringManager) Collect(stats domain.Stats) Gauges {
	var mem goruntime.MemStats
	goruntime.ReadMemStats(&mem)

	g := Gauges{
		Rooms:       stats.TotalRooms,
		TypingUsers: stats.TotalTypingUsers,
		AllocMemMb:  mem.Alloc / 1024 / 1024,
		NumGC:       mem.NumGC,
		CollectedAt: time.Now(),
	}
	if cpu, err := m.proc.CPUPercent(); err == nil {
		g.CPUPercent = cpu
	} else {
		m.log.Debug("Failed to collect CPU usage", "error", err)
	}
	if info, err := m.proc.MemoryInfo(); err == nil {
		g.RSSMb = info.RSS / 1024 / 1024
	}

	m.mu.Lock()
	m.latest = g
	m.mu.Unlock()
	return g
}

func (m *MonitoringManager) Latest() Gauges {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latest
}
