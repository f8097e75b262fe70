package workers

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"

	"dm-lab/observability"
)

// TelemetryWorker logs a heartbeat with process self stats (CPU, RSS) and
// the delivery counters on a fixed interval.
type TelemetryWorker struct {
	log            *slog.Logger
	monitoring     *observability.Monitoring
	metricInterval time.Duration
	connections    func() int
}

func NewTelemetryWorker(log *slog.Logger, monitoring *observability.Monitoring,
	metricInterval time.Duration, connections func() int) *TelemetryWorker {
	return &TelemetryWorker{
		log:            log,
		monitoring:     monitoring,
		metricInterval: metricInterval,
		connections:    connections,
	}
}

func (w *TelemetryWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.metricInterval)
	defer ticker.Stop()

	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			rss, cpu, err := selfStats(p)
			if err != nil {
				w.log.Error("Failed to collect self stats", "err", err)
				continue
			}

			stats := w.monitoring.GetLatest()
			w.log.Info("Heartbeat",
				"connections", w.connections(),
				"events_delivered", stats.EventsDelivered,
				"deliveries_dropped", stats.DeliveriesDropped,
				"messages_sent", stats.MessagesSent,
				"cpu_percent", cpu,
				"ram_bytes", rss,
				"alloc_mem_mb", stats.AllocMemMb,
			)
		}
	}
}

// selfStats retrieves memory and CPU metrics for the given process.
func selfStats(p *process.Process) (uint64, float64, error) {
	memInfo, err := p.MemoryInfo()
	if err != nil {
		return 0, 0, err
	}
	cpuPercent, err := p.CPUPercent()
	if err != nil {
		return 0, 0, err
	}
	return memInfo.RSS, cpuPercent, nil
}
