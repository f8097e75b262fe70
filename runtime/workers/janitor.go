package workers

import (
	"context"
	"log/slog"
	"time"
)

// PresenceJanitor compacts the tracker's lastSeen map on a fixed interval.
// Entries past the recency window classify as offline anyway; keeping
// them only grows the map for the process lifetime.
type PresenceJanitor struct {
	log      *slog.Logger
	interval time.Duration
	compact  func() int
}

func NewPresenceJanitor(log *slog.Logger, interval time.Duration, compact func() int) *PresenceJanitor {
	return &PresenceJanitor{log: log, interval: interval, compact: compact}
}

func (w *PresenceJanitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Stopping worker")
			return ctx.Err()
		case <-ticker.C:
			if removed := w.compact(); removed > 0 {
				w.log.Debug("Compacted presence entries", "removed", removed)
			}
		}
	}
}
