package worker

import (
	"context"
	"time"

	"github.com/jwalitptl/provider-api/internal/repository"
	"github.com/jwalitptl/provider-api/pkg/logger"
	"github.com/jwalitptl/provider-api/pkg/metrics"
)

// OutboxCleanupWorker removes delivered events once they are older than the
// retention window.
type OutboxCleanupWorker struct {
	repo      repository.OutboxRepository
	retention time.Duration
	interval  time.Duration
	logger    *logger.Logger
	metrics   *metrics.Metrics
}

func NewOutboxCleanupWorker(
	repo repository.OutboxRepository,
	retention, interval time.Duration,
	log *logger.Logger,
	m *metrics.Metrics,
) *OutboxCleanupWorker {
	if log == nil {
		log = logger.Nop()
	}
	return &OutboxCleanupWorker{
		repo:      repo,
		retention: retention,
		interval:  interval,
		logger:    log.Named("outbox_cleanup"),
		metrics:   m,
	}
}

func (w *OutboxCleanupWorker) Start(ctx context.Context) {
	if w.interval <= 0 || w.retention <= 0 {
		w.logger.Info("outbox cleanup disabled")
		return
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce deletes processed events older than the retention window.
func (w *OutboxCleanupWorker) RunOnce(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-w.retention)
	n, err := w.repo.DeleteProcessedBefore(ctx, cutoff)
	if err != nil {
		w.logger.Error(err, "failed to delete processed outbox events")
		return
	}
	w.metrics.ObservePurge(n)
	if n > 0 {
		w.logger.Info("deleted processed outbox events", "count", n)
	}
}
