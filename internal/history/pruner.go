package history

import (
	"context"
	"time"

	"go.uber.org/zap"

	"diagnosys-poller/internal/logger"
	"diagnosys-poller/internal/metrics"
)

// Pruneable defines the minimal contract required by the Pruner.
type Pruneable interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Pruner periodically removes reports older than the retention window.
type Pruner struct {
	store     Pruneable
	retention time.Duration
	interval  time.Duration
	metrics   *metrics.Registry
	logger    *zap.SugaredLogger
}

// NewPruner creates a new pruner. reg may be nil.
func NewPruner(
	store Pruneable,
	retention time.Duration,
	interval time.Duration,
	reg *metrics.Registry,
	l *zap.SugaredLogger,
) *Pruner {
	return &Pruner{
		store:     store,
		retention: retention,
		interval:  interval,
		metrics:   reg,
		logger:    logger.OrNop(l),
	}
}

// Start runs the prune loop until the context is cancelled.
// It blocks and should typically be run in a separate goroutine.
func (p *Pruner) Start(ctx context.Context) {
	if p.retention <= 0 || p.interval <= 0 {
		p.logger.Debugw("History pruning disabled")
		return
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.runOnce(ctx)
		case <-ctx.Done():
			p.logger.Debugw("History pruner stopped")
			return
		}
	}
}

// runOnce performs a single prune pass
func (p *Pruner) runOnce(ctx context.Context) {
	p.inc(metrics.HistoryPruneRunsTotal, 1)

	removed, err := p.store.DeleteOlderThan(ctx, time.Now().Add(-p.retention))
	if err != nil {
		p.logger.Warnw("History prune failed", "error", err)
		return
	}
	if removed > 0 {
		p.inc(metrics.HistoryRowsPrunedTotal, removed)
		p.logger.Infow("History pruned", "rows", removed, "retention", p.retention)
	}
}

func (p *Pruner) inc(key metrics.MetricKey, delta int64) {
	if p.metrics != nil {
		p.metrics.Add(key, delta)
	}
}
