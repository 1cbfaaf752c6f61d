package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nexbit/backoffice/internal/observability"
	"github.com/nexbit/backoffice/internal/service"
)

// MonitorWorker drives the status engine on a fixed interval: each tick
// sweeps overdue deposits and withdrawals and runs the deposit anomaly
// check. A tick that fires while the previous sweep is still running is
// skipped rather than queued; sweeps are idempotent, so skipped records
// are picked up on the next tick.
type MonitorWorker struct {
	engine   *service.StatusEngine
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
	sweepMu  sync.Mutex
}

// NewMonitorWorker constructs a worker with a default ten second interval.
func NewMonitorWorker(engine *service.StatusEngine) *MonitorWorker {
	return &MonitorWorker{
		engine:   engine,
		interval: 10 * time.Second,
		stopCh:   make(chan struct{}),
	}
}

// WithInterval updates the tick interval.
func (w *MonitorWorker) WithInterval(interval time.Duration) *MonitorWorker {
	if interval > 0 {
		w.interval = interval
	}
	return w
}

// Start blocks and runs sweeps at the configured interval.
func (w *MonitorWorker) Start(ctx context.Context) {
	zap.L().Info("monitor worker starting", zap.Duration("interval", w.interval))
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("monitor worker context canceled")
			return
		case <-w.stopCh:
			zap.L().Info("monitor worker stop signal received")
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

// Stop stops the running worker loop.
func (w *MonitorWorker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
}

// Run starts the worker in a goroutine and returns a stop function.
func (w *MonitorWorker) Run(ctx context.Context) func() {
	go w.Start(ctx)
	return w.Stop
}

func (w *MonitorWorker) tick(ctx context.Context) {
	if !w.sweepMu.TryLock() {
		observability.IncrementWorkerRun("monitor", "skipped")
		zap.L().Warn("previous sweep still running, skipping tick")
		return
	}
	defer w.sweepMu.Unlock()

	failed := false
	if err := w.engine.SweepDeposits(ctx); err != nil {
		failed = true
		zap.L().Error("deposit sweep failed", zap.Error(err))
	}
	if err := w.engine.SweepWithdrawals(ctx); err != nil {
		failed = true
		zap.L().Error("withdrawal sweep failed", zap.Error(err))
	}
	if err := w.engine.CheckDepositAnomaly(ctx); err != nil {
		failed = true
		zap.L().Error("deposit anomaly check failed", zap.Error(err))
	}

	if failed {
		observability.IncrementWorkerRun("monitor", "failed")
		return
	}
	observability.IncrementWorkerRun("monitor", "success")
}

// SweepOnce runs a single sweep cycle immediately, honoring the same
// single-flight guard as the ticker path.
func (w *MonitorWorker) SweepOnce(ctx context.Context) {
	w.tick(ctx)
}
