// Package sweeper runs the periodic expiry pass over pending bookings.
package sweeper

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// SweepFunc processes expired holds as of now and reports how many were
// expired. Bookings.ExpireSweep satisfies it.
type SweepFunc func(ctx context.Context, nowUnixUTC int64) (int, error)

// Sweeper invokes a SweepFunc on a fixed interval. The sweep itself is
// idempotent and safe under overlapping runs, so the sweeper makes no
// attempt at distributed coordination.
type Sweeper struct {
	sweep    SweepFunc
	interval time.Duration
	nowFn    func() int64
	logger   *zap.Logger
}

// New wires a Sweeper.
func New(sweep SweepFunc, interval time.Duration, now func() int64, logger *zap.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if now == nil {
		now = func() int64 { return time.Now().UTC().Unix() }
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{sweep: sweep, interval: interval, nowFn: now, logger: logger}
}

// Run blocks until the context is canceled, sweeping once per interval.
func (sweeper *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(sweeper.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweeper.runOnce(ctx)
		}
	}
}

func (sweeper *Sweeper) runOnce(ctx context.Context) {
	started := time.Now()
	processed, err := sweeper.sweep(ctx, sweeper.nowFn())
	if err != nil {
		sweeper.logger.Warn("expiry sweep failed", zap.Error(err))
		return
	}
	if processed > 0 {
		sweeper.logger.Info("expiry sweep done",
			zap.Int("expired", processed),
			zap.Duration("took", time.Since(started)))
	}
}
