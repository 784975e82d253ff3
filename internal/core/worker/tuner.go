package worker

import (
	"context"
	"log/slog"
	"time"
)

// StrategyImprover grows the recovery strategy table.
type StrategyImprover interface {
	ImproveStrategies(ctx context.Context) (int, error)
}

// Tuner periodically improves recovery strategies from recent error patterns.
type Tuner struct {
	engine   StrategyImprover
	interval time.Duration
}

// NewTuner creates a new Tuner worker.
func NewTuner(engine StrategyImprover, interval time.Duration) *Tuner {
	return &Tuner{engine: engine, interval: interval}
}

// Start runs the tuner loop until ctx is done.
func (t *Tuner) Start(ctx context.Context) {
	if t.interval <= 0 {
		return // Tuning disabled
	}

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.tune(ctx)
		}
	}
}

func (t *Tuner) tune(ctx context.Context) {
	added, err := t.engine.ImproveStrategies(ctx)
	if err != nil {
		slog.Error("[Tuner] failed to improve recovery strategies", "error", err)
		return
	}
	if added > 0 {
		slog.Info("[Tuner] recovery strategies added", "count", added)
	}
}
