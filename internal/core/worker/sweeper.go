package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/vietddude/errwatch/internal/core/domain"
)

// HealthChecker runs a full agent health sweep.
type HealthChecker interface {
	PerformAllHealthChecks(ctx context.Context) []*domain.HealthCheckResult
}

// Sweeper periodically checks every registered agent.
type Sweeper struct {
	monitor  HealthChecker
	interval time.Duration
}

// NewSweeper creates a new Sweeper worker.
func NewSweeper(monitor HealthChecker, interval time.Duration) *Sweeper {
	return &Sweeper{monitor: monitor, interval: interval}
}

// Start runs the sweep loop until ctx is done.
func (s *Sweeper) Start(ctx context.Context) {
	if s.interval <= 0 {
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Initial sweep
	s.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	unhealthy := 0
	results := s.monitor.PerformAllHealthChecks(ctx)
	for _, r := range results {
		if !r.Healthy {
			unhealthy++
		}
	}
	if unhealthy > 0 {
		slog.Warn("[Sweeper] unhealthy agents detected", "unhealthy", unhealthy, "total", len(results))
	}
}
