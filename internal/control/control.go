package control

import (
	"context"
	"fmt"
	"time"

	"github.com/vietddude/errwatch/internal/core/domain"
)

// Status is a point-in-time view of the whole system.
type Status struct {
	Healthy   bool
	Agents    []*domain.HealthCheckResult
	Patterns  *domain.PatternAnalysis
	Actions   int
	UpdatedAt time.Time
}

// Status runs a health sweep and a pattern analysis over the last window.
func (w *Watcher) Status(ctx context.Context, window time.Duration) (*Status, error) {
	patterns, err := w.errors.AnalyzePatterns(ctx, time.Now().Add(-window))
	if err != nil {
		return nil, fmt.Errorf("failed to analyze patterns: %w", err)
	}
	actions, err := w.engine.Actions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list recovery actions: %w", err)
	}

	results := w.monitor.PerformAllHealthChecks(ctx)
	st := &Status{
		Healthy:   true,
		Agents:    results,
		Patterns:  patterns,
		Actions:   len(actions),
		UpdatedAt: time.Now(),
	}
	for _, r := range results {
		if !r.Healthy {
			st.Healthy = false
		}
	}
	return st, nil
}
