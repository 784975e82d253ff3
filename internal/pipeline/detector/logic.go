package detector

import (
	"context"
	"fmt"
	"time"

	"github.com/vietddude/errwatch/internal/core/domain"
)

// PatternAnalyzer is the read side of the error store.
type PatternAnalyzer interface {
	AnalyzePatterns(ctx context.Context, since time.Time) (*domain.PatternAnalysis, error)
}

// LogicCheck emits a finding when the trailing-24h error volume is too high.
type LogicCheck struct {
	analyzer  PatternAnalyzer
	threshold int
}

func NewLogicCheck(analyzer PatternAnalyzer, threshold int) *LogicCheck {
	if threshold <= 0 {
		threshold = 10
	}
	return &LogicCheck{analyzer: analyzer, threshold: threshold}
}

func (c *LogicCheck) Name() string { return "logic" }

func (c *LogicCheck) Run(ctx context.Context) ([]domain.DetectedError, error) {
	analysis, err := c.analyzer.AnalyzePatterns(ctx, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("failed to analyze patterns: %w", err)
	}
	if analysis.RecentCount <= c.threshold {
		return nil, nil
	}
	return []domain.DetectedError{{
		Kind:         domain.KindLogic,
		Severity:     domain.SeverityHigh,
		Category:     "error-volume",
		Message:      fmt.Sprintf("High error volume: %d errors in the last 24 hours", analysis.RecentCount),
		Rule:         "error-volume",
		SuggestedFix: "Review the most common error types and categories",
	}}, nil
}
