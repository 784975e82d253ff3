package recovery

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/vietddude/errwatch/internal/core/domain"
	"github.com/vietddude/errwatch/internal/pipeline/metrics"
)

// ImproveStrategies adds a conservative retry strategy for every frequent
// category in the tuning window that no strategy covers yet. The table only
// grows and lives in memory. Returns the number of strategies added.
func (e *Engine) ImproveStrategies(ctx context.Context) (int, error) {
	analysis, err := e.sink.AnalyzePatterns(ctx, e.now().Add(-e.tune.Window))
	if err != nil {
		return 0, fmt.Errorf("failed to analyze patterns: %w", err)
	}

	var added []string
	e.mu.Lock()
	for _, entry := range analysis.MostCommonCategories {
		if entry.Count <= e.tune.MinOccurrences {
			continue
		}
		category := strings.ToLower(entry.Key)
		if e.coveredLocked(category) {
			continue
		}
		e.strategies = append(e.strategies, Strategy{
			Name:       "learned:" + category,
			Code:       category,
			Pattern:    regexp.MustCompile(regexp.QuoteMeta(category)),
			Action:     domain.ActionRetry,
			MaxRetries: e.tune.MaxRetries,
			Delay:      e.tune.Delay,
		})
		added = append(added, category)
	}
	total := len(e.strategies)
	e.mu.Unlock()

	metrics.RecoveryStrategies.Set(float64(total))
	for _, category := range added {
		e.sink.Append(ctx, domain.ErrorRecord{
			Kind:     domain.KindLogic,
			Severity: domain.SeverityLow,
			Category: "recovery-tuning",
			Message:  fmt.Sprintf("Added retry strategy for frequent category %q", category),
		})
		e.logger.Info("Learned recovery strategy", "category", category)
	}
	return len(added), nil
}

// engineCategories are written by the engine itself and never tuned.
var engineCategories = map[string]bool{
	"recovery":        true,
	"recovery-tuning": true,
}

func (e *Engine) coveredLocked(category string) bool {
	if engineCategories[category] {
		return true
	}
	for _, s := range e.strategies {
		if s.Code == category || s.matches(category) {
			return true
		}
	}
	return false
}
