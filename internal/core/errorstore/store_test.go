package errorstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vietddude/errwatch/internal/core/domain"
	"github.com/vietddude/errwatch/internal/infra/storage/memory"
)

type failingRepo struct{}

func (failingRepo) Append(context.Context, *domain.ErrorRecord, int) error {
	return errors.New("disk full")
}

func (failingRepo) List(context.Context) ([]*domain.ErrorRecord, error) {
	return nil, errors.New("disk full")
}

func newStore(opts ...Option) *Store {
	return New(memory.NewErrorRepo(memory.NewMemoryStorage()), opts...)
}

func TestAppend_FillsIDAndTimestamp(t *testing.T) {
	s := newStore()
	rec := s.Append(context.Background(), domain.ErrorRecord{
		Kind:     domain.KindType,
		Severity: domain.SeverityHigh,
		Message:  "boom",
	})

	assert.NotEmpty(t, rec.ID)
	assert.False(t, rec.Timestamp.IsZero())

	all, err := s.Query(context.Background(), domain.ErrorFilter{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, rec.ID, all[0].ID)
}

func TestAppend_BoundedHistoryEvictsOldest(t *testing.T) {
	ctx := context.Background()
	s := newStore()

	for i := 0; i < 1005; i++ {
		s.Append(ctx, domain.ErrorRecord{
			ID:       fmt.Sprintf("rec-%d", i),
			Kind:     domain.KindLogic,
			Severity: domain.SeverityLow,
		})
	}

	all, err := s.Query(ctx, domain.ErrorFilter{})
	require.NoError(t, err)
	require.Len(t, all, 1000)
	assert.Equal(t, "rec-5", all[0].ID)
	assert.Equal(t, "rec-1004", all[999].ID)
}

func TestAppend_NeverFailsOnPersistenceError(t *testing.T) {
	var diag bytes.Buffer
	s := New(failingRepo{}, WithFallback(&diag))

	assert.NotPanics(t, func() {
		s.Append(context.Background(), domain.ErrorRecord{
			Kind:     domain.KindBuild,
			Severity: domain.SeverityCritical,
			Message:  "compile failed",
		})
	})
	assert.Contains(t, diag.String(), "disk full")
	assert.Contains(t, diag.String(), "compile failed")
}

func TestAppend_ScrubsCredentials(t *testing.T) {
	s := newStore()
	rec := s.Append(context.Background(), domain.ErrorRecord{
		Kind:     domain.KindSecurity,
		Severity: domain.SeverityCritical,
		Message:  `config has password = "hunter2" inline`,
		Context:  map[string]string{"api_token": "abc", "rule": "secrets"},
	})

	assert.NotContains(t, rec.Message, "hunter2")
	assert.Equal(t, redacted, rec.Context["api_token"])
	assert.Equal(t, "secrets", rec.Context["rule"])
}

func TestQuery_FiltersCombineWithAnd(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := newStore(WithClock(func() time.Time { return now }))

	s.Append(ctx, domain.ErrorRecord{Kind: domain.KindType, Severity: domain.SeverityHigh, Category: "ts", FilePath: "a.ts", Timestamp: now.Add(-2 * time.Hour)})
	s.Append(ctx, domain.ErrorRecord{Kind: domain.KindType, Severity: domain.SeverityCritical, Category: "ts", FilePath: "a.ts", Timestamp: now})
	s.Append(ctx, domain.ErrorRecord{Kind: domain.KindSecurity, Severity: domain.SeverityCritical, Category: "secrets", FilePath: "b.ts", Timestamp: now})

	tests := []struct {
		name   string
		filter domain.ErrorFilter
		want   int
	}{
		{"wildcard", domain.ErrorFilter{}, 3},
		{"kind", domain.ErrorFilter{Kind: domain.KindType}, 2},
		{"kind and severity", domain.ErrorFilter{Kind: domain.KindType, Severity: domain.SeverityCritical}, 1},
		{"category", domain.ErrorFilter{Category: "secrets"}, 1},
		{"file", domain.ErrorFilter{FilePath: "a.ts"}, 2},
		{"since", domain.ErrorFilter{Since: now.Add(-time.Hour)}, 2},
		{"no match", domain.ErrorFilter{Kind: domain.KindSecurity, FilePath: "a.ts"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Query(ctx, tt.filter)
			require.NoError(t, err)
			assert.Len(t, got, tt.want)
		})
	}
}

func TestQuery_PropagatesRepoError(t *testing.T) {
	s := New(failingRepo{}, WithFallback(&bytes.Buffer{}))
	_, err := s.Query(context.Background(), domain.ErrorFilter{})
	assert.Error(t, err)
}

func TestAnalyzePatterns_MostCommonType(t *testing.T) {
	ctx := context.Background()
	s := newStore()

	for i := 0; i < 10; i++ {
		s.Append(ctx, domain.ErrorRecord{Kind: domain.KindType, Severity: domain.SeverityHigh, Category: "typescript"})
	}
	s.Append(ctx, domain.ErrorRecord{Kind: domain.KindSecurity, Severity: domain.SeverityCritical, FilePath: "x.go"})

	analysis, err := s.AnalyzePatterns(ctx, time.Time{})
	require.NoError(t, err)

	require.NotEmpty(t, analysis.MostCommonTypes)
	assert.Equal(t, domain.CountEntry{Key: "type", Count: 10}, analysis.MostCommonTypes[0])
	assert.Equal(t, 1, analysis.CriticalCount)
	assert.Equal(t, 11, analysis.RecentCount)
	assert.Equal(t, 11, analysis.Total)
	assert.Equal(t, []domain.CountEntry{{Key: "x.go", Count: 1}}, analysis.MostCommonFiles)
}

func TestAnalyzePatterns_TopFiveAndRecentWindow(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := newStore(WithClock(func() time.Time { return now }))

	for i, cat := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		for j := 0; j <= i; j++ {
			s.Append(ctx, domain.ErrorRecord{
				Kind:      domain.KindLogic,
				Severity:  domain.SeverityLow,
				Category:  cat,
				Timestamp: now.Add(-48 * time.Hour),
			})
		}
	}

	analysis, err := s.AnalyzePatterns(ctx, time.Time{})
	require.NoError(t, err)
	require.Len(t, analysis.MostCommonCategories, 5)
	assert.Equal(t, "g", analysis.MostCommonCategories[0].Key)
	assert.Equal(t, "c", analysis.MostCommonCategories[4].Key)
	assert.Zero(t, analysis.RecentCount)

	windowed, err := s.AnalyzePatterns(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, windowed.Total)
}

func TestTopCounts_TiesBreakByKey(t *testing.T) {
	got := topCounts(map[string]int{"b": 2, "a": 2, "c": 3}, 5)
	assert.Equal(t, []domain.CountEntry{{Key: "c", Count: 3}, {Key: "a", Count: 2}, {Key: "b", Count: 2}}, got)
}

func TestFingerprint_StableAcrossMessages(t *testing.T) {
	a := domain.DetectedError{Kind: domain.KindDesign, Category: "tokens", FilePath: "x.tsx", Line: 3, Rule: "hex-color", Message: "one"}
	b := a
	b.Message = "two"
	assert.Equal(t, Fingerprint(a), Fingerprint(b))

	b.Line = 4
	assert.NotEqual(t, Fingerprint(a), Fingerprint(b))
	assert.Len(t, Fingerprint(a), 32)

	assert.Equal(t, CorrelationID("Timeout ", "agent"), CorrelationID("timeout", "agent"))
}
