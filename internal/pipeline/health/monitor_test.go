package health

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vietddude/errwatch/internal/core/domain"
	"github.com/vietddude/errwatch/internal/infra/storage/memory"
)

// =============================================================================
// Helpers
// =============================================================================

type recordingSink struct {
	mu      sync.Mutex
	records []domain.ErrorRecord
}

func (s *recordingSink) Append(_ context.Context, rec domain.ErrorRecord) domain.ErrorRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return rec
}

func newTestMonitor(opts ...Option) (*Monitor, *recordingSink, *memory.MemoryStorage) {
	store := memory.NewMemoryStorage()
	sink := &recordingSink{}
	m := NewMonitor(memory.NewMetricsRepo(store), memory.NewHealthRepo(store), sink, opts...)
	return m, sink, store
}

func hasIssue(r *domain.HealthCheckResult, prefix string) bool {
	for _, issue := range r.Issues {
		if strings.HasPrefix(issue, prefix) {
			return true
		}
	}
	return false
}

// =============================================================================
// Tests
// =============================================================================

func TestPerformHealthCheck_NoMetrics(t *testing.T) {
	m, _, _ := newTestMonitor()

	r := m.PerformHealthCheck(context.Background(), "ghost")
	if r.Healthy {
		t.Fatal("expected unhealthy result without metrics")
	}
	if len(r.Issues) != 1 || r.Issues[0] != issueNoMetrics {
		t.Errorf("expected single no-metrics issue, got %v", r.Issues)
	}
	if r.Performance.ErrorRate != 1.0 || r.Performance.SuccessRate != 0 || r.Performance.ResponseTime != 0 {
		t.Errorf("unexpected performance figures: %+v", r.Performance)
	}
}

func TestPerformHealthCheck_ErrorRateBoundary(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestMonitor()

	if _, err := m.RecordMetrics(ctx, "agent-x", domain.MetricsUpdate{TasksCompleted: 9, TasksFailed: 1}); err != nil {
		t.Fatalf("RecordMetrics failed: %v", err)
	}
	r := m.PerformHealthCheck(ctx, "agent-x")
	if r.Performance.ErrorRate != 0.1 {
		t.Errorf("expected error rate 0.1, got %v", r.Performance.ErrorRate)
	}
	if r.Performance.SuccessRate != 0.9 {
		t.Errorf("expected success rate 0.9, got %v", r.Performance.SuccessRate)
	}
	if !r.Healthy {
		t.Errorf("error rate at the threshold must not raise an issue: %v", r.Issues)
	}

	if _, err := m.RecordMetrics(ctx, "agent-y", domain.MetricsUpdate{TasksCompleted: 8, TasksFailed: 2}); err != nil {
		t.Fatalf("RecordMetrics failed: %v", err)
	}
	r = m.PerformHealthCheck(ctx, "agent-y")
	if r.Performance.ErrorRate != 0.2 {
		t.Errorf("expected error rate 0.2, got %v", r.Performance.ErrorRate)
	}
	if r.Healthy || !hasIssue(r, "high error rate") {
		t.Errorf("expected high error rate issue, got %v", r.Issues)
	}
}

func TestPerformHealthCheck_Issues(t *testing.T) {
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		update  domain.MetricsUpdate
		elapsed time.Duration
		issue   string
	}{
		{"no tasks is healthy", domain.MetricsUpdate{}, 0, ""},
		{"error status", domain.MetricsUpdate{Status: domain.AgentStatusError}, 0, "agent status is error"},
		{"offline status", domain.MetricsUpdate{Status: domain.AgentStatusOffline}, 0, "agent status is offline"},
		{"idle status is fine", domain.MetricsUpdate{Status: domain.AgentStatusIdle}, 0, ""},
		{"slow responses", domain.MetricsUpdate{AverageResponseTime: 30001}, 0, "slow response time"},
		{"response at threshold", domain.MetricsUpdate{AverageResponseTime: 30000}, 0, ""},
		{"inactive", domain.MetricsUpdate{}, 25 * time.Hour, "inactive for"},
		{"recently active", domain.MetricsUpdate{}, 23 * time.Hour, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			now := base
			m, _, _ := newTestMonitor(WithClock(func() time.Time { return now }))
			ctx := context.Background()

			if _, err := m.RecordMetrics(ctx, "a", tt.update); err != nil {
				t.Fatalf("RecordMetrics failed: %v", err)
			}
			now = base.Add(tt.elapsed)

			r := m.PerformHealthCheck(ctx, "a")
			if tt.issue == "" {
				if !r.Healthy {
					t.Errorf("expected healthy, got issues %v", r.Issues)
				}
				return
			}
			if r.Healthy || !hasIssue(r, tt.issue) {
				t.Errorf("expected issue %q, got %v", tt.issue, r.Issues)
			}
		})
	}
}

func TestRecordMetrics_ReplacesLatestAndAppendsHistory(t *testing.T) {
	ctx := context.Background()
	m, _, store := newTestMonitor()

	snap, err := m.RecordMetrics(ctx, "a", domain.MetricsUpdate{TasksCompleted: 1})
	if err != nil {
		t.Fatalf("RecordMetrics failed: %v", err)
	}
	if snap.Status != domain.AgentStatusActive || !snap.Timestamp.Equal(snap.LastActivity) {
		t.Errorf("unexpected defaults: %+v", snap)
	}
	if _, err := m.RecordMetrics(ctx, "a", domain.MetricsUpdate{TasksCompleted: 2}); err != nil {
		t.Fatalf("RecordMetrics failed: %v", err)
	}

	latest, err := m.Latest(ctx, "a")
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	if latest.TasksCompleted != 2 {
		t.Errorf("expected latest to be replaced, got %d", latest.TasksCompleted)
	}

	history, _ := memory.NewMetricsRepo(store).History(ctx)
	if len(history) != 2 {
		t.Errorf("expected 2 history entries, got %d", len(history))
	}
	if agents := m.Agents(); len(agents) != 1 || agents[0] != "a" {
		t.Errorf("RecordMetrics should register the agent, got %v", agents)
	}
}

func TestRecordEscalation_IncrementsCounters(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestMonitor()

	if _, err := m.RecordMetrics(ctx, "a", domain.MetricsUpdate{TasksCompleted: 5, TasksFailed: 1, ErrorCount: 2, AverageResponseTime: 12}); err != nil {
		t.Fatal(err)
	}
	if err := m.RecordEscalation(ctx, "a"); err != nil {
		t.Fatalf("RecordEscalation failed: %v", err)
	}
	if err := m.RecordEscalation(ctx, "fresh"); err != nil {
		t.Fatalf("RecordEscalation failed: %v", err)
	}

	a, _ := m.Latest(ctx, "a")
	if a.TasksFailed != 2 || a.ErrorCount != 3 || a.TasksCompleted != 5 || a.Status != domain.AgentStatusError {
		t.Errorf("unexpected escalated snapshot: %+v", a)
	}
	if a.AverageResponseTime != 12 {
		t.Errorf("response time should carry over, got %v", a.AverageResponseTime)
	}

	fresh, _ := m.Latest(ctx, "fresh")
	if fresh.TasksFailed != 1 || fresh.ErrorCount != 1 || fresh.Status != domain.AgentStatusError {
		t.Errorf("unexpected snapshot for unseen agent: %+v", fresh)
	}
}

func TestRecordEscalation_ConcurrentIncrementsAreNotLost(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestMonitor()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.RecordEscalation(ctx, "busy")
		}()
	}
	wg.Wait()

	snap, _ := m.Latest(ctx, "busy")
	if snap.TasksFailed != 50 {
		t.Errorf("expected 50 failed tasks, got %d", snap.TasksFailed)
	}
}

func TestPerformAllHealthChecks(t *testing.T) {
	ctx := context.Background()
	m, sink, store := newTestMonitor()

	m.Register("healthy")
	m.Register("silent")
	m.Register("healthy")
	if _, err := m.RecordMetrics(ctx, "healthy", domain.MetricsUpdate{TasksCompleted: 10}); err != nil {
		t.Fatal(err)
	}
	if _, err := m.RecordMetrics(ctx, "failing", domain.MetricsUpdate{TasksCompleted: 1, TasksFailed: 3}); err != nil {
		t.Fatal(err)
	}

	results := m.PerformAllHealthChecks(ctx)
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].AgentID != "healthy" || !results[0].Healthy {
		t.Errorf("unexpected first result: %+v", results[0])
	}

	if len(sink.records) != 2 {
		t.Fatalf("expected 2 critical records, got %d", len(sink.records))
	}
	for _, rec := range sink.records {
		if rec.Severity != domain.SeverityCritical || rec.AgentID == "" {
			t.Errorf("unexpected record: %+v", rec)
		}
	}

	stored, _ := memory.NewHealthRepo(store).List(ctx)
	if len(stored) != 3 {
		t.Errorf("expected 3 stored results, got %d", len(stored))
	}
}

func TestPerformAllHealthChecks_HistoryIsBounded(t *testing.T) {
	ctx := context.Background()
	m, _, store := newTestMonitor()
	for i := 0; i < 30; i++ {
		m.Register(fmt.Sprintf("agent-%d", i))
	}
	for i := 0; i < 5; i++ {
		m.PerformAllHealthChecks(ctx)
	}

	stored, _ := memory.NewHealthRepo(store).List(ctx)
	if len(stored) != 100 {
		t.Errorf("expected history capped at 100, got %d", len(stored))
	}
}
