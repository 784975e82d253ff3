package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/vietddude/errwatch/internal/core/domain"
	"github.com/vietddude/errwatch/internal/infra/storage"
	"github.com/vietddude/errwatch/internal/pipeline/metrics"
	"golang.org/x/sync/errgroup"
)

const issueNoMetrics = "no metrics present"

// RecordSink receives the critical record written for unhealthy agents.
type RecordSink interface {
	Append(ctx context.Context, rec domain.ErrorRecord) domain.ErrorRecord
}

// Thresholds bound a healthy agent.
type Thresholds struct {
	MaxErrorRate    float64
	MaxResponseTime float64
	MaxInactivity   time.Duration
}

// DefaultThresholds returns the stock limits.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MaxErrorRate:    0.10,
		MaxResponseTime: 30000,
		MaxInactivity:   24 * time.Hour,
	}
}

// Monitor tracks agent metrics and computes health verdicts.
type Monitor struct {
	metricsRepo  storage.MetricsRepository
	resultsRepo  storage.HealthResultRepository
	sink         RecordSink
	thresholds   Thresholds
	metricsLimit int
	healthLimit  int
	logger       *slog.Logger
	now          func() time.Time

	agents []string
	// mu guards agents and serializes snapshot read-modify-write cycles
	mu sync.Mutex
}

// Option configures a Monitor.
type Option func(*Monitor)

func WithThresholds(t Thresholds) Option {
	return func(m *Monitor) {
		m.thresholds = t
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(m *Monitor) {
		m.logger = logger
	}
}

// WithClock pins "now" for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) {
		m.now = now
	}
}

// WithLimits overrides the metrics and health history caps.
func WithLimits(metricsLimit, healthLimit int) Option {
	return func(m *Monitor) {
		m.metricsLimit = metricsLimit
		m.healthLimit = healthLimit
	}
}

// NewMonitor creates a new health monitor.
func NewMonitor(
	metricsRepo storage.MetricsRepository,
	resultsRepo storage.HealthResultRepository,
	sink RecordSink,
	opts ...Option,
) *Monitor {
	m := &Monitor{
		metricsRepo:  metricsRepo,
		resultsRepo:  resultsRepo,
		sink:         sink,
		thresholds:   DefaultThresholds(),
		metricsLimit: storage.DefaultMetricsLimit,
		healthLimit:  storage.DefaultHealthLimit,
		logger:       slog.Default(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "health")
	return m
}

// Register announces an agent so PerformAllHealthChecks covers it.
func (m *Monitor) Register(agentID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registerLocked(agentID)
}

func (m *Monitor) registerLocked(agentID string) {
	if agentID == "" || slices.Contains(m.agents, agentID) {
		return
	}
	m.agents = append(m.agents, agentID)
}

// Agents returns the registered agent ids in registration order.
func (m *Monitor) Agents() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.agents)
}

// RecordMetrics replaces the agent's current snapshot. Unset numbers are
// zero and an empty status means active.
func (m *Monitor) RecordMetrics(
	ctx context.Context,
	agentID string,
	update domain.MetricsUpdate,
) (*domain.AgentMetricsSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveLocked(ctx, agentID, update)
}

func (m *Monitor) saveLocked(
	ctx context.Context,
	agentID string,
	update domain.MetricsUpdate,
) (*domain.AgentMetricsSnapshot, error) {
	m.registerLocked(agentID)

	status := update.Status
	if status == "" {
		status = domain.AgentStatusActive
	}
	now := m.now()
	snap := &domain.AgentMetricsSnapshot{
		AgentID:             agentID,
		Timestamp:           now,
		TasksCompleted:      update.TasksCompleted,
		TasksFailed:         update.TasksFailed,
		AverageResponseTime: update.AverageResponseTime,
		WarningCount:        update.WarningCount,
		ErrorCount:          update.ErrorCount,
		LastActivity:        now,
		Status:              status,
	}
	if err := m.metricsRepo.Save(ctx, snap, m.metricsLimit); err != nil {
		return nil, fmt.Errorf("failed to save metrics for %s: %w", agentID, err)
	}
	return snap, nil
}

// RecordEscalation adds one failed task and one error to the agent's
// current snapshot and marks it as errored.
func (m *Monitor) RecordEscalation(ctx context.Context, agentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	update := domain.MetricsUpdate{}
	latest, err := m.metricsRepo.Latest(ctx, agentID)
	switch {
	case err == nil:
		update = domain.MetricsUpdate{
			TasksCompleted:      latest.TasksCompleted,
			TasksFailed:         latest.TasksFailed,
			AverageResponseTime: latest.AverageResponseTime,
			WarningCount:        latest.WarningCount,
			ErrorCount:          latest.ErrorCount,
		}
	case errors.Is(err, storage.ErrNotFound):
	default:
		return fmt.Errorf("failed to load metrics for %s: %w", agentID, err)
	}

	update.TasksFailed++
	update.ErrorCount++
	update.Status = domain.AgentStatusError

	_, err = m.saveLocked(ctx, agentID, update)
	return err
}

// Latest returns the agent's current snapshot.
func (m *Monitor) Latest(ctx context.Context, agentID string) (*domain.AgentMetricsSnapshot, error) {
	return m.metricsRepo.Latest(ctx, agentID)
}

// History returns the retained health check results.
func (m *Monitor) History(ctx context.Context) ([]*domain.HealthCheckResult, error) {
	return m.resultsRepo.List(ctx)
}

// PerformHealthCheck computes the verdict for one agent from its latest
// snapshot. It never fails: a missing snapshot yields an unhealthy result.
func (m *Monitor) PerformHealthCheck(ctx context.Context, agentID string) *domain.HealthCheckResult {
	result := &domain.HealthCheckResult{
		AgentID:   agentID,
		Timestamp: m.now(),
		Issues:    []string{},
	}

	snap, err := m.metricsRepo.Latest(ctx, agentID)
	if err != nil {
		issue := issueNoMetrics
		if !errors.Is(err, storage.ErrNotFound) {
			m.logger.Warn("Failed to load metrics", "agent", agentID, "error", err)
			issue = "metrics unavailable"
		}
		result.Issues = append(result.Issues, issue)
		result.Performance.ErrorRate = 1.0
		m.observe(result)
		return result
	}

	total := snap.TasksCompleted + snap.TasksFailed
	if total > 0 {
		result.Performance.ErrorRate = float64(snap.TasksFailed) / float64(total)
		result.Performance.SuccessRate = float64(snap.TasksCompleted) / float64(total)
	}
	result.Performance.ResponseTime = snap.AverageResponseTime

	if snap.Status == domain.AgentStatusError || snap.Status == domain.AgentStatusOffline {
		result.Issues = append(result.Issues, "agent status is "+string(snap.Status))
	}
	if result.Performance.ErrorRate > m.thresholds.MaxErrorRate {
		result.Issues = append(result.Issues,
			"high error rate: "+strconv.FormatFloat(result.Performance.ErrorRate*100, 'f', 1, 64)+"%")
	}
	if snap.AverageResponseTime > m.thresholds.MaxResponseTime {
		result.Issues = append(result.Issues,
			"slow response time: "+strconv.FormatFloat(snap.AverageResponseTime, 'f', 0, 64)+"ms")
	}
	if idle := m.now().Sub(snap.LastActivity); idle > m.thresholds.MaxInactivity {
		result.Issues = append(result.Issues,
			"inactive for "+strconv.FormatFloat(idle.Hours(), 'f', 1, 64)+" hours")
	}

	result.Healthy = len(result.Issues) == 0
	m.observe(result)
	return result
}

func (m *Monitor) observe(r *domain.HealthCheckResult) {
	metrics.HealthChecksTotal.WithLabelValues(r.AgentID, strconv.FormatBool(r.Healthy)).Inc()
	metrics.AgentErrorRate.WithLabelValues(r.AgentID).Set(r.Performance.ErrorRate)
}

// PerformAllHealthChecks checks every registered agent concurrently, stores
// the results and writes one critical record per unhealthy agent.
func (m *Monitor) PerformAllHealthChecks(ctx context.Context) []*domain.HealthCheckResult {
	agents := m.Agents()
	results := make([]*domain.HealthCheckResult, len(agents))

	var g errgroup.Group
	for i, agentID := range agents {
		g.Go(func() error {
			results[i] = m.safeCheck(ctx, agentID)
			return nil
		})
	}
	_ = g.Wait()

	if len(results) > 0 {
		if err := m.resultsRepo.AppendAll(ctx, results, m.healthLimit); err != nil {
			m.logger.Warn("Failed to store health results", "error", err)
		}
	}

	unhealthy := 0
	for _, r := range results {
		if r.Healthy {
			continue
		}
		unhealthy++
		m.sink.Append(ctx, domain.ErrorRecord{
			Kind:     domain.KindRuntime,
			Severity: domain.SeverityCritical,
			Category: "health-monitor",
			Message:  fmt.Sprintf("Agent %s is unhealthy: %s", r.AgentID, strings.Join(r.Issues, "; ")),
			AgentID:  r.AgentID,
			Context: map[string]string{
				"error_rate": strconv.FormatFloat(r.Performance.ErrorRate, 'f', 4, 64),
			},
		})
	}

	m.logger.Debug("Health sweep complete", "agents", len(results), "unhealthy", unhealthy)
	return results
}

func (m *Monitor) safeCheck(ctx context.Context, agentID string) (res *domain.HealthCheckResult) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Warn("Health check panicked", "agent", agentID, "panic", fmt.Sprint(r))
			res = &domain.HealthCheckResult{
				AgentID:     agentID,
				Timestamp:   m.now(),
				Issues:      []string{"health check failed"},
				Performance: domain.PerformanceFigure{ErrorRate: 1.0},
			}
		}
	}()
	return m.PerformHealthCheck(ctx, agentID)
}
