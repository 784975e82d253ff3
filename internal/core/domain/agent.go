package domain

import (
	"slices"
	"time"
)

// AgentStatus is the self-reported operating state of an agent.
type AgentStatus string

const (
	AgentStatusActive  AgentStatus = "active"
	AgentStatusIdle    AgentStatus = "idle"
	AgentStatusError   AgentStatus = "error"
	AgentStatusOffline AgentStatus = "offline"
)

// AgentMetricsSnapshot is a point-in-time view of one agent's counters.
type AgentMetricsSnapshot struct {
	AgentID             string      `json:"agent_id"`
	Timestamp           time.Time   `json:"timestamp"`
	TasksCompleted      int         `json:"tasks_completed"`
	TasksFailed         int         `json:"tasks_failed"`
	AverageResponseTime float64     `json:"average_response_time_ms"`
	WarningCount        int         `json:"warning_count"`
	ErrorCount          int         `json:"error_count"`
	LastActivity        time.Time   `json:"last_activity"`
	Status              AgentStatus `json:"status"`
}

// MetricsUpdate is a partial snapshot. Unset numbers count as zero and an
// empty status means active.
type MetricsUpdate struct {
	TasksCompleted      int         `json:"tasks_completed"`
	TasksFailed         int         `json:"tasks_failed"`
	AverageResponseTime float64     `json:"average_response_time_ms"`
	WarningCount        int         `json:"warning_count"`
	ErrorCount          int         `json:"error_count"`
	Status              AgentStatus `json:"status,omitempty"`
}

// Valid reports whether s is a known status. Empty counts as valid.
func (s AgentStatus) Valid() bool {
	switch s {
	case "", AgentStatusActive, AgentStatusIdle, AgentStatusError, AgentStatusOffline:
		return true
	}
	return false
}

// HealthCheckResult is the computed verdict for one agent.
type HealthCheckResult struct {
	AgentID     string            `json:"agent_id"`
	Timestamp   time.Time         `json:"timestamp"`
	Healthy     bool              `json:"healthy"`
	Issues      []string          `json:"issues"`
	Performance PerformanceFigure `json:"performance"`
}

// Clone returns a copy that shares no mutable state with r.
func (r *HealthCheckResult) Clone() *HealthCheckResult {
	c := *r
	c.Issues = slices.Clone(r.Issues)
	return &c
}

// PerformanceFigure holds the derived rates of a health check.
type PerformanceFigure struct {
	ResponseTime float64 `json:"response_time_ms"`
	SuccessRate  float64 `json:"success_rate"`
	ErrorRate    float64 `json:"error_rate"`
}
