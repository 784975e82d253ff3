package storage

import (
	"context"
	"errors"

	"github.com/vietddude/errwatch/internal/core/domain"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
)

// Retention caps for every bounded collection.
const (
	DefaultErrorLimit   = 1000
	DefaultMetricsLimit = 1000
	DefaultHealthLimit  = 100
	DefaultActionLimit  = 1000
)

// ErrorRecordRepository is the durable backing list of the error store.
type ErrorRecordRepository interface {
	// Append stores a record and evicts the oldest entries beyond limit
	Append(ctx context.Context, rec *domain.ErrorRecord, limit int) error

	// List returns every retained record, oldest first
	List(ctx context.Context) ([]*domain.ErrorRecord, error)
}

// MetricsRepository keeps agent snapshots.
type MetricsRepository interface {
	// Save replaces the agent's current snapshot and appends it to history
	Save(ctx context.Context, snap *domain.AgentMetricsSnapshot, limit int) error

	// Latest returns the agent's current snapshot or ErrNotFound
	Latest(ctx context.Context, agentID string) (*domain.AgentMetricsSnapshot, error)

	// History returns the retained snapshots, oldest first
	History(ctx context.Context) ([]*domain.AgentMetricsSnapshot, error)
}

// HealthResultRepository keeps health check results.
type HealthResultRepository interface {
	// AppendAll stores results and evicts the oldest entries beyond limit
	AppendAll(ctx context.Context, results []*domain.HealthCheckResult, limit int) error

	// List returns the retained results, oldest first
	List(ctx context.Context) ([]*domain.HealthCheckResult, error)
}

// RecoveryActionRepository keeps recovery decisions.
type RecoveryActionRepository interface {
	// Append stores an action and evicts the oldest entries beyond limit
	Append(ctx context.Context, action *domain.RecoveryAction, limit int) error

	// List returns the retained actions, oldest first
	List(ctx context.Context) ([]*domain.RecoveryAction, error)
}
