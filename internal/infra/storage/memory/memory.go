package memory

import (
	"context"
	"sync"

	"github.com/vietddude/errwatch/internal/core/domain"
	"github.com/vietddude/errwatch/internal/infra/storage"
)

// MemoryStorage holds every bounded list behind one lock.
type MemoryStorage struct {
	records []*domain.ErrorRecord
	latest  map[string]*domain.AgentMetricsSnapshot
	history []*domain.AgentMetricsSnapshot
	results []*domain.HealthCheckResult
	actions []*domain.RecoveryAction
	mu      sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		latest: make(map[string]*domain.AgentMetricsSnapshot),
	}
}

// trim keeps the newest limit entries. limit <= 0 disables trimming.
func trim[T any](list []T, limit int) []T {
	if limit <= 0 || len(list) <= limit {
		return list
	}
	out := make([]T, limit)
	copy(out, list[len(list)-limit:])
	return out
}

func snapshot[T any](list []*T, clone func(*T) *T) []*T {
	out := make([]*T, len(list))
	for i, v := range list {
		out[i] = clone(v)
	}
	return out
}

// shallow copies types without reference fields.
func shallow[T any](v *T) *T {
	c := *v
	return &c
}

// -----------------------------------------------------------------------------
// Error Record Repository
// -----------------------------------------------------------------------------

type ErrorRepo struct {
	store *MemoryStorage
}

func NewErrorRepo(store *MemoryStorage) *ErrorRepo {
	return &ErrorRepo{store: store}
}

func (r *ErrorRepo) Append(ctx context.Context, rec *domain.ErrorRecord, limit int) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.records = trim(append(r.store.records, rec.Clone()), limit)
	return nil
}

func (r *ErrorRepo) List(ctx context.Context) ([]*domain.ErrorRecord, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return snapshot(r.store.records, (*domain.ErrorRecord).Clone), nil
}

// -----------------------------------------------------------------------------
// Metrics Repository
// -----------------------------------------------------------------------------

type MetricsRepo struct {
	store *MemoryStorage
}

func NewMetricsRepo(store *MemoryStorage) *MetricsRepo {
	return &MetricsRepo{store: store}
}

func (r *MetricsRepo) Save(ctx context.Context, snap *domain.AgentMetricsSnapshot, limit int) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	c := *snap
	r.store.latest[snap.AgentID] = &c
	r.store.history = trim(append(r.store.history, &c), limit)
	return nil
}

func (r *MetricsRepo) Latest(ctx context.Context, agentID string) (*domain.AgentMetricsSnapshot, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	snap, ok := r.store.latest[agentID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	c := *snap
	return &c, nil
}

func (r *MetricsRepo) History(ctx context.Context) ([]*domain.AgentMetricsSnapshot, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return snapshot(r.store.history, shallow[domain.AgentMetricsSnapshot]), nil
}

// -----------------------------------------------------------------------------
// Health Result Repository
// -----------------------------------------------------------------------------

type HealthRepo struct {
	store *MemoryStorage
}

func NewHealthRepo(store *MemoryStorage) *HealthRepo {
	return &HealthRepo{store: store}
}

func (r *HealthRepo) AppendAll(ctx context.Context, results []*domain.HealthCheckResult, limit int) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, res := range results {
		r.store.results = append(r.store.results, res.Clone())
	}
	r.store.results = trim(r.store.results, limit)
	return nil
}

func (r *HealthRepo) List(ctx context.Context) ([]*domain.HealthCheckResult, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return snapshot(r.store.results, (*domain.HealthCheckResult).Clone), nil
}

// -----------------------------------------------------------------------------
// Recovery Action Repository
// -----------------------------------------------------------------------------

type ActionRepo struct {
	store *MemoryStorage
}

func NewActionRepo(store *MemoryStorage) *ActionRepo {
	return &ActionRepo{store: store}
}

func (r *ActionRepo) Append(ctx context.Context, action *domain.RecoveryAction, limit int) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	c := *action
	r.store.actions = trim(append(r.store.actions, &c), limit)
	return nil
}

func (r *ActionRepo) List(ctx context.Context) ([]*domain.RecoveryAction, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return snapshot(r.store.actions, shallow[domain.RecoveryAction]), nil
}
