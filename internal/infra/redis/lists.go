package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/vietddude/errwatch/internal/core/domain"
	"github.com/vietddude/errwatch/internal/infra/storage"
)

// pushBounded LPUSHes every value and trims the list to limit in one MULTI.
// The list head is the newest entry.
func pushBounded(ctx context.Context, rdb *redis.Client, key string, limit int, values ...any) error {
	payloads := make([]any, 0, len(values))
	for _, v := range values {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to marshal %s entry: %w", key, err)
		}
		payloads = append(payloads, data)
	}
	if len(payloads) == 0 {
		return nil
	}

	_, err := rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, payloads...)
		if limit > 0 {
			pipe.LTrim(ctx, key, 0, int64(limit-1))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to push %s: %w", key, err)
	}
	return nil
}

// readAll returns the list oldest first.
func readAll[T any](ctx context.Context, rdb *redis.Client, key string) ([]*T, error) {
	raw, err := rdb.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}

	out := make([]*T, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		var v T
		if err := json.Unmarshal([]byte(raw[i]), &v); err != nil {
			continue
		}
		out = append(out, &v)
	}
	return out, nil
}

// ErrorLog implements storage.ErrorRecordRepository as a capped Redis list.
type ErrorLog struct {
	rdb *redis.Client
	key string
}

// NewErrorLog creates a Redis-backed error record repository.
func NewErrorLog(client *Client) *ErrorLog {
	return &ErrorLog{rdb: client.rdb, key: errorsKey(client.prefix)}
}

func (l *ErrorLog) Append(ctx context.Context, rec *domain.ErrorRecord, limit int) error {
	return pushBounded(ctx, l.rdb, l.key, limit, rec)
}

func (l *ErrorLog) List(ctx context.Context) ([]*domain.ErrorRecord, error) {
	return readAll[domain.ErrorRecord](ctx, l.rdb, l.key)
}

// MetricsRepo keeps the latest snapshot per agent in a hash and the
// history in a capped list.
type MetricsRepo struct {
	rdb        *redis.Client
	historyKey string
	latestKey  string
}

// NewMetricsRepo creates a Redis-backed metrics repository.
func NewMetricsRepo(client *Client) *MetricsRepo {
	return &MetricsRepo{
		rdb:        client.rdb,
		historyKey: metricsHistoryKey(client.prefix),
		latestKey:  metricsLatestKey(client.prefix),
	}
}

func (r *MetricsRepo) Save(ctx context.Context, snap *domain.AgentMetricsSnapshot, limit int) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, r.latestKey, snap.AgentID, data)
		pipe.LPush(ctx, r.historyKey, data)
		if limit > 0 {
			pipe.LTrim(ctx, r.historyKey, 0, int64(limit-1))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

func (r *MetricsRepo) Latest(ctx context.Context, agentID string) (*domain.AgentMetricsSnapshot, error) {
	raw, err := r.rdb.HGet(ctx, r.latestKey, agentID).Result()
	if errors.Is(err, redis.Nil) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest snapshot: %w", err)
	}

	var snap domain.AgentMetricsSnapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

func (r *MetricsRepo) History(ctx context.Context) ([]*domain.AgentMetricsSnapshot, error) {
	return readAll[domain.AgentMetricsSnapshot](ctx, r.rdb, r.historyKey)
}

// HealthRepo implements storage.HealthResultRepository.
type HealthRepo struct {
	rdb *redis.Client
	key string
}

func NewHealthRepo(client *Client) *HealthRepo {
	return &HealthRepo{rdb: client.rdb, key: healthKey(client.prefix)}
}

func (r *HealthRepo) AppendAll(ctx context.Context, results []*domain.HealthCheckResult, limit int) error {
	values := make([]any, len(results))
	for i, res := range results {
		values[i] = res
	}
	return pushBounded(ctx, r.rdb, r.key, limit, values...)
}

func (r *HealthRepo) List(ctx context.Context) ([]*domain.HealthCheckResult, error) {
	return readAll[domain.HealthCheckResult](ctx, r.rdb, r.key)
}

// ActionRepo implements storage.RecoveryActionRepository.
type ActionRepo struct {
	rdb *redis.Client
	key string
}

func NewActionRepo(client *Client) *ActionRepo {
	return &ActionRepo{rdb: client.rdb, key: actionsKey(client.prefix)}
}

func (r *ActionRepo) Append(ctx context.Context, action *domain.RecoveryAction, limit int) error {
	return pushBounded(ctx, r.rdb, r.key, limit, action)
}

func (r *ActionRepo) List(ctx context.Context) ([]*domain.RecoveryAction, error) {
	return readAll[domain.RecoveryAction](ctx, r.rdb, r.key)
}
