package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vietddude/errwatch/internal/core/domain"
	"github.com/vietddude/errwatch/internal/infra/storage"
)

// MetricsRepo implements storage.MetricsRepository over SQL.
type MetricsRepo struct {
	db *DB
}

// NewMetricsRepo creates a new SQL metrics repository.
func NewMetricsRepo(db *DB) *MetricsRepo {
	return &MetricsRepo{db: db}
}

type snapshotRow struct {
	AgentID             string  `db:"agent_id"`
	TsMs                int64   `db:"ts_ms"`
	TasksCompleted      int     `db:"tasks_completed"`
	TasksFailed         int     `db:"tasks_failed"`
	AverageResponseTime float64 `db:"average_response_time"`
	WarningCount        int     `db:"warning_count"`
	ErrorCount          int     `db:"error_count"`
	LastActivityMs      int64   `db:"last_activity_ms"`
	Status              string  `db:"status"`
}

func (row snapshotRow) toDomain() *domain.AgentMetricsSnapshot {
	return &domain.AgentMetricsSnapshot{
		AgentID:             row.AgentID,
		Timestamp:           fromMillis(row.TsMs),
		TasksCompleted:      row.TasksCompleted,
		TasksFailed:         row.TasksFailed,
		AverageResponseTime: row.AverageResponseTime,
		WarningCount:        row.WarningCount,
		ErrorCount:          row.ErrorCount,
		LastActivity:        fromMillis(row.LastActivityMs),
		Status:              domain.AgentStatus(row.Status),
	}
}

const snapshotColumns = `agent_id, ts_ms, tasks_completed, tasks_failed, average_response_time,
	warning_count, error_count, last_activity_ms, status`

// Save upserts the latest snapshot and appends it to the bounded history.
func (r *MetricsRepo) Save(ctx context.Context, snap *domain.AgentMetricsSnapshot, limit int) error {
	args := []any{
		snap.AgentID,
		toMillis(snap.Timestamp),
		snap.TasksCompleted,
		snap.TasksFailed,
		snap.AverageResponseTime,
		snap.WarningCount,
		snap.ErrorCount,
		toMillis(snap.LastActivity),
		string(snap.Status),
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	upsert := r.db.Rebind(`
		INSERT INTO agent_metrics_latest (` + snapshotColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (agent_id) DO UPDATE SET
			ts_ms = excluded.ts_ms,
			tasks_completed = excluded.tasks_completed,
			tasks_failed = excluded.tasks_failed,
			average_response_time = excluded.average_response_time,
			warning_count = excluded.warning_count,
			error_count = excluded.error_count,
			last_activity_ms = excluded.last_activity_ms,
			status = excluded.status
	`)
	if _, err := tx.ExecContext(ctx, upsert, args...); err != nil {
		return fmt.Errorf("failed to upsert latest metrics: %w", err)
	}

	insert := r.db.Rebind(`
		INSERT INTO agent_metrics_history (` + snapshotColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if _, err := tx.ExecContext(ctx, insert, args...); err != nil {
		return fmt.Errorf("failed to insert metrics history: %w", err)
	}

	if limit > 0 {
		trim := r.db.Rebind(`
			DELETE FROM agent_metrics_history
			WHERE seq NOT IN (SELECT seq FROM agent_metrics_history ORDER BY seq DESC LIMIT ?)
		`)
		if _, err := tx.ExecContext(ctx, trim, limit); err != nil {
			return fmt.Errorf("failed to trim metrics history: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit metrics: %w", err)
	}
	return nil
}

// Latest returns the current snapshot for an agent.
func (r *MetricsRepo) Latest(ctx context.Context, agentID string) (*domain.AgentMetricsSnapshot, error) {
	query := r.db.Rebind(`SELECT ` + snapshotColumns + ` FROM agent_metrics_latest WHERE agent_id = ?`)

	var row snapshotRow
	err := r.db.GetContext(ctx, &row, query, agentID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest metrics: %w", err)
	}
	return row.toDomain(), nil
}

// History returns retained snapshots, oldest first.
func (r *MetricsRepo) History(ctx context.Context) ([]*domain.AgentMetricsSnapshot, error) {
	query := `SELECT ` + snapshotColumns + ` FROM agent_metrics_history ORDER BY seq ASC`

	var rows []snapshotRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to list metrics history: %w", err)
	}

	out := make([]*domain.AgentMetricsSnapshot, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}
