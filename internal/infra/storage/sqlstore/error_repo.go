package sqlstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vietddude/errwatch/internal/core/domain"
)

// ErrorRecordRepo implements storage.ErrorRecordRepository over SQL.
type ErrorRecordRepo struct {
	db *DB
}

// NewErrorRecordRepo creates a new SQL error record repository.
func NewErrorRecordRepo(db *DB) *ErrorRecordRepo {
	return &ErrorRecordRepo{db: db}
}

type errorRow struct {
	ID            string `db:"id"`
	TsMs          int64  `db:"ts_ms"`
	Kind          string `db:"kind"`
	Severity      string `db:"severity"`
	Category      string `db:"category"`
	Message       string `db:"message"`
	FilePath      string `db:"file_path"`
	Line          int    `db:"line"`
	Context       string `db:"context"`
	Suggestion    string `db:"suggestion"`
	AgentID       string `db:"agent_id"`
	TaskID        string `db:"task_id"`
	CorrelationID string `db:"correlation_id"`
}

// Append inserts the record and trims the table to limit rows in one transaction.
func (r *ErrorRecordRepo) Append(ctx context.Context, rec *domain.ErrorRecord, limit int) error {
	var contextJSON string
	if len(rec.Context) > 0 {
		data, err := json.Marshal(rec.Context)
		if err != nil {
			return fmt.Errorf("failed to marshal record context: %w", err)
		}
		contextJSON = string(data)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	insert := r.db.Rebind(`
		INSERT INTO error_records (id, ts_ms, kind, severity, category, message, file_path, line,
			context, suggestion, agent_id, task_id, correlation_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	_, err = tx.ExecContext(ctx, insert,
		rec.ID,
		toMillis(rec.Timestamp),
		string(rec.Kind),
		string(rec.Severity),
		rec.Category,
		rec.Message,
		rec.FilePath,
		rec.Line,
		contextJSON,
		rec.Suggestion,
		rec.AgentID,
		rec.TaskID,
		rec.CorrelationID,
	)
	if err != nil {
		return fmt.Errorf("failed to insert error record: %w", err)
	}

	if limit > 0 {
		trim := r.db.Rebind(`
			DELETE FROM error_records
			WHERE seq NOT IN (SELECT seq FROM error_records ORDER BY seq DESC LIMIT ?)
		`)
		if _, err := tx.ExecContext(ctx, trim, limit); err != nil {
			return fmt.Errorf("failed to trim error records: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit error record: %w", err)
	}
	return nil
}

// List returns all retained records, oldest first.
func (r *ErrorRecordRepo) List(ctx context.Context) ([]*domain.ErrorRecord, error) {
	query := `
		SELECT id, ts_ms, kind, severity, category, message, file_path, line,
			context, suggestion, agent_id, task_id, correlation_id
		FROM error_records
		ORDER BY seq ASC
	`

	var rows []errorRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to list error records: %w", err)
	}

	records := make([]*domain.ErrorRecord, 0, len(rows))
	for _, row := range rows {
		rec := &domain.ErrorRecord{
			ID:            row.ID,
			Timestamp:     fromMillis(row.TsMs),
			Kind:          domain.ErrorKind(row.Kind),
			Severity:      domain.Severity(row.Severity),
			Category:      row.Category,
			Message:       row.Message,
			FilePath:      row.FilePath,
			Line:          row.Line,
			Suggestion:    row.Suggestion,
			AgentID:       row.AgentID,
			TaskID:        row.TaskID,
			CorrelationID: row.CorrelationID,
		}
		if row.Context != "" {
			// a corrupt context blob must not hide the record
			_ = json.Unmarshal([]byte(row.Context), &rec.Context)
		}
		records = append(records, rec)
	}
	return records, nil
}
