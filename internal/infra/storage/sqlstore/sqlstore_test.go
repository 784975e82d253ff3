package sqlstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/vietddude/errwatch/internal/core/domain"
	"github.com/vietddude/errwatch/internal/infra/storage"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(context.Background(), Config{
		Driver: "sqlite",
		URL:    filepath.Join(t.TempDir(), "errwatch.db"),
	})
	if err != nil {
		t.Fatalf("NewDB failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestErrorRecordRepo_AppendTrimsOldest(t *testing.T) {
	ctx := context.Background()
	repo := NewErrorRecordRepo(openTestDB(t))

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		rec := &domain.ErrorRecord{
			ID:        id,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Kind:      domain.KindLogic,
			Severity:  domain.SeverityLow,
			Message:   "msg " + id,
			Context:   map[string]string{"rule": "r" + id},
		}
		if err := repo.Append(ctx, rec, 2); err != nil {
			t.Fatalf("Append %s failed: %v", id, err)
		}
	}

	got, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}
	if got[0].ID != "b" || got[1].ID != "c" {
		t.Errorf("expected [b c], got [%s %s]", got[0].ID, got[1].ID)
	}
	if got[1].Context["rule"] != "rc" {
		t.Errorf("context not round-tripped: %v", got[1].Context)
	}
	if !got[0].Timestamp.Equal(base.Add(time.Minute)) {
		t.Errorf("unexpected timestamp %v", got[0].Timestamp)
	}
}

func TestMetricsRepo_LatestSurvivesHistoryTrim(t *testing.T) {
	ctx := context.Background()
	repo := NewMetricsRepo(openTestDB(t))

	if _, err := repo.Latest(ctx, "agent-1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	save := func(agent string, completed int) {
		snap := &domain.AgentMetricsSnapshot{
			AgentID:        agent,
			Timestamp:      now,
			TasksCompleted: completed,
			LastActivity:   now,
			Status:         domain.AgentStatusActive,
		}
		if err := repo.Save(ctx, snap, 1); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	save("agent-1", 1)
	save("agent-1", 5)
	save("agent-2", 9)

	latest, err := repo.Latest(ctx, "agent-1")
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	if latest.TasksCompleted != 5 {
		t.Errorf("expected latest tasks_completed 5, got %d", latest.TasksCompleted)
	}

	history, err := repo.History(ctx)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) != 1 || history[0].AgentID != "agent-2" {
		t.Errorf("expected history trimmed to agent-2 only, got %+v", history)
	}
}
