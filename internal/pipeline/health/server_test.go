package health

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vietddude/errwatch/internal/core/domain"
	"github.com/vietddude/errwatch/internal/pipeline/recovery"
)

type stubErrors struct {
	lastFilter domain.ErrorFilter
	records    []*domain.ErrorRecord
	err        error
}

func (s *stubErrors) Query(_ context.Context, f domain.ErrorFilter) ([]*domain.ErrorRecord, error) {
	s.lastFilter = f
	return s.records, s.err
}

func (s *stubErrors) AnalyzePatterns(context.Context, time.Time) (*domain.PatternAnalysis, error) {
	return &domain.PatternAnalysis{Total: len(s.records)}, s.err
}

type stubActions struct {
	actions []*domain.RecoveryAction
	lastErr error
	lastCtx recovery.Context
}

func (s *stubActions) Actions(context.Context) ([]*domain.RecoveryAction, error) {
	return s.actions, nil
}

func (s *stubActions) HandleError(_ context.Context, err error, rc recovery.Context) *domain.RecoveryAction {
	s.lastErr = err
	s.lastCtx = rc
	return &domain.RecoveryAction{ID: "a2", Kind: domain.ActionEscalate, AgentID: rc.AgentID}
}

func newTestServer(t *testing.T) (*httptest.Server, *Monitor, *stubErrors) {
	srv, m, errs, _ := newTestServerWithActions(t)
	return srv, m, errs
}

func newTestServerWithActions(t *testing.T) (*httptest.Server, *Monitor, *stubErrors, *stubActions) {
	t.Helper()
	m, _, _ := newTestMonitor()
	errs := &stubErrors{records: []*domain.ErrorRecord{{ID: "r1", Kind: domain.KindType}}}
	actions := &stubActions{actions: []*domain.RecoveryAction{{ID: "a1", Kind: domain.ActionRetry}}}
	srv := httptest.NewServer(NewServer(m, errs, actions, 0).Routes())
	t.Cleanup(srv.Close)
	return srv, m, errs, actions
}

func TestServer_HealthReflectsAgents(t *testing.T) {
	srv, m, _ := newTestServer(t)
	ctx := context.Background()

	if _, err := m.RecordMetrics(ctx, "ok", domain.MetricsUpdate{TasksCompleted: 1}); err != nil {
		t.Fatal(err)
	}
	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}

	m.Register("missing")
	resp, err = http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "unhealthy" {
		t.Errorf("unexpected body: %v", body)
	}
}

func TestServer_DetailedAndAgent(t *testing.T) {
	srv, m, _ := newTestServer(t)
	m.Register("a")
	m.Register("b")

	resp, err := http.Get(srv.URL + "/health/detailed")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var report []domain.HealthCheckResult
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		t.Fatal(err)
	}
	if len(report) != 2 {
		t.Errorf("expected 2 results, got %d", len(report))
	}

	resp2, err := http.Get(srv.URL + "/health/a")
	if err != nil {
		t.Fatal(err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503 for agent without metrics, got %d", resp2.StatusCode)
	}
}

func TestServer_ErrorsFilters(t *testing.T) {
	srv, _, errs := newTestServer(t)

	resp, err := http.Get(srv.URL + "/errors?type=type&severity=high&category=lint&file=a.ts&since=2026-01-01T00:00:00Z")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	f := errs.lastFilter
	if f.Kind != domain.KindType || f.Severity != domain.SeverityHigh || f.Category != "lint" || f.FilePath != "a.ts" {
		t.Errorf("unexpected filter: %+v", f)
	}
	if !f.Since.Equal(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected since: %v", f.Since)
	}

	bad, err := http.Get(srv.URL + "/errors?since=yesterday")
	if err != nil {
		t.Fatal(err)
	}
	bad.Body.Close()
	if bad.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", bad.StatusCode)
	}

	errs.err = errors.New("store down")
	down, err := http.Get(srv.URL + "/patterns")
	if err != nil {
		t.Fatal(err)
	}
	down.Body.Close()
	if down.StatusCode != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", down.StatusCode)
	}
}

func TestServer_ActionsAndMetrics(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/recovery/actions")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var actions []domain.RecoveryAction
	if err := json.NewDecoder(resp.Body).Decode(&actions); err != nil {
		t.Fatal(err)
	}
	if len(actions) != 1 || actions[0].ID != "a1" {
		t.Errorf("unexpected actions: %+v", actions)
	}

	m, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	m.Body.Close()
	if m.StatusCode != http.StatusOK {
		t.Errorf("expected metrics 200, got %d", m.StatusCode)
	}
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestServer_RecordMetrics(t *testing.T) {
	srv, m, _ := newTestServer(t)
	m.Register("agent-1")

	resp := postJSON(t, srv.URL+"/agents/agent-1/metrics", `{"tasks_completed":9,"tasks_failed":1,"average_response_time_ms":120}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var snap domain.AgentMetricsSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatal(err)
	}
	if snap.AgentID != "agent-1" || snap.TasksCompleted != 9 || snap.Status != domain.AgentStatusActive {
		t.Errorf("unexpected snapshot: %+v", snap)
	}

	check, err := http.Get(srv.URL + "/health/agent-1")
	if err != nil {
		t.Fatal(err)
	}
	check.Body.Close()
	if check.StatusCode != http.StatusOK {
		t.Errorf("agent with fresh metrics should be healthy, got %d", check.StatusCode)
	}
}

func TestServer_RecordMetricsRejectsBadBody(t *testing.T) {
	srv, _, _ := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"malformed", `{"tasks_completed":`},
		{"unknown status", `{"status":"sleepy"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, srv.URL+"/agents/a/metrics", tt.body)
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", resp.StatusCode)
			}
		})
	}
}

func TestServer_HandleRecovery(t *testing.T) {
	srv, _, _, actions := newTestServerWithActions(t)

	resp := postJSON(t, srv.URL+"/recovery/handle",
		`{"message":"Too Many Requests","code":"rate_limit","agent_id":"agent-1","category":"runtime","retry_count":2}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var action domain.RecoveryAction
	if err := json.NewDecoder(resp.Body).Decode(&action); err != nil {
		t.Fatal(err)
	}
	if action.ID != "a2" || action.AgentID != "agent-1" {
		t.Errorf("unexpected action: %+v", action)
	}

	var coded *recovery.Error
	if !errors.As(actions.lastErr, &coded) || coded.Code != "rate_limit" {
		t.Errorf("expected coded error, got %v", actions.lastErr)
	}
	if actions.lastErr.Error() != "Too Many Requests" {
		t.Errorf("unexpected message: %q", actions.lastErr.Error())
	}
	if actions.lastCtx.Category != domain.KindRuntime || actions.lastCtx.RetryCount != 2 {
		t.Errorf("unexpected context: %+v", actions.lastCtx)
	}

	missing := postJSON(t, srv.URL+"/recovery/handle", `{"code":"timeout"}`)
	if missing.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 without message, got %d", missing.StatusCode)
	}
}
