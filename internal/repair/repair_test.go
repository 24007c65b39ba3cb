package repair

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"queryorch/internal/adapter"
	"queryorch/internal/catalog"
	"queryorch/internal/config"
	"queryorch/internal/genclient"
	"queryorch/internal/obslog"
)

type repairStubAdapter struct {
	results []explainOutcome
	calls   int
}

type explainOutcome struct {
	err error
}

func (s *repairStubAdapter) Connect(ctx context.Context) error { return nil }
func (s *repairStubAdapter) Close() error                      { return nil }
func (s *repairStubAdapter) GetDatabaseType() string           { return "PostgreSQL" }
func (s *repairStubAdapter) GetDatabaseVersion(ctx context.Context) (string, error) {
	return "16", nil
}
func (s *repairStubAdapter) DryRunSQL(ctx context.Context, sql string) error { return nil }
func (s *repairStubAdapter) ExecuteQuery(ctx context.Context, query string) (*adapter.QueryResult, error) {
	idx := s.calls
	if idx >= len(s.results) {
		idx = len(s.results) - 1
	}
	s.calls++
	if s.results[idx].err != nil {
		return nil, s.results[idx].err
	}
	return &adapter.QueryResult{Rows: []map[string]interface{}{{"QUERY PLAN": "[]"}}}, nil
}

func newRepairGenServer(t *testing.T, sql string) *genclient.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"sql": sql})
	}))
	t.Cleanup(srv.Close)
	return genclient.New(config.WorkersConfig{GenBaseURL: srv.URL, RequestTimeout: time.Second}, obslog.NewNop())
}

func repairTestPacket() *catalog.SchemaContextPacket {
	return &catalog.SchemaContextPacket{
		Tables: []catalog.SelectedTable{
			{Descriptor: catalog.TableDescriptor{Name: "orders", Columns: []catalog.ColumnDescriptor{
				{Name: "id"}, {Name: "order_status"},
			}}},
		},
	}
}

func TestRun_fatalClassAbortsImmediately(t *testing.T) {
	client := newRepairGenServer(t, "SELECT 1")
	db := &repairStubAdapter{}
	_, err := Run(context.Background(), client, db, "base prompt", "SELECT 1", "permission denied for table orders", nil, repairTestPacket(), config.RepairConfig{MaxAttempts: 3}, time.Second, 0)
	if err == nil {
		t.Fatalf("expected an error for a fatal error class")
	}
}

func TestRun_succeedsAfterGeneratorRepairsSyntax(t *testing.T) {
	client := newRepairGenServer(t, "SELECT id FROM orders")
	db := &repairStubAdapter{results: []explainOutcome{{err: errGeneric("syntax error at or near \"FORM\"")}, {}}}
	res, err := Run(context.Background(), client, db, "base prompt", "SELECT id FORM orders", "syntax error at or near \"FORM\"", nil, repairTestPacket(), config.RepairConfig{MaxAttempts: 3, ConfidencePenalty: 0.1}, time.Second, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Succeeded {
		t.Fatalf("expected the repair loop to succeed, got %+v", res)
	}
	if res.Confidence >= 1.0 {
		t.Fatalf("expected a confidence penalty to have been applied, got %v", res.Confidence)
	}
}

func TestRun_autocorrectsUndefinedColumnWithoutGeneratorCall(t *testing.T) {
	// The generator server would return an unrelated SQL string; if the
	// result matches the inline-autocorrected query instead, the
	// generator round-trip was never needed.
	client := newRepairGenServer(t, "SELECT id FROM orders")
	db := &repairStubAdapter{results: []explainOutcome{{}}}
	sql := "SELECT o.order_statuz FROM orders o"
	res, err := Run(context.Background(), client, db, "base prompt", sql, "column o.order_statuz does not exist", nil, repairTestPacket(), config.RepairConfig{MaxAttempts: 3, ConfidencePenalty: 0.1, AutocorrectConfidence: 0.6}, time.Second, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Succeeded {
		t.Fatalf("expected autocorrect to succeed on the first attempt, got %+v", res)
	}
	if res.Attempts != 1 {
		t.Fatalf("expected a single attempt when autocorrect resolves immediately, got %d", res.Attempts)
	}
	want := "SELECT o.order_status FROM orders o"
	if res.SQL != want {
		t.Fatalf("expected the inline-autocorrected query %q, got %q", want, res.SQL)
	}
}

func TestRun_exhaustsAttempts(t *testing.T) {
	client := newRepairGenServer(t, "SELECT id FROM widgets")
	db := &repairStubAdapter{results: []explainOutcome{
		{err: errGeneric("syntax error near X")},
		{err: errGeneric("syntax error near Y")},
		{err: errGeneric("syntax error near Z")},
	}}
	res, err := Run(context.Background(), client, db, "base prompt", "SELECT id FORM orders", "syntax error at or near \"FORM\"", nil, repairTestPacket(), config.RepairConfig{MaxAttempts: 3, ConfidencePenalty: 0.1}, time.Second, 0)
	if err == nil {
		t.Fatalf("expected repair exhaustion error")
	}
	if res.Succeeded {
		t.Fatalf("did not expect success")
	}
}

func TestRun_exitsEarlyWhenDeadlineWithinSlack(t *testing.T) {
	client := newRepairGenServer(t, "SELECT id FROM widgets")
	db := &repairStubAdapter{results: []explainOutcome{{err: errGeneric("syntax error near X")}}}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	res, err := Run(ctx, client, db, "base prompt", "SELECT id FORM orders", "syntax error at or near \"FORM\"", nil, repairTestPacket(), config.RepairConfig{MaxAttempts: 3, ConfidencePenalty: 0.1}, time.Second, time.Hour)
	if err == nil {
		t.Fatalf("expected an error when the repair loop exits early")
	}
	if res.Succeeded {
		t.Fatalf("did not expect success")
	}
	if res.Attempts != 0 {
		t.Fatalf("expected zero attempts before the early exit, got %d", res.Attempts)
	}
}

type errGeneric string

func (e errGeneric) Error() string { return string(e) }
