package orchestrator

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
	"queryorch/internal/embedclient"
	"queryorch/internal/genclient"
	"queryorch/internal/obslog"
)

type stubStore struct {
	tables map[string]catalog.TableDescriptor
	edges  []catalog.FKEdge
}

func (s *stubStore) SimilarTables(ctx context.Context, queryVec []float32, module string, threshold float64, topK int) ([]catalog.TableSimilarity, error) {
	var out []catalog.TableSimilarity
	for name := range s.tables {
		out = append(out, catalog.TableSimilarity{Table: name, Similarity: 0.9})
	}
	return out, nil
}

func (s *stubStore) BM25Tables(ctx context.Context, questionText string, module string, topK int) ([]catalog.TableBM25, error) {
	var out []catalog.TableBM25
	for name := range s.tables {
		out = append(out, catalog.TableBM25{Table: name, Score: 1.0})
	}
	return out, nil
}

func (s *stubStore) FKEdges(ctx context.Context, tables []string, maxDepth int) ([]catalog.FKEdge, error) {
	return s.edges, nil
}

func (s *stubStore) Descriptors(ctx context.Context, tables []string) ([]catalog.TableDescriptor, error) {
	var out []catalog.TableDescriptor
	for _, t := range tables {
		if d, ok := s.tables[t]; ok {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *stubStore) Modules(ctx context.Context) ([]catalog.ModuleDescriptor, error) { return nil, nil }

func (s *stubStore) AllTableNames(ctx context.Context) ([]string, error) {
	var out []string
	for name := range s.tables {
		out = append(out, name)
	}
	return out, nil
}

func ordersStore() *stubStore {
	return &stubStore{
		tables: map[string]catalog.TableDescriptor{
			"orders": {
				Name: "orders",
				Columns: []catalog.ColumnDescriptor{
					{Name: "id", IsPrimaryKey: true},
					{Name: "order_status"},
					{Name: "customer_id", IsForeignKey: true, FKTarget: "customers.id"},
				},
			},
		},
	}
}

type stubAdapter struct {
	queryResult *adapter.QueryResult
	queryErr    error
}

func (s *stubAdapter) Connect(ctx context.Context) error { return nil }
func (s *stubAdapter) Close() error                      { return nil }
func (s *stubAdapter) GetDatabaseType() string            { return "PostgreSQL" }
func (s *stubAdapter) GetDatabaseVersion(ctx context.Context) (string, error) {
	return "16", nil
}
func (s *stubAdapter) DryRunSQL(ctx context.Context, sql string) error { return nil }
func (s *stubAdapter) ExecuteQuery(ctx context.Context, query string) (*adapter.QueryResult, error) {
	if len(query) >= 7 && query[:7] == "EXPLAIN" {
		return &adapter.QueryResult{Rows: []map[string]interface{}{{"QUERY PLAN": "[]"}}}, nil
	}
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	return s.queryResult, nil
}

func newEmbedServer(t *testing.T, dim int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		vec := make([]float32, dim)
		for i := range vec {
			vec[i] = 0.1
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"vector": vec})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newGenServer(t *testing.T, sql string) *httptest.Server {
	t.Helper()
	return newGenServerWithProofread(t, sql, "")
}

func newGenServerWithProofread(t *testing.T, sql string, proofreadProposal string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/generate":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"candidates": []string{sql}})
		case "/repair":
			_ = json.NewEncoder(w).Encode(map[string]string{"sql": sql})
		case "/proofread":
			_ = json.NewEncoder(w).Encode(map[string]string{"proposal": proofreadProposal})
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Generate.ParallelMode = false
	cfg.Generate.KEasy = 1
	cfg.Generate.KDefault = 1
	cfg.Generate.KHard = 1
	cfg.Features.EnableJoinPlanner = false
	return cfg
}

func TestAnswer_happyPath(t *testing.T) {
	embedSrv := newEmbedServer(t, 4)
	genSrv := newGenServer(t, "SELECT order_status FROM orders")

	cfg := testConfig()
	cfg.Workers.EmbedDimension = 4

	log := obslog.NewNop()
	embed := embedclient.New(config.WorkersConfig{EmbedBaseURL: embedSrv.URL, EmbedDimension: 4, RequestTimeout: time.Second}, log)
	gen := genclient.New(config.WorkersConfig{GenBaseURL: genSrv.URL, RequestTimeout: time.Second}, log)
	db := &stubAdapter{queryResult: &adapter.QueryResult{
		Columns:  []string{"order_status"},
		Rows:     []map[string]interface{}{{"order_status": "shipped"}},
		RowCount: 1,
	}}

	orc := New(ordersStore(), db, embed, gen, nil, nil, cfg, log)
	ans, err := orc.Answer(context.Background(), "list order statuses", "db1", Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ans.SQL == "" {
		t.Fatalf("expected a final SQL string")
	}
	if ans.RowCount != 1 {
		t.Fatalf("expected 1 row, got %d", ans.RowCount)
	}
	if ans.Confidence <= 0 {
		t.Fatalf("expected a positive confidence, got %v", ans.Confidence)
	}
	if ans.Trace.FinalSQL != ans.SQL {
		t.Fatalf("expected the trace to record the final SQL")
	}
	if len(ans.Trace.SelectedTables) == 0 {
		t.Fatalf("expected the trace to record selected tables")
	}
}

func TestAnswer_noTablesRetrieved(t *testing.T) {
	embedSrv := newEmbedServer(t, 4)
	genSrv := newGenServer(t, "SELECT 1")

	cfg := testConfig()
	log := obslog.NewNop()
	embed := embedclient.New(config.WorkersConfig{EmbedBaseURL: embedSrv.URL, EmbedDimension: 4, RequestTimeout: time.Second}, log)
	gen := genclient.New(config.WorkersConfig{GenBaseURL: genSrv.URL, RequestTimeout: time.Second}, log)
	db := &stubAdapter{}

	orc := New(&stubStore{tables: map[string]catalog.TableDescriptor{}}, db, embed, gen, nil, nil, cfg, log)
	_, err := orc.Answer(context.Background(), "list order statuses", "db1", Options{})
	if err == nil {
		t.Fatalf("expected an error when no tables are retrieved")
	}
}

func TestAnswer_respectsMaxRowsOption(t *testing.T) {
	embedSrv := newEmbedServer(t, 4)
	genSrv := newGenServer(t, "SELECT order_status FROM orders")

	cfg := testConfig()
	log := obslog.NewNop()
	embed := embedclient.New(config.WorkersConfig{EmbedBaseURL: embedSrv.URL, EmbedDimension: 4, RequestTimeout: time.Second}, log)
	gen := genclient.New(config.WorkersConfig{GenBaseURL: genSrv.URL, RequestTimeout: time.Second}, log)
	db := &stubAdapter{queryResult: &adapter.QueryResult{
		Columns: []string{"order_status"},
		Rows: []map[string]interface{}{
			{"order_status": "shipped"},
			{"order_status": "pending"},
			{"order_status": "cancelled"},
		},
		RowCount: 3,
	}}

	orc := New(ordersStore(), db, embed, gen, nil, nil, cfg, log)
	ans, err := orc.Answer(context.Background(), "list order statuses", "db1", Options{MaxRows: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ans.RowCount != 1 || len(ans.Rows) != 1 {
		t.Fatalf("expected max rows to cap the result at 1, got %d rows", ans.RowCount)
	}
}

func TestAnswer_collectsProofreadSuggestionWhenEnabled(t *testing.T) {
	embedSrv := newEmbedServer(t, 4)
	proposal := `{"table_name": "orders", "column_name": "order_status", "new_content": "saw a status value outside the documented enum"}`
	genSrv := newGenServerWithProofread(t, "SELECT order_status FROM orders", proposal)

	cfg := testConfig()
	cfg.Features.EnableProofread = true
	log := obslog.NewNop()
	embed := embedclient.New(config.WorkersConfig{EmbedBaseURL: embedSrv.URL, EmbedDimension: 4, RequestTimeout: time.Second}, log)
	gen := genclient.New(config.WorkersConfig{GenBaseURL: genSrv.URL, RequestTimeout: time.Second}, log)
	db := &stubAdapter{queryResult: &adapter.QueryResult{
		Columns:  []string{"order_status"},
		Rows:     []map[string]interface{}{{"order_status": "shipped"}},
		RowCount: 1,
	}}

	orc := New(ordersStore(), db, embed, gen, nil, nil, cfg, log)
	ans, err := orc.Answer(context.Background(), "list order statuses", "db1", Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ans.ProofreadSuggestions) != 1 {
		t.Fatalf("expected one proofread suggestion, got %d", len(ans.ProofreadSuggestions))
	}
	if ans.ProofreadSuggestions[0].Column != "order_status" {
		t.Fatalf("unexpected proofread suggestion: %+v", ans.ProofreadSuggestions[0])
	}
}

func TestAnswer_proofreadDisabledByDefault(t *testing.T) {
	embedSrv := newEmbedServer(t, 4)
	genSrv := newGenServer(t, "SELECT order_status FROM orders")

	cfg := testConfig()
	log := obslog.NewNop()
	embed := embedclient.New(config.WorkersConfig{EmbedBaseURL: embedSrv.URL, EmbedDimension: 4, RequestTimeout: time.Second}, log)
	gen := genclient.New(config.WorkersConfig{GenBaseURL: genSrv.URL, RequestTimeout: time.Second}, log)
	db := &stubAdapter{queryResult: &adapter.QueryResult{
		Columns:  []string{"order_status"},
		Rows:     []map[string]interface{}{{"order_status": "shipped"}},
		RowCount: 1,
	}}

	orc := New(ordersStore(), db, embed, gen, nil, nil, cfg, log)
	ans, err := orc.Answer(context.Background(), "list order statuses", "db1", Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ans.ProofreadSuggestions) != 0 {
		t.Fatalf("expected no proofread suggestions when the feature is off, got %d", len(ans.ProofreadSuggestions))
	}
}
