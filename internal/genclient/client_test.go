package genclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"queryorch/internal/config"
	"queryorch/internal/obslog"
	"queryorch/internal/orcherr"
)

func TestClient_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, 4, req.K)
		_ = json.NewEncoder(w).Encode(generateResponse{Candidates: []string{
			"```sql\nSELECT * FROM orders\n```",
			"Final Answer: SELECT id FROM orders LIMIT 10",
		}})
	}))
	defer srv.Close()

	c := New(config.WorkersConfig{GenBaseURL: srv.URL, RequestTimeout: time.Second}, obslog.NewNop())
	candidates, err := c.Generate(context.Background(), "question", 4, 0.7)
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.Equal(t, "SELECT * FROM orders", candidates[0])
	assert.Equal(t, "SELECT id FROM orders LIMIT 10", candidates[1])
}

func TestClient_Generate_workerDown(t *testing.T) {
	c := New(config.WorkersConfig{GenBaseURL: "http://127.0.0.1:1", RequestTimeout: 100 * time.Millisecond}, obslog.NewNop())
	_, err := c.Generate(context.Background(), "question", 2, 0.5)
	require.Error(t, err)

	var oe *orcherr.Error
	require.ErrorAs(t, err, &oe)
	assert.Equal(t, orcherr.KindGeneratorUnavailable, oe.Kind)
	assert.True(t, oe.Kind.Fatal())
}

func TestClient_Repair(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req repairRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Contains(t, req.Delta, "whitelist")
		_ = json.NewEncoder(w).Encode(repairResponse{SQL: "`SELECT 1`"})
	}))
	defer srv.Close()

	c := New(config.WorkersConfig{GenBaseURL: srv.URL, RequestTimeout: time.Second}, obslog.NewNop())
	sql, err := c.Repair(context.Background(), "base prompt", "whitelist: id, name", 0.2)
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1", sql)
}

func TestClient_Proofread_returnsProposal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req proofreadRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "SELECT 1", req.SQL)
		_ = json.NewEncoder(w).Encode(proofreadResponse{Proposal: `{"table_name": "orders", "column_name": "id", "new_content": "surrogate key"}`})
	}))
	defer srv.Close()

	c := New(config.WorkersConfig{GenBaseURL: srv.URL, RequestTimeout: time.Second}, obslog.NewNop())
	proposal, err := c.Proofread(context.Background(), "base prompt", "SELECT 1")
	require.NoError(t, err)
	assert.Contains(t, proposal, "orders")
}

func TestClient_Proofread_emptyWhenNothingToFlag(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(proofreadResponse{})
	}))
	defer srv.Close()

	c := New(config.WorkersConfig{GenBaseURL: srv.URL, RequestTimeout: time.Second}, obslog.NewNop())
	proposal, err := c.Proofread(context.Background(), "base prompt", "SELECT 1")
	require.NoError(t, err)
	assert.Empty(t, proposal)
}

func TestExtractSQL(t *testing.T) {
	cases := map[string]string{
		"```sql\nSELECT 1\n```":                  "SELECT 1",
		"Final Answer: SELECT * FROM a":          "SELECT * FROM a",
		"`SELECT id FROM t`":                     "SELECT id FROM t",
		"SELECT 1\nFROM t\n-- a comment\nWHERE 1": "SELECT 1 FROM t WHERE 1",
		"  select 1  ":                          "select 1",
	}
	for in, want := range cases {
		assert.Equal(t, want, ExtractSQL(in), "input: %q", in)
	}
}
