package catalog

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"queryorch/internal/adapter"
)

// scriptedAdapter is a fake DBAdapter that matches queries by substring
// and returns a canned result, grounded on the teacher's adapter.DBAdapter
// contract but driven by table-driven expectations instead of a real
// connection — the same role go-sqlmock plays for database/sql callers
// in syssam-velox's driver_test.go, adapted to this package's own
// adapter interface rather than database/sql.
type scriptedAdapter struct {
	byContains []struct {
		substr string
		result *adapter.QueryResult
	}
}

func (s *scriptedAdapter) expect(substr string, result *adapter.QueryResult) {
	s.byContains = append(s.byContains, struct {
		substr string
		result *adapter.QueryResult
	}{substr, result})
}

func (s *scriptedAdapter) ExecuteQuery(ctx context.Context, query string) (*adapter.QueryResult, error) {
	for _, e := range s.byContains {
		if strings.Contains(query, e.substr) {
			return e.result, nil
		}
	}
	return &adapter.QueryResult{RowCount: 0}, nil
}

func (s *scriptedAdapter) Connect(ctx context.Context) error                      { return nil }
func (s *scriptedAdapter) Close() error                                          { return nil }
func (s *scriptedAdapter) GetDatabaseType() string                              { return "postgresql" }
func (s *scriptedAdapter) GetDatabaseVersion(ctx context.Context) (string, error) { return "16", nil }
func (s *scriptedAdapter) DryRunSQL(ctx context.Context, sql string) error       { return nil }

func TestQualityChecker_skipsEmptyTables(t *testing.T) {
	fake := &scriptedAdapter{}
	qc := NewQualityChecker(fake, TableDescriptor{Name: "orders"}, 0)
	issues, stats, err := qc.RunAll(context.Background())
	require.NoError(t, err)
	assert.Nil(t, issues)
	assert.Nil(t, stats)
}

func TestQualityChecker_whitespaceIssue(t *testing.T) {
	fake := &scriptedAdapter{}
	fake.expect("!= TRIM", &adapter.QueryResult{
		RowCount: 2,
		Rows: []map[string]interface{}{
			{"name": " Acme "},
		},
	})
	table := TableDescriptor{
		Name:    "customers",
		Columns: []ColumnDescriptor{{Name: "name", Type: "VARCHAR"}},
	}
	qc := NewQualityChecker(fake, table, 100)
	issues, _, err := qc.RunAll(context.Background())
	require.NoError(t, err)

	require.Len(t, issues, 1)
	assert.Equal(t, "whitespace", issues[0].Type)
	assert.Equal(t, "critical", issues[0].Severity)
	assert.Contains(t, issues[0].SQLFix, "TRIM")
}

func TestQualityChecker_nullHeavy(t *testing.T) {
	fake := &scriptedAdapter{}
	fake.expect("null_cnt", &adapter.QueryResult{
		RowCount: 1,
		Rows: []map[string]interface{}{
			{"null_cnt": int64(60), "distinct_cnt": int64(5)},
		},
	})
	table := TableDescriptor{
		Name:    "customers",
		Columns: []ColumnDescriptor{{Name: "middle_name", Type: "VARCHAR"}},
	}
	qc := NewQualityChecker(fake, table, 100)
	issues, stats, err := qc.RunAll(context.Background())
	require.NoError(t, err)

	require.Contains(t, stats, "middle_name")
	assert.Equal(t, 60, stats["middle_name"].NullCount)
	assert.Equal(t, 60.0, stats["middle_name"].NullPercent)

	var found bool
	for _, i := range issues {
		if i.Type == "null_heavy" {
			found = true
		}
	}
	assert.True(t, found, "expected a null_heavy issue for a 60%% null column")
}

func TestQualityChecker_orphanRecords(t *testing.T) {
	fake := &scriptedAdapter{}
	fake.expect("LEFT JOIN", &adapter.QueryResult{
		RowCount: 1,
		Rows:     []map[string]interface{}{{"cnt": int64(3)}},
	})
	table := TableDescriptor{
		Name: "orders",
		Columns: []ColumnDescriptor{
			{Name: "customer_id", Type: "INTEGER", IsForeignKey: true, FKTarget: "customers.id"},
		},
	}
	qc := NewQualityChecker(fake, table, 100)
	issues, _, err := qc.RunAll(context.Background())
	require.NoError(t, err)

	require.Len(t, issues, 1)
	assert.Equal(t, "orphan", issues[0].Type)
	assert.Contains(t, issues[0].Description, "3 orphan records")
}
