package adapter

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteAdapter runs queries against a SQLite file (or :memory:) target.
// Reachable from cmd/queryctl via --db-type=sqlite, and used directly by
// adapter_test.go and other in-process tests that want a real execution
// engine instead of a sqlmock expectation list. Registered under
// modernc.org/sqlite's pure-Go driver rather than the teacher's cgo
// mattn/go-sqlite3, which this module never vendored.
type SQLiteAdapter struct {
	db     *sql.DB
	config *SQLiteConfig
}

type SQLiteConfig struct {
	FilePath string // ":memory:" for a throwaway in-memory database
}

func NewSQLiteAdapter(config *SQLiteConfig) *SQLiteAdapter {
	return &SQLiteAdapter{config: config}
}

// NewSQLiteAdapterFromDB wraps an already-open *sql.DB — here, an
// in-memory modernc.org/sqlite handle for tests that want a real
// execution engine instead of a mock.
func NewSQLiteAdapterFromDB(db *sql.DB) *SQLiteAdapter {
	return &SQLiteAdapter{db: db}
}

func (a *SQLiteAdapter) Connect(ctx context.Context) error {
	db, err := sql.Open("sqlite", a.config.FilePath)
	if err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping sqlite: %w", err)
	}
	a.db = db
	return nil
}

func (a *SQLiteAdapter) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

func (a *SQLiteAdapter) ExecuteQuery(ctx context.Context, query string) (*QueryResult, error) {
	start := time.Now()

	rows, err := a.db.QueryContext(ctx, query)
	if err != nil {
		return &QueryResult{Error: err.Error(), ExecutionTime: time.Since(start).Milliseconds()}, err
	}
	defer rows.Close()

	columns, result, err := scanRows(rows)
	if err != nil {
		return nil, err
	}
	return &QueryResult{
		Columns:       columns,
		Rows:          result,
		RowCount:      len(result),
		ExecutionTime: time.Since(start).Milliseconds(),
	}, nil
}

func (a *SQLiteAdapter) GetDatabaseType() string {
	return "SQLite"
}

// DryRunSQL plans sql with EXPLAIN QUERY PLAN, SQLite's dialect-specific
// spelling of "show me the plan, don't run it".
func (a *SQLiteAdapter) DryRunSQL(ctx context.Context, sql string) error {
	_, err := a.ExecuteQuery(ctx, fmt.Sprintf("EXPLAIN QUERY PLAN %s", sql))
	return err
}

func (a *SQLiteAdapter) GetDatabaseVersion(ctx context.Context) (string, error) {
	result, err := a.ExecuteQuery(ctx, "SELECT sqlite_version() as version")
	if err != nil {
		return "", err
	}
	if result.Error != "" {
		return "", fmt.Errorf(result.Error)
	}
	if len(result.Rows) > 0 {
		if version, ok := result.Rows[0]["version"].(string); ok {
			return version, nil
		}
	}
	return "unknown", nil
}
