package adapter

import (
	"context"
	"database/sql"
)

// Dialect names one of the target database backends this module can run
// queries against (spec §6 "Database (target and catalog)"). Postgres is
// the only dialect the catalog and the retrieval/evaluation stages assume
// at query-planning time (EXPLAIN JSON shape, pgvector, tsvector/GIN); the
// others exist so cmd/queryctl can point at a MySQL or SQLite target for
// local debugging without a second orchestration binary.
type Dialect string

const (
	MySQL      Dialect = "mysql"
	PostgreSQL Dialect = "postgresql"
	SQLite     Dialect = "sqlite"
)

// DBAdapter is the thin execution surface the orchestrator's evaluator,
// repair loop and final executor share — connect once, run EXPLAIN and the
// real query through the same call, report what dialect answered. Nothing
// above this interface ever branches on dialect directly; DryRunSQL hides
// each backend's own EXPLAIN incantation behind one method.
type DBAdapter interface {
	Connect(ctx context.Context) error
	Close() error

	// ExecuteQuery runs query and folds the result into a dialect-neutral
	// QueryResult. When the query itself fails, the non-nil error comes
	// with a QueryResult whose Error is set; when reading the returned
	// rows fails, the QueryResult is nil.
	ExecuteQuery(ctx context.Context, query string) (*QueryResult, error)

	GetDatabaseType() string
	GetDatabaseVersion(ctx context.Context) (string, error)

	// DryRunSQL asks the backend to plan (not execute) sql, surfacing
	// syntax/catalog errors without touching data. internal/evaluate's
	// EXPLAIN step calls ExecuteQuery directly instead, since it needs the
	// plan JSON back rather than a pass/fail signal; DryRunSQL stays part
	// of the interface for callers that only need the latter.
	DryRunSQL(ctx context.Context, sql string) error
}

// QueryResult is the dialect-neutral shape every adapter normalizes into:
// byte columns become strings, everything else passes through as-is.
type QueryResult struct {
	Columns       []string
	Rows          []map[string]interface{}
	RowCount      int
	ExecutionTime int64 // milliseconds
	Error         string
}

// DBConfig is the connection config accepted by NewAdapter. Only the
// fields relevant to Type are read; the rest are ignored rather than
// rejected, so a single flag set (cmd/queryctl's --db-* flags) can be
// reused across dialects without per-dialect validation at the call site.
type DBConfig struct {
	Type     string
	Host     string
	Port     int
	Database string
	User     string
	Password string

	FilePath string // SQLite only

	MaxOpenConns int
	MaxIdleConns int
}

// NewAdapter dispatches on config.Type to build the matching DBAdapter.
// Connect is not called here — callers own the connection lifecycle (dial
// timing, retry policy) the same way orchestrator.New takes an already-
// connected adapter rather than a config.
func NewAdapter(config *DBConfig) (DBAdapter, error) {
	switch Dialect(config.Type) {
	case MySQL:
		return NewMySQLAdapter(&MySQLConfig{
			Host:     config.Host,
			Port:     config.Port,
			Database: config.Database,
			User:     config.User,
			Password: config.Password,
		}), nil
	case PostgreSQL:
		return NewPostgreSQLAdapter(&PostgreSQLConfig{
			Host:     config.Host,
			Port:     config.Port,
			Database: config.Database,
			User:     config.User,
			Password: config.Password,
		}), nil
	case SQLite:
		return NewSQLiteAdapter(&SQLiteConfig{
			FilePath: config.FilePath,
		}), nil
	default:
		return nil, &UnsupportedDatabaseError{Type: config.Type}
	}
}

// scanRows drains rows into QueryResult's column/row shape, the one piece
// of database/sql boilerplate all three adapters need identically: read
// column names once, then scan every row into a fresh []interface{} and
// fold []byte results (how database/sql returns TEXT/VARCHAR scans without
// a destination type hint) back into plain strings.
func scanRows(rows *sql.Rows) ([]string, []map[string]interface{}, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}

	var result []map[string]interface{}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}
		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, nil, err
		}

		row := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		result = append(result, row)
	}
	return columns, result, rows.Err()
}

// UnsupportedDatabaseError reports an unrecognized DBConfig.Type.
type UnsupportedDatabaseError struct {
	Type string
}

func (e *UnsupportedDatabaseError) Error() string {
	return "unsupported database type: " + e.Type
}
