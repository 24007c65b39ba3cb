package adapter

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLAdapter runs queries against a MySQL target through database/sql.
// Reachable from cmd/queryctl via --db-type=mysql; the orchestration core
// itself never assumes MySQL (see PostgreSQLAdapter's doc comment).
type MySQLAdapter struct {
	db     *sql.DB
	config *MySQLConfig
}

type MySQLConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
}

func NewMySQLAdapter(config *MySQLConfig) *MySQLAdapter {
	return &MySQLAdapter{config: config}
}

// NewMySQLAdapterFromDB wraps an already-open *sql.DB, bypassing Connect's
// DSN construction. Grounded on the velox dialect driver's
// OpenDB(dialect, *sql.DB) constructor, which exists for the same reason:
// letting tests hand the adapter a sqlmock-backed *sql.DB.
func NewMySQLAdapterFromDB(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

func (a *MySQLAdapter) Connect(ctx context.Context) error {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
		a.config.User, a.config.Password, a.config.Host, a.config.Port, a.config.Database)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return fmt.Errorf("open mysql: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping mysql: %w", err)
	}
	a.db = db
	return nil
}

func (a *MySQLAdapter) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

func (a *MySQLAdapter) ExecuteQuery(ctx context.Context, query string) (*QueryResult, error) {
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

func (a *MySQLAdapter) GetDatabaseType() string {
	return "MySQL"
}

// DryRunSQL plans sql with EXPLAIN; MySQL's EXPLAIN accepts SELECT/UPDATE/
// DELETE/INSERT directly, so no rewriting is needed beyond the prefix.
func (a *MySQLAdapter) DryRunSQL(ctx context.Context, sql string) error {
	_, err := a.ExecuteQuery(ctx, fmt.Sprintf("EXPLAIN %s", sql))
	return err
}

func (a *MySQLAdapter) GetDatabaseVersion(ctx context.Context) (string, error) {
	result, err := a.ExecuteQuery(ctx, "SELECT VERSION() as version")
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
