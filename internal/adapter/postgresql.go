package adapter

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgreSQLAdapter is the default adapter (cmd/queryctl's --db-type
// defaults to "postgresql"; spec §6 names Postgres as the target and
// catalog dialect). It drives database/sql through pgx/v5's stdlib
// driver rather than lib/pq, so query execution shares the same pgx stack
// catalog.PGStore uses for retrieval — one Postgres driver in the module,
// not two.
type PostgreSQLAdapter struct {
	db     *sql.DB
	config *PostgreSQLConfig
}

type PostgreSQLConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string // disable, require, verify-ca, verify-full
}

func NewPostgreSQLAdapter(config *PostgreSQLConfig) *PostgreSQLAdapter {
	if config.SSLMode == "" {
		config.SSLMode = "disable"
	}
	return &PostgreSQLAdapter{config: config}
}

// NewPostgreSQLAdapterFromDB wraps an already-open *sql.DB, the same
// sqlmock injection point as NewMySQLAdapterFromDB.
func NewPostgreSQLAdapterFromDB(db *sql.DB) *PostgreSQLAdapter {
	return &PostgreSQLAdapter{db: db}
}

func (a *PostgreSQLAdapter) Connect(ctx context.Context) error {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		a.config.Host, a.config.Port, a.config.User, a.config.Password, a.config.Database, a.config.SSLMode)

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	a.db = db
	return nil
}

func (a *PostgreSQLAdapter) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

func (a *PostgreSQLAdapter) ExecuteQuery(ctx context.Context, query string) (*QueryResult, error) {
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

func (a *PostgreSQLAdapter) GetDatabaseType() string {
	return "PostgreSQL"
}

// DryRunSQL plans sql with EXPLAIN and discards the result; a syntax or
// catalog error surfaces as err without ever touching a row.
func (a *PostgreSQLAdapter) DryRunSQL(ctx context.Context, sql string) error {
	_, err := a.ExecuteQuery(ctx, fmt.Sprintf("EXPLAIN %s", sql))
	return err
}

func (a *PostgreSQLAdapter) GetDatabaseVersion(ctx context.Context) (string, error) {
	result, err := a.ExecuteQuery(ctx, "SELECT version() as version")
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
