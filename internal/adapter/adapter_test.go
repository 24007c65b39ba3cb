package adapter

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestMySQLAdapter_executeQueryReturnsRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT id, order_status FROM orders").
		WillReturnRows(sqlmock.NewRows([]string{"id", "order_status"}).
			AddRow(1, "shipped").
			AddRow(2, "pending"))

	a := NewMySQLAdapterFromDB(db)
	res, err := a.ExecuteQuery(context.Background(), "SELECT id, order_status FROM orders")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.RowCount != 2 {
		t.Fatalf("expected 2 rows, got %d", res.RowCount)
	}
	if res.Rows[0]["order_status"] != "shipped" {
		t.Fatalf("unexpected first row: %+v", res.Rows[0])
	}
	if a.GetDatabaseType() != "MySQL" {
		t.Fatalf("expected MySQL as database type")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestMySQLAdapter_executeQuerySurfacesError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT 1/0").WillReturnError(sql.ErrConnDone)

	a := NewMySQLAdapterFromDB(db)
	_, err = a.ExecuteQuery(context.Background(), "SELECT 1/0")
	if err == nil {
		t.Fatalf("expected an error")
	}
}

func TestPostgreSQLAdapter_executeQueryReturnsRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT id FROM orders").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))

	a := NewPostgreSQLAdapterFromDB(db)
	res, err := a.ExecuteQuery(context.Background(), "SELECT id FROM orders")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.RowCount != 1 {
		t.Fatalf("expected 1 row, got %d", res.RowCount)
	}
	if a.GetDatabaseType() != "PostgreSQL" {
		t.Fatalf("expected PostgreSQL as database type")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgreSQLAdapter_dryRunUsesExplain(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("EXPLAIN SELECT id FROM orders").
		WillReturnRows(sqlmock.NewRows([]string{"QUERY PLAN"}).AddRow("Seq Scan on orders"))

	a := NewPostgreSQLAdapterFromDB(db)
	if err := a.DryRunSQL(context.Background(), "SELECT id FROM orders"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func newInMemorySQLite(t *testing.T) *SQLiteAdapter {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("sql.Open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, err := db.Exec(`CREATE TABLE orders (id INTEGER PRIMARY KEY, order_status TEXT)`); err != nil {
		t.Fatalf("create table: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO orders (id, order_status) VALUES (1, 'shipped'), (2, 'pending')`); err != nil {
		t.Fatalf("seed rows: %v", err)
	}
	return NewSQLiteAdapterFromDB(db)
}

func TestSQLiteAdapter_executeQueryAgainstRealEngine(t *testing.T) {
	a := newInMemorySQLite(t)
	res, err := a.ExecuteQuery(context.Background(), "SELECT id, order_status FROM orders ORDER BY id")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.RowCount != 2 {
		t.Fatalf("expected 2 rows, got %d", res.RowCount)
	}
	if res.Rows[0]["order_status"] != "shipped" {
		t.Fatalf("unexpected first row: %+v", res.Rows[0])
	}
}

func TestSQLiteAdapter_dryRunUsesExplainQueryPlan(t *testing.T) {
	a := newInMemorySQLite(t)
	if err := a.DryRunSQL(context.Background(), "SELECT id FROM orders"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSQLiteAdapter_getDatabaseVersion(t *testing.T) {
	a := newInMemorySQLite(t)
	version, err := a.GetDatabaseVersion(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if version == "" || version == "unknown" {
		t.Fatalf("expected a real sqlite version string, got %q", version)
	}
}

func TestNewAdapter_factoryDispatchesByType(t *testing.T) {
	a, err := NewAdapter(&DBConfig{Type: "sqlite", FilePath: ":memory:"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.GetDatabaseType() != "SQLite" {
		t.Fatalf("expected SQLite adapter, got %s", a.GetDatabaseType())
	}

	if _, err := NewAdapter(&DBConfig{Type: "oracle"}); err == nil {
		t.Fatalf("expected an error for an unsupported database type")
	}
}
