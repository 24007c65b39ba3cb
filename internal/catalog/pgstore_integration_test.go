//go:build integration

package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

// bootTestPostgres boots a disposable pgvector-enabled Postgres
// container, applies the catalog migrations against it, and returns a
// ready PGStore plus a cleanup func. Grounded on
// zoravur-postgres-spreadsheet-view's pkg/fixgres fixture (testcontainers
// + goose against a throwaway container), adapted to use the
// pgvector/pgvector image since this schema's migration calls
// `CREATE EXTENSION vector`, which plain postgres images don't carry.
func bootTestPostgres(t *testing.T) (*PGStore, func()) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	container, err := postgres.Run(ctx,
		"pgvector/pgvector:pg16",
		postgres.WithDatabase("catalog_test"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("pass"),
		postgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)
	connString := fmt.Sprintf("postgres://postgres:pass@%s:%s/catalog_test?sslmode=disable", host, port.Port())

	migrateDB, err := sql.Open("pgx", connString)
	require.NoError(t, err)
	require.NoError(t, Migrate(migrateDB))
	require.NoError(t, migrateDB.Close())

	pool, err := pgxpool.New(context.Background(), connString)
	require.NoError(t, err)

	store := NewPGStore(pool, "catalog")
	cleanup := func() {
		pool.Close()
		termCtx, termCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer termCancel()
		_ = container.Terminate(termCtx)
	}
	return store, cleanup
}

func TestPGStore_migrateThenAllTableNames(t *testing.T) {
	store, cleanup := bootTestPostgres(t)
	defer cleanup()

	ctx := context.Background()
	pool := store.pool

	zeroVec := "[" + "0" + "]"
	_, err := pool.Exec(ctx, `INSERT INTO catalog.modules (name, keywords, embedding) VALUES ($1, $2, $3)`,
		"orders", []string{"order", "purchase"}, zeroVec)
	require.NoError(t, err)

	_, err = pool.Exec(ctx, `INSERT INTO catalog.tables (table_name, module, gloss, columns_json, embedding) VALUES ($1, $2, $3, $4, $5)`,
		"orders", "orders", "customer purchase orders", `[]`, zeroVec)
	require.NoError(t, err)

	names, err := store.AllTableNames(ctx)
	require.NoError(t, err)
	require.Contains(t, names, "orders")

	modules, err := store.Modules(ctx)
	require.NoError(t, err)
	require.Len(t, modules, 1)
	require.Equal(t, "orders", modules[0].Name)
}
