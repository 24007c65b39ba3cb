package catalog

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// PGStore is the Postgres+pgvector-backed Store implementation. Table and
// column metadata, FK edges and module descriptors live in a dedicated
// "catalog" schema (spec §6 "The catalog schema lives in a dedicated
// namespace"); embeddings are pgvector columns, full-text search is a
// generated tsvector column with a GIN index.
type PGStore struct {
	pool   *pgxpool.Pool
	schema string
}

// NewPGStore wraps an already-connected pool. Connection lifecycle
// (dialing, retries) belongs to the caller — the teacher's adapter.Connect
// pattern is generalized here into plain pool construction so the store
// itself never owns reconnection policy.
func NewPGStore(pool *pgxpool.Pool, schema string) *PGStore {
	if schema == "" {
		schema = "catalog"
	}
	return &PGStore{pool: pool, schema: schema}
}

func (s *PGStore) SimilarTables(ctx context.Context, queryVec []float32, module string, threshold float64, topK int) ([]TableSimilarity, error) {
	vec := pgvector.NewVector(queryVec)
	q := fmt.Sprintf(`
		SELECT table_name, 1 - (embedding <=> $1) AS similarity
		FROM %s.tables
		WHERE ($2 = '' OR module = $2)
		  AND 1 - (embedding <=> $1) >= $3
		ORDER BY embedding <=> $1
		LIMIT $4`, s.schema)

	rows, err := s.pool.Query(ctx, q, vec, module, threshold, topK)
	if err != nil {
		return nil, unavailable("SimilarTables", err)
	}
	defer rows.Close()

	var out []TableSimilarity
	for rows.Next() {
		var ts TableSimilarity
		if err := rows.Scan(&ts.Table, &ts.Similarity); err != nil {
			return nil, unavailable("SimilarTables scan", err)
		}
		out = append(out, ts)
	}
	return out, unavailable("SimilarTables rows", rows.Err())
}

func (s *PGStore) BM25Tables(ctx context.Context, questionText string, module string, topK int) ([]TableBM25, error) {
	q := fmt.Sprintf(`
		SELECT table_name, ts_rank_cd(search_vector, plainto_tsquery('english', $1)) AS score
		FROM %s.tables
		WHERE ($2 = '' OR module = $2)
		  AND search_vector @@ plainto_tsquery('english', $1)
		ORDER BY score DESC
		LIMIT $3`, s.schema)

	rows, err := s.pool.Query(ctx, q, questionText, module, topK)
	if err != nil {
		return nil, unavailable("BM25Tables", err)
	}
	defer rows.Close()

	var out []TableBM25
	for rows.Next() {
		var tb TableBM25
		if err := rows.Scan(&tb.Table, &tb.Score); err != nil {
			return nil, unavailable("BM25Tables scan", err)
		}
		out = append(out, tb)
	}
	return out, unavailable("BM25Tables rows", rows.Err())
}

func (s *PGStore) FKEdges(ctx context.Context, tables []string, maxDepth int) ([]FKEdge, error) {
	// The transitive closure is computed with a recursive CTE bounded by
	// maxDepth, then edges with both endpoints in the closure are kept.
	q := fmt.Sprintf(`
		WITH RECURSIVE closure(table_name, depth) AS (
			SELECT unnest($1::text[]), 0
			UNION
			SELECT CASE WHEN e.from_table = c.table_name THEN e.to_table ELSE e.from_table END, c.depth + 1
			FROM %s.fk_edges e
			JOIN closure c ON e.from_table = c.table_name OR e.to_table = c.table_name
			WHERE c.depth < $2
		)
		SELECT DISTINCT e.constraint_id, e.from_table, e.from_column, e.to_table, e.to_column
		FROM %s.fk_edges e
		WHERE e.from_table IN (SELECT table_name FROM closure)
		  AND e.to_table IN (SELECT table_name FROM closure)`, s.schema, s.schema)

	rows, err := s.pool.Query(ctx, q, tables, maxDepth)
	if err != nil {
		return nil, unavailable("FKEdges", err)
	}
	defer rows.Close()

	var out []FKEdge
	for rows.Next() {
		var e FKEdge
		if err := rows.Scan(&e.ConstraintID, &e.FromTable, &e.FromColumn, &e.ToTable, &e.ToColumn); err != nil {
			return nil, unavailable("FKEdges scan", err)
		}
		out = append(out, e)
	}
	return out, unavailable("FKEdges rows", rows.Err())
}

func (s *PGStore) Descriptors(ctx context.Context, tables []string) ([]TableDescriptor, error) {
	if len(tables) == 0 {
		return nil, nil
	}
	q := fmt.Sprintf(`
		SELECT table_name, schema_name, module, gloss, columns_json, fk_degree, is_hub, embedding
		FROM %s.tables
		WHERE table_name = ANY($1)`, s.schema)

	rows, err := s.pool.Query(ctx, q, tables)
	if err != nil {
		return nil, unavailable("Descriptors", err)
	}
	defer rows.Close()

	byName := make(map[string]TableDescriptor, len(tables))
	for rows.Next() {
		var d TableDescriptor
		var columnsJSON []byte
		if err := rows.Scan(&d.Name, &d.Schema, &d.Module, &d.Gloss, &columnsJSON, &d.FKDegree, &d.IsHub, &d.Embedding); err != nil {
			return nil, unavailable("Descriptors scan", err)
		}
		cols, err := decodeColumns(columnsJSON)
		if err != nil {
			return nil, unavailable("Descriptors decode columns", err)
		}
		d.Columns = cols
		byName[d.Name] = d
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("Descriptors rows", err)
	}

	// Preserve the order requested, skipping names that don't exist —
	// this is what lets callers render in fused-score order (spec §4.3).
	out := make([]TableDescriptor, 0, len(tables))
	for _, name := range tables {
		if d, ok := byName[name]; ok {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *PGStore) Modules(ctx context.Context) ([]ModuleDescriptor, error) {
	q := fmt.Sprintf(`SELECT name, keywords, embedding FROM %s.modules`, s.schema)
	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, unavailable("Modules", err)
	}
	defer rows.Close()

	var out []ModuleDescriptor
	for rows.Next() {
		var m ModuleDescriptor
		if err := rows.Scan(&m.Name, &m.Keywords, &m.Embedding); err != nil {
			return nil, unavailable("Modules scan", err)
		}
		out = append(out, m)
	}
	return out, unavailable("Modules rows", rows.Err())
}

func (s *PGStore) AllTableNames(ctx context.Context) ([]string, error) {
	q := fmt.Sprintf(`SELECT table_name FROM %s.tables ORDER BY table_name`, s.schema)
	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, unavailable("AllTableNames", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, unavailable("AllTableNames scan", err)
		}
		out = append(out, n)
	}
	return out, unavailable("AllTableNames rows", rows.Err())
}
