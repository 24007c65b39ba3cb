// Package catalog implements the Catalog Store (spec §3, §4.1): the
// persistent, read-mostly home of table/column descriptors, foreign-key
// edges and module descriptors, backed by Postgres + pgvector.
package catalog

import "github.com/pgvector/pgvector-go"

// ColumnDescriptor is the compact per-column shape carried in a table's
// listing, grounded on the teacher's ColumnMetadata but trimmed to what
// the prompt and grounder need.
type ColumnDescriptor struct {
	Name        string
	Type        string
	IsPrimaryKey bool
	IsForeignKey bool
	FKTarget    string // "table.column", empty if not FK
}

// TableDescriptor is the persistent, per-table unit of the catalog (spec
// §3 "Table descriptor").
type TableDescriptor struct {
	Schema      string
	Name        string
	Module      string
	Gloss       string
	Columns     []ColumnDescriptor
	FKDegree    int
	IsHub       bool
	Embedding   pgvector.Vector
	// SearchVector is not materialized in Go; it is a generated tsvector
	// column in Postgres, queried via ts_rank_cd server-side.
}

// QualifiedName returns "schema.table".
func (t TableDescriptor) QualifiedName() string {
	if t.Schema == "" || t.Schema == "public" {
		return t.Name
	}
	return t.Schema + "." + t.Name
}

// FKEdge is a directed foreign-key edge (spec §3 "Foreign-key edge").
// Self-loops and parallel edges between the same pair are both legal —
// the catalog is a multigraph.
type FKEdge struct {
	ConstraintID string
	FromTable    string
	FromColumn   string
	ToTable      string
	ToColumn     string
}

// ModuleDescriptor groups tables by domain area (spec §3 "Module
// descriptor"). Embedding is the average of member-table embeddings.
type ModuleDescriptor struct {
	Name      string
	Keywords  []string
	Embedding pgvector.Vector
}

// TableSimilarity pairs a table with a cosine similarity score, returned
// by SimilarTables.
type TableSimilarity struct {
	Table      string
	Similarity float64
}

// TableBM25 pairs a table with a BM25/ts_rank score, returned by
// BM25Tables.
type TableBM25 struct {
	Table string
	Score float64
}
