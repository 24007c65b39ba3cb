package catalog

import (
	"context"

	"queryorch/internal/orcherr"
)

// Store is the opaque, read-mostly interface over the catalog (spec §4.1,
// §9 "Catalog as shared, read-mostly state"). It never exposes the
// indexing technology (ANN index type, tsvector internals) to callers.
//
// Implementations must be safe for concurrent use: many queries may call
// Store concurrently, and the only writer is an out-of-scope offline
// introspection/rebuild path that swaps descriptors atomically.
type Store interface {
	// SimilarTables returns tables ranked by descending cosine similarity
	// to queryVec, restricted to module (if non-empty), above threshold,
	// capped at topK.
	SimilarTables(ctx context.Context, queryVec []float32, module string, threshold float64, topK int) ([]TableSimilarity, error)

	// BM25Tables returns tables ranked by descending BM25-style
	// (ts_rank_cd) relevance to questionText, restricted to module (if
	// non-empty), capped at topK.
	BM25Tables(ctx context.Context, questionText string, module string, topK int) ([]TableBM25, error)

	// FKEdges returns every edge whose endpoints are both within the
	// transitive closure of tables reachable from the given set at
	// maxDepth hops.
	FKEdges(ctx context.Context, tables []string, maxDepth int) ([]FKEdge, error)

	// Descriptors fetches full descriptors for the named tables, in the
	// order requested; unknown names are silently skipped.
	Descriptors(ctx context.Context, tables []string) ([]TableDescriptor, error)

	// Modules returns every module descriptor, for the module router.
	Modules(ctx context.Context) ([]ModuleDescriptor, error)

	// AllTableNames lists every table in the catalog (used when the
	// module router returns "no module filter").
	AllTableNames(ctx context.Context) ([]string, error)
}

// unavailable wraps any backing-store error as a fatal CatalogUnavailable,
// per spec §4.1: "callers must surface this as a fatal error rather than
// retry."
func unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return orcherr.New(orcherr.KindCatalogUnavailable, "catalog store unreachable during "+op, err)
}
