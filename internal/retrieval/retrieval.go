// Package retrieval implements the Schema Retriever (spec §4.3): fuses
// cosine similarity and BM25 full-text scoring via Reciprocal Rank
// Fusion, expands the result by FK hops with hub-capping, and optionally
// folds in a pre-SQL recall pass, assembling the per-query schema
// context packet. Grounded on the parallel-fan-out and BM25-only
// degrade pattern in other_examples' Aman-CERP search-engine.go
// (parallelSearch via errgroup, singleSearch's BM25-only fallback) and
// the pgvector retrieval shape in the MediSync schema_retrieval.go
// example, adapted from a generic document index to the catalog's
// table/module schema.
package retrieval

import (
	"context"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"queryorch/internal/catalog"
	"queryorch/internal/config"
	"queryorch/internal/embedclient"
	"queryorch/internal/genclient"
	"queryorch/internal/obslog"
	"queryorch/internal/orcherr"
)

// Retriever assembles schema context packets for incoming questions.
type Retriever struct {
	store  catalog.Store
	embed  *embedclient.Client
	gen    *genclient.Client // only used for the optional pre-SQL recall pass
	cfg    config.RetrievalConfig
	flags  config.FeatureFlags
	log    *obslog.Logger
}

// New builds a Retriever.
func New(store catalog.Store, embed *embedclient.Client, gen *genclient.Client, cfg config.RetrievalConfig, flags config.FeatureFlags, log *obslog.Logger) *Retriever {
	return &Retriever{store: store, embed: embed, gen: gen, cfg: cfg, flags: flags, log: log}
}

// Retrieve runs the full algorithm of spec §4.3 and returns an immutable
// schema context packet.
func (r *Retriever) Retrieve(ctx context.Context, question string, module string) (*catalog.SchemaContextPacket, error) {
	start := time.Now()

	fused, bm25Only, err := r.fusedCandidates(ctx, question, module)
	if err != nil {
		return nil, err
	}
	if bm25Only && r.log != nil {
		r.log.Warnw("schema retrieval degraded to BM25-only after embedding failure")
	}

	topM := fused
	if len(topM) > r.cfg.FusedTopM {
		topM = topM[:r.cfg.FusedTopM]
	}

	seedNames := make([]string, len(topM))
	for i, f := range topM {
		seedNames[i] = f.table
	}

	descriptors, err := r.store.Descriptors(ctx, seedNames)
	if err != nil {
		return nil, err
	}
	descByName := make(map[string]catalog.TableDescriptor, len(descriptors))
	for _, d := range descriptors {
		descByName[d.Name] = d
	}

	scoreByName := make(map[string]float64, len(topM))
	for _, f := range topM {
		scoreByName[f.table] = f.score
	}

	selected := make([]catalog.SelectedTable, 0, len(seedNames))
	present := make(map[string]bool)
	for _, name := range seedNames {
		d, ok := descByName[name]
		if !ok {
			continue
		}
		selected = append(selected, catalog.SelectedTable{Descriptor: d, Source: catalog.SourceRetrieval, Score: scoreByName[name]})
		present[name] = true
	}

	hubCaps := 0
	if r.cfg.FKExpansionDepth > 0 {
		expanded, caps, err := r.expandFK(ctx, seedNames, present, scoreByName)
		if err != nil {
			return nil, err
		}
		selected = append(selected, expanded...)
		hubCaps = caps
		for _, e := range expanded {
			present[e.Descriptor.Name] = true
		}
	}

	if r.flags.EnablePreSQLRecall && r.gen != nil {
		recalled, err := r.preSQLRecall(ctx, question, selected, present)
		if err == nil {
			selected = append(selected, recalled...)
		} else if r.log != nil {
			r.log.Warnw("pre-SQL recall pass failed, continuing without it", "error", err)
		}
	}

	allNames := make([]string, len(selected))
	for i, s := range selected {
		allNames[i] = s.Descriptor.Name
	}
	edges, err := r.store.FKEdges(ctx, allNames, 1)
	if err != nil {
		return nil, err
	}
	edges = restrictToSelected(edges, present)

	modules := moduleSet(selected)

	counts := make(map[catalog.TableSource]int)
	for _, s := range selected {
		counts[s.Source]++
	}

	packet := &catalog.SchemaContextPacket{
		Tables:  selected,
		Edges:   edges,
		Modules: modules,
		Metadata: catalog.RetrievalMetadata{
			CosineThresholdUsed: r.cfg.MinCosineSim,
			CountsBySource:      counts,
			HubCapsApplied:      hubCaps,
			Latency:             time.Since(start),
		},
	}
	return packet, nil
}

type scoredTable struct {
	table string
	score float64
}

// fusedCandidates embeds the question, runs cosine and BM25 lookups in
// parallel, and fuses them with Reciprocal Rank Fusion (k=60 by default,
// spec §4.3 step 3). On embed failure it retries once inside the client;
// if the client still fails, it falls back to BM25-only. If BM25 also
// fails, it surfaces RetrievalFailed.
func (r *Retriever) fusedCandidates(ctx context.Context, question, module string) ([]scoredTable, bool, error) {
	var cosineRanked []catalog.TableSimilarity
	var bm25Ranked []catalog.TableBM25
	var embedErr error

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		qvec, err := r.embed.Embed(gctx, question)
		if err != nil {
			embedErr = err
			return nil // BM25 continues regardless
		}
		sims, err := r.store.SimilarTables(gctx, qvec, module, r.cfg.MinCosineSim, r.cfg.CosineTopK)
		if err != nil {
			embedErr = err
			return nil
		}
		cosineRanked = sims
		return nil
	})
	g.Go(func() error {
		bm25, err := r.store.BM25Tables(gctx, question, module, r.cfg.BM25TopK)
		if err != nil {
			return err
		}
		bm25Ranked = bm25
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, false, orcherr.New(orcherr.KindRetrievalFailed, "BM25 retrieval failed", err)
	}

	bm25Only := embedErr != nil
	k := r.cfg.RRFK
	if k <= 0 {
		k = 60
	}

	scores := make(map[string]float64)
	for i, s := range cosineRanked {
		scores[s.Table] += 1.0 / float64(k+i+1)
	}
	for i, b := range bm25Ranked {
		scores[b.Table] += 1.0 / float64(k+i+1)
	}

	out := make([]scoredTable, 0, len(scores))
	for t, s := range scores {
		out = append(out, scoredTable{table: t, score: s})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		return out[i].table < out[j].table
	})
	return out, bm25Only, nil
}

// expandFK walks FK edges up to cfg.FKExpansionDepth hops from the seed
// tables, capping edges followed from any hub table (spec §4.3 step 5).
func (r *Retriever) expandFK(ctx context.Context, seeds []string, present map[string]bool, seedScore map[string]float64) ([]catalog.SelectedTable, int, error) {
	frontier := append([]string(nil), seeds...)
	ancestorScore := make(map[string]float64, len(seedScore))
	for k, v := range seedScore {
		ancestorScore[k] = v
	}

	var added []catalog.SelectedTable
	hubCaps := 0

	for hop := 0; hop < r.cfg.FKExpansionDepth && len(frontier) > 0; hop++ {
		edges, err := r.store.FKEdges(ctx, frontier, 1)
		if err != nil {
			return nil, 0, err
		}

		neighborsByHub := make(map[string][]catalog.FKEdge)
		for _, e := range edges {
			if present[e.FromTable] && !present[e.ToTable] {
				neighborsByHub[e.FromTable] = append(neighborsByHub[e.FromTable], e)
			}
			if present[e.ToTable] && !present[e.FromTable] {
				neighborsByHub[e.ToTable] = append(neighborsByHub[e.ToTable], e)
			}
		}

		var nextFrontier []string
		for hubName, hubEdges := range neighborsByHub {
			edgeCap := len(hubEdges)
			descs, err := r.store.Descriptors(ctx, []string{hubName})
			if err == nil && len(descs) == 1 && descs[0].IsHub && r.cfg.HubEdgeCap > 0 && edgeCap > r.cfg.HubEdgeCap {
				hubCaps++
				edgeCap = r.cfg.HubEdgeCap
			}
			for i, e := range hubEdges {
				if i >= edgeCap {
					break
				}
				other := e.FromTable
				if other == hubName {
					other = e.ToTable
				}
				if present[other] {
					continue
				}
				descs, err := r.store.Descriptors(ctx, []string{other})
				if err != nil || len(descs) == 0 {
					continue
				}
				score := ancestorScore[hubName] * pow(r.cfg.FKExpansionDecay, hop+1)
				added = append(added, catalog.SelectedTable{Descriptor: descs[0], Source: catalog.SourceFKExpansion, Score: score})
				present[other] = true
				ancestorScore[other] = score
				nextFrontier = append(nextFrontier, other)
			}
		}
		frontier = nextFrontier
	}

	return added, hubCaps, nil
}

func pow(base float64, exp int) float64 {
	result := 1.0
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}

func restrictToSelected(edges []catalog.FKEdge, present map[string]bool) []catalog.FKEdge {
	out := make([]catalog.FKEdge, 0, len(edges))
	for _, e := range edges {
		if present[e.FromTable] && present[e.ToTable] {
			out = append(out, e)
		}
	}
	return out
}

func moduleSet(selected []catalog.SelectedTable) []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range selected {
		if s.Descriptor.Module == "" || seen[s.Descriptor.Module] {
			continue
		}
		seen[s.Descriptor.Module] = true
		out = append(out, s.Descriptor.Module)
	}
	return out
}
