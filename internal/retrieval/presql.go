package retrieval

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"queryorch/internal/catalog"
)

var tableRefPattern = regexp.MustCompile(`(?i)\b(?:FROM|JOIN)\s+([a-zA-Z_][a-zA-Z0-9_]*)`)

// preSQLRecall is the optional back-edge of spec §4.3 step 6: ask the
// generator for a cheap, low-temperature sketch SQL over just the
// current table names and glosses, parse table identifiers out of it,
// and retrieve any that are missing from the context via an embedding
// lookup of the identifier itself. Single iteration only — it never
// recurses.
func (r *Retriever) preSQLRecall(ctx context.Context, question string, selected []catalog.SelectedTable, present map[string]bool) ([]catalog.SelectedTable, error) {
	var sb strings.Builder
	sb.WriteString("Tables available:\n")
	for _, s := range selected {
		fmt.Fprintf(&sb, "- %s: %s\n", s.Descriptor.Name, s.Descriptor.Gloss)
	}
	sb.WriteString("\nWrite a short sketch SQL query (no explanation) for: ")
	sb.WriteString(question)

	sketches, err := r.gen.Generate(ctx, sb.String(), 1, 0.0)
	if err != nil || len(sketches) == 0 {
		return nil, err
	}
	sketch := sketches[0]

	mentioned := make(map[string]bool)
	for _, m := range tableRefPattern.FindAllStringSubmatch(sketch, -1) {
		mentioned[strings.ToLower(m[1])] = true
	}

	var recalled []catalog.SelectedTable
	for name := range mentioned {
		if present[name] {
			continue
		}
		qvec, err := r.embed.Embed(ctx, name)
		if err != nil {
			continue
		}
		sims, err := r.store.SimilarTables(ctx, qvec, "", 0, 1)
		if err != nil || len(sims) == 0 {
			continue
		}
		best := sims[0].Table
		if present[best] {
			continue
		}
		descs, err := r.store.Descriptors(ctx, []string{best})
		if err != nil || len(descs) == 0 {
			continue
		}
		recalled = append(recalled, catalog.SelectedTable{Descriptor: descs[0], Source: catalog.SourcePreSQLRecall, Score: sims[0].Similarity})
		present[best] = true
	}
	return recalled, nil
}
