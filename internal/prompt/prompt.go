// Package prompt implements Prompt Construction (spec §4.6): a fixed
// system preamble, a compact module-grouped table listing, the linker's
// schema contract, the join plan's skeleton clauses, and the question,
// concatenated in that order for the generator client. Grounded on the
// teacher's internal/inference/react.go buildPrompt (dialect-specific
// preamble, sectioned concatenation via strings.Builder), generalized
// from the teacher's single free-form "Rich Context" blob to the
// spec's structured sections sourced from the catalog, grounder, and
// join planner packages.
package prompt

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"queryorch/internal/catalog"
	"queryorch/internal/grounder"
	"queryorch/internal/joinplan"
)

// dialectNotes mirrors the teacher's per-dialect syntax reminder block,
// narrowed to the dialects this module's database adapters support.
var dialectNotes = map[string][]string{
	"postgresql": {
		"Use double quotes for identifiers, single quotes for string literals.",
		"LIMIT syntax: LIMIT count OFFSET offset.",
		"Use || for string concatenation; use EXTRACT(field FROM ts) for date parts.",
	},
	"mysql": {
		"Use backticks for identifiers, single quotes for string literals.",
		"LIMIT syntax: LIMIT offset, count.",
		"Use CONCAT() for string concatenation.",
	},
	"sqlite": {
		"Use double quotes for identifiers if needed, single quotes for string literals.",
		"Use || for string concatenation.",
	},
}

var forbiddenConstructs = []string{
	"DDL statements (CREATE, ALTER, DROP)",
	"DML statements other than SELECT (INSERT, UPDATE, DELETE, TRUNCATE)",
	"privilege statements (GRANT, REVOKE)",
	"bulk I/O statements (COPY, \\copy)",
	"filesystem or process-control functions",
	"cross-database link functions (dblink and similar)",
}

// Build assembles the full prompt string per spec §4.6's five ordered
// sections.
func Build(dialect string, packet *catalog.SchemaContextPacket, glosses map[string][]grounder.ColumnGloss, bundle grounder.SchemaLinkBundle, skeletons []joinplan.Skeleton, question string) string {
	var sb strings.Builder

	writePreamble(&sb, dialect)
	writeTableListing(&sb, packet, glosses)
	writeSchemaContract(&sb, packet, bundle)
	writeJoinPlan(&sb, skeletons)

	sb.WriteString("Question:\n")
	sb.WriteString(question)
	sb.WriteString("\n")

	return sb.String()
}

// tokenizer is lazily resolved once; GetEncoding hits the network on
// first use to fetch the cl100k_base vocabulary, so a nil tokenizer
// (offline, or the fetch otherwise failed) makes EstimateTokens fall
// back to a length/4 approximation rather than panicking or blocking
// every prompt build on a retry.
var tokenizer, tokenizerErr = tiktoken.GetEncoding("cl100k_base")

// EstimateTokens reports cl100k_base's token count for prompt, the same
// encoding the teacher's inference pipeline used to track prompt/response
// token usage. Callers use this to log prompt size in the trace, not to
// enforce a hard cutoff — no generator in this pack's worker contract
// advertises a context window small enough to need truncation here.
func EstimateTokens(text string) int {
	if tokenizerErr != nil || tokenizer == nil {
		return len(text) / 4
	}
	return len(tokenizer.Encode(text, nil, nil))
}

func writePreamble(sb *strings.Builder, dialect string) {
	sb.WriteString("You are a SQL expert. Generate a single SELECT statement that answers the question.\n\n")
	sb.WriteString(fmt.Sprintf("Target dialect: %s\n", dialect))
	if notes, ok := dialectNotes[strings.ToLower(dialect)]; ok {
		sb.WriteString("Syntax reminders:\n")
		for _, n := range notes {
			sb.WriteString("- " + n + "\n")
		}
	}
	sb.WriteString("\nForbidden, will be rejected before execution:\n")
	for _, f := range forbiddenConstructs {
		sb.WriteString("- " + f + "\n")
	}
	sb.WriteString("\n")
}

func writeTableListing(sb *strings.Builder, packet *catalog.SchemaContextPacket, glosses map[string][]grounder.ColumnGloss) {
	sb.WriteString("Tables:\n")

	byModule := make(map[string][]catalog.SelectedTable)
	for _, t := range packet.Tables {
		mod := t.Descriptor.Module
		if mod == "" {
			mod = "(ungrouped)"
		}
		byModule[mod] = append(byModule[mod], t)
	}
	modules := make([]string, 0, len(byModule))
	for m := range byModule {
		modules = append(modules, m)
	}
	sort.Strings(modules)

	for _, mod := range modules {
		sb.WriteString(fmt.Sprintf("\nModule: %s\n", mod))
		for _, t := range byModule[mod] {
			sb.WriteString(fmt.Sprintf("- %s", t.Descriptor.Name))
			if t.Descriptor.Gloss != "" {
				sb.WriteString(": " + t.Descriptor.Gloss)
			}
			sb.WriteString("\n")
			for _, g := range glosses[t.Descriptor.Name] {
				sb.WriteString(fmt.Sprintf("    %s (%s)", g.Column, g.TypeHint))
				if g.IsPrimaryKey {
					sb.WriteString(" [PK]")
				}
				if g.IsForeignKey {
					sb.WriteString(fmt.Sprintf(" [FK -> %s]", g.FKTarget))
				}
				sb.WriteString("\n")
			}
		}
	}
	sb.WriteString("\n")
}

func writeSchemaContract(sb *strings.Builder, packet *catalog.SchemaContextPacket, bundle grounder.SchemaLinkBundle) {
	sb.WriteString("Schema contract:\n")

	if len(bundle.RequiredTables) > 0 {
		sb.WriteString("- Required tables: " + strings.Join(bundle.RequiredTables, ", ") + "\n")
	}
	sb.WriteString("- Allowed tables: " + strings.Join(packet.TableNames(), ", ") + " (no others)\n")

	tables := make([]string, 0, len(bundle.LinkedColumns))
	for t := range bundle.LinkedColumns {
		tables = append(tables, t)
	}
	sort.Strings(tables)
	for _, t := range tables {
		cols := bundle.LinkedColumns[t]
		if len(cols) == 0 {
			continue
		}
		var parts []string
		for _, c := range cols {
			parts = append(parts, fmt.Sprintf("%s (%.2f for %q)", c.Column, c.Score, c.Phrase))
		}
		sb.WriteString(fmt.Sprintf("- %s columns relevant to the question: %s\n", t, strings.Join(parts, ", ")))
	}

	if len(bundle.ValueHints) > 0 {
		sb.WriteString("- Value hints:\n")
		for _, vh := range bundle.ValueHints {
			sb.WriteString(fmt.Sprintf("    %q may match %s.%s\n", vh.Value, vh.Table, vh.Column))
		}
	}

	if len(bundle.TableWarnings) > 0 {
		sb.WriteString("- Warnings:\n")
		for _, w := range bundle.TableWarnings {
			sb.WriteString("    " + w + "\n")
		}
	}

	if len(bundle.UnsupportedConcepts) > 0 {
		sb.WriteString("- Unsupported concepts (no confident column match, do not hallucinate a column for these): ")
		sb.WriteString(strings.Join(bundle.UnsupportedConcepts, ", "))
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
}

func writeJoinPlan(sb *strings.Builder, skeletons []joinplan.Skeleton) {
	if len(skeletons) == 0 {
		return
	}
	sb.WriteString("Suggested join plans:\n")
	for i, sk := range skeletons {
		sb.WriteString(fmt.Sprintf("Plan %d (root %s): %s\n", i+1, sk.Root, sk.Rationale))
		for _, j := range sk.Joins {
			sb.WriteString(fmt.Sprintf("    JOIN %s ON %s = %s\n", j.Table, j.OnLeft, j.OnRight))
		}
	}
	sb.WriteString("\n")
}
