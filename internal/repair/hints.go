package repair

import (
	"fmt"
	"sort"
	"strings"

	"queryorch/internal/catalog"
)

// HintKind identifies which of spec §4.9 step 3's three hint shapes a
// repair attempt produced.
type HintKind string

const (
	HintCrossTable     HintKind = "cross_table"
	HintPhantomColumn  HintKind = "phantom_column"
	HintSurgicalAllow  HintKind = "surgical_whitelist"
)

// Hint is one delta-prompt instruction produced by the repair loop's
// column-resolution step.
type Hint struct {
	Kind    HintKind
	Message string
}

// BuildHint decides which of the three hint shapes applies for an
// undefined column reference that could not be resolved on its own
// table (spec §4.9 step 3).
func BuildHint(table string, column string, edges []catalog.FKEdge, packet *catalog.SchemaContextPacket, threshold float64) Hint {
	if cand, viaEdges, ok := FindFKAdjacentCandidate(table, column, edges, packet, threshold); ok {
		edge := viaEdges[0]
		joinClause := fmt.Sprintf("JOIN %s ON %s.%s = %s.%s", cand.Table, edge.FromTable, edge.FromColumn, edge.ToTable, edge.ToColumn)
		return Hint{
			Kind:    HintCrossTable,
			Message: fmt.Sprintf("column %q is not on %q but %q is reachable by %s; add the join and qualify the column as %s.%s", column, table, cand.Table, joinClause, cand.Table, cand.Column),
		}
	}

	if existsAnywhere(column, packet) {
		return surgicalWhitelist(table, edges, packet)
	}

	return Hint{
		Kind:    HintPhantomColumn,
		Message: fmt.Sprintf("column %q does not exist anywhere in the current schema context; remove the reference instead of guessing a replacement", column),
	}
}

func existsAnywhere(column string, packet *catalog.SchemaContextPacket) bool {
	target := strings.ToLower(column)
	for _, t := range packet.Tables {
		for _, c := range t.Descriptor.Columns {
			if strings.ToLower(c.Name) == target {
				return true
			}
		}
	}
	return false
}

// surgicalWhitelist emits the resolved table's columns plus the columns
// of its one-hop FK neighbours as an explicit allow-list (spec §4.9
// step 3, the fallback when the column is neither locally fixable nor
// phantom).
func surgicalWhitelist(table string, edges []catalog.FKEdge, packet *catalog.SchemaContextPacket) Hint {
	allowed := make(map[string][]string)
	if desc, ok := packet.Descriptor(table); ok {
		allowed[table] = columnNames(desc)
	}
	for _, e := range edges {
		var neighbor string
		switch table {
		case e.FromTable:
			neighbor = e.ToTable
		case e.ToTable:
			neighbor = e.FromTable
		default:
			continue
		}
		if _, already := allowed[neighbor]; already {
			continue
		}
		if desc, ok := packet.Descriptor(neighbor); ok {
			allowed[neighbor] = columnNames(desc)
		}
	}

	tables := make([]string, 0, len(allowed))
	for t := range allowed {
		tables = append(tables, t)
	}
	sort.Strings(tables)

	var b strings.Builder
	b.WriteString("only these columns may be referenced when resolving this error:\n")
	for _, t := range tables {
		fmt.Fprintf(&b, "  %s: %s\n", t, strings.Join(allowed[t], ", "))
	}
	return Hint{Kind: HintSurgicalAllow, Message: b.String()}
}

func columnNames(desc catalog.TableDescriptor) []string {
	out := make([]string, len(desc.Columns))
	for i, c := range desc.Columns {
		out[i] = c.Name
	}
	return out
}
