package repair

import (
	"regexp"
	"strings"

	"github.com/agnivade/levenshtein"

	"queryorch/internal/catalog"
)

// UndefinedColumnError is the parsed shape of a database's "undefined
// column" error message: an optional alias qualifier and the column
// name the database could not resolve.
type UndefinedColumnError struct {
	Alias  string // empty if the reference was unqualified
	Column string
}

var undefinedColumnMsgRegex = regexp.MustCompile(`(?i)column\s+"?(?:([a-zA-Z_][a-zA-Z0-9_]*)\.)?([a-zA-Z_][a-zA-Z0-9_]*)"?\s+does not exist`)

// ParseUndefinedColumnError extracts the offending [alias.]column from a
// database error message, spec §4.9 step 2's "extract the offending
// [alias.]column".
func ParseUndefinedColumnError(errMsg string) (UndefinedColumnError, bool) {
	m := undefinedColumnMsgRegex.FindStringSubmatch(errMsg)
	if m == nil {
		return UndefinedColumnError{}, false
	}
	return UndefinedColumnError{Alias: m[1], Column: m[2]}, true
}

var fromJoinAliasRegex = regexp.MustCompile(`(?i)\b(?:FROM|JOIN)\s+([a-zA-Z_][a-zA-Z0-9_."]*)\s*(?:(?:AS\s+)?([a-zA-Z_][a-zA-Z0-9_]*))?`)

// ResolveAlias maps an alias (or bare table name) used in sql's FROM/JOIN
// clauses back to its underlying table name.
func ResolveAlias(sql, alias string) (string, bool) {
	for _, m := range fromJoinAliasRegex.FindAllStringSubmatch(sql, -1) {
		table := lastIdentifierSegment(m[1])
		aliasName := m[2]
		if aliasName == "" {
			aliasName = table
		}
		if strings.EqualFold(aliasName, alias) || strings.EqualFold(table, alias) {
			return table, true
		}
	}
	return "", false
}

func lastIdentifierSegment(raw string) string {
	raw = strings.Trim(raw, `"`)
	if idx := strings.LastIndex(raw, "."); idx >= 0 {
		raw = raw[idx+1:]
	}
	return raw
}

// ColumnCandidate is a possible autocorrect target for an undefined
// column reference.
type ColumnCandidate struct {
	Table      string
	Column     string
	Confidence float64
}

// FindColumnCandidate searches table's columns for a same-name match
// (spec §4.9 step 2: exact, containment, Levenshtein, above a
// confidence threshold). Returns the best candidate found, if any meets
// the threshold.
func FindColumnCandidate(table catalog.TableDescriptor, column string, threshold float64) (ColumnCandidate, bool) {
	target := strings.ToLower(column)
	var best ColumnCandidate
	found := false

	for _, c := range table.Columns {
		cand := strings.ToLower(c.Name)
		var confidence float64
		switch {
		case cand == target:
			confidence = 1.0
		case strings.Contains(cand, target) || strings.Contains(target, cand):
			confidence = 0.8
		default:
			dist := levenshtein.ComputeDistance(cand, target)
			maxLen := len(cand)
			if len(target) > maxLen {
				maxLen = len(target)
			}
			if maxLen == 0 {
				confidence = 0
			} else {
				confidence = 1.0 - float64(dist)/float64(maxLen)
			}
		}
		if confidence > best.Confidence {
			best = ColumnCandidate{Table: table.Name, Column: c.Name, Confidence: confidence}
			found = true
		}
	}

	if !found || best.Confidence < threshold {
		return ColumnCandidate{}, false
	}
	return best, true
}

// FindFKAdjacentCandidate searches tables one hop away from table via an
// FK edge for a same-name column (spec §4.9 step 3's cross-table hint
// condition).
func FindFKAdjacentCandidate(table string, column string, edges []catalog.FKEdge, packet *catalog.SchemaContextPacket, threshold float64) (ColumnCandidate, []catalog.FKEdge, bool) {
	var neighborEdges []catalog.FKEdge
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
		desc, ok := packet.Descriptor(neighbor)
		if !ok {
			continue
		}
		if cand, ok := FindColumnCandidate(desc, column, threshold); ok {
			return cand, []catalog.FKEdge{e}, true
		}
		neighborEdges = append(neighborEdges, e)
	}
	return ColumnCandidate{}, neighborEdges, false
}

// InlineReplace replaces every occurrence of alias.oldColumn (or bare
// oldColumn when alias is empty) with alias.newColumn in sql.
func InlineReplace(sql, alias, oldColumn, newColumn string) string {
	var pattern *regexp.Regexp
	var replacement string
	if alias != "" {
		pattern = regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(alias) + `\.` + regexp.QuoteMeta(oldColumn) + `\b`)
		replacement = alias + "." + newColumn
	} else {
		pattern = regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(oldColumn) + `\b`)
		replacement = newColumn
	}
	return pattern.ReplaceAllString(sql, replacement)
}
