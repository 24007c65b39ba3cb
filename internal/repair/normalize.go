// Package repair implements the Repair Loop (spec §4.9): dialect
// normalization, column autocorrect, hint generation, and delta-prompt
// construction around the generator worker. Grounded on the teacher's
// internal/inference/react.go extractSQL/oneShotGeneration (retry-loop
// shape, markdown-fence stripping) and internal/inference/schema_linker.go's
// FK-aware table description building, extended here with
// pg_query_go-adjacent regex parsing of FROM/JOIN clauses for alias
// resolution.
package repair

import "regexp"

// normalizeStep is one dialect-normalization transform. Each must be
// idempotent: applying it twice yields the same string as applying it
// once.
type normalizeStep struct {
	name    string
	pattern *regexp.Regexp
	replace func(groups []string) string
}

var (
	yearFuncRegex     = regexp.MustCompile(`(?i)YEAR\(\s*([a-zA-Z_][a-zA-Z0-9_.]*)\s*\)`)
	ifnullRegex       = regexp.MustCompile(`(?i)\bIFNULL\s*\(`)
	dateAddRegex      = regexp.MustCompile(`(?i)DATE_ADD\(\s*([a-zA-Z_][a-zA-Z0-9_.]*)\s*,\s*INTERVAL\s+(-?\d+)\s+(\w+)\s*\)`)
	dateDiffRegex     = regexp.MustCompile(`(?i)DATEDIFF\(\s*([a-zA-Z_][a-zA-Z0-9_.]*)\s*,\s*([a-zA-Z_][a-zA-Z0-9_.]*)\s*\)`)
	groupConcatRegex  = regexp.MustCompile(`(?i)GROUP_CONCAT\(\s*([a-zA-Z_][a-zA-Z0-9_.]*)\s*\)`)
	backtickRegex     = regexp.MustCompile("`([a-zA-Z_][a-zA-Z0-9_]*)`")
	mysqlLimitRegex   = regexp.MustCompile(`(?i)\bLIMIT\s+(\d+)\s*,\s*(\d+)`)
	// pseudo-column scoping clauses a search_path or catalog-qualified
	// filter sometimes injects, which carry no data-selection meaning.
	nonDataWhereRegex = regexp.MustCompile(`(?i)\s+AND\s+table_schema\s*=\s*'[^']*'`)
)

// Normalize runs the fixed set of dialect-normalization transforms
// (spec §4.9 step 1). Each rewrite is textual and idempotent; calling
// Normalize twice on its own output is a no-op.
func Normalize(sql string) string {
	out := sql
	out = yearFuncRegex.ReplaceAllString(out, "EXTRACT(YEAR FROM $1)")
	out = ifnullRegex.ReplaceAllString(out, "COALESCE(")
	out = dateAddRegex.ReplaceAllString(out, "$1 + INTERVAL '$2 $3'")
	out = dateDiffRegex.ReplaceAllString(out, "($1 - $2)")
	out = groupConcatRegex.ReplaceAllString(out, "string_agg($1, ',')")
	out = backtickRegex.ReplaceAllString(out, `"$1"`)
	out = mysqlLimitRegex.ReplaceAllStringFunc(out, rewriteMySQLLimit)
	out = nonDataWhereRegex.ReplaceAllString(out, "")
	return out
}

func rewriteMySQLLimit(match string) string {
	groups := mysqlLimitRegex.FindStringSubmatch(match)
	if len(groups) != 3 {
		return match
	}
	offset, count := groups[1], groups[2]
	return "LIMIT " + count + " OFFSET " + offset
}
