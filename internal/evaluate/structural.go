// Package evaluate implements the Candidate Evaluator (spec §4.8):
// structural validation, pattern-based lint, parallel EXPLAIN, and
// deterministic scoring with reranker bonuses. Grounded on
// zoravur-postgres-spreadsheet-view's pg_lineage package
// (pg_query_go-based parsing of a SELECT statement) for the
// single-statement structural gate, and on the teacher's
// internal/adapter SQLTool execute/dry-run pattern for the EXPLAIN
// runner.
package evaluate

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"

	"queryorch/internal/catalog"
	"queryorch/internal/config"
	"queryorch/internal/orcherr"
)

// blockedKeywords covers DDL/DML/privilege/bulk-IO statements that must
// never reach EXPLAIN (spec §4.8 "reject any of a blocklisted keyword
// set (DDL, DML, TRUNCATE, GRANT, COPY, etc.)").
var blockedKeywords = []string{
	"INSERT", "UPDATE", "DELETE", "TRUNCATE", "DROP", "ALTER", "CREATE",
	"GRANT", "REVOKE", "COPY", "VACUUM", "CALL", "DO", "MERGE",
}

// blockedFunctions covers filesystem, process-control and cross-database
// function calls (spec §4.8).
var blockedFunctions = []string{
	"pg_read_file", "pg_ls_dir", "pg_read_binary_file", "lo_import", "lo_export",
	"dblink", "dblink_connect", "dblink_exec", "pg_sleep", "pg_terminate_backend",
	"pg_cancel_backend", "pg_reload_conf", "system", "xp_cmdshell",
}

var identifierRegex = regexp.MustCompile(`(?i)\bFROM\s+([a-zA-Z_][a-zA-Z0-9_."]*)|\bJOIN\s+([a-zA-Z_][a-zA-Z0-9_."]*)`)
var limitRegex = regexp.MustCompile(`(?i)\bLIMIT\s+\d+`)
var functionCallRegex = regexp.MustCompile(`(?i)\b([a-zA-Z_][a-zA-Z0-9_]*)\s*\(`)

// StructuralResult is the outcome of one candidate's structural pass.
type StructuralResult struct {
	OK          bool
	Rejections  []string
	SQL         string // possibly rewritten with an appended LIMIT
	TablesUsed  []string
}

// ValidateStructure runs spec §4.8's structural validation gate.
func ValidateStructure(sql string, packet *catalog.SchemaContextPacket, maxLimit int) StructuralResult {
	var rejections []string

	tree, err := pg_query.Parse(sql)
	if err != nil {
		return StructuralResult{OK: false, Rejections: []string{"does not parse: " + err.Error()}}
	}
	stmts := tree.GetStmts()
	if len(stmts) != 1 {
		rejections = append(rejections, fmt.Sprintf("expected exactly one statement, found %d", len(stmts)))
	}
	if len(stmts) > 0 && stmts[0].GetStmt().GetSelectStmt() == nil {
		rejections = append(rejections, "statement is not a SELECT")
	}

	upper := strings.ToUpper(sql)
	for _, kw := range blockedKeywords {
		if containsWord(upper, kw) {
			rejections = append(rejections, "blocked keyword: "+kw)
		}
	}

	for _, m := range functionCallRegex.FindAllStringSubmatch(sql, -1) {
		fn := strings.ToLower(m[1])
		for _, blocked := range blockedFunctions {
			if fn == blocked {
				rejections = append(rejections, "blocked function: "+fn)
			}
		}
	}

	tablesUsed := extractTableNames(sql)
	for _, t := range tablesUsed {
		if !packet.Contains(t) {
			rejections = append(rejections, "references table not in context: "+t)
		}
	}

	out := sql
	if !limitRegex.MatchString(sql) && maxLimit > 0 {
		out = strings.TrimRight(strings.TrimSpace(out), ";") + fmt.Sprintf(" LIMIT %d", maxLimit)
	}

	return StructuralResult{
		OK:         len(rejections) == 0,
		Rejections: rejections,
		SQL:        out,
		TablesUsed: tablesUsed,
	}
}

func containsWord(upperSQL, word string) bool {
	re := regexp.MustCompile(`\b` + regexp.QuoteMeta(word) + `\b`)
	return re.MatchString(upperSQL)
}

// extractTableNames pulls identifiers following FROM/JOIN, stripping any
// schema qualifier and quoting.
func extractTableNames(sql string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range identifierRegex.FindAllStringSubmatch(sql, -1) {
		raw := m[1]
		if raw == "" {
			raw = m[2]
		}
		if idx := strings.LastIndex(raw, "."); idx >= 0 {
			raw = raw[idx+1:]
		}
		raw = strings.Trim(raw, `"`)
		raw = strings.ToLower(raw)
		if raw == "" || seen[raw] {
			continue
		}
		seen[raw] = true
		out = append(out, raw)
	}
	sort.Strings(out)
	return out
}

// structuralToErr wraps a rejected structural result into the
// orcherr taxonomy for callers outside this package.
func structuralToErr(res StructuralResult) error {
	if res.OK {
		return nil
	}
	return orcherr.New(orcherr.KindNoCandidates, strings.Join(res.Rejections, "; "), nil)
}
