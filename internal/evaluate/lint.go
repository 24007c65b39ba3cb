package evaluate

import (
	"regexp"
	"strings"
)

// LintSeverity mirrors spec §4.8's "coded severity": errors reject the
// candidate from EXPLAIN, warnings only penalise its score.
type LintSeverity string

const (
	LintError   LintSeverity = "error"
	LintWarning LintSeverity = "warning"
)

// LintFinding is one detected lint issue.
type LintFinding struct {
	Code     string
	Severity LintSeverity
	Message  string
}

var (
	selectStarRegex      = regexp.MustCompile(`(?i)SELECT\s+\*`)
	aggregateFuncRegex   = regexp.MustCompile(`(?i)\b(COUNT|SUM|AVG|MIN|MAX)\s*\(`)
	groupByRegex         = regexp.MustCompile(`(?i)\bGROUP\s+BY\b`)
	havingRegex          = regexp.MustCompile(`(?i)\bHAVING\b`)
	trailingCommaRegex   = regexp.MustCompile(`,\s*(FROM|WHERE|GROUP|ORDER|HAVING|LIMIT|\))`)
	joinRegex            = regexp.MustCompile(`(?i)\bJOIN\b`)
	crossJoinRegex       = regexp.MustCompile(`(?i)\bCROSS\s+JOIN\b`)
	fromTableRegex       = regexp.MustCompile(`(?i)\b(?:FROM|JOIN)\s+[a-zA-Z_][a-zA-Z0-9_."]*`)
	unqualifiedColRegex  = regexp.MustCompile(`(?i)\bSELECT\b(.*?)\bFROM\b`)
)

// Lint runs the fixed set of pattern-based detectors named by spec §4.8.
func Lint(sql string) []LintFinding {
	var findings []LintFinding

	if selectStarRegex.MatchString(sql) {
		findings = append(findings, LintFinding{"select_star", LintWarning, "SELECT * returns every column; prefer an explicit list"})
	}

	hasAgg := aggregateFuncRegex.MatchString(sql)
	hasGroupBy := groupByRegex.MatchString(sql)
	if hasAgg && !hasGroupBy && hasNonAggregateColumn(sql) {
		findings = append(findings, LintFinding{"missing_group_by", LintError, "aggregate function mixed with ungrouped columns and no GROUP BY"})
	}

	tableCount := len(fromTableRegex.FindAllString(sql, -1))
	if tableCount > 1 && hasUnqualifiedColumnRef(sql) {
		findings = append(findings, LintFinding{"ambiguous_unqualified_column", LintWarning, "unqualified column reference with multiple tables in scope"})
	}

	// Explicit CROSS JOIN syntax is allowed; only the comma-join form
	// that silently produces a cartesian product is flagged.
	if hasCommaJoinCartesian(sql) {
		findings = append(findings, LintFinding{"implicit_cross_join", LintWarning, "comma-separated FROM list without a join condition may be an implicit cartesian product"})
	}

	if havingRegex.MatchString(sql) && !hasGroupBy {
		findings = append(findings, LintFinding{"having_without_group_by", LintError, "HAVING without GROUP BY"})
	}

	if trailingCommaRegex.MatchString(sql) {
		findings = append(findings, LintFinding{"trailing_comma", LintError, "trailing comma before a clause boundary"})
	}

	if !balancedParens(sql) {
		findings = append(findings, LintFinding{"unbalanced_parens", LintError, "unbalanced parentheses"})
	}

	if !balancedQuotes(sql) {
		findings = append(findings, LintFinding{"unclosed_quote", LintError, "unclosed string literal"})
	}

	conditionedJoins := len(joinRegex.FindAllString(sql, -1)) - len(crossJoinRegex.FindAllString(sql, -1))
	if conditionedJoins > 0 && !strings.Contains(strings.ToUpper(sql), " ON ") && !strings.Contains(strings.ToUpper(sql), " USING") {
		findings = append(findings, LintFinding{"join_without_on", LintError, "JOIN without an ON or USING clause"})
	}

	if undefined := findUndefinedAliasRefs(sql); undefined {
		findings = append(findings, LintFinding{"undefined_alias", LintWarning, "a qualified column reference uses an alias not declared in FROM/JOIN"})
	}

	return findings
}

func hasNonAggregateColumn(sql string) bool {
	m := unqualifiedColRegex.FindStringSubmatch(sql)
	if len(m) < 2 {
		return false
	}
	exprList := m[1]
	parts := splitTopLevelCommas(exprList)
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "*" || p == "" {
			continue
		}
		if !aggregateFuncRegex.MatchString(p) {
			return true
		}
	}
	return false
}

func hasUnqualifiedColumnRef(sql string) bool {
	m := unqualifiedColRegex.FindStringSubmatch(sql)
	if len(m) < 2 {
		return false
	}
	parts := splitTopLevelCommas(m[1])
	bareIdent := regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if bareIdent.MatchString(p) && !strings.Contains(p, ".") {
			return true
		}
	}
	return false
}

func hasCommaJoinCartesian(sql string) bool {
	m := fromClauseOnly.FindStringSubmatch(sql)
	if len(m) < 2 {
		return false
	}
	clause := m[1]
	return strings.Contains(clause, ",") && !strings.Contains(strings.ToUpper(sql), " ON ")
}

var fromClauseOnly = regexp.MustCompile(`(?is)\bFROM\s+(.*?)(?:\bWHERE\b|\bGROUP\b|\bORDER\b|\bHAVING\b|\bLIMIT\b|$)`)

func splitTopLevelCommas(s string) []string {
	var parts []string
	depth := 0
	start := 0
	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, s[start:])
	return parts
}

func balancedParens(sql string) bool {
	depth := 0
	inString := false
	for _, r := range sql {
		switch r {
		case '\'':
			inString = !inString
		case '(':
			if !inString {
				depth++
			}
		case ')':
			if !inString {
				depth--
				if depth < 0 {
					return false
				}
			}
		}
	}
	return depth == 0
}

func balancedQuotes(sql string) bool {
	count := strings.Count(sql, "'")
	return count%2 == 0
}

var aliasDeclRegex = regexp.MustCompile(`(?i)\b(?:FROM|JOIN)\s+[a-zA-Z_][a-zA-Z0-9_."]*\s+(?:AS\s+)?([a-zA-Z_][a-zA-Z0-9_]*)\b`)
var qualifiedRefRegex = regexp.MustCompile(`\b([a-zA-Z_][a-zA-Z0-9_]*)\.[a-zA-Z_][a-zA-Z0-9_]*\b`)
var sqlKeywordAsAlias = map[string]bool{"where": true, "group": true, "order": true, "having": true, "limit": true, "on": true, "as": true, "and": true, "or": true}

func findUndefinedAliasRefs(sql string) bool {
	declared := make(map[string]bool)
	for _, m := range aliasDeclRegex.FindAllStringSubmatch(sql, -1) {
		declared[strings.ToLower(m[1])] = true
	}
	for _, m := range fromTableRegex.FindAllStringSubmatch(sql, -1) {
		raw := strings.Trim(m[0], " ")
		fields := strings.Fields(raw)
		if len(fields) >= 2 {
			name := strings.Trim(fields[1], `"`)
			if idx := strings.LastIndex(name, "."); idx >= 0 {
				name = name[idx+1:]
			}
			declared[strings.ToLower(name)] = true
		}
	}
	for _, m := range qualifiedRefRegex.FindAllStringSubmatch(sql, -1) {
		alias := strings.ToLower(m[1])
		if sqlKeywordAsAlias[alias] {
			continue
		}
		if !declared[alias] {
			return true
		}
	}
	return false
}
