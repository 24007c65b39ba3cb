package evaluate

import (
	"regexp"
	"sort"
	"strings"

	"queryorch/internal/catalog"
	"queryorch/internal/joinplan"
)

var (
	topMostRegex       = regexp.MustCompile(`(?i)\b(top|most|highest|lowest|largest|smallest)\b`)
	howManyGroupRegex  = regexp.MustCompile(`(?i)\b(how many|count|group by|per |each )\b`)
	uniqueRegex        = regexp.MustCompile(`(?i)\b(unique|different|distinct)\b`)
	relationshipRegex  = regexp.MustCompile(`(?i)\b(who|which|that (?:have|has)|with their|along with|and their)\b`)
	orderByLimitRegex  = regexp.MustCompile(`(?i)\bORDER\s+BY\b[\s\S]*\bLIMIT\b`)
	distinctRegex      = regexp.MustCompile(`(?i)\bDISTINCT\b`)
	countAggRegex      = regexp.MustCompile(`(?i)\bCOUNT\s*\(`)
	sumAggRegex        = regexp.MustCompile(`(?i)\bSUM\s*\(`)
	avgAggRegex        = regexp.MustCompile(`(?i)\bAVG\s*\(`)
	totalWordRegex     = regexp.MustCompile(`(?i)\btotal\b`)
	averageWordRegex   = regexp.MustCompile(`(?i)\baverage\b`)
	orderByRegex       = regexp.MustCompile(`(?i)\bORDER\s+BY\b`)
	joinOnPairRegex    = regexp.MustCompile(`(?i)\bJOIN\b[\s\S]*?\bON\s+([a-zA-Z_][a-zA-Z0-9_."]*)\s*=\s*([a-zA-Z_][a-zA-Z0-9_."]*)`)
	columnRefRegex     = regexp.MustCompile(`\b([a-zA-Z_][a-zA-Z0-9_]*)\.([a-zA-Z_][a-zA-Z0-9_]*)\b`)
)

// Scored is one candidate after scoring and reranking.
type Scored struct {
	SQL           string
	Candidate     string // original unmodified candidate, pre-LIMIT-append
	Struct        StructuralResult
	LintFindings  []LintFinding
	Explain       ExplainResult
	BaseScore     float64
	RerankBonus   float64
	FinalScore    float64
	GenerationIdx int
}

// ScoreCandidate computes the deterministic base score of spec §4.8's
// formula, before reranker bonuses.
func ScoreCandidate(question, sql string, lints []LintFinding, explain ExplainResult) float64 {
	score := 100.0
	for _, l := range lints {
		switch l.Severity {
		case LintError:
			score -= 25
		case LintWarning:
			score -= 5
		}
	}
	if explain.Outcome != ExplainOK {
		score -= 50
	}
	if topMostRegex.MatchString(question) && orderByLimitRegex.MatchString(sql) {
		score += 10
	}
	if howManyGroupRegex.MatchString(question) && groupByRegex.MatchString(sql) {
		score += 10
	}
	if uniqueRegex.MatchString(question) && distinctRegex.MatchString(sql) {
		score += 5
	}
	if relationshipRegex.MatchString(question) && joinRegex.MatchString(sql) {
		score += 5
	}
	return score
}

// SchemaAdherenceBonus rewards identifiers that actually exist in the
// context packet, weighted 0.4 tables / 0.6 columns, up to +15.
func SchemaAdherenceBonus(sql string, packet *catalog.SchemaContextPacket) float64 {
	tables := extractTableNames(sql)
	tableHit, tableTotal := 0, 0
	for _, t := range tables {
		tableTotal++
		if packet.Contains(t) {
			tableHit++
		}
	}
	tableFraction := 1.0
	if tableTotal > 0 {
		tableFraction = float64(tableHit) / float64(tableTotal)
	}

	knownColumns := make(map[string]bool)
	for _, t := range packet.Tables {
		for _, c := range t.Descriptor.Columns {
			knownColumns[strings.ToLower(t.Descriptor.Name)+"."+strings.ToLower(c.Name)] = true
		}
	}
	colHit, colTotal := 0, 0
	for _, m := range columnRefRegex.FindAllStringSubmatch(sql, -1) {
		colTotal++
		key := strings.ToLower(m[1]) + "." + strings.ToLower(m[2])
		if knownColumns[key] {
			colHit++
		}
	}
	colFraction := 1.0
	if colTotal > 0 {
		colFraction = float64(colHit) / float64(colTotal)
	}

	return 15.0 * (0.4*tableFraction + 0.6*colFraction)
}

// JoinSkeletonBonus rewards SQL whose JOIN...ON pairs match an edge in
// any join skeleton, up to +20.
func JoinSkeletonBonus(sql string, skeletons []joinplan.Skeleton) float64 {
	pairs := joinOnPairRegex.FindAllStringSubmatch(sql, -1)
	if len(pairs) == 0 || len(skeletons) == 0 {
		return 0
	}

	edgeSet := make(map[string]bool)
	for _, sk := range skeletons {
		for _, j := range sk.Joins {
			edgeSet[normalizedEdgeKey(j.OnLeft, j.OnRight)] = true
		}
	}

	matches := 0
	for _, p := range pairs {
		if edgeSet[normalizedEdgeKey(p[1], p[2])] {
			matches++
		}
	}
	if matches == 0 {
		return 0
	}
	fraction := float64(matches) / float64(len(pairs))
	return 20.0 * fraction
}

func normalizedEdgeKey(a, b string) string {
	a = strings.ToLower(a)
	b = strings.ToLower(b)
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}

// ResultShapeBonus rewards aggregate/GROUP BY/ORDER BY choices that
// match the question's apparent structure, up to +10.
func ResultShapeBonus(question, sql string) float64 {
	bonus := 0.0
	switch {
	case howManyGroupRegex.MatchString(question) && countAggRegex.MatchString(sql):
		bonus += 5
	case totalWordRegex.MatchString(question) && sumAggRegex.MatchString(sql):
		bonus += 5
	case averageWordRegex.MatchString(question) && avgAggRegex.MatchString(sql):
		bonus += 5
	}
	if howManyGroupRegex.MatchString(question) && groupByRegex.MatchString(sql) {
		bonus += 3
	}
	if topMostRegex.MatchString(question) && orderByRegex.MatchString(sql) {
		bonus += 2
	}
	if bonus > 10 {
		bonus = 10
	}
	return bonus
}

// Select ranks scored candidates by final score descending, tie-broken
// by EXPLAIN-ok, then fewer lint errors, then earlier generation index
// (spec §4.8 "Selection").
func Select(candidates []Scored) []Scored {
	out := append([]Scored(nil), candidates...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.FinalScore != b.FinalScore {
			return a.FinalScore > b.FinalScore
		}
		aOK := a.Explain.Outcome == ExplainOK
		bOK := b.Explain.Outcome == ExplainOK
		if aOK != bOK {
			return aOK
		}
		aErrs := countErrors(a.LintFindings)
		bErrs := countErrors(b.LintFindings)
		if aErrs != bErrs {
			return aErrs < bErrs
		}
		return a.GenerationIdx < b.GenerationIdx
	})
	return out
}

func countErrors(findings []LintFinding) int {
	n := 0
	for _, f := range findings {
		if f.Severity == LintError {
			n++
		}
	}
	return n
}
