package evaluate

import (
	"testing"

	"queryorch/internal/joinplan"
)

func TestScoreCandidate_penalizesLintAndExplainFailure(t *testing.T) {
	lints := []LintFinding{{Code: "select_star", Severity: LintWarning}, {Code: "trailing_comma", Severity: LintError}}
	score := ScoreCandidate("how many orders", "SELECT * FROM orders", lints, ExplainResult{Outcome: ExplainOther})
	want := 100.0 - 5 - 25 - 50
	if score != want {
		t.Fatalf("expected %v, got %v", want, score)
	}
}

func TestScoreCandidate_topQuestionBonusRequiresOrderByAndLimit(t *testing.T) {
	withBonus := ScoreCandidate("what is the top customer", "SELECT id FROM customers ORDER BY total DESC LIMIT 1", nil, ExplainResult{Outcome: ExplainOK})
	withoutBonus := ScoreCandidate("what is the top customer", "SELECT id FROM customers", nil, ExplainResult{Outcome: ExplainOK})
	if withBonus-withoutBonus != 10 {
		t.Fatalf("expected a 10-point bonus for ORDER BY+LIMIT on a top-N question, got delta %v", withBonus-withoutBonus)
	}
}

func TestScoreCandidate_howManyBonusRequiresGroupBy(t *testing.T) {
	withBonus := ScoreCandidate("how many orders per customer", "SELECT customer_id, COUNT(*) FROM orders GROUP BY customer_id", nil, ExplainResult{Outcome: ExplainOK})
	withoutBonus := ScoreCandidate("how many orders per customer", "SELECT COUNT(*) FROM orders", nil, ExplainResult{Outcome: ExplainOK})
	if withBonus-withoutBonus != 10 {
		t.Fatalf("expected a 10-point bonus for GROUP BY on a how-many question, got delta %v", withBonus-withoutBonus)
	}
}

func TestSchemaAdherenceBonus_risesWithKnownIdentifiers(t *testing.T) {
	packet := samplePacket()
	known := SchemaAdherenceBonus("SELECT orders.id FROM orders", packet)
	unknown := SchemaAdherenceBonus("SELECT widgets.id FROM widgets", packet)
	if known <= unknown {
		t.Fatalf("expected known-schema SQL to score higher, got known=%v unknown=%v", known, unknown)
	}
}

func TestJoinSkeletonBonus_matchesEdgeEitherOrder(t *testing.T) {
	skeletons := []joinplan.Skeleton{{
		Joins: []joinplan.JoinClause{{OnLeft: "orders.customer_id", OnRight: "customers.id"}},
	}}
	forward := JoinSkeletonBonus("SELECT 1 FROM orders JOIN customers ON orders.customer_id = customers.id", skeletons)
	reversed := JoinSkeletonBonus("SELECT 1 FROM customers JOIN orders ON customers.id = orders.customer_id", skeletons)
	if forward == 0 || reversed == 0 {
		t.Fatalf("expected a nonzero bonus in both join orders, got forward=%v reversed=%v", forward, reversed)
	}
}

func TestJoinSkeletonBonus_zeroWithNoSkeletons(t *testing.T) {
	bonus := JoinSkeletonBonus("SELECT 1 FROM orders JOIN customers ON orders.customer_id = customers.id", nil)
	if bonus != 0 {
		t.Fatalf("expected zero bonus with no skeletons, got %v", bonus)
	}
}

func TestSelect_ordersByFinalScoreDescending(t *testing.T) {
	candidates := []Scored{
		{SQL: "a", FinalScore: 80, GenerationIdx: 0},
		{SQL: "b", FinalScore: 95, GenerationIdx: 1},
	}
	ranked := Select(candidates)
	if ranked[0].SQL != "b" {
		t.Fatalf("expected higher-scored candidate first, got %q", ranked[0].SQL)
	}
}

func TestSelect_tieBreaksByExplainOkThenLintErrorsThenIndex(t *testing.T) {
	candidates := []Scored{
		{SQL: "a", FinalScore: 90, Explain: ExplainResult{Outcome: ExplainOther}, GenerationIdx: 0},
		{SQL: "b", FinalScore: 90, Explain: ExplainResult{Outcome: ExplainOK}, GenerationIdx: 2},
	}
	ranked := Select(candidates)
	if ranked[0].SQL != "b" {
		t.Fatalf("expected the EXPLAIN-ok candidate to win the tie, got %q", ranked[0].SQL)
	}

	tieBroken := []Scored{
		{SQL: "c", FinalScore: 90, Explain: ExplainResult{Outcome: ExplainOK}, LintFindings: []LintFinding{{Severity: LintError}}, GenerationIdx: 0},
		{SQL: "d", FinalScore: 90, Explain: ExplainResult{Outcome: ExplainOK}, GenerationIdx: 1},
	}
	ranked2 := Select(tieBroken)
	if ranked2[0].SQL != "d" {
		t.Fatalf("expected the candidate with fewer lint errors to win the tie, got %q", ranked2[0].SQL)
	}
}
