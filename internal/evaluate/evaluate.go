package evaluate

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"queryorch/internal/adapter"
	"queryorch/internal/catalog"
	"queryorch/internal/config"
	"queryorch/internal/generate"
	"queryorch/internal/joinplan"
)

// Report is the full evaluator output for a set of candidates: the
// ranked, scored list plus the winner (Ranked[0], if any survived
// structural validation).
type Report struct {
	Ranked []Scored
}

// Winner returns the top-ranked scored candidate, or false if every
// candidate was rejected at the structural stage.
func (r Report) Winner() (Scored, bool) {
	if len(r.Ranked) == 0 {
		return Scored{}, false
	}
	return r.Ranked[0], true
}

// Evaluate runs spec §4.8's full pipeline over a generated candidate
// set: structural validation, lint, parallel EXPLAIN (for structurally
// valid candidates only), deterministic scoring, reranker bonuses, and
// selection. Structurally invalid candidates are dropped before
// EXPLAIN and scoring — they never reach the database.
func Evaluate(
	ctx context.Context,
	db adapter.DBAdapter,
	question string,
	candidates []generate.Candidate,
	packet *catalog.SchemaContextPacket,
	skeletons []joinplan.Skeleton,
	cfg config.EvaluateConfig,
) (Report, error) {
	type validated struct {
		cand generate.Candidate
		sres StructuralResult
	}

	var accepted []validated
	for _, c := range candidates {
		sres := ValidateStructure(c.SQL, packet, cfg.MaxLimit)
		if !sres.OK {
			continue
		}
		accepted = append(accepted, validated{cand: c, sres: sres})
	}
	if len(accepted) == 0 {
		return Report{}, nil
	}

	scored := make([]Scored, len(accepted))
	g, gctx := errgroup.WithContext(ctx)
	for i, v := range accepted {
		i, v := i, v
		g.Go(func() error {
			lints := Lint(v.sres.SQL)
			var explainRes ExplainResult
			hasLintError := false
			for _, f := range lints {
				if f.Severity == LintError {
					hasLintError = true
					break
				}
			}
			switch {
			case hasLintError:
				explainRes = ExplainResult{Outcome: ExplainOther, Err: fmt.Errorf("skipped: lint errors present")}
			case DeadlineWithinSlack(gctx, cfg.DeadlineSlack):
				explainRes = ExplainResult{Outcome: ExplainUnknown, Err: fmt.Errorf("skipped: caller deadline within slack")}
			default:
				explainRes = RunExplain(gctx, db, v.sres.SQL, cfg.ExplainTimeout)
			}

			base := ScoreCandidate(question, v.sres.SQL, lints, explainRes)
			bonus := SchemaAdherenceBonus(v.sres.SQL, packet) +
				JoinSkeletonBonus(v.sres.SQL, skeletons) +
				ResultShapeBonus(question, v.sres.SQL)

			scored[i] = Scored{
				SQL:           v.sres.SQL,
				Candidate:     v.cand.SQL,
				Struct:        v.sres,
				LintFindings:  lints,
				Explain:       explainRes,
				BaseScore:     base,
				RerankBonus:   bonus,
				FinalScore:    base + bonus,
				GenerationIdx: v.cand.FirstIndex,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Report{}, err
	}

	if cfg.ValueVerifyTopN > 0 {
		verifyTopCandidates(ctx, db, scored, cfg.ValueVerifyTopN)
	}

	return Report{Ranked: Select(scored)}, nil
}

// verifyTopCandidates runs an optional, off-by-default cheap existence
// probe (spec §4.8 "Optional value verification") against the top N
// scored candidates: the candidate itself is executed and a zero-row
// result penalises its score, since a value hint that matched nothing
// usually means the literal was misspelled or the wrong column was
// filtered on. Disabled unless cfg.ValueVerifyTopN > 0.
func verifyTopCandidates(ctx context.Context, db adapter.DBAdapter, scored []Scored, topN int) {
	ranked := Select(scored)
	n := topN
	if n > len(ranked) {
		n = len(ranked)
	}
	for i := 0; i < n; i++ {
		s := ranked[i]
		if s.Explain.Outcome != ExplainOK {
			continue
		}
		idx := indexOfSQL(scored, s.SQL)
		if idx < 0 {
			continue
		}
		res, err := db.ExecuteQuery(ctx, s.SQL)
		if err != nil {
			continue
		}
		if res.RowCount == 0 {
			scored[idx].RerankBonus -= 5
			scored[idx].FinalScore -= 5
		}
	}
}

func indexOfSQL(scored []Scored, sql string) int {
	for i, s := range scored {
		if s.SQL == sql {
			return i
		}
	}
	return -1
}
