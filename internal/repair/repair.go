package repair

import (
	"context"
	"time"

	"queryorch/internal/adapter"
	"queryorch/internal/catalog"
	"queryorch/internal/config"
	"queryorch/internal/evaluate"
	"queryorch/internal/genclient"
	"queryorch/internal/orcherr"
)

// Result is the outcome of the bounded repair loop.
type Result struct {
	SQL        string
	Succeeded  bool
	Attempts   int
	Confidence float64
	Hints      []Hint
}

// Run executes spec §4.9's bounded repair loop, re-entering the
// generator only when normalization and autocorrect alone cannot fix
// the previous failure. promptBase is the original, unchanged prompt
// (schema + contract + question); failingSQL/failingErr is the
// candidate and error that triggered repair.
func Run(
	ctx context.Context,
	client *genclient.Client,
	db adapter.DBAdapter,
	promptBase string,
	failingSQL string,
	failingErr string,
	edges []catalog.FKEdge,
	packet *catalog.SchemaContextPacket,
	cfg config.RepairConfig,
	explainTimeout time.Duration,
	deadlineSlack time.Duration,
) (Result, error) {
	class := Classify(failingErr)
	if class.Fatal() {
		return Result{SQL: failingSQL}, orcherr.New(orcherr.KindValidationBlocked, "error is not repairable: "+failingErr, nil)
	}

	sql := failingSQL
	errMessage := failingErr
	confidence := 1.0
	var lastHints []Hint

	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if evaluate.DeadlineWithinSlack(ctx, deadlineSlack) {
			return Result{SQL: sql, Attempts: attempt - 1, Confidence: confidence, Hints: lastHints},
				orcherr.New(orcherr.KindRepairExhausted, "repair loop exited early: caller deadline within slack", nil)
		}

		confidence -= cfg.ConfidencePenalty

		normalized := Normalize(sql)

		var hints []Hint
		corrected := normalized
		if undef, ok := ParseUndefinedColumnError(errMessage); ok {
			if fixed, h, ok := tryAutocorrect(normalized, undef, edges, packet, cfg.AutocorrectConfidence); ok {
				corrected = fixed
			} else {
				hints = append(hints, h)
			}
		}
		lastHints = hints

		if class == ClassTimeout {
			// Timeout errors are retried as-is; normalization still
			// applies but no hint/generator round-trip is needed.
			res := evaluate.RunExplain(ctx, db, corrected, explainTimeout)
			if res.Outcome == evaluate.ExplainOK {
				return Result{SQL: corrected, Succeeded: true, Attempts: attempt, Confidence: confidence, Hints: hints}, nil
			}
			sql = corrected
			errMessage = explainErrMessage(res)
			class = Classify(errMessage)
			if class.Fatal() {
				return Result{SQL: sql, Attempts: attempt}, orcherr.New(orcherr.KindValidationBlocked, errMessage, nil)
			}
			continue
		}

		res := evaluate.RunExplain(ctx, db, corrected, explainTimeout)
		if res.Outcome == evaluate.ExplainOK {
			return Result{SQL: corrected, Succeeded: true, Attempts: attempt, Confidence: confidence, Hints: hints}, nil
		}

		delta := BuildDeltaPrompt(sql, string(res.Outcome), explainErrMessage(res), hints)
		repaired, err := client.Repair(ctx, promptBase, delta, 0.2)
		if err != nil {
			return Result{SQL: sql, Attempts: attempt, Hints: hints}, err
		}

		sql = repaired
		errMessage = explainErrMessage(res)
		class = Classify(errMessage)
		if class.Fatal() {
			return Result{SQL: sql, Attempts: attempt, Hints: hints}, orcherr.New(orcherr.KindValidationBlocked, errMessage, nil)
		}
	}

	return Result{SQL: sql, Attempts: maxAttempts, Confidence: confidence, Hints: lastHints}, orcherr.New(orcherr.KindRepairExhausted, "repair loop exhausted max_attempts without a valid candidate", nil)
}

func tryAutocorrect(sql string, undef UndefinedColumnError, edges []catalog.FKEdge, packet *catalog.SchemaContextPacket, threshold float64) (string, Hint, bool) {
	table := undef.Alias
	if table != "" {
		if resolved, ok := ResolveAlias(sql, undef.Alias); ok {
			table = resolved
		}
	}

	if table != "" {
		if desc, ok := packet.Descriptor(table); ok {
			if cand, ok := FindColumnCandidate(desc, undef.Column, threshold); ok {
				return InlineReplace(sql, undef.Alias, undef.Column, cand.Column), Hint{}, true
			}
		}
		return sql, BuildHint(table, undef.Column, edges, packet, threshold), false
	}

	return sql, Hint{Kind: HintPhantomColumn, Message: "column " + undef.Column + " could not be resolved to any table in scope"}, false
}

func explainErrMessage(res evaluate.ExplainResult) string {
	if res.Err != nil {
		return res.Err.Error()
	}
	return string(res.Outcome)
}
