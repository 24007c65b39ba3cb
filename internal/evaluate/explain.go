package evaluate

import (
	"context"
	"errors"
	"strings"
	"time"

	"queryorch/internal/adapter"
)

// ExplainOutcome classifies the EXPLAIN call's result (spec §4.8
// "Classify outcome as ok/timeout/sqlstate-class").
type ExplainOutcome string

const (
	ExplainOK            ExplainOutcome = "ok"
	ExplainTimeout       ExplainOutcome = "timeout"
	ExplainSyntaxError   ExplainOutcome = "syntax_error"
	ExplainPermission    ExplainOutcome = "permission_error"
	ExplainUndefinedName ExplainOutcome = "undefined_name"
	ExplainOther         ExplainOutcome = "other_error"
	// ExplainUnknown marks a candidate that was never submitted because the
	// caller's deadline was within the evaluator's slack budget (spec §5
	// cancellation: "unevaluated candidates get EXPLAIN=unknown with the
	// penalty"). It carries the same non-OK scoring penalty as a real
	// failure, without having cost a database round trip.
	ExplainUnknown ExplainOutcome = "unknown"
)

// ExplainResult is the outcome of one candidate's EXPLAIN submission.
type ExplainResult struct {
	Outcome ExplainOutcome
	PlanRaw string
	Err     error
}

// RunExplain submits "EXPLAIN (FORMAT JSON) <sql>" through the adapter
// with a per-candidate timeout, grounded on the teacher's
// DBAdapter.ExecuteQuery / DryRunSQL pair (internal/adapter/adapter.go).
func RunExplain(ctx context.Context, db adapter.DBAdapter, sql string, timeout time.Duration) ExplainResult {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res, err := db.ExecuteQuery(ctx, "EXPLAIN (FORMAT JSON) "+sql)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ExplainResult{Outcome: ExplainTimeout, Err: err}
		}
		return ExplainResult{Outcome: classifyError(err), Err: err}
	}

	var plan string
	if len(res.Rows) > 0 {
		for _, v := range res.Rows[0] {
			if s, ok := v.(string); ok {
				plan = s
				break
			}
		}
	}
	return ExplainResult{Outcome: ExplainOK, PlanRaw: plan}
}

// DeadlineWithinSlack reports whether ctx carries a deadline that leaves
// less than slack remaining. The evaluator and the repair loop both consult
// this before spending a round trip on EXPLAIN (spec §5 cancellation: "when
// the deadline is within a small slack, the evaluator skips remaining
// EXPLAIN calls... and the repair loop exits early"). A context with no
// deadline never short-circuits.
func DeadlineWithinSlack(ctx context.Context, slack time.Duration) bool {
	if slack <= 0 {
		return false
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		return false
	}
	return time.Until(deadline) < slack
}

func classifyError(err error) ExplainOutcome {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "syntax error"):
		return ExplainSyntaxError
	case strings.Contains(msg, "permission denied") || strings.Contains(msg, "insufficient_privilege"):
		return ExplainPermission
	case strings.Contains(msg, "does not exist") || strings.Contains(msg, "undefined"):
		return ExplainUndefinedName
	default:
		return ExplainOther
	}
}
