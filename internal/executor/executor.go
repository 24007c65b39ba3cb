// Package executor implements spec §4.10: running the final validated
// SQL with a statement timeout and returning rows alongside a trace
// payload. The executor is pure transport — it never mutates SQL.
// Grounded on the teacher's internal/adapter.DBAdapter execution path
// and internal/logger/multi_progress.go's phase-tracking vocabulary,
// here adapted into the trace payload instead of a stdout banner.
package executor

import (
	"context"
	"time"

	"github.com/google/uuid"

	"queryorch/internal/adapter"
	"queryorch/internal/orcherr"
)

// Result is the executor's output: the rows from the final query plus
// a trace payload for the caller (spec §4.10, §6 "{sql, rows, trace,
// confidence}").
type Result struct {
	Rows          []map[string]interface{}
	Columns       []string
	RowCount      int
	ExecutionTime time.Duration
	Trace         Trace
}

// Run executes sql against db under a statement timeout and assembles
// the trace payload from the already-built pipeline state. It never
// alters sql.
func Run(ctx context.Context, db adapter.DBAdapter, sql string, statementTimeout time.Duration, trace Trace) (Result, error) {
	runCtx := ctx
	var cancel context.CancelFunc
	if statementTimeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, statementTimeout)
		defer cancel()
	}

	start := time.Now()
	res, err := db.ExecuteQuery(runCtx, sql)
	elapsed := time.Since(start)

	trace.FinalSQL = sql
	trace.ExecutionDuration = elapsed

	if err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			return Result{Trace: trace}, orcherr.New(orcherr.KindExecutionTimeout, "statement timeout exceeded", err)
		}
		return Result{Trace: trace}, orcherr.New(orcherr.KindExecutionFailed, "execution failed", err)
	}

	return Result{
		Rows:          res.Rows,
		Columns:       res.Columns,
		RowCount:      res.RowCount,
		ExecutionTime: elapsed,
		Trace:         trace,
	}, nil
}

// NewTraceID mints an identifier for a trace payload (spec.md's
// catalog-adjacent tables use identifier pairs; query/trace IDs use
// uuid the same way the teacher's indirect google/uuid dependency is
// used elsewhere in the pack for request correlation).
func NewTraceID() string {
	return uuid.NewString()
}
