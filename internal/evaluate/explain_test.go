package evaluate

import (
	"context"
	"errors"
	"testing"
	"time"

	"queryorch/internal/adapter"
)

type stubAdapter struct {
	result *adapter.QueryResult
	err    error
	delay  time.Duration
	calls  int
}

func (s *stubAdapter) Connect(ctx context.Context) error { return nil }
func (s *stubAdapter) Close() error                      { return nil }
func (s *stubAdapter) GetDatabaseType() string           { return "PostgreSQL" }
func (s *stubAdapter) GetDatabaseVersion(ctx context.Context) (string, error) {
	return "16", nil
}
func (s *stubAdapter) DryRunSQL(ctx context.Context, sql string) error { return nil }
func (s *stubAdapter) ExecuteQuery(ctx context.Context, query string) (*adapter.QueryResult, error) {
	s.calls++
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func TestRunExplain_ok(t *testing.T) {
	db := &stubAdapter{result: &adapter.QueryResult{Rows: []map[string]interface{}{{"QUERY PLAN": "[]"}}}}
	res := RunExplain(context.Background(), db, "SELECT 1", time.Second)
	if res.Outcome != ExplainOK {
		t.Fatalf("expected ExplainOK, got %v (err=%v)", res.Outcome, res.Err)
	}
}

func TestRunExplain_timeout(t *testing.T) {
	db := &stubAdapter{delay: 50 * time.Millisecond}
	res := RunExplain(context.Background(), db, "SELECT 1", 5*time.Millisecond)
	if res.Outcome != ExplainTimeout {
		t.Fatalf("expected ExplainTimeout, got %v", res.Outcome)
	}
}

func TestRunExplain_classifiesUndefinedName(t *testing.T) {
	db := &stubAdapter{err: errors.New(`column "foo" does not exist`)}
	res := RunExplain(context.Background(), db, "SELECT foo FROM orders", time.Second)
	if res.Outcome != ExplainUndefinedName {
		t.Fatalf("expected ExplainUndefinedName, got %v", res.Outcome)
	}
}

func TestDeadlineWithinSlack_noDeadlineNeverTrips(t *testing.T) {
	if DeadlineWithinSlack(context.Background(), time.Hour) {
		t.Fatalf("expected a context with no deadline never to report within-slack")
	}
}

func TestDeadlineWithinSlack_closeDeadlineTrips(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	if !DeadlineWithinSlack(ctx, time.Hour) {
		t.Fatalf("expected a near deadline to report within-slack")
	}
}

func TestDeadlineWithinSlack_farDeadlineDoesNotTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Hour)
	defer cancel()
	if DeadlineWithinSlack(ctx, 5*time.Millisecond) {
		t.Fatalf("expected a far deadline not to report within-slack")
	}
}

func TestRunExplain_classifiesSyntaxError(t *testing.T) {
	db := &stubAdapter{err: errors.New("syntax error at or near \"FORM\"")}
	res := RunExplain(context.Background(), db, "SELECT 1 FORM orders", time.Second)
	if res.Outcome != ExplainSyntaxError {
		t.Fatalf("expected ExplainSyntaxError, got %v", res.Outcome)
	}
}
