package executor

import "time"

// TaskState mirrors the teacher's internal/logger/multi_progress.go
// MultiTask state machine, repurposed here as the state of one trace
// step instead of a terminal progress row.
type TaskState int

const (
	TaskPending TaskState = iota
	TaskRunning
	TaskDone
	TaskFailed
)

// TraceStep records one pipeline phase's timing and outcome, grounded on
// the teacher's MultiTask{Name, State, Phase, StartTime, EndTime, Error,
// Detail} shape.
type TraceStep struct {
	Name      string
	State     TaskState
	StartTime time.Time
	EndTime   time.Time
	Error     string
	Detail    string
}

// Duration returns how long the step ran, zero if it never completed.
func (s TraceStep) Duration() time.Duration {
	if s.EndTime.IsZero() {
		return 0
	}
	return s.EndTime.Sub(s.StartTime)
}

// CandidateScore is the trace-visible summary of one evaluated SQL
// candidate (spec §4.10 "candidates and their scores").
type CandidateScore struct {
	SQL           string
	FinalScore    float64
	ExplainOK     bool
	LintErrors    int
	LintWarnings  int
	GenerationIdx int
}

// RepairAttemptTrace summarizes one repair-loop attempt (spec §4.10
// "repair attempts").
type RepairAttemptTrace struct {
	Attempt    int
	SQL        string
	Succeeded  bool
	Confidence float64
	HintKinds  []string
}

// TableTrace records a schema-context-packet table alongside its fused
// retrieval score (spec §4.10 "selected tables, fused scores").
type TableTrace struct {
	Table  string
	Source string
	Score  float64
}

// Trace is the caller-visible audit payload described by spec §4.10 /
// §6's `{sql, rows, trace, confidence}`: selected tables, fused scores,
// candidates and their scores, repair attempts, and the final SQL.
type Trace struct {
	ID                string
	Question          string
	SelectedTables     []TableTrace
	Candidates        []CandidateScore
	RepairAttempts    []RepairAttemptTrace
	FinalSQL          string
	ExecutionDuration time.Duration
	Steps             []TraceStep
	MermaidERDiagram  string // not set by the orchestrator; empty unless a caller fills it (e.g. via catalog.RenderMermaidER)
}

// NewTrace starts a trace payload for one query.
func NewTrace(question string) Trace {
	return Trace{ID: NewTraceID(), Question: question}
}

// StartStep appends a running step and returns its index for later
// completion via CompleteStep/FailStep — mirrors the teacher's
// StartTask/CompleteTask pair, reimplemented over a plain slice instead
// of a live terminal redraw.
func (t *Trace) StartStep(name, detail string) int {
	t.Steps = append(t.Steps, TraceStep{
		Name:      name,
		State:     TaskRunning,
		StartTime: time.Now(),
		Detail:    detail,
	})
	return len(t.Steps) - 1
}

// CompleteStep marks the step at idx as done.
func (t *Trace) CompleteStep(idx int, detail string) {
	if idx < 0 || idx >= len(t.Steps) {
		return
	}
	t.Steps[idx].State = TaskDone
	t.Steps[idx].EndTime = time.Now()
	if detail != "" {
		t.Steps[idx].Detail = detail
	}
}

// FailStep marks the step at idx as failed with the given error text.
func (t *Trace) FailStep(idx int, errMessage string) {
	if idx < 0 || idx >= len(t.Steps) {
		return
	}
	t.Steps[idx].State = TaskFailed
	t.Steps[idx].EndTime = time.Now()
	t.Steps[idx].Error = errMessage
}
