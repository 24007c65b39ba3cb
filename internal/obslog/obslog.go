// Package obslog wraps zap with the phase/task vocabulary the teacher's
// stdout progress printer used, so callers keep a familiar shape
// (SetPhase / StartTask / CompleteTask) while emitting structured logs
// instead of banners.
package obslog

import (
	"time"

	"go.uber.org/zap"
)

// Logger is a structured, phase-aware logger for one query's lifecycle.
type Logger struct {
	z         *zap.SugaredLogger
	phase     string
	taskStart map[string]time.Time
}

// New builds a production zap logger. Callers that want pretty console
// output during local development can swap in zap.NewDevelopment.
func New() (*Logger, error) {
	z, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}
	return &Logger{z: z.Sugar(), taskStart: make(map[string]time.Time)}, nil
}

// NewNop returns a logger that discards everything, for tests.
func NewNop() *Logger {
	return &Logger{z: zap.NewNop().Sugar(), taskStart: make(map[string]time.Time)}
}

// With returns a child logger carrying additional structured fields.
func (l *Logger) With(args ...interface{}) *Logger {
	return &Logger{z: l.z.With(args...), phase: l.phase, taskStart: l.taskStart}
}

// SetPhase records the current pipeline phase (schema_linking,
// sql_generation, repair, ...) as a field on every subsequent log line.
func (l *Logger) SetPhase(phase string) {
	l.phase = phase
	l.z.Infow("phase started", "phase", phase)
}

// StartTask marks the beginning of a named unit of work within the
// current phase.
func (l *Logger) StartTask(task string) {
	l.taskStart[task] = time.Now()
	l.z.Debugw("task started", "phase", l.phase, "task", task)
}

// CompleteTask marks a named task as finished and logs its duration.
func (l *Logger) CompleteTask(task string) {
	dur := time.Since(l.taskStart[task])
	l.z.Infow("task completed", "phase", l.phase, "task", task, "duration_ms", dur.Milliseconds())
}

// FailTask marks a named task as failed.
func (l *Logger) FailTask(task string, err error) {
	dur := time.Since(l.taskStart[task])
	l.z.Errorw("task failed", "phase", l.phase, "task", task, "duration_ms", dur.Milliseconds(), "error", err)
}

// Infow, Warnw, Errorw, Debugw pass through to the underlying sugared
// logger for ad hoc structured lines.
func (l *Logger) Infow(msg string, kv ...interface{})  { l.z.Infow(msg, kv...) }
func (l *Logger) Warnw(msg string, kv ...interface{})  { l.z.Warnw(msg, kv...) }
func (l *Logger) Errorw(msg string, kv ...interface{}) { l.z.Errorw(msg, kv...) }
func (l *Logger) Debugw(msg string, kv ...interface{}) { l.z.Debugw(msg, kv...) }

// Sync flushes any buffered log entries; call before process exit.
func (l *Logger) Sync() error { return l.z.Sync() }
