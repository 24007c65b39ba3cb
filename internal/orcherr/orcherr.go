// Package orcherr defines the typed error taxonomy for the query
// orchestration core (see spec §7). Callers use errors.Is against the
// sentinel Kind values to decide retry/surface policy.
package orcherr

import "errors"

// Kind identifies a class of failure in the orchestration pipeline.
type Kind string

const (
	KindCatalogUnavailable  Kind = "CatalogUnavailable"
	KindEmbeddingUnavailable Kind = "EmbeddingUnavailable"
	KindRetrievalFailed     Kind = "RetrievalFailed"
	KindGeneratorUnavailable Kind = "GeneratorUnavailable"
	KindNoCandidates        Kind = "NoCandidates"
	KindExplainAllFailed    Kind = "ExplainAllFailed"
	KindRepairExhausted     Kind = "RepairExhausted"
	KindExecutionTimeout    Kind = "ExecutionTimeout"
	KindExecutionFailed     Kind = "ExecutionFailed"
	KindInfrastructure      Kind = "InfrastructureError"
	KindValidationBlocked   Kind = "ValidationBlocked"
)

// Retryable reports whether the kind's propagation policy permits an
// automatic retry of the same operation (never a new query attempt).
func (k Kind) Retryable() bool {
	switch k {
	case KindEmbeddingUnavailable, KindExecutionTimeout:
		return true
	default:
		return false
	}
}

// Fatal reports whether the kind must be surfaced to the caller with no
// further repair or retry inside the current query.
func (k Kind) Fatal() bool {
	switch k {
	case KindCatalogUnavailable, KindGeneratorUnavailable, KindInfrastructure, KindValidationBlocked:
		return true
	default:
		return false
	}
}

// Error is the structured error returned to the caller of answer(): kind,
// human message, and whatever trace was built before failure.
type Error struct {
	Kind    Kind
	Message string
	Trace   any // *executor.Trace if a caller attaches one (the orchestrator returns its trace on Answer and leaves this nil); kept untyped to avoid an import cycle
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// Is makes errors.Is(err, orcherr.Sentinel(kind)) match any Error of the
// same Kind (see Sentinel below).
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return other.Kind == e.Kind
	}
	return false
}

// New builds a structured Error of the given kind.
func New(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Sentinel returns a zero-value Error of the given kind, usable as the
// target of errors.Is(err, orcherr.Sentinel(orcherr.KindNoCandidates)).
func Sentinel(kind Kind) *Error {
	return &Error{Kind: kind}
}
