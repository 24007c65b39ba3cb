package repair

import "strings"

// ErrorClass is the repair loop's decision about how to treat a failed
// execution/EXPLAIN attempt (spec §4.9 "Error classification").
type ErrorClass string

const (
	// ClassInfrastructure covers connection refused, resource exhaustion
	// and similar — never retried.
	ClassInfrastructure ErrorClass = "infrastructure"
	// ClassValidationBlocked covers permission/SQLSTATE classes that a
	// retry cannot fix — never retried.
	ClassValidationBlocked ErrorClass = "validation_blocked"
	// ClassTimeout may be retried as-is.
	ClassTimeout ErrorClass = "timeout"
	// ClassGenericSQL triggers the repair loop proper.
	ClassGenericSQL ErrorClass = "generic_sql"
)

var infrastructureMarkers = []string{
	"connection refused", "connection reset", "too many connections",
	"out of memory", "disk full", "no space left", "connection timed out",
	"broken pipe", "i/o timeout",
}

var validationBlockedMarkers = []string{
	"permission denied", "insufficient_privilege", "must be owner",
	"access denied", "read-only transaction",
}

var timeoutMarkers = []string{
	"statement timeout", "context deadline exceeded", "canceling statement due to statement timeout",
	"query execution was interrupted",
}

// Classify maps a raw error message into one of the repair loop's four
// classes (spec §4.9 "Error classification").
func Classify(errMessage string) ErrorClass {
	msg := strings.ToLower(errMessage)
	for _, m := range infrastructureMarkers {
		if strings.Contains(msg, m) {
			return ClassInfrastructure
		}
	}
	for _, m := range validationBlockedMarkers {
		if strings.Contains(msg, m) {
			return ClassValidationBlocked
		}
	}
	for _, m := range timeoutMarkers {
		if strings.Contains(msg, m) {
			return ClassTimeout
		}
	}
	return ClassGenericSQL
}

// Repairable reports whether the repair loop (normalization, autocorrect,
// hints, delta prompt) should run for this class. Infrastructure and
// validation-blocked errors are fatal for the current query; Run retries
// timeout errors after normalization and autocorrect only, with no delta
// prompt or generator call; generic SQL errors are the class the repair
// loop exists for.
func (c ErrorClass) Repairable() bool {
	return c == ClassGenericSQL
}

// Fatal reports whether the current query must abort immediately with
// no further retry or repair.
func (c ErrorClass) Fatal() bool {
	return c == ClassInfrastructure || c == ClassValidationBlocked
}
