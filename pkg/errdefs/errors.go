package errdefs

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so callers can map it to a distinct exit code.
type Kind string

const (
	KindMalformedDescriptor Kind = "MalformedDescriptor"
	KindDuplicateService    Kind = "DuplicateService"
	KindUnknownReference    Kind = "UnknownReference"
	KindDependencyCycle     Kind = "DependencyCycle"
	KindPortConflict        Kind = "PortConflict"
	KindServiceUnhealthy    Kind = "ServiceUnhealthy"
	KindProcessStartFailure Kind = "ProcessStartFailure"
)

type kindError struct {
	kind  Kind
	cause error
}

func (e *kindError) Error() string {
	return fmt.Sprintf("%s: %s", e.kind, e.cause)
}

func (e *kindError) Unwrap() error { return e.cause }

// New wraps cause with a failure kind. Formatting is deferred to the caller.
func New(kind Kind, cause error) error {
	return &kindError{kind: kind, cause: cause}
}

// Newf is New with fmt.Errorf semantics for the cause.
func Newf(kind Kind, format string, args ...any) error {
	return &kindError{kind: kind, cause: fmt.Errorf(format, args...)}
}

// KindOf reports the classification of err, or "" when err carries none.
func KindOf(err error) Kind {
	var ke *kindError
	if errors.As(err, &ke) {
		return ke.kind
	}
	return ""
}

// IsKind reports whether err is classified as kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

var exitCodes = map[Kind]int{
	KindMalformedDescriptor: 10,
	KindDuplicateService:    11,
	KindUnknownReference:    12,
	KindDependencyCycle:     13,
	KindPortConflict:        14,
	KindServiceUnhealthy:    15,
	KindProcessStartFailure: 16,
}

// ExitCode maps err to the process exit code for its kind, 1 for
// unclassified errors and 0 for nil.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if code, ok := exitCodes[KindOf(err)]; ok {
		return code
	}
	return 1
}
