// Package fault defines the tagged error taxonomy used across the portal
// core. Raw document store errors are classified exactly once, at the
// boundary where they are first observed; internal logic discriminates on
// the resulting kind and never inspects raw error shapes again.
package fault

import (
	"errors"
	"fmt"
)

// Kind tags an error with its handling class.
type Kind string

const (
	// KindTransient covers network blips and momentary store
	// unavailability. Transient errors are retried and never surfaced to
	// the user unless retries exhaust.
	KindTransient Kind = "transient"

	// KindPermissionDenied covers store-level permission failures. Whether
	// a denial is expected (mid-sign-out race, rule propagation delay) is
	// carried separately via Expected.
	KindPermissionDenied Kind = "permission_denied"

	// KindValidation covers malformed mutation input. Never retried;
	// surfaced immediately to the initiating action.
	KindValidation Kind = "validation"

	// KindNotFound covers reads of documents that do not exist.
	KindNotFound Kind = "not_found"

	// KindUnknown is everything else. Logged with full context and
	// surfaced as a generic failure; never crashes the session.
	KindUnknown Kind = "unknown"
)

// ErrAccessDenied is the one workflow-fatal condition: the principal has no
// path to membership in the requested organization.
var ErrAccessDenied = errors.New("access denied for organization")

// Error is a classified error. Op names the operation that observed the
// failure (e.g. "docstore.write", "guard.ensure").
type Error struct {
	Kind Kind
	Op   string
	Err  error

	// Expected marks a permission denial that is an anticipated transient
	// state (e.g. listeners racing a sign-out) and must be suppressed
	// rather than surfaced.
	Expected bool
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Transient tags err as retryable.
func Transient(op string, err error) *Error {
	return &Error{Kind: KindTransient, Op: op, Err: err}
}

// PermissionDenied tags err as an unexpected permission failure.
func PermissionDenied(op string, err error) *Error {
	return &Error{Kind: KindPermissionDenied, Op: op, Err: err}
}

// ExpectedDenial tags err as a permission failure in an anticipated window
// (sign-out in flight). Callers suppress these.
func ExpectedDenial(op string, err error) *Error {
	return &Error{Kind: KindPermissionDenied, Op: op, Err: err, Expected: true}
}

// Validation tags err as malformed input.
func Validation(op string, err error) *Error {
	return &Error{Kind: KindValidation, Op: op, Err: err}
}

// NotFound tags err as a missing-document condition.
func NotFound(op string, err error) *Error {
	return &Error{Kind: KindNotFound, Op: op, Err: err}
}

// Unknown tags err as unclassified.
func Unknown(op string, err error) *Error {
	return &Error{Kind: KindUnknown, Op: op, Err: err}
}

// KindOf returns the kind of err, or KindUnknown if err carries no tag.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}

// IsTransient reports whether err is tagged transient.
func IsTransient(err error) bool {
	return KindOf(err) == KindTransient
}

// IsPermissionDenied reports whether err is tagged as a permission failure.
func IsPermissionDenied(err error) bool {
	return KindOf(err) == KindPermissionDenied
}

// IsExpectedDenial reports whether err is a permission failure in an
// anticipated window.
func IsExpectedDenial(err error) bool {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind == KindPermissionDenied && fe.Expected
	}
	return false
}

// IsValidation reports whether err is tagged as malformed input.
func IsValidation(err error) bool {
	return KindOf(err) == KindValidation
}

// IsNotFound reports whether err is tagged as a missing document.
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}

// Retryable reports whether err is worth retrying. Permission and
// validation failures are excluded; retrying those wastes time and produces
// a worse experience than failing fast.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindTransient:
		return true
	case KindPermissionDenied, KindValidation, KindNotFound:
		return false
	default:
		return false
	}
}
