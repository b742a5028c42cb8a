package profiles

import (
	"errors"
	"fmt"
)

// Store sentinels. Implementations map their driver errors onto these.
var (
	// ErrConflict is returned by Insert when a profile with the same ID exists.
	ErrConflict = errors.New("profile already exists")
	// ErrUsernameTaken is returned when another profile holds the username.
	ErrUsernameTaken = errors.New("username already taken")
	// ErrNotFound is returned when no profile matches.
	ErrNotFound = errors.New("profile not found")
)

// Kind classifies a failure for callers that branch on outcome.
type Kind string

const (
	KindValidation        Kind = "validation"
	KindIdentityCreation  Kind = "identity_creation"
	KindProfileConflict   Kind = "profile_conflict"
	KindProfileNotFound   Kind = "profile_not_found"
	KindProfileAccess     Kind = "profile_access"
	KindInvalidCredential Kind = "invalid_credential"
	KindUnauthenticated   Kind = "unauthenticated"
	KindIdentityAccess    Kind = "identity_access"
)

// Error is a classified failure from a reconciler or update operation.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind carried by err, or KindProfileAccess for any
// unclassified non-nil error.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindProfileAccess
}

func validationError(op, format string, args ...any) error {
	return &Error{Kind: KindValidation, Op: op, Err: fmt.Errorf(format, args...)}
}

// classify maps a store error onto a Kind for op.
func classify(op string, err error) error {
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return &Error{Kind: KindProfileNotFound, Op: op, Err: err}
	case errors.Is(err, ErrUsernameTaken):
		return &Error{Kind: KindValidation, Op: op, Err: err}
	case errors.Is(err, ErrConflict):
		return &Error{Kind: KindProfileConflict, Op: op, Err: err}
	default:
		return &Error{Kind: KindProfileAccess, Op: op, Err: err}
	}
}
