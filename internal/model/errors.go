package model

import (
	"errors"
	"fmt"
)

// ErrorKind is a stable category for programmatic error handling.
// Callers should branch on Kind/Code rather than matching error strings.
type ErrorKind string

const (
	KindValidation   ErrorKind = "validation"   // Malformed input, rejected before any mutation
	KindPrecondition ErrorKind = "precondition" // Wrong state for the transition, safe to retry later
	KindNotFound     ErrorKind = "not_found"
	KindConflict     ErrorKind = "conflict"   // Concurrent writer won, re-read and retry
	KindDependency   ErrorKind = "dependency" // Follow-up write failed after the primary one committed
	KindInternal     ErrorKind = "internal"
)

// Error is the engine's structured error type.
//
// Code is a stable identifier (e.g. "self_vote", "not_ready"). Message is for humans.
// Two errors match under errors.Is when their codes are equal, so a sentinel
// enriched through WithMessage or Wrap still matches the bare sentinel.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is matches on Code
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// WithMessage returns a copy carrying a more specific message
func (e *Error) WithMessage(msg string) *Error {
	out := *e
	out.Message = msg
	return &out
}

// Wrap returns a copy carrying cause
func (e *Error) Wrap(cause error) *Error {
	out := *e
	out.Cause = cause
	return &out
}

func newError(kind ErrorKind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

// Validation errors
var (
	ErrInvalidOutcome   = newError(KindValidation, "invalid_outcome", "invalid outcome")
	ErrInvalidGrade     = newError(KindValidation, "invalid_grade", "invalid evidence grade")
	ErrInvalidDirection = newError(KindValidation, "invalid_direction", "invalid vote direction")
	ErrInvalidEvidence  = newError(KindValidation, "invalid_evidence", "invalid evidence item")
	ErrInvalidIdentity  = newError(KindValidation, "invalid_identity", "invalid identity")
	ErrInvalidClaim     = newError(KindValidation, "invalid_claim", "invalid claim")
)

// Precondition errors
var (
	ErrAlreadyResolved        = newError(KindPrecondition, "already_resolved", "claim already resolved")
	ErrSelfVote               = newError(KindPrecondition, "self_vote", "authors cannot vote on their own claim")
	ErrInsufficientReputation = newError(KindPrecondition, "insufficient_reputation", "insufficient reputation to vote")
	ErrClaimNotContestable    = newError(KindPrecondition, "claim_not_contestable", "claim is not open for contest votes")
	ErrNotResolvedYet         = newError(KindPrecondition, "not_resolved_yet", "claim has not been resolved")
	ErrNotReady               = newError(KindPrecondition, "not_ready", "claim is not ready to finalize")
	ErrNotOverruled           = newError(KindPrecondition, "not_overruled", "claim was not overruled")
	ErrRateLimited            = newError(KindPrecondition, "rate_limited", "too many votes, slow down")
)

// Lookup, concurrency and dependency errors
var (
	ErrClaimNotFound   = newError(KindNotFound, "claim_not_found", "claim not found")
	ErrDuplicateClaim  = newError(KindConflict, "duplicate_claim", "claim already exists")
	ErrVersionConflict = newError(KindConflict, "version_conflict", "concurrent update, retry")
	ErrPenaltyFailed   = newError(KindDependency, "penalty_failed", "overrule penalty could not be applied")
)

// IsKind reports whether err is (or wraps) an *Error with the given Kind
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// CodeOf returns the stable code of a structured error, or "" if unknown
func CodeOf(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.Code
}

// Errorf builds a sentinel copy with a formatted message
func Errorf(sentinel *Error, format string, args ...any) *Error {
	return sentinel.WithMessage(fmt.Sprintf(format, args...))
}
