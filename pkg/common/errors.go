//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package common provides shared types and utilities used across the
// harness packages.
//
// # Error Handling
//
// The [Error] type classifies every failure the harness can report.  Some
// kinds are harness failures (a log line that cannot be decoded, audit
// events that do not match their expectations, an earlier audit failure
// that makes later assertions unreliable); others are outcomes a scenario
// asserts for (a forbidden response, an unknown column).  Callers tell them
// apart with [IsKind].
package common

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind is the classification of an [Error].
type Kind int

// Error kinds.
const (
	// KindUnexpected is any failure that no other kind describes.
	KindUnexpected Kind = iota
	// KindParse is an audit log line that does not have the expected structure.
	// It is fatal and never retried.
	KindParse
	// KindMatch is a mismatch between expectations and audit events that
	// persisted until the retry budget was spent.
	KindMatch
	// KindPrecondition is raised when an earlier audit assertion failed and the
	// log can no longer be trusted for offset based reads.
	KindPrecondition
	// KindForbidden is an access-denied response from the system under test.
	KindForbidden
	// KindUnknownColumn is a query rejected because a column is not visible.
	KindUnknownColumn
	// KindMismatch is a result set that differs from the administrator baseline.
	KindMismatch
)

var kindNames = map[Kind]string{
	KindUnexpected:    "unexpected",
	KindParse:         "parse",
	KindMatch:         "match",
	KindPrecondition:  "precondition",
	KindForbidden:     "forbidden",
	KindUnknownColumn: "unknown-column",
	KindMismatch:      "mismatch",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is a classified harness error.
type Error struct {
	// Kind classifies the failure.
	Kind Kind
	// Msg is a human-readable description, including any diagnostics.
	Msg string
	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new [Error] with the specified kind and message.
func NewError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Errorf creates a new [Error] with a formatted message.
func Errorf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// WrapError classifies an existing error.
func WrapError(kind Kind, cause error, msg string) *Error {
	return &Error{Kind: kind, Msg: msg, Cause: cause}
}

// IsKind reports whether any error in err's chain is an [Error] of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf returns the kind of the first [Error] in err's chain, or
// [KindUnexpected] when there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnexpected
}
