// Package qerr defines the error carrier surfaced by every stage of the
// query pipeline.  All user-visible failures are a single tagged error
// with a kind, a message, and an optional cause.
package qerr

import (
	"errors"
	"fmt"
)

// Kind identifies the failure category of an Error.
type Kind int

// Failure kinds, in rough pipeline order.
const (
	Unknown Kind = iota
	InvalidRequest
	Rejected
	TransportError
	Timeout
	UnsupportedProvenance
	BadColumnSize
	DuplicateSource
	BadOrdering
	InconsistentType
	DuplicateCell
	TableNotRepresentable
	Cancelled
)

var kindNames = map[Kind]string{
	Unknown:               "Unknown",
	InvalidRequest:        "InvalidRequest",
	Rejected:              "Rejected",
	TransportError:        "TransportError",
	Timeout:               "Timeout",
	UnsupportedProvenance: "UnsupportedProvenance",
	BadColumnSize:         "BadColumnSize",
	DuplicateSource:       "DuplicateSource",
	BadOrdering:           "BadOrdering",
	InconsistentType:      "InconsistentType",
	DuplicateCell:         "DuplicateCell",
	TableNotRepresentable: "TableNotRepresentable",
	Cancelled:             "Cancelled",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error carries a failure kind, a human-readable message and the
// underlying cause, if any.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the cause for errors.Is / errors.As chains.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates an Error with no cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an Error with a formatted message and no cause.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error carrying cause.  A nil cause is allowed.
func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Wrapf creates an Error with a formatted message carrying cause.
func Wrapf(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// KindOf returns the kind of the first *Error in err's chain, or Unknown
// when the chain contains none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// Is reports whether err's chain contains an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
