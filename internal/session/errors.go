// ABOUTME: Error taxonomy for session and chat operations
// ABOUTME: Stable machine-readable kinds surfaced on HTTP and SSE boundaries

package session

import (
	"errors"
	"fmt"
)

// Kind is a stable machine-readable error category.
type Kind string

const (
	// KindNotFound: conversation, user, or bot configuration missing.
	KindNotFound Kind = "not_found"
	// KindSessionCreation: remote session create/start/end failed or
	// returned no identifier.
	KindSessionCreation Kind = "session_creation"
	// KindUpstream: remote chat stream failed mid-turn.
	KindUpstream Kind = "upstream"
	// KindParse: remote response could not be decoded at all.
	KindParse Kind = "parse"
	// KindPersistence: append/update to the conversation store failed.
	KindPersistence Kind = "persistence"
)

// Error pairs a Kind with a human-readable message. The wrapped cause is
// preserved for errors.Is/As matching.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// NewError builds a taxonomy error wrapping cause (which may be nil).
func NewError(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// KindOf extracts the Kind from err, or KindUpstream for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUpstream
}
