// Package crackerr defines the error taxonomy used across the cracking
// worker: six kinds of error a worker can encounter, and how each
// propagates.
package crackerr

import (
	"errors"
	"fmt"
)

// Kind classifies an error by how the worker node state machine must
// react to it.
type Kind int

const (
	// KindConfiguration covers usage errors, invalid port/threads, and
	// an alphabet length that isn't exactly 79. Reported to stderr,
	// exit code 1.
	KindConfiguration Kind = iota
	// KindBinding covers a missing crypt function. Fatal: the whole
	// worker process exits non-zero after cleanup.
	KindBinding
	// KindTransport covers socket errors, malformed frames at the byte
	// level, and peer close. A transport error that reaches the FSM
	// moves it to ERROR in every state, before or after the handshake;
	// there is no retry. Peer close in READ_READY is not returned as an
	// error: the FSM goes to END with exit code 0.
	KindTransport
	// KindProtocol covers an unexpected message in the current state or
	// a malformed body. In READ_READY and RUN_ASSIGN such messages are
	// logged at info level and ignored; in ACCEPT_BACK a wrong or
	// malformed first message is returned as this kind and is fatal.
	KindProtocol
	// KindVerification covers an APR1 child timeout or crypt returning
	// null. Treated as "no match"; done_map still advances.
	KindVerification
	// KindInvariant covers a count that exceeds the addressable
	// per-index bitmap, or a negative index. Fatal precondition error;
	// run_slice refuses to start.
	KindInvariant
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindBinding:
		return "binding"
	case KindTransport:
		return "transport"
	case KindProtocol:
		return "protocol"
	case KindVerification:
		return "verification"
	case KindInvariant:
		return "invariant"
	default:
		return "unknown"
	}
}

// Error is a taxonomy-tagged error. Kind is carried for callers and
// logging; the FSM does not branch on it: any error returned to its
// main loop moves it to ERROR and then END with exit code 1.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a Kind-tagged error from a format string, in the style of
// fmt.Errorf.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// Wrap tags an existing error with a Kind, preserving it for
// errors.Unwrap/errors.Is chains.
func Wrap(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// As reports whether err is (or wraps) a *Error, returning it if so.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
