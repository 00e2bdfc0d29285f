// Package streamerr declares the error taxonomy shared by the streaming
// codec, the pipelines, and the chunk-seal index.
package streamerr

import "fmt"

// Kind identifies a class of failure, independent of the Go type that
// carries it. Callers that need to branch on failure class should compare
// against these constants with errors.Is, not with type assertions.
type Kind string

const (
	KindInvalidArgument      Kind = "invalid_argument"
	KindUnsupportedVersion   Kind = "unsupported_version"
	KindMalformedHeader      Kind = "malformed_header"
	KindNotEnoughData        Kind = "not_enough_data"
	KindKeyNotFound          Kind = "key_not_found"
	KindDecryptionFailed     Kind = "decryption_failed"
	KindStreamAlreadyClosed  Kind = "stream_already_closed"
	KindBrokenStream         Kind = "broken_stream"
	KindChunkIndexOutOfRange Kind = "chunk_index_out_of_range"
	KindChunkNotFound        Kind = "chunk_not_found"
	KindInvalidSeal          Kind = "invalid_seal"
)

// Error is the concrete error type returned by this module. It carries a
// Kind so callers can branch with errors.Is/As, and an optional Cause for
// BrokenStream, which must wrap the error that originally latched the
// pipeline.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is lets errors.Is(err, streamerr.New(kind, "")) match on Kind alone,
// ignoring Message and Cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New builds a plain Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds a BrokenStream-shaped Error that carries cause as the
// original latched failure, except when kind itself is more specific and
// the caller just wants the underlying error attached.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Broken wraps cause as a BrokenStream error, the terminal state every
// pipeline object enters once any operation has failed.
func Broken(cause error) *Error {
	return &Error{Kind: KindBrokenStream, Message: "pipeline previously failed", Cause: cause}
}

// IsKind reports whether err (or something it wraps) is a *Error of kind.
func IsKind(err error, kind Kind) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			if e.Kind == kind {
				return true
			}
			err = e.Cause
			continue
		}
		return false
	}
	return false
}
