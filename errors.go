package phantomstate

import (
	"errors"
	"fmt"

	"github.com/barnstorm/phantomstate/embedding"
)

// Kind identifies a category of engine failure. Kinds are stable strings so
// that a tool-server adapter fronting the engine (out of scope here, see
// spec §6) can serialize them directly into its {kind, message} error
// objects without a translation table.
type Kind string

const (
	KindUnknownMoment      Kind = "UnknownMoment"
	KindUnknownTake        Kind = "UnknownTake"
	KindUnknownCharacter   Kind = "UnknownCharacter"
	KindUnknownFact        Kind = "UnknownFact"
	KindDuplicateId        Kind = "DuplicateId"
	KindDuplicateSequence  Kind = "DuplicateSequence"
	KindInvalidEnum        Kind = "InvalidEnum"
	KindDimensionMismatch  Kind = "DimensionMismatch"
	KindEmbeddingUnavailable Kind = "EmbeddingUnavailable"
	KindStorageError       Kind = "StorageError"
	KindCorruptRecord      Kind = "CorruptRecord"
)

// Error is the single error type the engine returns. Callers distinguish
// failure categories with errors.Is against the sentinel values below, or by
// inspecting Kind directly for an adapter that must serialize it.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Is reports whether target is an *Error with the same Kind, so that
// errors.Is(err, phantomstate.ErrUnknownMoment) works regardless of Message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

func newErr(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// wrapErr reports a cause that is a backend width mismatch as
// KindDimensionMismatch, whatever kind the call site passed.
func wrapErr(kind Kind, message string, cause error) *Error {
	var dimErr *embedding.DimensionError
	if errors.As(cause, &dimErr) {
		kind = KindDimensionMismatch
	}
	return &Error{Kind: kind, Message: message, cause: cause}
}

// Sentinel values for errors.Is comparisons. Only Kind is compared; Message
// and cause are ignored by (*Error).Is.
var (
	ErrUnknownMoment       = &Error{Kind: KindUnknownMoment}
	ErrUnknownTake         = &Error{Kind: KindUnknownTake}
	ErrUnknownCharacter    = &Error{Kind: KindUnknownCharacter}
	ErrUnknownFact         = &Error{Kind: KindUnknownFact}
	ErrDuplicateId         = &Error{Kind: KindDuplicateId}
	ErrDuplicateSequence   = &Error{Kind: KindDuplicateSequence}
	ErrInvalidEnum         = &Error{Kind: KindInvalidEnum}
	ErrDimensionMismatch   = &Error{Kind: KindDimensionMismatch}
	ErrEmbeddingUnavailable = &Error{Kind: KindEmbeddingUnavailable}
	ErrStorageError        = &Error{Kind: KindStorageError}
	ErrCorruptRecord       = &Error{Kind: KindCorruptRecord}
)
