package domain

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies a failure so callers can branch without inspecting messages.
type Kind string

const (
	KindInvalidArgument  Kind = "invalid_argument"
	KindRateLimited      Kind = "rate_limited"
	KindRemoteAPI        Kind = "remote_api_error"
	KindRetriesExhausted Kind = "retries_exhausted"
	KindEmbedding        Kind = "embedding_failure"
	KindNotFound         Kind = "not_found"
	KindCanceled         Kind = "canceled"
	KindUnexpected       Kind = "unexpected"
)

// NoChunk marks an Error that is not tied to a chunk.
const NoChunk = -1

// Error is the single error type produced by the core.
type Error struct {
	Kind       Kind
	Op         string
	DocumentID string
	ChunkIndex int
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(string(e.Kind))
	if e.DocumentID != "" {
		fmt.Fprintf(&b, " document=%s", e.DocumentID)
	}
	if e.ChunkIndex >= 0 {
		fmt.Fprintf(&b, " chunk=%d", e.ChunkIndex)
	}
	if e.StatusCode > 0 {
		fmt.Fprintf(&b, " status=%d", e.StatusCode)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds an Error that is not bound to a chunk.
func NewError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, ChunkIndex: NoChunk, Err: err}
}

// InvalidArgument reports malformed input to a pure function.
func InvalidArgument(op, format string, args ...any) *Error {
	return NewError(KindInvalidArgument, op, fmt.Errorf(format, args...))
}

// KindOf returns the kind of err. Context errors map to KindCanceled and
// unclassified errors map to KindUnexpected.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindCanceled
	}
	return KindUnexpected
}

// IsKind reports whether err is classified as kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// ChunkIndexOf returns the chunk index carried by err, or NoChunk.
func ChunkIndexOf(err error) int {
	var de *Error
	if errors.As(err, &de) {
		return de.ChunkIndex
	}
	return NoChunk
}

// HTTPStatus maps a kind to the status code used at the request boundary.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindInvalidArgument:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindCanceled:
		return 499
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage is the user-visible text for a kind. It never includes internal error text.
func PublicMessage(kind Kind) string {
	switch kind {
	case KindRateLimited:
		return "The service is currently busy. Please try again in a few moments."
	case KindRemoteAPI:
		return "An error occurred while processing your request. Please try again later."
	case KindInvalidArgument:
		return "The request was invalid."
	case KindNotFound:
		return "The requested document was not found."
	case KindCanceled:
		return "The request was canceled."
	default:
		return "An unexpected error occurred. Please try again later."
	}
}
