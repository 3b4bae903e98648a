package chat

import (
	"errors"

	"github.com/VickNat/educational-administration-for-pan-nation-frontend-sub000/internal/models"
)

var (
	ErrEmptyMessage       = errors.New("message has no content and no attachments")
	ErrUnauthorizedScope  = errors.New("not a member of this conversation")
	ErrMalformedScope     = models.ErrMalformedScope
	ErrInvalidMessage     = errors.New("invalid message")
	ErrPersistenceTimeout = errors.New("timed out persisting message")
	ErrRateLimited        = errors.New("too many messages, slow down")
	ErrSeenFailed         = errors.New("failed to mark messages as seen")
)

// Wire codes carried in failed responses
const (
	CodeEmptyMessage       = "EMPTY_MESSAGE"
	CodeUnauthorizedScope  = "UNAUTHORIZED_SCOPE"
	CodeMalformedScope     = "MALFORMED_SCOPE"
	CodeInvalidMessage     = "INVALID_MESSAGE"
	CodePersistenceTimeout = "PERSISTENCE_TIMEOUT"
	CodeRateLimited        = "RATE_LIMITED"
	CodeInternal           = "INTERNAL"
)

var codes = []struct {
	err  error
	code string
}{
	{ErrEmptyMessage, CodeEmptyMessage},
	{ErrUnauthorizedScope, CodeUnauthorizedScope},
	{ErrMalformedScope, CodeMalformedScope},
	{ErrInvalidMessage, CodeInvalidMessage},
	{ErrPersistenceTimeout, CodePersistenceTimeout},
	{ErrRateLimited, CodeRateLimited},
}

// Code maps an error returned by this package to its wire code
func Code(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeInternal
}

// PublicError is the error text safe to show the caller. Storage and other
// internal failures are not described.
func PublicError(err error) string {
	if Code(err) == CodeInternal {
		if errors.Is(err, ErrSeenFailed) {
			return ErrSeenFailed.Error()
		}
		return "internal error"
	}
	return err.Error()
}
