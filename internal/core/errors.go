package core

import (
	"errors"
	"fmt"
)

// Error codes for domain errors.
const (
	ErrCodeUnauthenticated    = "unauthenticated"
	ErrCodeUnauthorized       = "unauthorized"
	ErrCodeBadRequest         = "bad_request"
	ErrCodePersistence        = "persistence_failed"
	ErrCodeChatNotFound       = "chat_not_found"
	ErrCodeRateLimited        = "rate_limited"
	ErrCodeUnsupportedVersion = "unsupported_version"
	ErrCodeInvalidMessage     = "invalid_message"
)

// Error kinds. Every *CoreError unwraps to exactly one of them.
var (
	ErrAuthentication = errors.New("authentication failed")
	ErrAuthorization  = errors.New("not a member of chat")
	ErrValidation     = errors.New("invalid payload")
	ErrPersistence    = errors.New("persistence failed")
	ErrChatNotFound   = errors.New("chat not found")
	ErrRateLimited    = errors.New("rate limited")
	ErrRegistryClosed = errors.New("registry closed")
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
	Err     error
}

func (e *CoreError) Error() string {
	return e.Message
}

func (e *CoreError) Unwrap() error {
	return e.Err
}

func coreError(code, msg string, kind error) *CoreError {
	return &CoreError{Code: code, Message: msg, Err: kind}
}

func authenticationError(msg string) *CoreError {
	return coreError(ErrCodeUnauthenticated, msg, ErrAuthentication)
}

func authorizationError(chatID string) *CoreError {
	return coreError(ErrCodeUnauthorized, fmt.Sprintf("not a member of chat %s", chatID), ErrAuthorization)
}

func validationError(msg string) *CoreError {
	return coreError(ErrCodeBadRequest, msg, ErrValidation)
}

func chatNotFoundError(chatID string) *CoreError {
	return coreError(ErrCodeChatNotFound, fmt.Sprintf("chat %s not found", chatID), ErrChatNotFound)
}

// persistenceError keeps the storage cause reachable through errors.Is.
func persistenceError(op string, cause error) *CoreError {
	return &CoreError{
		Code:    ErrCodePersistence,
		Message: op + " failed",
		Err:     fmt.Errorf("%w: %w", ErrPersistence, cause),
	}
}

// AsCoreError converts any error into a *CoreError suitable for the wire.
func AsCoreError(err error) *CoreError {
	if err == nil {
		return nil
	}
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce
	}
	return &CoreError{Code: ErrCodeInvalidMessage, Message: err.Error(), Err: err}
}

// NewRateLimitedError reports an inbound frame dropped by the connection limiter.
func NewRateLimitedError() *CoreError {
	return coreError(ErrCodeRateLimited, "too many events", ErrRateLimited)
}

// NewValidationError reports a malformed inbound frame.
func NewValidationError(msg string) *CoreError {
	return validationError(msg)
}
