package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation error")
	ErrConflict   = errors.New("conflict")

	// Auth sentinels. AuthenticationFailed is deliberately cause-free: a
	// missing user and a wrong password must look identical to the caller.
	// ProviderUnavailable and InvalidToken never leave the service layer;
	// they are recovered into AuthenticationFailed / Unauthenticated before
	// reaching a handler.
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrUnauthenticated      = errors.New("unauthenticated")
	ErrProviderUnavailable  = errors.New("identity provider unavailable")
	ErrInvalidToken         = errors.New("invalid token")
)

type AppError struct {
	Err     error  // sentinel the error wraps
	Message string // human-readable error message
	Field   string // optional: field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// AuthenticationFailed returns the uniform login failure. The message is
// fixed on purpose.
func AuthenticationFailed() *AppError {
	return &AppError{
		Err:     ErrAuthenticationFailed,
		Message: "failed to authenticate",
	}
}

// Unauthenticated reports a request with no usable session: a missing,
// expired, or forged token, or a token whose identity no longer exists.
func Unauthenticated(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthenticated,
		Message: message,
	}
}

// ProviderUnavailable reports a failed round-trip to the external identity
// provider (transport error, non-200 response, unparsable body).
func ProviderUnavailable(message string) *AppError {
	return &AppError{
		Err:     ErrProviderUnavailable,
		Message: message,
	}
}
