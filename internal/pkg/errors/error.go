package xerrors

import (
	"errors"
	"fmt"
)

// Common reusable console errors
var (
	ErrNotFound           = errors.New("resource not found")
	ErrUnauthorized       = errors.New("unauthorized access")
	ErrForbidden          = errors.New("forbidden")
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidCredentials = errors.New("could not sign in")
	ErrNoRefreshToken     = errors.New("no refresh token available")
	ErrSessionExpired     = errors.New("session expired or invalid")
	ErrNotAuthenticated   = errors.New("not authenticated")
	ErrSessionChanged     = errors.New("session changed while the request was in flight")
	ErrBadRequest         = errors.New("bad request")
)

// Wrap adds context to an error (similar to fmt.Errorf("%w")).
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Is allows checking whether an error is a specific sentinel error.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// MessageOrDefault returns err.Error() or a fallback message if err is nil.
func MessageOrDefault(err error, fallback string) string {
	if err != nil {
		return err.Error()
	}
	return fallback
}
