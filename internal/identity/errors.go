package identity

import (
	"errors"
	"fmt"
)

// Provider error codes. Clients key user-facing messages off these.
const (
	CodeWeakPassword      = "weak-password"
	CodeEmailInUse        = "email-already-in-use"
	CodeInvalidEmail      = "invalid-email"
	CodeInvalidCredential = "invalid-credential"
	CodeTokenExpired      = "user-token-expired"
	CodeInternal          = "internal-error"
)

// ErrInvalidToken is returned when an id token fails verification.
var ErrInvalidToken = errors.New("invalid token")

// Error is a provider failure carrying a stable code.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newError(code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// CodeOf returns the provider code of err, or CodeInternal.
func CodeOf(err error) string {
	var ie *Error
	if errors.As(err, &ie) {
		return ie.Code
	}
	return CodeInternal
}
