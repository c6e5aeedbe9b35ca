package identity

import (
	"context"
	"errors"
	"net"
)

// Error codes reported by the identity provider.
const (
	CodeInvalidCredential   = "auth/invalid-credential"
	CodeInvalidEmail        = "auth/invalid-email"
	CodeEmailInUse          = "auth/email-already-in-use"
	CodeWeakPassword        = "auth/weak-password"
	CodePopupClosed         = "auth/popup-closed-by-user"
	CodeNetwork             = "auth/network-request-failed"
	CodeAccountExists       = "auth/account-exists-with-different-credential"
	CodeOperationNotAllowed = "auth/operation-not-allowed"
	CodeNoCurrentUser       = "auth/no-current-user"
	CodeInternal            = "auth/internal-error"
)

type Error struct {
	Code string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return "identity: " + e.Code
	}
	return "identity: " + e.Code + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code string, err error) *Error {
	return &Error{Code: code, Err: err}
}

// CodeOf returns the provider code carried by err, or "" when err is not a
// provider error.
func CodeOf(err error) string {
	var idErr *Error
	if errors.As(err, &idErr) {
		return idErr.Code
	}
	return ""
}

// classify maps a backing store or transport failure to a provider error.
func classify(err error) *Error {
	if err == nil {
		return nil
	}
	var idErr *Error
	if errors.As(err, &idErr) {
		return idErr
	}
	if isNetworkError(err) {
		return newError(CodeNetwork, err)
	}
	return newError(CodeInternal, err)
}

func isNetworkError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
