package auth

import (
	"errors"

	"github.com/benpsk/kalakaari-shop/internal/identity"
)

const defaultMessage = "Something went wrong. Please try again."

var providerMessages = map[string]string{
	identity.CodeInvalidCredential:   "Invalid email or password.",
	identity.CodeEmailInUse:          "Email already in use.",
	identity.CodeInvalidEmail:        "Invalid email address.",
	identity.CodeWeakPassword:        "Password is too weak.",
	identity.CodeNetwork:             "Network error. Please check your connection and try again.",
	identity.CodePopupClosed:         "",
	identity.CodeAccountExists:       "An account already exists with the same email address.",
	identity.CodeOperationNotAllowed: "This sign-in method is not enabled.",
	identity.CodeNoCurrentUser:       "Your session has expired. Please log in again.",
}

// Message maps err to the text shown to the user. A cancelled social popup
// maps to the empty string.
func Message(err error) string {
	if err == nil {
		return ""
	}

	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr.Message
	}

	if code := identity.CodeOf(err); code != "" {
		if msg, ok := providerMessages[code]; ok {
			return msg
		}
		return defaultMessage
	}

	switch {
	case errors.Is(err, ErrProfileWrite):
		return "Failed to save profile. Please try again."
	case errors.Is(err, ErrPendingWrite):
		return "Could not start profile setup. Please try again."
	case errors.Is(err, ErrInFlight):
		return "Please wait for the current request to finish."
	case errors.Is(err, ErrInvalidEntry), errors.Is(err, ErrSuperseded):
		return "Your session has changed. Please log in again."
	}
	return defaultMessage
}
