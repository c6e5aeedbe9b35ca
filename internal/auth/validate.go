package auth

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/benpsk/kalakaari-shop/internal/user"
)

var emailFormat = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ValidationError is a client-side input failure. It is reported before any
// request reaches the identity provider.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

type SignupInput struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
	AccountType     string `json:"account_type"`
}

// Validate checks fields in form order and reports the first failure.
func (in SignupInput) Validate(minPasswordLength int) (user.Role, error) {
	switch {
	case strings.TrimSpace(in.Name) == "":
		return "", &ValidationError{Field: "name", Message: "Name is required"}
	case strings.TrimSpace(in.Email) == "":
		return "", &ValidationError{Field: "email", Message: "Email is required"}
	case !emailFormat.MatchString(strings.TrimSpace(in.Email)):
		return "", &ValidationError{Field: "email", Message: "Invalid email format"}
	case len(in.Password) < minPasswordLength:
		return "", &ValidationError{Field: "password", Message: fmt.Sprintf("Password must be at least %d characters", minPasswordLength)}
	case in.Password != in.ConfirmPassword:
		return "", &ValidationError{Field: "confirm_password", Message: "Passwords do not match"}
	}
	role, err := user.ParseRole(in.AccountType)
	if err != nil {
		return "", &ValidationError{Field: "account_type", Message: "Please select an account type"}
	}
	return role, nil
}

func validateLogin(email, password string) error {
	if strings.TrimSpace(email) == "" || password == "" {
		return &ValidationError{Field: "email", Message: "Please enter both email and password."}
	}
	return nil
}

func parseAccountType(v string) (user.Role, error) {
	role, err := user.ParseRole(v)
	if err != nil {
		return "", &ValidationError{Field: "account_type", Message: "Please select an account type"}
	}
	return role, nil
}
