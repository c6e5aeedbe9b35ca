package user

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNotFound         = errors.New("user not found")
	ErrEmailConflict    = errors.New("email already exists")
	ErrIdentityConflict = errors.New("identity already exists")
	ErrUnknownRole      = errors.New("unknown account type")
)

// Role is one of the recognized account types.
type Role string

const (
	RoleArtisan  Role = "artisan"
	RoleArtLover Role = "art-lover"
)

func ParseRole(v string) (Role, error) {
	switch Role(strings.TrimSpace(strings.ToLower(v))) {
	case RoleArtisan:
		return RoleArtisan, nil
	case RoleArtLover:
		return RoleArtLover, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, v)
	}
}

// AccountType is either Known(role) or Unknown. The zero value is Unknown.
type AccountType struct {
	role  Role
	known bool
}

var Unknown = AccountType{}

func Known(r Role) AccountType {
	return AccountType{role: r, known: true}
}

// AccountTypeFrom maps a stored userType string; unrecognized values are Unknown.
func AccountTypeFrom(v string) AccountType {
	r, err := ParseRole(v)
	if err != nil {
		return Unknown
	}
	return Known(r)
}

func (a AccountType) Role() (Role, bool) {
	return a.role, a.known
}

func (a AccountType) IsKnown() bool {
	return a.known
}

func (a AccountType) String() string {
	if !a.known {
		return "unknown"
	}
	return string(a.role)
}

func (a AccountType) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// Identity is the account record owned by the identity provider.
type Identity struct {
	UID            string    `json:"uid"`
	Email          string    `json:"email"`
	DisplayName    string    `json:"display_name"`
	Provider       string    `json:"provider"`
	ProviderUserID string    `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
	LastSignInAt   time.Time `json:"last_sign_in_at"`
}

// Profile is the document stored in the users collection, keyed by UID.
type Profile struct {
	UID       string    `json:"uid"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	UserType  string    `json:"userType"`
	CreatedAt time.Time `json:"createdAt"`
}

func (p Profile) Validate() error {
	if strings.TrimSpace(p.UID) == "" {
		return errors.New("profile uid is required")
	}
	return nil
}

// View merges an identity with the account type of its profile.
type View struct {
	Identity    Identity    `json:"user"`
	AccountType AccountType `json:"account_type"`
}

func (v View) UID() string {
	return v.Identity.UID
}

// PendingProfile bridges a social sign-in and the profile completion form.
type PendingProfile struct {
	UID   string `json:"uid"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (p PendingProfile) Validate() error {
	if strings.TrimSpace(p.UID) == "" {
		return errors.New("pending profile uid is required")
	}
	return nil
}

// SocialProfile is the normalized identity returned by a social provider.
type SocialProfile struct {
	Provider       string
	ProviderUserID string
	Email          string
	EmailVerified  bool
	Name           string
}

func (p SocialProfile) Validate() error {
	if strings.TrimSpace(p.Provider) == "" || strings.TrimSpace(p.ProviderUserID) == "" {
		return errors.New("provider and provider user id are required")
	}
	return nil
}
