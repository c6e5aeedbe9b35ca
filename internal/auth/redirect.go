package auth

import "github.com/benpsk/kalakaari-shop/internal/user"

const (
	PathHome            = "/home"
	PathLogin           = "/login"
	PathCompleteProfile = "/complete-profile"
)

// Destination is where the browser goes after an action. The zero value
// means stay on the current page.
type Destination struct {
	URL      string `json:"url"`
	External bool   `json:"external"`
}

func (d Destination) IsZero() bool {
	return d.URL == ""
}

// RedirectPolicy maps account types to landing destinations.
type RedirectPolicy struct {
	// ArtisanURL is the external application artisans land on. Artisans go
	// home when it is empty.
	ArtisanURL string
}

// For is total: every view, including nil, maps to exactly one destination.
func (p RedirectPolicy) For(v *user.View) Destination {
	if v == nil {
		return p.Home()
	}
	role, known := v.AccountType.Role()
	if known && role == user.RoleArtisan && p.ArtisanURL != "" {
		return Destination{URL: p.ArtisanURL, External: true}
	}
	return p.Home()
}

func (p RedirectPolicy) Home() Destination {
	return Destination{URL: PathHome}
}

func (p RedirectPolicy) Login() Destination {
	return Destination{URL: PathLogin}
}

func (p RedirectPolicy) CompleteProfile() Destination {
	return Destination{URL: PathCompleteProfile}
}
