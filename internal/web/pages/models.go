package pages

import (
	"github.com/benpsk/kalakaari-shop/internal/user"
	"github.com/benpsk/kalakaari-shop/internal/web/components"
)

type LoginPageModel struct {
	Site          components.Site
	Error         string
	Notice        string
	GoogleEnabled bool
}

type SignupPageModel struct {
	Site          components.Site
	GoogleEnabled bool
}

type HomePageModel struct {
	Site         components.Site
	GreetingName string
	AccountType  user.AccountType
	Notice       string
	CanUpload    bool
}

type CompleteProfilePageModel struct {
	Site    components.Site
	Pending user.PendingProfile
}

type UploadPageModel struct {
	Site     components.Site
	MaxBytes int64
}
