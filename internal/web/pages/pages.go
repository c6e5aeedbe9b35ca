package pages

import (
	"context"
	"fmt"
	"io"

	"github.com/a-h/templ"
	"github.com/benpsk/kalakaari-shop/internal/user"
	"github.com/benpsk/kalakaari-shop/internal/web/components"
)

const appScript = "/static/app.js"

func LoginPage(m LoginPageModel) templ.Component {
	body := templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		x := components.NewWriter(w)
		x.Raw(`<section class="auth"><h1>Log in</h1>`)
		x.Render(ctx, components.Flash(m.Notice, m.Error))
		x.Raw(`<form id="login-form" data-action="/api/auth/login">`)
		x.Raw(`<input name="email" type="email" placeholder="Email" autocomplete="email" required>`)
		x.Raw(`<input name="password" type="password" placeholder="Password" autocomplete="current-password" required>`)
		x.Raw(`<button type="submit">Log in</button></form>`)
		socialLink(x, m.GoogleEnabled)
		x.Raw(`<p>No account? <a href="/signup">Sign up</a></p></section>`)
		return x.Err()
	})
	return components.Layout(m.Site, components.PageMeta{Title: "Log in", Path: "/login"}, body, appScript)
}

func SignupPage(m SignupPageModel) templ.Component {
	body := templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		x := components.NewWriter(w)
		x.Raw(`<section class="auth"><h1>Create an account</h1>`)
		x.Render(ctx, components.Flash("", ""))
		x.Raw(`<form id="signup-form" data-action="/api/auth/signup">`)
		x.Raw(`<input name="name" placeholder="Full name" autocomplete="name">`)
		x.Raw(`<input name="email" type="email" placeholder="Email" autocomplete="email">`)
		x.Raw(`<input name="password" type="password" placeholder="Password" autocomplete="new-password">`)
		x.Raw(`<input name="confirm_password" type="password" placeholder="Confirm password" autocomplete="new-password">`)
		accountTypeChoice(x)
		x.Raw(`<button type="submit">Sign up</button></form>`)
		socialLink(x, m.GoogleEnabled)
		x.Raw(`<p>Have an account? <a href="/login">Log in</a></p></section>`)
		return x.Err()
	})
	return components.Layout(m.Site, components.PageMeta{Title: "Sign up", Path: "/signup"}, body, appScript)
}

func HomePage(m HomePageModel) templ.Component {
	body := templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		x := components.NewWriter(w)
		x.Raw(`<section class="home"><h1>Hello, `)
		x.Text(m.GreetingName)
		x.Raw(`</h1>`)
		if label := accountTypeLabel(m.AccountType); label != "" {
			x.Raw(`<p class="account-type">`)
			x.Text(label)
			x.Raw(`</p>`)
		}
		x.Render(ctx, components.Flash(m.Notice, ""))
		x.Raw(`<button id="logout" type="button">Log out</button>`)
		x.Raw(`<ul id="products" data-source="/api/products"></ul>`)
		if m.CanUpload {
			x.Raw(`<p><a href="/upload">Upload artwork image</a></p>`)
		}
		x.Raw(`</section>`)
		return x.Err()
	})
	return components.Layout(m.Site, components.PageMeta{Title: "Home", Path: "/home"}, body, appScript)
}

func CompleteProfilePage(m CompleteProfilePageModel) templ.Component {
	body := templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		x := components.NewWriter(w)
		x.Raw(`<section class="auth"><h1>Complete your profile</h1><p>Welcome, `)
		x.Text(m.Pending.Name)
		if m.Pending.Email != "" {
			x.Raw(` (`)
			x.Text(m.Pending.Email)
			x.Raw(`)`)
		}
		x.Raw(`</p>`)
		x.Render(ctx, components.Flash("", ""))
		x.Raw(`<form id="complete-profile-form" data-action="/api/auth/complete-profile">`)
		accountTypeChoice(x)
		x.Raw(`<button type="submit">Continue</button></form></section>`)
		return x.Err()
	})
	return components.Layout(m.Site, components.PageMeta{Title: "Complete your profile", Path: "/complete-profile"}, body, appScript)
}

func UploadPage(m UploadPageModel) templ.Component {
	body := templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		x := components.NewWriter(w)
		x.Raw(`<section class="upload"><h1>Upload artwork image</h1>`)
		if m.MaxBytes > 0 {
			x.Raw(`<p class="hint">`)
			x.Text(fmt.Sprintf("Images up to %d MB.", max(m.MaxBytes>>20, 1)))
			x.Raw(`</p>`)
		}
		x.Raw(`<form id="upload-form"><input id="upload-file" name="file" type="file" accept="image/*">`)
		x.Raw(`<button type="submit">Upload</button></form>`)
		x.Raw(`<img id="upload-preview" alt="" hidden><p id="upload-status" role="status"></p>`)
		x.Raw(`<p><a id="upload-link" href="#" target="_blank" rel="noopener" hidden></a></p></section>`)
		return x.Err()
	})
	return components.Layout(m.Site, components.PageMeta{Title: "Upload artwork image", Path: "/upload"}, body, "/static/upload.js")
}

func socialLink(x *components.Writer, enabled bool) {
	if enabled {
		x.Raw(`<a class="social" href="/auth/social/google">Continue with Google</a>`)
	}
}

func accountTypeChoice(x *components.Writer) {
	x.Raw(`<fieldset><legend>I am</legend>`)
	for _, role := range []user.Role{user.RoleArtisan, user.RoleArtLover} {
		x.Raw(`<label><input type="radio" name="account_type" value="`)
		x.Text(string(role))
		x.Raw(`"> `)
		x.Text(accountTypeLabel(user.Known(role)))
		x.Raw(`</label>`)
	}
	x.Raw(`</fieldset>`)
}

func accountTypeLabel(t user.AccountType) string {
	role, ok := t.Role()
	if !ok {
		return ""
	}
	switch role {
	case user.RoleArtisan:
		return "Artisan"
	case user.RoleArtLover:
		return "Art lover"
	default:
		return string(role)
	}
}
