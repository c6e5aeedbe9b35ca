package server

import (
	"net/http"
	"strings"

	"github.com/benpsk/kalakaari-shop/internal/auth"
	"github.com/benpsk/kalakaari-shop/internal/web/components"
	"github.com/benpsk/kalakaari-shop/internal/web/pages"
	"go.uber.org/zap"
)

var notices = map[string]string{
	alreadyLoggedInNotice: "You are already logged in.",
}

func noticeText(r *http.Request) string {
	return notices[r.URL.Query().Get("notice")]
}

// site builds the shared page data. The header reads the store, so a
// signed-in identity without a profile is shown as a guest.
func (h handler) site(client *auth.Client) components.Site {
	s := components.Site{AppName: h.appName, AppURL: h.appURL}
	if client != nil && client.Store().LoggedIn() {
		s.Auth = components.HeaderAuthData{IsAuthenticated: true, DisplayName: client.Store().GreetingName()}
	}
	return s
}

func (h handler) googleEnabled() bool {
	_, ok := h.socialProvider("google")
	return ok
}

func (h handler) loginPage(w http.ResponseWriter, r *http.Request) {
	h.renderPage(w, r, pages.LoginPage(pages.LoginPageModel{
		Site:          h.site(clientFromContext(r)),
		Error:         strings.TrimSpace(r.URL.Query().Get("error")),
		Notice:        noticeText(r),
		GoogleEnabled: h.googleEnabled(),
	}))
}

func (h handler) signupPage(w http.ResponseWriter, r *http.Request) {
	h.renderPage(w, r, pages.SignupPage(pages.SignupPageModel{
		Site:          h.site(clientFromContext(r)),
		GoogleEnabled: h.googleEnabled(),
	}))
}

// homePage renders the greeting from the store. When the listener has not
// committed the signed-in identity yet, the freshly resolved view is used.
func (h handler) homePage(w http.ResponseWriter, r *http.Request) {
	client := clientFromContext(r)
	view, committed := client.View(r.Context())
	model := pages.HomePageModel{
		Site:         h.site(client),
		GreetingName: auth.GreetingFor(&view),
		AccountType:  view.AccountType,
		Notice:       noticeText(r),
		CanUpload:    h.uploader != nil,
	}
	if committed {
		model.GreetingName = client.Store().GreetingName()
		if at, ok := client.Store().AccountType(); ok {
			model.AccountType = at
		}
	} else {
		h.log.Debug("home rendered from uncommitted view", zap.String("session_id", client.ID()))
	}
	h.renderPage(w, r, pages.HomePage(model))
}

// completeProfilePage runs the profile completion entry check before the
// form is shown.
func (h handler) completeProfilePage(w http.ResponseWriter, r *http.Request) {
	client := clientFromContext(r)
	if client == nil {
		http.Redirect(w, r, auth.PathLogin, http.StatusSeeOther)
		return
	}
	out := client.Actions().PrepareCompleteProfile(r.Context())
	if out.Pending == nil {
		target := out.Redirect.URL
		if target == "" {
			target = auth.PathLogin
		}
		http.Redirect(w, r, target, http.StatusSeeOther)
		return
	}
	h.renderPage(w, r, pages.CompleteProfilePage(pages.CompleteProfilePageModel{
		Site:    h.site(client),
		Pending: *out.Pending,
	}))
}

func (h handler) uploadPage(w http.ResponseWriter, r *http.Request) {
	maxBytes := h.maxUploadBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxUploadBytes
	}
	h.renderPage(w, r, pages.UploadPage(pages.UploadPageModel{
		Site:     h.site(clientFromContext(r)),
		MaxBytes: maxBytes,
	}))
}
