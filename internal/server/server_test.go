package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"strings"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/benpsk/kalakaari-shop/internal/auth"
	"github.com/benpsk/kalakaari-shop/internal/auth/authtest"
	"github.com/benpsk/kalakaari-shop/internal/catalog"
	"github.com/benpsk/kalakaari-shop/internal/config"
	"github.com/benpsk/kalakaari-shop/internal/identity"
	"github.com/benpsk/kalakaari-shop/internal/identity/identitytest"
	"github.com/benpsk/kalakaari-shop/internal/upload"
	"github.com/benpsk/kalakaari-shop/internal/user"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const testArtisanURL = "https://studio.example.com/dev-ui/?app=agents"

type fakeCatalog struct {
	products []catalog.Product
	verify   map[string]catalog.VerificationResponse
	err      error
}

func (c *fakeCatalog) Products(context.Context) ([]catalog.Product, error) {
	return c.products, c.err
}

func (c *fakeCatalog) Verify(_ context.Context, publicID string) (catalog.VerificationResponse, error) {
	if c.err != nil {
		return catalog.VerificationResponse{}, c.err
	}
	res, ok := c.verify[publicID]
	if !ok {
		return catalog.VerificationResponse{}, catalog.ErrNotFound
	}
	return res, nil
}

type fakeUploader struct {
	mu          sync.Mutex
	filename    string
	contentType string
	body        []byte
}

func (u *fakeUploader) Upload(_ context.Context, filename string, r io.Reader, _ int64, contentType string) (string, error) {
	if !strings.HasPrefix(contentType, "image/") {
		return "", upload.ErrUnsupportedType
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.filename, u.contentType, u.body = filename, contentType, body
	return "https://cdn.test/kalakaari/" + filename, nil
}

type testApp struct {
	srv      *httptest.Server
	svc      *identity.Service
	provider *identitytest.Provider
	profiles *authtest.Profiles
	registry *auth.Registry
	catalog  *fakeCatalog
	uploader *fakeUploader
}

func testConfig() config.Config {
	return config.Config{
		AppName: "Kalakaari Shop",
		AppEnv:  "test",
		AppURL:  "http://127.0.0.1:8080",
		Auth: config.AuthConfig{
			SessionCookieName: "kalakaari_session",
			SessionSecret:     "test-session-secret-0123456789abcdef",
			SessionTTL:        time.Hour,
			MinPasswordLength: 6,
		},
		Catalog: config.CatalogConfig{ExplorerTxURL: "https://scan.test/tx/"},
		Upload:  config.UploadConfig{MaxBytes: 1 << 20},
	}
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	app := &testApp{
		provider: identitytest.NewProvider("google"),
		profiles: authtest.NewProfiles(),
		catalog:  &fakeCatalog{verify: map[string]catalog.VerificationResponse{}},
		uploader: &fakeUploader{},
	}
	app.svc = identity.NewService(identitytest.NewCredentials(), identitytest.NewStates(), identity.Options{HashCost: bcrypt.MinCost}, nil, app.provider)

	slots := authtest.NewPendingSlots()
	deps := auth.Deps{
		Profiles:          app.profiles,
		Policy:            auth.RedirectPolicy{ArtisanURL: testArtisanURL},
		MinPasswordLength: 6,
	}
	app.registry = auth.NewRegistry(func(ctx context.Context, sessionID string) (*auth.Client, error) {
		return auth.NewClient(ctx, sessionID, app.svc.Open(ctx, sessionID), slots.Slot(sessionID), deps), nil
	}, time.Minute, nil)

	router := NewRouter(testConfig(), Deps{
		Clients:   app.registry,
		Providers: app.svc,
		Catalog:   app.catalog,
		Uploader:  app.uploader,
		Static: fstest.MapFS{
			"app.js": {Data: []byte("// app")},
		},
		Log: zap.NewNop(),
	})
	app.srv = httptest.NewServer(router)
	t.Cleanup(func() {
		app.srv.Close()
		app.registry.Close()
	})
	return app
}

// seedAccount registers a password account with a profile of the given type
// from a session no browser uses.
func (a *testApp) seedAccount(t *testing.T, email, userType string) user.Identity {
	t.Helper()
	ctx := context.Background()
	id, err := a.svc.Open(ctx, "seed-"+email).CreateWithPassword(ctx, email, "secret1")
	require.NoError(t, err)
	a.profiles.Put(user.Profile{UID: id.UID, Name: "Asha", Email: email, UserType: userType})
	return id
}

type browser struct {
	t      *testing.T
	app    *testApp
	client *http.Client
}

func (a *testApp) browser(t *testing.T) *browser {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &browser{
		t:   t,
		app: a,
		client: &http.Client{
			Jar: jar,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

func (b *browser) do(req *http.Request) (*http.Response, []byte) {
	b.t.Helper()
	res, err := b.client.Do(req)
	require.NoError(b.t, err)
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	require.NoError(b.t, err)
	return res, body
}

func (b *browser) get(path string) (*http.Response, []byte) {
	b.t.Helper()
	req, err := http.NewRequest(http.MethodGet, b.app.srv.URL+path, nil)
	require.NoError(b.t, err)
	return b.do(req)
}

func (b *browser) postJSON(path string, payload any) (int, map[string]any) {
	b.t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(b.t, err)
	req, err := http.NewRequest(http.MethodPost, b.app.srv.URL+path, bytes.NewReader(raw))
	require.NoError(b.t, err)
	req.Header.Set("Content-Type", "application/json")
	res, body := b.do(req)
	var out map[string]any
	require.NoError(b.t, json.Unmarshal(body, &out), string(body))
	return res.StatusCode, out
}

func (b *browser) session() map[string]any {
	b.t.Helper()
	res, body := b.get("/api/session")
	require.Equal(b.t, http.StatusOK, res.StatusCode)
	var out map[string]any
	require.NoError(b.t, json.Unmarshal(body, &out))
	return out
}

func (b *browser) cookie(name string) string {
	b.t.Helper()
	u, err := url.Parse(b.app.srv.URL)
	require.NoError(b.t, err)
	for _, c := range b.client.Jar.Cookies(u) {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}

func location(t *testing.T, res *http.Response) string {
	t.Helper()
	require.Equal(t, http.StatusSeeOther, res.StatusCode)
	return res.Header.Get("Location")
}

func TestGuestIsSentToLogin(t *testing.T) {
	app := newTestApp(t)
	b := app.browser(t)

	res, _ := b.get("/home")
	assert.Equal(t, "/login", location(t, res))

	res, _ = b.get("/")
	assert.Equal(t, "/login", location(t, res))

	res, body := b.get("/login")
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(body), "<h1>Log in</h1>")
	assert.Contains(t, string(body), "Continue with Google")
	assert.Equal(t, "text/html; charset=utf-8", res.Header.Get("Content-Type"))
	assert.Equal(t, "no-store", res.Header.Get("Cache-Control"))

	res, body = b.get("/login?error=" + url.QueryEscape("Sign-in <failed>"))
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(body), `<p id="error" role="alert">Sign-in &lt;failed&gt;</p>`)

	res, _ = b.get("/complete-profile")
	assert.Equal(t, "/login", location(t, res))

	sess := b.session()
	assert.Equal(t, false, sess["logged_in"])
	assert.Equal(t, false, sess["signed_in"])
	assert.Nil(t, sess["account_type"])
}

func TestSessionCookieIsMintedOnceAndReused(t *testing.T) {
	app := newTestApp(t)
	b := app.browser(t)

	res, _ := b.get("/login")
	require.Equal(t, http.StatusOK, res.StatusCode)
	first := b.cookie("kalakaari_session")
	require.NotEmpty(t, first)
	assert.NotEmpty(t, b.cookie(csrfCookieName))

	res, _ = b.get("/signup")
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Empty(t, res.Header.Values("Set-Cookie"), "a fresh session token is not reissued")
	assert.Equal(t, first, b.cookie("kalakaari_session"))
	assert.Equal(t, 1, app.registry.Len())
}

func TestExpiredSessionCookieDropsOldClient(t *testing.T) {
	app := newTestApp(t)
	b := app.browser(t)

	_, err := app.registry.Get(context.Background(), "stale-sid")
	require.NoError(t, err)
	require.Equal(t, 1, app.registry.Len())

	h := newHandler(testConfig(), Deps{})
	token, _, err := h.issueSessionToken("stale-sid", time.Now().Add(-2*time.Hour))
	require.NoError(t, err)
	base, err := url.Parse(app.srv.URL)
	require.NoError(t, err)
	b.client.Jar.SetCookies(base, []*http.Cookie{{Name: "kalakaari_session", Value: token, Path: "/"}})

	res, _ := b.get("/login")
	require.Equal(t, http.StatusOK, res.StatusCode)
	fresh := b.cookie("kalakaari_session")
	require.NotEmpty(t, fresh)
	assert.NotEqual(t, token, fresh)
	assert.Equal(t, 1, app.registry.Len(), "the expired session's client is closed, the new one is live")

	res, body := b.get("/healthz")
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(body), `"live_sessions":1`)
}

func TestLoginArtLover(t *testing.T) {
	app := newTestApp(t)
	id := app.seedAccount(t, "lover@x.com", "art-lover")
	b := app.browser(t)

	status, out := b.postJSON("/api/auth/login", map[string]string{"email": "lover@x.com", "password": "secret1"})
	require.Equal(t, http.StatusOK, status, out)
	assert.Equal(t, "/home", out["redirect_to"])
	assert.Equal(t, "Login successful! Redirecting...", out["message"])
	assert.Nil(t, out["external"])

	sess := b.session()
	assert.Equal(t, true, sess["logged_in"])
	assert.Equal(t, true, sess["signed_in"])
	assert.Equal(t, "art-lover", sess["account_type"])
	assert.Equal(t, "User", sess["greeting_name"], "password accounts have no display name")
	require.IsType(t, map[string]any{}, sess["user"])
	assert.Equal(t, id.UID, sess["user"].(map[string]any)["uid"])
	actions := sess["actions"].(map[string]any)
	assert.Equal(t, "succeeded", actions["login"].(map[string]any)["phase"])

	res, body := b.get("/home")
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(body), "<h1>Hello, User</h1>")
	assert.Contains(t, string(body), `<p class="account-type">Art lover</p>`)
	assert.Contains(t, string(body), `<p id="notice" role="status" hidden></p>`)

	res, body = b.get("/home?notice=already-logged-in")
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(body), "You are already logged in.")

	res, _ = b.get("/login")
	assert.Equal(t, "/home?notice=already-logged-in", location(t, res))
	res, _ = b.get("/signup")
	assert.Equal(t, "/home?notice=already-logged-in", location(t, res))
}

func TestLoginArtisanGoesToExternalDestination(t *testing.T) {
	app := newTestApp(t)
	app.seedAccount(t, "maker@x.com", "artisan")
	b := app.browser(t)

	status, out := b.postJSON("/api/auth/login", map[string]string{"email": "maker@x.com", "password": "secret1"})
	require.Equal(t, http.StatusOK, status, out)
	assert.Equal(t, testArtisanURL, out["redirect_to"])
	assert.Equal(t, true, out["external"])
}

func TestLoginFailures(t *testing.T) {
	app := newTestApp(t)
	app.seedAccount(t, "lover@x.com", "art-lover")
	b := app.browser(t)

	status, out := b.postJSON("/api/auth/login", map[string]string{"email": "lover@x.com", "password": "wrong-pass"})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, identity.CodeInvalidCredential, out["code"])
	assert.Equal(t, "Invalid email or password.", out["error"])

	status, out = b.postJSON("/api/auth/login", map[string]string{"email": "nobody@x.com", "password": "secret1"})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "Invalid email or password.", out["error"], "unknown accounts are indistinguishable from bad passwords")

	status, out = b.postJSON("/api/auth/login", map[string]string{"email": "", "password": ""})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Please enter both email and password.", out["error"])

	sess := b.session()
	assert.Equal(t, false, sess["logged_in"])
	assert.Equal(t, false, sess["signed_in"])
	assert.Equal(t, "failed", sess["actions"].(map[string]any)["login"].(map[string]any)["phase"])
}

func TestLoginRejectsMalformedJSON(t *testing.T) {
	app := newTestApp(t)
	b := app.browser(t)

	req, err := http.NewRequest(http.MethodPost, app.srv.URL+"/api/auth/login", strings.NewReader("{"))
	require.NoError(t, err)
	res, body := b.do(req)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Contains(t, string(body), "invalid json")
}

func TestSignup(t *testing.T) {
	app := newTestApp(t)
	b := app.browser(t)

	in := auth.SignupInput{
		Name:            "Ravi",
		Email:           "ravi@x.com",
		Password:        "secret1",
		ConfirmPassword: "secret1",
		AccountType:     "artisan",
	}
	status, out := b.postJSON("/api/auth/signup", in)
	require.Equal(t, http.StatusOK, status, out)
	assert.Equal(t, testArtisanURL, out["redirect_to"])
	assert.Equal(t, "Account created! Redirecting...", out["message"])

	sess := b.session()
	assert.Equal(t, "artisan", sess["account_type"])

	other := app.browser(t)
	status, out = other.postJSON("/api/auth/signup", in)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, identity.CodeEmailInUse, out["code"])
	assert.Equal(t, "Email already in use.", out["error"])

	in.Email = "second@x.com"
	in.ConfirmPassword = "other"
	status, out = other.postJSON("/api/auth/signup", in)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "validation/confirm_password", out["code"])
	assert.Equal(t, "Passwords do not match", out["error"])
}

func TestLogout(t *testing.T) {
	app := newTestApp(t)
	app.seedAccount(t, "lover@x.com", "art-lover")
	b := app.browser(t)

	status, out := b.postJSON("/api/auth/logout", map[string]string{})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "not signed in", out["error"])

	status, _ = b.postJSON("/api/auth/login", map[string]string{"email": "lover@x.com", "password": "secret1"})
	require.Equal(t, http.StatusOK, status)

	status, out = b.postJSON("/api/auth/logout", map[string]string{})
	require.Equal(t, http.StatusOK, status, out)
	assert.Equal(t, "/login", out["redirect_to"])

	sess := b.session()
	assert.Equal(t, false, sess["logged_in"])
	assert.Equal(t, false, sess["signed_in"])

	res, _ := b.get("/home")
	assert.Equal(t, "/login", location(t, res))
}

func startSocial(t *testing.T, b *browser) url.Values {
	t.Helper()
	res, _ := b.get("/auth/social/google")
	target, err := url.Parse(location(t, res))
	require.NoError(t, err)
	require.Equal(t, "provider.test", target.Host)
	q := target.Query()
	require.NotEmpty(t, q.Get("state"))
	require.NotEmpty(t, q.Get("code_challenge"))
	return q
}

func TestSocialNewUserCompletesProfile(t *testing.T) {
	app := newTestApp(t)
	app.provider.Profiles["code-new"] = user.SocialProfile{
		ProviderUserID: "g-100",
		Email:          "nila@x.com",
		EmailVerified:  true,
		Name:           "Nila",
	}
	b := app.browser(t)

	q := startSocial(t, b)
	res, _ := b.get("/auth/callback/google?state=" + url.QueryEscape(q.Get("state")) + "&code=code-new")
	assert.Equal(t, "/complete-profile", location(t, res))

	verifiers := app.provider.Verifiers()
	require.Len(t, verifiers, 1)
	assert.Equal(t, q.Get("code_challenge"), oauthCodeChallenge(verifiers[0]))

	sess := b.session()
	assert.Equal(t, true, sess["signed_in"])
	assert.Equal(t, false, sess["logged_in"], "an identity without a profile is not logged in")

	res, body := b.get("/complete-profile")
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(body), "Welcome, Nila (nila@x.com)")
	assert.Contains(t, string(body), `id="complete-profile-form"`)

	res, body = b.get("/api/auth/pending-profile")
	require.Equal(t, http.StatusOK, res.StatusCode)
	var entry apiActionResponse
	require.NoError(t, json.Unmarshal(body, &entry))
	require.NotNil(t, entry.PendingProfile)
	assert.Equal(t, "Nila", entry.PendingProfile.Name)
	assert.Equal(t, "nila@x.com", entry.PendingProfile.Email)

	status, out := b.postJSON("/api/auth/complete-profile", map[string]string{"account_type": "art-lover"})
	require.Equal(t, http.StatusOK, status, out)
	assert.Equal(t, "/home", out["redirect_to"])
	assert.Equal(t, "Profile saved! Redirecting...", out["message"])

	doc, ok := app.profiles.Doc(entry.PendingProfile.UID)
	require.True(t, ok)
	assert.Equal(t, "art-lover", doc.UserType)

	sess = b.session()
	assert.Equal(t, true, sess["logged_in"])
	assert.Equal(t, "art-lover", sess["account_type"])

	res, _ = b.get("/complete-profile")
	assert.Equal(t, "/home", location(t, res), "a completed profile is not asked again")
}

func TestSocialReturningUserSkipsProfileCompletion(t *testing.T) {
	app := newTestApp(t)
	app.provider.Profiles["code-back"] = user.SocialProfile{ProviderUserID: "g-7", Email: "maker@x.com", EmailVerified: true, Name: "Meera"}
	b := app.browser(t)

	q := startSocial(t, b)
	res, _ := b.get("/auth/callback/google?state=" + url.QueryEscape(q.Get("state")) + "&code=code-back")
	require.Equal(t, "/complete-profile", location(t, res))
	status, _ := b.postJSON("/api/auth/complete-profile", map[string]string{"account_type": "artisan"})
	require.Equal(t, http.StatusOK, status)
	status, _ = b.postJSON("/api/auth/logout", map[string]string{})
	require.Equal(t, http.StatusOK, status)

	q = startSocial(t, b)
	res, _ = b.get("/auth/callback/google?state=" + url.QueryEscape(q.Get("state")) + "&code=code-back")
	assert.Equal(t, testArtisanURL, location(t, res))
}

func TestSocialCallbackFailures(t *testing.T) {
	app := newTestApp(t)
	b := app.browser(t)

	res, _ := b.get("/auth/callback/google?state=bogus&code=x")
	assert.Equal(t, "/login?error="+url.QueryEscape(socialFlowExpiredMessage), location(t, res))

	q := startSocial(t, b)
	res, _ = b.get("/auth/callback/google?state=" + url.QueryEscape(q.Get("state")) + "&error=access_denied")
	assert.Equal(t, "/login", location(t, res), "a closed consent screen returns quietly")

	res, _ = b.get("/auth/callback/google?state=" + url.QueryEscape(q.Get("state")) + "&code=x")
	assert.Equal(t, "/login?error="+url.QueryEscape(socialFlowExpiredMessage), location(t, res), "state is single use")

	res, _ = b.get("/auth/social/github")
	assert.Equal(t, "/login?error="+url.QueryEscape("This sign-in method is not enabled."), location(t, res))

	q = startSocial(t, b)
	other := app.browser(t)
	res, _ = other.get("/auth/callback/google?state=" + url.QueryEscape(q.Get("state")) + "&code=x")
	assert.Equal(t, "/login?error="+url.QueryEscape(socialFlowExpiredMessage), location(t, res), "state is bound to its session")
}

func TestCompleteProfileWithoutSocialSignIn(t *testing.T) {
	app := newTestApp(t)
	b := app.browser(t)

	status, out := b.postJSON("/api/auth/complete-profile", map[string]string{"account_type": "artisan"})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "action/invalid-entry", out["code"])
	assert.Equal(t, "/login", out["redirect_to"])

	status, out = b.postJSON("/api/auth/complete-profile", map[string]string{"account_type": "collector"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "validation/account_type", out["code"])
}

func TestCatalogEndpoints(t *testing.T) {
	app := newTestApp(t)
	tx := "0xabc"
	app.catalog.products = []catalog.Product{{
		ArtInfo:      catalog.ArtInfo{Name: "Madhubani Fish"},
		Verification: catalog.VerificationData{PublicID: "KK-1"},
	}}
	app.catalog.verify["KK-1"] = catalog.VerificationResponse{
		PublicID: "KK-1",
		Status:   catalog.StatusAnchored,
		TxHash:   &tx,
		Details:  catalog.VerificationDetails{BlockchainVerified: true},
	}
	b := app.browser(t)

	res, body := b.get("/api/products")
	require.Equal(t, http.StatusOK, res.StatusCode)
	var products []catalog.Product
	require.NoError(t, json.Unmarshal(body, &products))
	require.Len(t, products, 1)
	assert.Equal(t, "Madhubani Fish", products[0].ArtInfo.Name)

	res, body = b.get("/api/verify/KK-1")
	require.Equal(t, http.StatusOK, res.StatusCode)
	var verified map[string]any
	require.NoError(t, json.Unmarshal(body, &verified))
	assert.Equal(t, true, verified["verified"])
	assert.Equal(t, "KK-1", verified["public_id"])
	assert.Equal(t, "https://scan.test/tx/0xabc", verified["explorer_url"])

	res, body = b.get("/api/verify/KK-404")
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Contains(t, string(body), "No record found for this item.")

	app.catalog.err = errors.New("upstream down")
	res, _ = b.get("/api/products")
	assert.Equal(t, http.StatusBadGateway, res.StatusCode)
}

func TestCatalogEndpointsWithoutCatalog(t *testing.T) {
	h := newHandler(testConfig(), Deps{})
	rec := httptest.NewRecorder()
	h.apiProducts(rec, httptest.NewRequest(http.MethodGet, "/api/products", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestProductsEncodesEmptyList(t *testing.T) {
	app := newTestApp(t)
	res, body := app.browser(t).get("/api/products")
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.JSONEq(t, "[]", string(body))
}

func multipartImage(t *testing.T, filename, contentType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestUploadImage(t *testing.T) {
	app := newTestApp(t)
	b := app.browser(t)

	res, body := b.get("/upload")
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(body), "<h1>Upload artwork image</h1>")
	assert.Contains(t, string(body), "Images up to 1 MB.")
	token := b.cookie(csrfCookieName)
	require.NotEmpty(t, token)

	send := func(withToken bool, filename, contentType string) (*http.Response, []byte) {
		payload, ct := multipartImage(t, filename, contentType, []byte("\x89PNG data"))
		req, err := http.NewRequest(http.MethodPost, app.srv.URL+"/upload-image/", payload)
		require.NoError(t, err)
		req.Header.Set("Content-Type", ct)
		if withToken {
			req.Header.Set("X-CSRF-Token", token)
		}
		return b.do(req)
	}

	res, _ = send(false, "pot.png", "image/png")
	assert.Equal(t, http.StatusForbidden, res.StatusCode)

	res, body = send(true, "pot.png", "image/png")
	require.Equal(t, http.StatusOK, res.StatusCode, string(body))
	assert.JSONEq(t, `{"file_url":"https://cdn.test/kalakaari/pot.png"}`, string(body))
	assert.Equal(t, "pot.png", app.uploader.filename)
	assert.Equal(t, []byte("\x89PNG data"), app.uploader.body)

	res, _ = send(true, "notes.txt", "text/plain")
	assert.Equal(t, http.StatusUnsupportedMediaType, res.StatusCode)

	var empty bytes.Buffer
	mw := multipart.NewWriter(&empty)
	require.NoError(t, mw.WriteField("note", "no file"))
	require.NoError(t, mw.Close())
	req, err := http.NewRequest(http.MethodPost, app.srv.URL+"/upload-image/", &empty)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-CSRF-Token", token)
	res, body = b.do(req)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Contains(t, string(body), "No file provided")
}

func TestHealthz(t *testing.T) {
	ok := PingFunc(func(context.Context) error { return nil })
	down := PingFunc(func(context.Context) error { return errors.New("connection refused") })

	h := newHandler(testConfig(), Deps{DB: ok, Redis: ok})
	rec := httptest.NewRecorder()
	h.healthz(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","database":"up","redis":"up"}`, rec.Body.String())

	h = newHandler(testConfig(), Deps{DB: ok, Redis: down})
	rec = httptest.NewRecorder()
	h.healthz(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status":"degraded","database":"up","redis":"connection refused"}`, rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	app := newTestApp(t)
	res, body := app.browser(t).get("/metrics")
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(body), "live_sessions")
}

func TestSessionToken(t *testing.T) {
	h := newHandler(testConfig(), Deps{})
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	h.now = func() time.Time { return now }

	token, expiresAt, err := h.issueSessionToken("sid-1", now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Hour), expiresAt)

	claims, err := h.parseSessionToken(token)
	require.NoError(t, err)
	assert.Equal(t, "sid-1", claims.SessionID)
	assert.Equal(t, sessionIssuer, claims.Issuer)

	other := h
	other.sessionSecret = []byte("another-secret-0123456789abcdefghij")
	_, err = other.parseSessionToken(token)
	assert.Error(t, err, "a token signed with another secret is rejected")

	later := h
	later.now = func() time.Time { return now.Add(2 * time.Hour) }
	claims, err = later.parseSessionToken(token)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired, "an expired token is rejected")
	assert.Equal(t, "sid-1", claims.SessionID, "an expired but genuine token still names its session")

	forged := other
	forged.now = later.now
	claims, err = forged.parseSessionToken(token)
	assert.Error(t, err)
	assert.Empty(t, claims.SessionID, "a token with a bad signature names nothing")

	_, _, err = h.issueSessionToken(" ", now)
	assert.Error(t, err)
}

func TestOAuthFlowStore(t *testing.T) {
	store := newOAuthFlowStore(time.Minute)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	flow, err := store.create("google", "sid-1", now)
	require.NoError(t, err)
	assert.NotEmpty(t, flow.CodeVerifier)
	assert.NotEqual(t, flow.State, flow.CodeVerifier)

	got, err := store.consume(flow.State, "google", "sid-1", now.Add(30*time.Second))
	require.NoError(t, err)
	assert.Equal(t, flow.CodeVerifier, got.CodeVerifier)
	_, err = store.consume(flow.State, "google", "sid-1", now)
	assert.ErrorIs(t, err, errOAuthFlowNotFound)

	flow, err = store.create("google", "sid-1", now)
	require.NoError(t, err)
	_, err = store.consume(flow.State, "google", "sid-2", now)
	assert.ErrorIs(t, err, errOAuthFlowNotFound)
	_, err = store.consume(flow.State, "google", "sid-1", now)
	assert.ErrorIs(t, err, errOAuthFlowNotFound, "a mismatched attempt burns the state")

	flow, err = store.create("google", "sid-1", now)
	require.NoError(t, err)
	_, err = store.consume(flow.State, "google", "sid-1", now.Add(2*time.Minute))
	assert.ErrorIs(t, err, errOAuthFlowNotFound)
}

func TestActionErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{&auth.ValidationError{Field: "email", Message: "Email is required"}, http.StatusBadRequest, "validation/email"},
		{&identity.Error{Code: identity.CodeNetwork}, http.StatusServiceUnavailable, identity.CodeNetwork},
		{&identity.Error{Code: identity.CodeAccountExists}, http.StatusConflict, identity.CodeAccountExists},
		{&identity.Error{Code: identity.CodeInternal}, http.StatusInternalServerError, identity.CodeInternal},
		{auth.ErrInFlight, http.StatusConflict, "action/in-flight"},
		{auth.ErrSuperseded, http.StatusConflict, "action/superseded"},
		{errors.Join(auth.ErrPendingWrite, errors.New("redis down")), http.StatusInternalServerError, "profile/pending-write-failed"},
		{errors.New("boom"), http.StatusInternalServerError, "internal"},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			assert.Equal(t, tc.status, actionErrorStatus(tc.err))
			assert.Equal(t, tc.code, actionErrorCode(tc.err))
		})
	}
}
