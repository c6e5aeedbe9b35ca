package server

import (
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/benpsk/kalakaari-shop/internal/auth"
	"github.com/benpsk/kalakaari-shop/internal/config"
	"github.com/benpsk/kalakaari-shop/internal/metrics"
	webstatic "github.com/benpsk/kalakaari-shop/static"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

func NewRouter(cfg config.Config, deps Deps) *chi.Mux {
	r := chi.NewRouter()

	if deps.Static == nil {
		deps.Static = webstatic.FS()
		if _, err := os.Stat("static"); err == nil {
			deps.Static = os.DirFS("static")
		}
	}
	h := newHandler(cfg, deps)
	limiter := newRateLimiter(defaultRateLimitRequests, defaultRateLimitWindow)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   appOrigins(cfg.AppURL),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-CSRF-Token"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.log))
	r.Use(middleware.Recoverer)
	r.Use(securityHeaders)

	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(deps.Static))))
	r.Get("/healthz", h.healthz)
	r.Get("/api/health", h.healthz)
	r.Handle("/metrics", metrics.Handler())

	r.Get("/api/products", h.apiProducts)
	r.Get("/api/verify/{publicID}", h.apiVerify)

	r.Group(func(r chi.Router) {
		r.Use(h.loadSession)

		r.Group(func(r chi.Router) {
			r.Use(csrfProtection)

			r.Get("/", func(w http.ResponseWriter, r *http.Request) {
				http.Redirect(w, r, auth.PathLogin, http.StatusSeeOther)
			})
			r.With(h.requireGuest).Get(auth.PathLogin, h.loginPage)
			r.With(h.requireGuest).Get("/signup", h.signupPage)
			r.With(h.requireAuth).Get(auth.PathHome, h.homePage)
			r.Get(auth.PathCompleteProfile, h.completeProfilePage)
			r.Get("/upload", h.uploadPage)
			r.Post("/upload-image/", h.uploadImage)
		})

		r.With(limiter.limitByIP("social_start")).Get("/auth/social/{provider}", h.socialStart)
		r.Get("/auth/callback/{provider}", h.socialCallback)

		r.Route("/api", func(r chi.Router) {
			r.Get("/session", h.apiSession)
			r.Get("/auth/pending-profile", h.apiPendingProfile)

			r.Group(func(r chi.Router) {
				r.Use(limiter.limitByIP("api_auth"))
				r.Post("/auth/login", h.apiLogin)
				r.Post("/auth/signup", h.apiSignup)
			})
			r.Post("/auth/complete-profile", h.apiCompleteProfile)
			r.With(h.requireAuth).Post("/auth/logout", h.apiLogout)
		})
	})

	return r
}

func appOrigins(appURL string) []string {
	appURL = strings.TrimSpace(appURL)
	if appURL == "" {
		return nil
	}
	parsed, err := url.Parse(appURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil
	}
	return []string{parsed.Scheme + "://" + parsed.Host}
}
