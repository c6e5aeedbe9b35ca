package server

import (
	"context"
	"encoding/json"
	"io"
	"io/fs"
	"net/http"
	"time"

	"github.com/a-h/templ"
	"github.com/benpsk/kalakaari-shop/internal/auth"
	"github.com/benpsk/kalakaari-shop/internal/catalog"
	"github.com/benpsk/kalakaari-shop/internal/config"
	"github.com/benpsk/kalakaari-shop/internal/identity"
	"go.uber.org/zap"
)

// Clients hands out the live auth client of a browser session.
type Clients interface {
	Get(ctx context.Context, sessionID string) (*auth.Client, error)
	// Forget closes the client of a session id that will not be used again.
	Forget(sessionID string)
	Len() int
}

type SocialProviders interface {
	Provider(name string) (identity.SocialProvider, bool)
}

type Catalog interface {
	Products(ctx context.Context) ([]catalog.Product, error)
	Verify(ctx context.Context, publicID string) (catalog.VerificationResponse, error)
}

type ImageUploader interface {
	Upload(ctx context.Context, filename string, r io.Reader, size int64, contentType string) (string, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error {
	return f(ctx)
}

// Deps are the collaborators the HTTP layer is built on. Catalog, Uploader,
// DB and Redis may be nil.
type Deps struct {
	Clients   Clients
	Providers SocialProviders
	Catalog   Catalog
	Uploader  ImageUploader
	DB        Pinger
	Redis     Pinger
	Static    fs.FS
	Log       *zap.Logger
}

type handler struct {
	appName                  string
	appEnv                   string
	appURL                   string
	sessionCookieName        string
	sessionCookieForceSecure bool
	sessionTTL               time.Duration
	sessionSecret            []byte
	explorerTxURL            string
	maxUploadBytes           int64

	clients   Clients
	providers SocialProviders
	catalog   Catalog
	uploader  ImageUploader
	db        Pinger
	redis     Pinger
	flows     *oauthFlowStore
	log       *zap.Logger
	now       func() time.Time
}

func newHandler(cfg config.Config, deps Deps) handler {
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	return handler{
		appName:                  cfg.AppName,
		appEnv:                   cfg.AppEnv,
		appURL:                   cfg.AppURL,
		sessionCookieName:        cfg.Auth.SessionCookieName,
		sessionCookieForceSecure: cfg.Auth.CookieSecure,
		sessionTTL:               cfg.Auth.SessionTTL,
		sessionSecret:            []byte(cfg.Auth.SessionSecret),
		explorerTxURL:            cfg.Catalog.ExplorerTxURL,
		maxUploadBytes:           cfg.Upload.MaxBytes,
		clients:                  deps.Clients,
		providers:                deps.Providers,
		catalog:                  deps.Catalog,
		uploader:                 deps.Uploader,
		db:                       deps.DB,
		redis:                    deps.Redis,
		flows:                    newOAuthFlowStore(5 * time.Minute),
		log:                      log.Named("http"),
		now:                      time.Now,
	}
}

func (h handler) healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	payload := map[string]any{"status": "ok", "database": "up", "redis": "up"}
	if h.clients != nil {
		payload["live_sessions"] = h.clients.Len()
	}
	status := http.StatusOK

	if h.db != nil {
		if err := h.db.Ping(ctx); err != nil {
			payload["status"] = "degraded"
			payload["database"] = err.Error()
			status = http.StatusServiceUnavailable
		}
	}
	if h.redis != nil {
		if err := h.redis.Ping(ctx); err != nil {
			payload["status"] = "degraded"
			payload["redis"] = err.Error()
			status = http.StatusServiceUnavailable
		}
	}

	writeJSON(w, status, payload)
}

func (h handler) renderPage(w http.ResponseWriter, r *http.Request, component templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := component.Render(r.Context(), w); err != nil {
		h.log.Error("render page", zap.String("path", r.URL.Path), zap.Error(err))
		http.Error(w, "failed to render page", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
