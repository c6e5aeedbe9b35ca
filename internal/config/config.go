package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultAppName           = "Kalakaari Shop"
	defaultAppEnv            = "development"
	defaultAppURL            = "http://127.0.0.1:8080"
	defaultHTTPAddr          = ":8080"
	defaultShutdownTimeout   = 5 * time.Second
	defaultSessionCookie     = "kalakaari_session"
	defaultSessionTTL        = 30 * 24 * time.Hour
	defaultDevSessionSecret  = "kalakaari-development-session-secret"
	defaultPersistence       = "local"
	defaultMinPasswordLength = 6
	defaultClientIdleTTL     = 30 * time.Minute
	defaultArtisanURL        = "https://agentic-service-978458840399.asia-southeast1.run.app/dev-ui/?app=agents"
	defaultDBMaxConns        = int32(4)
	defaultDBConnLifetime    = 30 * time.Minute
	defaultDBConnIdleTime    = 5 * time.Minute
	defaultRedisAddr         = "127.0.0.1:6379"
	defaultShopAPIURL        = "https://kalakaari-shop-backend-978458840399.asia-southeast1.run.app"
	defaultVerifyAPIURL      = "https://master-ip-service-978458840399.asia-southeast1.run.app"
	defaultExplorerTxURL     = "https://amoy.polygonscan.com/tx/"
	defaultCatalogTimeout    = 10 * time.Second
	defaultProductCacheTTL   = time.Minute
	defaultUploadBucket      = "kalakaari"
	defaultUploadMaxBytes    = int64(10 << 20)
	minProdSessionSecret     = 32
)

type Config struct {
	AppName         string
	AppEnv          string
	AppURL          string
	HTTPAddr        string
	ShutdownTimeout time.Duration
	Auth            AuthConfig
	Redirects       RedirectConfig
	Database        DatabaseConfig
	Redis           RedisConfig
	Catalog         CatalogConfig
	Upload          UploadConfig
}

type AuthConfig struct {
	SessionCookieName string
	SessionSecret     string
	SessionTTL        time.Duration
	CookieSecure      bool
	// Persistence is the identity persistence mode: local, session or none.
	Persistence       string
	MinPasswordLength int
	ClientIdleTTL     time.Duration
	Google            OAuthClientConfig
}

type OAuthClientConfig struct {
	ClientID     string
	ClientSecret string
}

func (c OAuthClientConfig) Enabled() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

type RedirectConfig struct {
	ArtisanURL string
}

type DatabaseConfig struct {
	URL             string
	MaxConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type CatalogConfig struct {
	ShopURL         string
	VerifyURL       string
	ExplorerTxURL   string
	Timeout         time.Duration
	ProductCacheTTL time.Duration
}

type UploadConfig struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	Bucket        string
	UseSSL        bool
	PublicBaseURL string
	MaxBytes      int64
}

func (c UploadConfig) Enabled() bool {
	return c.Endpoint != ""
}

func Load() (Config, error) {
	cfg := Config{
		AppName:         defaultAppName,
		AppEnv:          defaultAppEnv,
		AppURL:          defaultAppURL,
		HTTPAddr:        defaultHTTPAddr,
		ShutdownTimeout: defaultShutdownTimeout,
		Auth: AuthConfig{
			SessionCookieName: defaultSessionCookie,
			SessionTTL:        defaultSessionTTL,
			Persistence:       defaultPersistence,
			MinPasswordLength: defaultMinPasswordLength,
			ClientIdleTTL:     defaultClientIdleTTL,
		},
		Redirects: RedirectConfig{ArtisanURL: defaultArtisanURL},
		Database: DatabaseConfig{
			MaxConns:        defaultDBMaxConns,
			MaxConnLifetime: defaultDBConnLifetime,
			MaxConnIdleTime: defaultDBConnIdleTime,
		},
		Redis: RedisConfig{Addr: defaultRedisAddr},
		Catalog: CatalogConfig{
			ShopURL:         defaultShopAPIURL,
			VerifyURL:       defaultVerifyAPIURL,
			ExplorerTxURL:   defaultExplorerTxURL,
			Timeout:         defaultCatalogTimeout,
			ProductCacheTTL: defaultProductCacheTTL,
		},
		Upload: UploadConfig{
			Bucket:   defaultUploadBucket,
			MaxBytes: defaultUploadMaxBytes,
		},
	}

	setString(&cfg.AppName, "APP_NAME")
	setString(&cfg.AppEnv, "APP_ENV")
	setString(&cfg.AppURL, "APP_URL")
	setString(&cfg.HTTPAddr, "HTTP_ADDR")
	if err := setDuration(&cfg.ShutdownTimeout, "SHUTDOWN_TIMEOUT"); err != nil {
		return Config{}, err
	}

	setString(&cfg.Auth.SessionCookieName, "AUTH_SESSION_COOKIE_NAME")
	setString(&cfg.Auth.SessionSecret, "AUTH_SESSION_SECRET")
	if err := setDuration(&cfg.Auth.SessionTTL, "AUTH_SESSION_TTL"); err != nil {
		return Config{}, err
	}
	if err := setBool(&cfg.Auth.CookieSecure, "AUTH_COOKIE_SECURE"); err != nil {
		return Config{}, err
	}
	setString(&cfg.Auth.Persistence, "AUTH_PERSISTENCE")
	if v := strings.TrimSpace(os.Getenv("AUTH_MIN_PASSWORD_LENGTH")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Config{}, errors.New("AUTH_MIN_PASSWORD_LENGTH must be a positive integer")
		}
		cfg.Auth.MinPasswordLength = n
	}
	if err := setDuration(&cfg.Auth.ClientIdleTTL, "AUTH_CLIENT_IDLE_TTL"); err != nil {
		return Config{}, err
	}
	cfg.Auth.Google.ClientID = strings.TrimSpace(os.Getenv("GOOGLE_CLIENT_ID"))
	cfg.Auth.Google.ClientSecret = strings.TrimSpace(os.Getenv("GOOGLE_CLIENT_SECRET"))

	setString(&cfg.Redirects.ArtisanURL, "REDIRECT_ARTISAN_URL")

	setString(&cfg.Redis.Addr, "REDIS_ADDR")
	cfg.Redis.Password = os.Getenv("REDIS_PASSWORD")
	if v := strings.TrimSpace(os.Getenv("REDIS_DB")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return Config{}, errors.New("REDIS_DB must be a non-negative integer")
		}
		cfg.Redis.DB = n
	}

	setString(&cfg.Catalog.ShopURL, "SHOP_API_URL")
	setString(&cfg.Catalog.VerifyURL, "VERIFY_API_URL")
	setString(&cfg.Catalog.ExplorerTxURL, "EXPLORER_TX_URL")
	if err := setDuration(&cfg.Catalog.Timeout, "CATALOG_TIMEOUT"); err != nil {
		return Config{}, err
	}
	if err := setDuration(&cfg.Catalog.ProductCacheTTL, "PRODUCT_CACHE_TTL"); err != nil {
		return Config{}, err
	}

	setString(&cfg.Upload.Endpoint, "UPLOAD_ENDPOINT")
	cfg.Upload.AccessKey = strings.TrimSpace(os.Getenv("UPLOAD_ACCESS_KEY"))
	cfg.Upload.SecretKey = strings.TrimSpace(os.Getenv("UPLOAD_SECRET_KEY"))
	setString(&cfg.Upload.Bucket, "UPLOAD_BUCKET")
	if err := setBool(&cfg.Upload.UseSSL, "UPLOAD_USE_SSL"); err != nil {
		return Config{}, err
	}
	setString(&cfg.Upload.PublicBaseURL, "UPLOAD_PUBLIC_BASE_URL")
	if v := strings.TrimSpace(os.Getenv("UPLOAD_MAX_BYTES")); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			return Config{}, errors.New("UPLOAD_MAX_BYTES must be a positive integer")
		}
		cfg.Upload.MaxBytes = n
	}

	appURL, err := url.Parse(strings.TrimSpace(cfg.AppURL))
	if err != nil || appURL.Scheme == "" || appURL.Host == "" {
		return Config{}, errors.New("APP_URL must be a valid absolute URL")
	}
	production := strings.EqualFold(cfg.AppEnv, "production")
	if production && !strings.EqualFold(appURL.Scheme, "https") {
		return Config{}, errors.New("APP_URL must use https in production")
	}
	cfg.AppURL = strings.TrimRight(appURL.String(), "/")

	switch strings.ToLower(cfg.Auth.Persistence) {
	case "local", "session", "none":
		cfg.Auth.Persistence = strings.ToLower(cfg.Auth.Persistence)
	default:
		return Config{}, fmt.Errorf("AUTH_PERSISTENCE must be local, session or none (got %q)", cfg.Auth.Persistence)
	}
	if cfg.Auth.SessionSecret == "" {
		if production {
			return Config{}, errors.New("AUTH_SESSION_SECRET is required in production")
		}
		cfg.Auth.SessionSecret = defaultDevSessionSecret
	}
	if production && len(cfg.Auth.SessionSecret) < minProdSessionSecret {
		return Config{}, fmt.Errorf("AUTH_SESSION_SECRET must be at least %d characters in production", minProdSessionSecret)
	}
	if cfg.Auth.SessionTTL <= 0 {
		cfg.Auth.SessionTTL = defaultSessionTTL
	}
	if cfg.Auth.ClientIdleTTL <= 0 {
		cfg.Auth.ClientIdleTTL = defaultClientIdleTTL
	}
	if cfg.Redirects.ArtisanURL != "" {
		u, err := url.Parse(cfg.Redirects.ArtisanURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return Config{}, errors.New("REDIRECT_ARTISAN_URL must be a valid absolute URL")
		}
	}

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		return Config{}, errors.New("DATABASE_URL is required")
	}
	cfg.Database.URL = dbURL

	if v := strings.TrimSpace(os.Getenv("DATABASE_MAX_CONNS")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Config{}, errors.New("DATABASE_MAX_CONNS must be a positive integer")
		}
		cfg.Database.MaxConns = int32(n)
	}
	if err := setDuration(&cfg.Database.MaxConnLifetime, "DATABASE_MAX_CONN_LIFETIME"); err != nil {
		return Config{}, err
	}
	if err := setDuration(&cfg.Database.MaxConnIdleTime, "DATABASE_MAX_CONN_IDLE_TIME"); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}
	*dst = b
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	d, err := parseDuration(v)
	if err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}
	*dst = d
	return nil
}

func parseDuration(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, errors.New("empty duration")
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d, nil
	}
	seconds, err := strconv.Atoi(v)
	if err != nil {
		return 0, err
	}
	return time.Duration(seconds) * time.Second, nil
}
