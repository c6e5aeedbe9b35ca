package main

import (
	"context"
	"errors"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/benpsk/kalakaari-shop/internal/auth"
	"github.com/benpsk/kalakaari-shop/internal/catalog"
	"github.com/benpsk/kalakaari-shop/internal/config"
	"github.com/benpsk/kalakaari-shop/internal/identity"
	"github.com/benpsk/kalakaari-shop/internal/identity/google"
	"github.com/benpsk/kalakaari-shop/internal/logger"
	"github.com/benpsk/kalakaari-shop/internal/postgres"
	"github.com/benpsk/kalakaari-shop/internal/redis"
	"github.com/benpsk/kalakaari-shop/internal/server"
	"github.com/benpsk/kalakaari-shop/internal/upload"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

const registrySweepInterval = time.Minute

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("env: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logg, err := logger.New(cfg.AppEnv)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logg.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logg); err != nil {
		logg.Fatal("server stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, logg *zap.Logger) error {
	db, err := postgres.Connect(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	rdb, err := redis.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return err
	}
	defer rdb.Close()

	var providers []identity.SocialProvider
	if cfg.Auth.Google.Enabled() {
		callback := strings.TrimRight(cfg.AppURL, "/") + "/auth/callback/google"
		g, err := google.New(ctx, cfg.Auth.Google.ClientID, cfg.Auth.Google.ClientSecret, callback, logg)
		if err != nil {
			return err
		}
		providers = append(providers, g)
	} else {
		logg.Info("google sign-in disabled: GOOGLE_CLIENT_ID or GOOGLE_CLIENT_SECRET not set")
	}

	persistence, err := identity.ParsePersistence(cfg.Auth.Persistence)
	if err != nil {
		return err
	}
	idp := identity.NewService(
		postgres.NewIdentityStore(db),
		redis.NewIdentityStateStore(rdb),
		identity.Options{MinPasswordLength: cfg.Auth.MinPasswordLength, LocalTTL: cfg.Auth.SessionTTL},
		logg,
		providers...,
	)

	pending := redis.NewPendingProfiles(rdb, 0)
	deps := auth.Deps{
		Profiles:          postgres.NewProfileStore(db),
		Policy:            auth.RedirectPolicy{ArtisanURL: cfg.Redirects.ArtisanURL},
		MinPasswordLength: cfg.Auth.MinPasswordLength,
		Log:               logg.Named("auth"),
	}
	registry := auth.NewRegistry(func(ctx context.Context, sessionID string) (*auth.Client, error) {
		sess := idp.Open(ctx, sessionID)
		if err := sess.SetPersistence(ctx, persistence); err != nil {
			return nil, err
		}
		return auth.NewClient(ctx, sessionID, sess, pending.Slot(sessionID), deps), nil
	}, cfg.Auth.ClientIdleTTL, logg.Named("registry"))
	defer registry.Close()
	go registry.Run(ctx, registrySweepInterval)

	products, err := catalog.New(catalog.Options{
		ShopURL:   cfg.Catalog.ShopURL,
		VerifyURL: cfg.Catalog.VerifyURL,
		Timeout:   cfg.Catalog.Timeout,
		CacheTTL:  cfg.Catalog.ProductCacheTTL,
	}, redis.NewProductCache(rdb), logg)
	if err != nil {
		return err
	}

	serverDeps := server.Deps{
		Clients:   registry,
		Providers: idp,
		Catalog:   products,
		DB:        db,
		Redis:     server.PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() }),
		Log:       logg,
	}
	if cfg.Upload.Enabled() {
		uploader, err := upload.New(ctx, upload.Options{
			Endpoint:      cfg.Upload.Endpoint,
			AccessKey:     cfg.Upload.AccessKey,
			SecretKey:     cfg.Upload.SecretKey,
			Bucket:        cfg.Upload.Bucket,
			UseSSL:        cfg.Upload.UseSSL,
			PublicBaseURL: cfg.Upload.PublicBaseURL,
		}, logg)
		if err != nil {
			return err
		}
		serverDeps.Uploader = uploader
	}

	srv := server.New(cfg, server.NewRouter(cfg, serverDeps), logg)
	logg.Info("starting", zap.String("addr", cfg.HTTPAddr), zap.String("env", cfg.AppEnv))
	return srv.Start(ctx)
}
