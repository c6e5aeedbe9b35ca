package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	dbembed "github.com/benpsk/kalakaari-shop/db"
	"github.com/benpsk/kalakaari-shop/internal/config"
	"github.com/benpsk/kalakaari-shop/internal/logger"
	"github.com/benpsk/kalakaari-shop/internal/postgres"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

const (
	defaultMigrationsDir = "db/migrations"
	defaultSeedersDir    = "db/seeders"
	usage                = "usage: %s [migrate|seed|status|fresh|dump] [options]\n"
)

// sqlBundle is one directory of ordered .sql files, either on disk or in the
// embedded copy shipped with the binary.
type sqlBundle struct {
	name       string
	dir        string
	defaultDir string
	embedded   func() (fs.FS, error)
	ensure     func(context.Context, *pgxpool.Pool) error
	fromDir    func(context.Context, *pgxpool.Pool, string) ([]string, error)
	fromFS     func(context.Context, *pgxpool.Pool, fs.FS) ([]string, error)
}

func migrations(dir string) sqlBundle {
	return sqlBundle{
		name:       "migration",
		dir:        dir,
		defaultDir: defaultMigrationsDir,
		embedded:   dbembed.MigrationsFS,
		ensure:     postgres.EnsureTable,
		fromDir:    postgres.Apply,
		fromFS:     postgres.ApplyFS,
	}
}

func seeders(dir string) sqlBundle {
	return sqlBundle{
		name:       "seed",
		dir:        dir,
		defaultDir: defaultSeedersDir,
		embedded:   dbembed.SeedersFS,
		ensure:     postgres.EnsureSeedTable,
		fromDir:    postgres.Seed,
		fromFS:     postgres.SeedFS,
	}
}

// source resolves the bundle to -path on disk or to the embedded copy.
func (b sqlBundle) source() (fs.FS, error) {
	useEmbedded, err := shouldUseEmbedded(b.dir, b.defaultDir)
	if err != nil {
		return nil, err
	}
	if useEmbedded {
		return b.embedded()
	}
	return os.DirFS(b.dir), nil
}

func (b sqlBundle) run(ctx context.Context, pool *pgxpool.Pool) ([]string, error) {
	useEmbedded, err := shouldUseEmbedded(b.dir, b.defaultDir)
	if err != nil {
		return nil, err
	}
	if err := b.ensure(ctx, pool); err != nil {
		return nil, err
	}
	if !useEmbedded {
		return b.fromDir(ctx, pool, b.dir)
	}
	sub, err := b.embedded()
	if err != nil {
		return nil, err
	}
	return b.fromFS(ctx, pool, sub)
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, usage, os.Args[0])
		os.Exit(2)
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
		os.Exit(1)
	}
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logg, err := logger.New(cfg.AppEnv)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = logg.Sync() }()
	logg = logg.Named("cli")

	var cmdErr error
	switch os.Args[1] {
	case "migrate":
		cmdErr = runMigrate(cfg, logg, os.Args[2:])
	case "seed":
		cmdErr = runSeed(cfg, logg, os.Args[2:])
	case "status":
		cmdErr = runStatus(cfg, os.Args[2:])
	case "fresh":
		cmdErr = runFresh(cfg, logg, os.Args[2:])
	case "dump":
		cmdErr = runDump(cfg, logg, os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, usage, os.Args[0])
		os.Exit(2)
	}
	if cmdErr != nil {
		logg.Error("command failed", zap.String("command", os.Args[1]), zap.Error(cmdErr))
		_ = logg.Sync()
		os.Exit(1)
	}
}

func withPool(cfg config.Config, fn func(context.Context, *pgxpool.Pool) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pool, err := postgres.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer pool.Close()
	return fn(ctx, pool)
}

func runMigrate(cfg config.Config, logg *zap.Logger, args []string) error {
	flags := flag.NewFlagSet("migrate", flag.ExitOnError)
	dir := flags.String("path", defaultMigrationsDir, "directory containing .sql migrations (overrides embedded bundle)")
	_ = flags.Parse(args)

	return withPool(cfg, func(ctx context.Context, pool *pgxpool.Pool) error {
		return runBundle(ctx, pool, logg, migrations(*dir))
	})
}

func runSeed(cfg config.Config, logg *zap.Logger, args []string) error {
	flags := flag.NewFlagSet("seed", flag.ExitOnError)
	dir := flags.String("path", defaultSeedersDir, "directory containing .sql seeders (overrides embedded bundle)")
	_ = flags.Parse(args)

	return withPool(cfg, func(ctx context.Context, pool *pgxpool.Pool) error {
		return runBundle(ctx, pool, logg, seeders(*dir))
	})
}

// runStatus prints each migration with whether it has been applied.
func runStatus(cfg config.Config, args []string) error {
	flags := flag.NewFlagSet("status", flag.ExitOnError)
	dir := flags.String("path", defaultMigrationsDir, "directory containing .sql migrations (overrides embedded bundle)")
	_ = flags.Parse(args)

	b := migrations(*dir)
	return withPool(cfg, func(ctx context.Context, pool *pgxpool.Pool) error {
		if err := b.ensure(ctx, pool); err != nil {
			return err
		}
		src, err := b.source()
		if err != nil {
			return err
		}
		statuses, err := postgres.MigrationStatus(ctx, pool, src)
		if err != nil {
			return err
		}
		for _, st := range statuses {
			mark := "pending"
			if st.Applied {
				mark = "applied"
			}
			fmt.Printf("%-8s %s\n", mark, st.Name)
		}
		return nil
	})
}

// runFresh rebuilds the schema from scratch. It refuses to run outside
// development.
func runFresh(cfg config.Config, logg *zap.Logger, args []string) error {
	flags := flag.NewFlagSet("fresh", flag.ExitOnError)
	migrationsDir := flags.String("path", defaultMigrationsDir, "directory containing .sql migrations (overrides embedded bundle)")
	seed := flags.Bool("seed", false, "apply seed files after migrations")
	seedersDir := flags.String("seed-path", defaultSeedersDir, "directory containing .sql seeders (overrides embedded bundle)")
	_ = flags.Parse(args)

	if cfg.AppEnv != "development" {
		return fmt.Errorf("APP_ENV must be development (got %q)", cfg.AppEnv)
	}

	return withPool(cfg, func(ctx context.Context, pool *pgxpool.Pool) error {
		if err := postgres.ResetSchema(ctx, pool); err != nil {
			return err
		}
		logg.Info("schema reset")
		if err := runBundle(ctx, pool, logg, migrations(*migrationsDir)); err != nil {
			return err
		}
		if !*seed {
			return nil
		}
		return runBundle(ctx, pool, logg, seeders(*seedersDir))
	})
}

func runBundle(ctx context.Context, pool *pgxpool.Pool, logg *zap.Logger, b sqlBundle) error {
	applied, err := b.run(ctx, pool)
	if err != nil {
		return fmt.Errorf("%s: %w", b.name, err)
	}
	if len(applied) == 0 {
		logg.Info("nothing to apply", zap.String("kind", b.name))
		return nil
	}
	for _, name := range applied {
		logg.Info("applied", zap.String("kind", b.name), zap.String("file", name))
	}
	return nil
}

func runDump(cfg config.Config, logg *zap.Logger, args []string) error {
	flags := flag.NewFlagSet("dump", flag.ExitOnError)
	out := flags.String("out", defaultDumpPath(), "output file path")
	schemaOnly := flags.Bool("schema-only", false, "dump schema only")
	dataOnly := flags.Bool("data-only", false, "dump data only")
	binary := flags.String("pg-dump-bin", "pg_dump", "pg_dump binary path")
	_ = flags.Parse(args)

	if *schemaOnly && *dataOnly {
		return errors.New("choose only one of -schema-only or -data-only")
	}
	if err := os.MkdirAll(filepath.Dir(*out), 0o755); err != nil {
		return fmt.Errorf("mkdir output dir: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	dumpArgs := []string{
		"--dbname", cfg.Database.URL,
		"--format=plain",
		"--no-owner",
		"--no-privileges",
		"--file", *out,
	}
	switch {
	case *schemaOnly:
		dumpArgs = append(dumpArgs, "--schema-only")
	case *dataOnly:
		dumpArgs = append(dumpArgs, "--data-only")
	}

	cmd := exec.CommandContext(ctx, *binary, dumpArgs...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	logg.Info("running pg_dump", zap.String("binary", *binary), zap.String("out", *out))
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("pg_dump: %w", err)
	}
	logg.Info("dump written", zap.String("out", *out))
	return nil
}

func defaultDumpPath() string {
	return filepath.Join("tmp", "dump-"+time.Now().Format("20060102-150405")+".sql")
}

func shouldUseEmbedded(path, defaultPath string) (bool, error) {
	if path == "" {
		return true, nil
	}

	info, err := os.Stat(path)
	switch {
	case err == nil:
		if !info.IsDir() {
			return false, fmt.Errorf("path %q is not a directory", path)
		}
		return false, nil
	case errors.Is(err, os.ErrNotExist):
		if path == defaultPath {
			return true, nil
		}
		return false, fmt.Errorf("path %q not found", path)
	default:
		return false, fmt.Errorf("stat path %q: %w", path, err)
	}
}
