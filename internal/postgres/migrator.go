package postgres

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// migrationLockID serializes schema changes between app instances that
// migrate on the same database at once.
const migrationLockID int64 = 7202611

// ledger tracks which files of one kind (migrations or seeders) have run.
type ledger struct {
	kind  string
	table string
}

var (
	migrationLedger = ledger{kind: "migration", table: "schema_migrations"}
	seedLedger      = ledger{kind: "seed", table: "schema_seeders"}
)

// FileStatus reports whether one .sql file has been applied.
type FileStatus struct {
	Name    string
	Applied bool
}

// EnsureTable creates the bookkeeping table required to track applied migrations.
func EnsureTable(ctx context.Context, pool *pgxpool.Pool) error {
	return migrationLedger.ensure(ctx, pool)
}

// EnsureSeedTable creates the bookkeeping table required to track applied seeders.
func EnsureSeedTable(ctx context.Context, pool *pgxpool.Pool) error {
	return seedLedger.ensure(ctx, pool)
}

// Apply executes unapplied .sql files found in dir, ordered lexicographically.
// Each file runs in its own transaction together with its ledger row.
func Apply(ctx context.Context, pool *pgxpool.Pool, dir string) ([]string, error) {
	fsys, err := dirFS(dir, migrationLedger.kind)
	if err != nil {
		return nil, err
	}
	return migrationLedger.run(ctx, pool, fsys)
}

// ApplyFS executes migrations discovered in the provided filesystem.
func ApplyFS(ctx context.Context, pool *pgxpool.Pool, fsys fs.FS) ([]string, error) {
	return migrationLedger.run(ctx, pool, fsys)
}

// Seed executes unapplied .sql seed files found in dir. Seeders have their
// own ledger table and never mix with schema_migrations.
func Seed(ctx context.Context, pool *pgxpool.Pool, dir string) ([]string, error) {
	fsys, err := dirFS(dir, seedLedger.kind)
	if err != nil {
		return nil, err
	}
	return seedLedger.run(ctx, pool, fsys)
}

// SeedFS executes seeders discovered in the provided filesystem.
func SeedFS(ctx context.Context, pool *pgxpool.Pool, fsys fs.FS) ([]string, error) {
	return seedLedger.run(ctx, pool, fsys)
}

// MigrationStatus lists every migration in fsys and whether it has run.
func MigrationStatus(ctx context.Context, pool *pgxpool.Pool, fsys fs.FS) ([]FileStatus, error) {
	files, err := sqlFiles(fsys)
	if err != nil {
		return nil, err
	}
	out := make([]FileStatus, 0, len(files))
	for _, name := range files {
		applied, err := migrationLedger.applied(ctx, pool, name)
		if err != nil {
			return out, err
		}
		out = append(out, FileStatus{Name: name, Applied: applied})
	}
	return out, nil
}

func dirFS(dir, kind string) (fs.FS, error) {
	info, err := os.Stat(dir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("%s directory %q not found", kind, dir)
	case err != nil:
		return nil, fmt.Errorf("stat %s dir: %w", kind, err)
	case !info.IsDir():
		return nil, fmt.Errorf("%s path %q is not a directory", kind, dir)
	}
	return os.DirFS(dir), nil
}

func (l ledger) ensure(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
        create table if not exists `+l.table+` (
            name text primary key,
            applied_at timestamptz not null default now()
        )
    `)
	if err != nil {
		return fmt.Errorf("create %s: %w", l.table, err)
	}
	return nil
}

func (l ledger) run(ctx context.Context, pool *pgxpool.Pool, fsys fs.FS) ([]string, error) {
	files, err := sqlFiles(fsys)
	if err != nil {
		return nil, fmt.Errorf("read %s files: %w", l.kind, err)
	}

	var applied []string
	for _, name := range files {
		ran, err := l.runFile(ctx, pool, fsys, name)
		if err != nil {
			return applied, err
		}
		if ran {
			applied = append(applied, name)
		}
	}
	return applied, nil
}

// runFile applies one file under a transaction-scoped advisory lock. The
// ledger is re-read after the lock is taken, so a file another instance just
// applied is skipped.
func (l ledger) runFile(ctx context.Context, pool *pgxpool.Pool, fsys fs.FS, name string) (bool, error) {
	if done, err := l.applied(ctx, pool, name); err != nil || done {
		return false, err
	}

	contents, err := fs.ReadFile(fsys, name)
	if err != nil {
		return false, fmt.Errorf("read %s: %w", name, err)
	}
	statement := strings.TrimSpace(string(contents))

	ran := false
	err = InTx(ctx, pool, func(ctx context.Context, tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `select pg_advisory_xact_lock($1)`, migrationLockID); err != nil {
			return fmt.Errorf("lock %s %s: %w", l.kind, name, err)
		}
		if done, err := l.applied(ctx, tx, name); err != nil || done {
			return err
		}
		if statement != "" {
			if _, err := tx.Exec(ctx, statement); err != nil {
				return fmt.Errorf("exec %s %s: %w", l.kind, name, err)
			}
		}
		if _, err := tx.Exec(ctx, `insert into `+l.table+` (name) values ($1)`, name); err != nil {
			return fmt.Errorf("record %s %s: %w", l.kind, name, err)
		}
		ran = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return ran, nil
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (l ledger) applied(ctx context.Context, db rowQuerier, name string) (bool, error) {
	var exists bool
	err := db.QueryRow(ctx, `select exists (select 1 from `+l.table+` where name = $1)`, name).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check %s %s: %w", l.kind, name, err)
	}
	return exists, nil
}

// sqlFiles lists the top-level .sql files of fsys in lexical order.
func sqlFiles(fsys fs.FS) ([]string, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, err
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		files = append(files, entry.Name())
	}
	sort.Strings(files)
	return files, nil
}
