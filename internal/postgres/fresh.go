package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// resetStatements rebuild an empty public schema. The ledger tables live in
// public, so a reset also forgets every applied migration and seeder.
var resetStatements = []string{
	`drop schema if exists public cascade`,
	`create schema public`,
	`grant all on schema public to public`,
	`grant all on schema public to current_user`,
}

// ResetSchema drops and recreates the public schema, removing all objects.
func ResetSchema(ctx context.Context, pool *pgxpool.Pool) error {
	return InTx(ctx, pool, func(ctx context.Context, tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `select pg_advisory_xact_lock($1)`, migrationLockID); err != nil {
			return fmt.Errorf("lock reset schema: %w", err)
		}
		for _, stmt := range resetStatements {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("reset schema (%s): %w", stmt, err)
			}
		}
		return nil
	})
}
