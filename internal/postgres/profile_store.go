package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/benpsk/kalakaari-shop/internal/user"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ProfileStore is the users collection: one jsonb document per uid.
type ProfileStore struct {
	db DBTX
}

func NewProfileStore(pool *pgxpool.Pool) *ProfileStore {
	return &ProfileStore{db: pool}
}

func (s *ProfileStore) Get(ctx context.Context, uid string) (user.Profile, error) {
	db := DBFromContext(ctx, s.db)
	var out user.Profile
	err := db.QueryRow(ctx, `select doc from users where uid = $1`, strings.TrimSpace(uid)).Scan(&out)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user.Profile{}, user.ErrNotFound
		}
		return user.Profile{}, fmt.Errorf("get profile: %w", err)
	}
	if out.UID == "" {
		out.UID = uid
	}
	return out, nil
}

// Set writes the document for p.UID. Without merge the stored document is
// replaced. With merge the fields of p are laid over the stored document and
// an existing createdAt is kept.
func (s *ProfileStore) Set(ctx context.Context, p user.Profile, merge bool) error {
	if err := p.Validate(); err != nil {
		return err
	}
	db := DBFromContext(ctx, s.db)

	query := `
		insert into users (uid, doc)
		values ($1, $2)
		on conflict (uid) do update
		set doc = excluded.doc, updated_at = now()
	`
	if merge {
		query = `
			insert into users (uid, doc)
			values ($1, $2)
			on conflict (uid) do update
			set doc = case
					when users.doc ? 'createdAt'
						then users.doc || excluded.doc || jsonb_build_object('createdAt', users.doc->'createdAt')
					else users.doc || excluded.doc
				end,
				updated_at = now()
		`
	}
	if _, err := db.Exec(ctx, query, p.UID, p); err != nil {
		return fmt.Errorf("set profile: %w", err)
	}
	return nil
}
