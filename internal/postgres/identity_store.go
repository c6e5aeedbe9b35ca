package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/benpsk/kalakaari-shop/internal/user"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const identityColumns = `uid, email, display_name, provider, coalesce(provider_user_id, ''), created_at, last_sign_in_at`

// IdentityStore keeps identity-provider accounts in the identities table.
type IdentityStore struct {
	db DBTX
}

func NewIdentityStore(pool *pgxpool.Pool) *IdentityStore {
	return &IdentityStore{db: pool}
}

func (s *IdentityStore) CreatePasswordIdentity(ctx context.Context, id user.Identity, passwordHash string) (user.Identity, error) {
	if strings.TrimSpace(passwordHash) == "" {
		return user.Identity{}, errors.New("password hash is required")
	}
	return s.insert(ctx, id, passwordHash)
}

func (s *IdentityStore) CreateSocialIdentity(ctx context.Context, id user.Identity) (user.Identity, error) {
	if strings.TrimSpace(id.ProviderUserID) == "" {
		return user.Identity{}, errors.New("provider user id is required")
	}
	return s.insert(ctx, id, "")
}

func (s *IdentityStore) insert(ctx context.Context, id user.Identity, passwordHash string) (user.Identity, error) {
	db := DBFromContext(ctx, s.db)
	row := db.QueryRow(ctx, `
		insert into identities (uid, email, display_name, provider, provider_user_id, password_hash, created_at, last_sign_in_at)
		values ($1, $2, $3, $4, nullif($5, ''), nullif($6, ''), $7, $8)
		returning `+identityColumns,
		id.UID,
		strings.TrimSpace(strings.ToLower(id.Email)),
		strings.TrimSpace(id.DisplayName),
		strings.TrimSpace(strings.ToLower(id.Provider)),
		strings.TrimSpace(id.ProviderUserID),
		passwordHash,
		id.CreatedAt,
		id.LastSignInAt,
	)
	out, err := scanIdentity(row)
	if err != nil {
		if isUniqueViolation(err) {
			if id.ProviderUserID != "" {
				return user.Identity{}, user.ErrIdentityConflict
			}
			return user.Identity{}, user.ErrEmailConflict
		}
		return user.Identity{}, fmt.Errorf("insert identity: %w", err)
	}
	return out, nil
}

// FindPasswordIdentity returns the password identity for email and its hash.
func (s *IdentityStore) FindPasswordIdentity(ctx context.Context, email string) (user.Identity, string, error) {
	db := DBFromContext(ctx, s.db)
	var out user.Identity
	var hash string
	err := db.QueryRow(ctx, `
		select `+identityColumns+`, password_hash
		from identities
		where email = $1 and password_hash is not null
	`, strings.TrimSpace(strings.ToLower(email))).Scan(
		&out.UID, &out.Email, &out.DisplayName, &out.Provider, &out.ProviderUserID, &out.CreatedAt, &out.LastSignInAt, &hash,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user.Identity{}, "", user.ErrNotFound
		}
		return user.Identity{}, "", fmt.Errorf("find password identity: %w", err)
	}
	return out, hash, nil
}

func (s *IdentityStore) FindByProvider(ctx context.Context, provider, providerUserID string) (user.Identity, error) {
	db := DBFromContext(ctx, s.db)
	out, err := scanIdentity(db.QueryRow(ctx, `
		select `+identityColumns+`
		from identities
		where provider = $1 and provider_user_id = $2
	`, strings.TrimSpace(strings.ToLower(provider)), strings.TrimSpace(providerUserID)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user.Identity{}, user.ErrNotFound
		}
		return user.Identity{}, fmt.Errorf("find identity by provider: %w", err)
	}
	return out, nil
}

func (s *IdentityStore) FindByEmail(ctx context.Context, email string) (user.Identity, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return user.Identity{}, user.ErrNotFound
	}
	db := DBFromContext(ctx, s.db)
	out, err := scanIdentity(db.QueryRow(ctx, `
		select `+identityColumns+`
		from identities
		where email = $1
		order by created_at asc
		limit 1
	`, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user.Identity{}, user.ErrNotFound
		}
		return user.Identity{}, fmt.Errorf("find identity by email: %w", err)
	}
	return out, nil
}

func (s *IdentityStore) FindByUID(ctx context.Context, uid string) (user.Identity, error) {
	db := DBFromContext(ctx, s.db)
	out, err := scanIdentity(db.QueryRow(ctx, `
		select `+identityColumns+`
		from identities
		where uid = $1
	`, strings.TrimSpace(uid)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user.Identity{}, user.ErrNotFound
		}
		return user.Identity{}, fmt.Errorf("find identity by uid: %w", err)
	}
	return out, nil
}

func (s *IdentityStore) UpdateDisplayName(ctx context.Context, uid, name string) error {
	db := DBFromContext(ctx, s.db)
	tag, err := db.Exec(ctx, `update identities set display_name = $2 where uid = $1`, uid, strings.TrimSpace(name))
	if err != nil {
		return fmt.Errorf("update display name: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return user.ErrNotFound
	}
	return nil
}

func (s *IdentityStore) TouchSignIn(ctx context.Context, uid string, at time.Time) error {
	db := DBFromContext(ctx, s.db)
	if _, err := db.Exec(ctx, `update identities set last_sign_in_at = $2 where uid = $1`, uid, at); err != nil {
		return fmt.Errorf("touch sign-in: %w", err)
	}
	return nil
}

func scanIdentity(row pgx.Row) (user.Identity, error) {
	var out user.Identity
	err := row.Scan(&out.UID, &out.Email, &out.DisplayName, &out.Provider, &out.ProviderUserID, &out.CreatedAt, &out.LastSignInAt)
	return out, err
}
