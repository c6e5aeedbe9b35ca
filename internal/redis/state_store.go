package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// IdentityStateStore remembers the signed-in uid of each browser session.
type IdentityStateStore struct {
	client goredis.Cmdable
	prefix string
}

func NewIdentityStateStore(client goredis.Cmdable) *IdentityStateStore {
	return &IdentityStateStore{client: client, prefix: "auth_state:"}
}

func (s *IdentityStateStore) key(sessionID string) string {
	return s.prefix + sessionID
}

func (s *IdentityStateStore) Save(ctx context.Context, sessionID, uid string, ttl time.Duration) error {
	if sessionID == "" || uid == "" {
		return errors.New("auth state: missing session id or uid")
	}
	if ttl <= 0 {
		return s.Delete(ctx, sessionID)
	}
	if err := s.client.Set(ctx, s.key(sessionID), uid, ttl).Err(); err != nil {
		return fmt.Errorf("auth state: save: %w", err)
	}
	return nil
}

// Load returns "" when nothing is stored for sessionID.
func (s *IdentityStateStore) Load(ctx context.Context, sessionID string) (string, error) {
	uid, err := s.client.Get(ctx, s.key(sessionID)).Result()
	if errors.Is(err, goredis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("auth state: load: %w", err)
	}
	return uid, nil
}

func (s *IdentityStateStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, s.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("auth state: delete: %w", err)
	}
	return nil
}
