package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/benpsk/kalakaari-shop/internal/user"
	goredis "github.com/redis/go-redis/v9"
)

const defaultPendingTTL = 12 * time.Hour

// PendingProfiles stores one Pending-Profile record per browser session.
type PendingProfiles struct {
	client goredis.Cmdable
	prefix string
	ttl    time.Duration
}

func NewPendingProfiles(client goredis.Cmdable, ttl time.Duration) *PendingProfiles {
	if ttl <= 0 {
		ttl = defaultPendingTTL
	}
	return &PendingProfiles{client: client, prefix: "pending_profile:", ttl: ttl}
}

// Slot returns the record slot of sessionID.
func (p *PendingProfiles) Slot(sessionID string) *PendingSlot {
	return &PendingSlot{store: p, key: p.prefix + sessionID}
}

type PendingSlot struct {
	store *PendingProfiles
	key   string
}

func (s *PendingSlot) Get(ctx context.Context) (user.PendingProfile, bool, error) {
	raw, err := s.store.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return user.PendingProfile{}, false, nil
	}
	if err != nil {
		return user.PendingProfile{}, false, fmt.Errorf("pending profile: get: %w", err)
	}

	var rec user.PendingProfile
	if err := json.Unmarshal(raw, &rec); err != nil || rec.Validate() != nil {
		// Unreadable records are dropped rather than surfaced.
		_ = s.store.client.Del(ctx, s.key).Err()
		return user.PendingProfile{}, false, nil
	}
	return rec, true, nil
}

func (s *PendingSlot) Put(ctx context.Context, rec user.PendingProfile) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("pending profile: marshal: %w", err)
	}
	if err := s.store.client.Set(ctx, s.key, data, s.store.ttl).Err(); err != nil {
		return fmt.Errorf("pending profile: put: %w", err)
	}
	return nil
}

// Clear is a no-op when the slot is already empty.
func (s *PendingSlot) Clear(ctx context.Context) error {
	if err := s.store.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("pending profile: clear: %w", err)
	}
	return nil
}
