package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/benpsk/kalakaari-shop/internal/metrics"
	"github.com/benpsk/kalakaari-shop/internal/user"
	"go.uber.org/zap"
)

const fallbackProfileEmail = "No Email"

var ErrProfileWrite = errors.New("profile write failed")

// ProfileStore reads and writes profile documents keyed by uid. Get returns
// user.ErrNotFound when no document exists.
type ProfileStore interface {
	Get(ctx context.Context, uid string) (user.Profile, error)
	Set(ctx context.Context, p user.Profile, merge bool) error
}

// Resolver turns an identity into a unified view by looking up its profile
// and commits the result to the session store.
type Resolver struct {
	profiles ProfileStore
	store    *Store
	current  func() (user.Identity, bool)
	log      *zap.Logger
	now      func() time.Time
}

func NewResolver(profiles ProfileStore, store *Store, current func() (user.Identity, bool), log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{
		profiles: profiles,
		store:    store,
		current:  current,
		log:      log,
		now:      time.Now,
	}
}

// Resolve never fails: a missing profile or a failed read yields a view with
// an unknown account type. The view is committed only while id is current.
func (r *Resolver) Resolve(ctx context.Context, id user.Identity) user.View {
	view := user.View{Identity: id, AccountType: user.Unknown}

	p, err := r.profiles.Get(ctx, id.UID)
	switch {
	case err == nil:
		view.AccountType = user.AccountTypeFrom(p.UserType)
		metrics.ProfileResolutions.WithLabelValues("found").Inc()
	case errors.Is(err, user.ErrNotFound):
		metrics.ProfileResolutions.WithLabelValues("missing").Inc()
	default:
		metrics.ProfileResolutions.WithLabelValues("error").Inc()
		r.log.Warn("fetch profile", zap.String("uid", id.UID), zap.Error(err))
	}

	r.store.Commit(view)
	return view
}

// CreateOrUpdateProfile writes the profile for uid and returns the resulting
// view. With merge set, fields not written here (createdAt) are kept.
func (r *Resolver) CreateOrUpdateProfile(ctx context.Context, uid, name, email string, role user.Role, merge bool) (user.View, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = fallbackGreetingName
	}
	email = strings.TrimSpace(email)
	if email == "" {
		email = fallbackProfileEmail
	}

	now := r.now().UTC()
	p := user.Profile{
		UID:       uid,
		Name:      name,
		Email:     email,
		UserType:  string(role),
		CreatedAt: now,
	}
	if err := p.Validate(); err != nil {
		return user.View{}, fmt.Errorf("%w: %w", ErrProfileWrite, err)
	}
	if err := r.profiles.Set(ctx, p, merge); err != nil {
		return user.View{}, fmt.Errorf("%w: %w", ErrProfileWrite, err)
	}

	if current, ok := r.current(); ok && current.UID == uid {
		id := current
		id.DisplayName = name
		if id.Email == "" {
			id.Email = email
		}
		view := user.View{Identity: id, AccountType: user.Known(role)}
		r.store.Commit(view)
		return view, nil
	}

	return user.View{
		Identity: user.Identity{
			UID:         uid,
			Email:       email,
			DisplayName: name,
			CreatedAt:   now,
		},
		AccountType: user.Known(role),
	}, nil
}
