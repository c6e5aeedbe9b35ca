package auth

import (
	"context"
	"testing"
	"time"

	"github.com/benpsk/kalakaari-shop/internal/auth/authtest"
	"github.com/benpsk/kalakaari-shop/internal/identity"
	"github.com/benpsk/kalakaari-shop/internal/identity/identitytest"
	"github.com/benpsk/kalakaari-shop/internal/user"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type registryFixture struct {
	svc      *identity.Service
	profiles *authtest.Profiles
	registry *Registry
	opened   map[string]int
	sessions map[string]*identity.Session
}

func newRegistryFixture(t *testing.T) *registryFixture {
	t.Helper()
	f := &registryFixture{
		svc:      identity.NewService(identitytest.NewCredentials(), identitytest.NewStates(), identity.Options{HashCost: bcrypt.MinCost}, nil),
		profiles: authtest.NewProfiles(),
		opened:   map[string]int{},
		sessions: map[string]*identity.Session{},
	}
	slots := authtest.NewPendingSlots()
	deps := Deps{Profiles: f.profiles, Policy: RedirectPolicy{ArtisanURL: testArtisanURL}}
	f.registry = NewRegistry(func(ctx context.Context, sessionID string) (*Client, error) {
		f.opened[sessionID]++
		sess := f.svc.Open(ctx, sessionID)
		f.sessions[sessionID] = sess
		return NewClient(ctx, sessionID, sess, slots.Slot(sessionID), deps), nil
	}, time.Minute, nil)
	t.Cleanup(f.registry.Close)
	return f
}

func TestRegistryReusesClientPerSession(t *testing.T) {
	ctx := context.Background()
	f := newRegistryFixture(t)

	a, err := f.registry.Get(ctx, "s1")
	require.NoError(t, err)
	again, err := f.registry.Get(ctx, "s1")
	require.NoError(t, err)
	other, err := f.registry.Get(ctx, "s2")
	require.NoError(t, err)

	assert.Same(t, a, again)
	assert.NotSame(t, a, other)
	assert.Equal(t, 1, f.opened["s1"])
	assert.Equal(t, 2, f.registry.Len())
}

func TestRegistrySweepEvictsIdleClients(t *testing.T) {
	ctx := context.Background()
	f := newRegistryFixture(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.registry.now = func() time.Time { return now }

	_, err := f.registry.Get(ctx, "idle")
	require.NoError(t, err)
	now = now.Add(45 * time.Second)
	_, err = f.registry.Get(ctx, "busy")
	require.NoError(t, err)

	now = now.Add(30 * time.Second)
	assert.Equal(t, 1, f.registry.Sweep())
	assert.Equal(t, 1, f.registry.Len())

	_, err = f.registry.Get(ctx, "idle")
	require.NoError(t, err)
	assert.Equal(t, 2, f.opened["idle"], "an evicted session is reopened on next use")
}

func TestRegistryForgetAndClose(t *testing.T) {
	ctx := context.Background()
	f := newRegistryFixture(t)
	_, err := f.registry.Get(ctx, "s1")
	require.NoError(t, err)

	f.registry.Forget("s1")
	assert.Zero(t, f.registry.Len())

	f.registry.Close()
	_, err = f.registry.Get(ctx, "s1")
	assert.ErrorIs(t, err, ErrRegistryClosed)
}

func TestClientFollowsProviderState(t *testing.T) {
	ctx := context.Background()
	f := newRegistryFixture(t)
	c, err := f.registry.Get(ctx, "s1")
	require.NoError(t, err)

	id, err := f.svc.Open(ctx, "seed").CreateWithPassword(ctx, "a@x.com", "secret1")
	require.NoError(t, err)
	f.profiles.Put(user.Profile{UID: id.UID, Name: "Asha", UserType: "art-lover"})

	_, err = f.sessions["s1"].SignInWithPassword(ctx, "a@x.com", "secret1")
	require.NoError(t, err)

	assert.True(t, c.SignedIn())
	view, _ := c.View(ctx)
	assert.Equal(t, id.UID, view.UID())

	require.Eventually(t, func() bool {
		at, ok := c.Store().AccountType()
		return ok && at.IsKnown()
	}, 2*time.Second, 10*time.Millisecond, "the listener resolves a sign-in made outside the actions")

	require.NoError(t, f.sessions["s1"].SignOut(ctx))
	require.Eventually(t, func() bool { return !c.Store().LoggedIn() }, 2*time.Second, 10*time.Millisecond)
	_, ok := c.View(ctx)
	assert.False(t, ok)
}
