package identity

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/benpsk/kalakaari-shop/internal/identity/identitytest"
	"github.com/benpsk/kalakaari-shop/internal/user"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type fixture struct {
	svc      *Service
	creds    *identitytest.Credentials
	states   *identitytest.States
	provider *identitytest.Provider
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	creds := identitytest.NewCredentials()
	states := identitytest.NewStates()
	provider := identitytest.NewProvider("google")
	svc := NewService(creds, states, Options{HashCost: bcrypt.MinCost, LocalTTL: 24 * time.Hour}, nil, provider)
	return fixture{svc: svc, creds: creds, states: states, provider: provider}
}

func TestCreateWithPasswordRules(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sess := f.svc.Open(ctx, "s1")

	_, err := sess.CreateWithPassword(ctx, "not-an-email", "secret1")
	assert.Equal(t, CodeInvalidEmail, CodeOf(err))

	_, err = sess.CreateWithPassword(ctx, "a@x.com", "12345")
	assert.Equal(t, CodeWeakPassword, CodeOf(err))

	_, signedIn := sess.Current()
	assert.False(t, signedIn, "failed creates do not sign in")

	id, err := sess.CreateWithPassword(ctx, " A@X.com ", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", id.Email)
	assert.Equal(t, ProviderPassword, id.Provider)
	current, ok := sess.Current()
	require.True(t, ok)
	assert.Equal(t, id.UID, current.UID)

	_, err = f.svc.Open(ctx, "s2").CreateWithPassword(ctx, "a@x.com", "secret2")
	assert.Equal(t, CodeEmailInUse, CodeOf(err))
}

func TestSignInWithPasswordInvalidCredentialIsUniform(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.svc.Open(ctx, "setup").CreateWithPassword(ctx, "a@x.com", "secret1")
	require.NoError(t, err)

	sess := f.svc.Open(ctx, "s1")
	_, unknownEmail := sess.SignInWithPassword(ctx, "b@x.com", "secret1")
	_, wrongPassword := sess.SignInWithPassword(ctx, "a@x.com", "wrong-password")
	assert.Equal(t, CodeInvalidCredential, CodeOf(unknownEmail))
	assert.Equal(t, CodeInvalidCredential, CodeOf(wrongPassword))

	id, err := sess.SignInWithPassword(ctx, "A@x.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", id.Email)
	assert.False(t, id.LastSignInAt.IsZero())
}

func TestSignInWithSocial(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.provider.Profiles["code-new"] = user.SocialProfile{ProviderUserID: "sub-1", Email: "G@x.com", Name: "Gita"}
	f.provider.Profiles["code-clash"] = user.SocialProfile{ProviderUserID: "sub-2", Email: "a@x.com"}

	_, err := f.svc.Open(ctx, "setup").CreateWithPassword(ctx, "a@x.com", "secret1")
	require.NoError(t, err)

	sess := f.svc.Open(ctx, "s1")

	_, err = sess.SignInWithSocial(ctx, SocialCredential{Provider: "google", Error: "access_denied"})
	assert.Equal(t, CodePopupClosed, CodeOf(err))
	_, err = sess.SignInWithSocial(ctx, SocialCredential{Provider: "google"})
	assert.Equal(t, CodePopupClosed, CodeOf(err))
	_, err = sess.SignInWithSocial(ctx, SocialCredential{Provider: "github", Code: "x"})
	assert.Equal(t, CodeOperationNotAllowed, CodeOf(err))
	_, err = sess.SignInWithSocial(ctx, SocialCredential{Provider: "google", Code: "bogus"})
	assert.Equal(t, CodeInvalidCredential, CodeOf(err))
	_, err = sess.SignInWithSocial(ctx, SocialCredential{Provider: "google", Code: "code-clash"})
	assert.Equal(t, CodeAccountExists, CodeOf(err))

	first, err := sess.SignInWithSocial(ctx, SocialCredential{Provider: "google", Code: "code-new", CodeVerifier: "v1"})
	require.NoError(t, err)
	assert.Equal(t, "g@x.com", first.Email)
	assert.Equal(t, "Gita", first.DisplayName)

	again, err := f.svc.Open(ctx, "s2").SignInWithSocial(ctx, SocialCredential{Provider: "GOOGLE", Code: "code-new"})
	require.NoError(t, err)
	assert.Equal(t, first.UID, again.UID, "returning users are found by provider subject")
	assert.Contains(t, f.provider.Verifiers(), "v1")
}

func TestStoreFailuresAreClassified(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sess := f.svc.Open(ctx, "s1")

	f.creds.Err = &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
	_, err := sess.SignInWithPassword(ctx, "a@x.com", "secret1")
	assert.Equal(t, CodeNetwork, CodeOf(err))

	f.creds.Err = errors.New("disk full")
	_, err = sess.CreateWithPassword(ctx, "a@x.com", "secret1")
	assert.Equal(t, CodeInternal, CodeOf(err))
	assert.ErrorContains(t, err, "disk full")
}

func TestOpenRestoresPersistedSignIn(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	sess := f.svc.Open(ctx, "s1")
	id, err := sess.CreateWithPassword(ctx, "a@x.com", "secret1")
	require.NoError(t, err)
	ttl, ok := f.states.TTL("s1")
	require.True(t, ok)
	assert.Equal(t, 24*time.Hour, ttl)

	restored, ok := f.svc.Open(ctx, "s1").Current()
	require.True(t, ok)
	assert.Equal(t, id.UID, restored.UID)

	require.NoError(t, sess.SetPersistence(ctx, PersistSession))
	ttl, _ = f.states.TTL("s1")
	assert.Equal(t, defaultSessionTTL, ttl)

	require.NoError(t, sess.SetPersistence(ctx, PersistNone))
	_, ok = f.svc.Open(ctx, "s1").Current()
	assert.False(t, ok, "none persistence keeps nothing")
}

func TestSignOutClearsPersistedState(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sess := f.svc.Open(ctx, "s1")
	_, err := sess.CreateWithPassword(ctx, "a@x.com", "secret1")
	require.NoError(t, err)

	require.NoError(t, sess.SignOut(ctx))
	_, ok := sess.Current()
	assert.False(t, ok)
	_, ok = f.svc.Open(ctx, "s1").Current()
	assert.False(t, ok)
}

func TestUpdateDisplayNameRequiresCurrentUser(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sess := f.svc.Open(ctx, "s1")

	_, err := sess.UpdateDisplayName(ctx, "Asha")
	assert.Equal(t, CodeNoCurrentUser, CodeOf(err))

	id, err := sess.CreateWithPassword(ctx, "a@x.com", "secret1")
	require.NoError(t, err)
	updated, err := sess.UpdateDisplayName(ctx, " Asha ")
	require.NoError(t, err)
	assert.Equal(t, "Asha", updated.DisplayName)
	stored, _ := f.creds.Identity(id.UID)
	assert.Equal(t, "Asha", stored.DisplayName)
}

func TestSubscribeDeliversCurrentStateThenChanges(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sess := f.svc.Open(ctx, "s1")

	events := make(chan Event, 4)
	unsubscribe := sess.Subscribe(func(ev Event) { events <- ev })
	defer unsubscribe()

	next := func() Event {
		t.Helper()
		select {
		case ev := <-events:
			return ev
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for auth event")
			return Event{}
		}
	}

	assert.Nil(t, next().Identity, "signed-out state is delivered first")

	id, err := sess.CreateWithPassword(ctx, "a@x.com", "secret1")
	require.NoError(t, err)
	ev := next()
	require.NotNil(t, ev.Identity)
	assert.Equal(t, id.UID, ev.Identity.UID)

	require.NoError(t, sess.SignOut(ctx))
	assert.Nil(t, next().Identity)
}

func TestParsePersistence(t *testing.T) {
	p, err := ParsePersistence(" Session ")
	require.NoError(t, err)
	assert.Equal(t, PersistSession, p)

	_, err = ParsePersistence("forever")
	assert.Error(t, err)
}

func TestCodeOf(t *testing.T) {
	wrapped := errors.Join(errors.New("context"), newError(CodeWeakPassword, nil))
	assert.Equal(t, CodeWeakPassword, CodeOf(wrapped))
	assert.Equal(t, "", CodeOf(errors.New("plain")))
}
