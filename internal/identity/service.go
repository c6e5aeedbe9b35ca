// Package identity is the identity provider: password and social sign-in,
// per-browser auth state, persistence and the ambient state stream.
package identity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/benpsk/kalakaari-shop/internal/user"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	ProviderPassword = "password"

	defaultMinPasswordLength = 6
	defaultLocalTTL          = 30 * 24 * time.Hour
	defaultSessionTTL        = 12 * time.Hour
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Persistence controls how long a signed-in identity survives for a session.
type Persistence string

const (
	PersistLocal   Persistence = "local"
	PersistSession Persistence = "session"
	PersistNone    Persistence = "none"
)

func ParsePersistence(v string) (Persistence, error) {
	switch p := Persistence(strings.TrimSpace(strings.ToLower(v))); p {
	case PersistLocal, PersistSession, PersistNone:
		return p, nil
	default:
		return "", fmt.Errorf("unknown persistence mode %q", v)
	}
}

type CredentialStore interface {
	CreatePasswordIdentity(ctx context.Context, id user.Identity, passwordHash string) (user.Identity, error)
	FindPasswordIdentity(ctx context.Context, email string) (user.Identity, string, error)
	CreateSocialIdentity(ctx context.Context, id user.Identity) (user.Identity, error)
	FindByProvider(ctx context.Context, provider, providerUserID string) (user.Identity, error)
	FindByEmail(ctx context.Context, email string) (user.Identity, error)
	FindByUID(ctx context.Context, uid string) (user.Identity, error)
	UpdateDisplayName(ctx context.Context, uid, name string) error
	TouchSignIn(ctx context.Context, uid string, at time.Time) error
}

// StateStore remembers which identity is signed in for a browser session.
type StateStore interface {
	Save(ctx context.Context, sessionID, uid string, ttl time.Duration) error
	Load(ctx context.Context, sessionID string) (string, error)
	Delete(ctx context.Context, sessionID string) error
}

// SocialProvider exchanges an authorization code for identity facts only.
type SocialProvider interface {
	Name() string
	AuthCodeURL(state, codeChallenge string) string
	Exchange(ctx context.Context, code, codeVerifier string) (user.SocialProfile, error)
}

type Options struct {
	MinPasswordLength int
	LocalTTL          time.Duration
	SessionTTL        time.Duration
	HashCost          int
}

type Service struct {
	creds     CredentialStore
	states    StateStore
	providers map[string]SocialProvider
	opts      Options
	log       *zap.Logger
	now       func() time.Time
	newUID    func() string
}

func NewService(creds CredentialStore, states StateStore, opts Options, log *zap.Logger, providers ...SocialProvider) *Service {
	if opts.MinPasswordLength <= 0 {
		opts.MinPasswordLength = defaultMinPasswordLength
	}
	if opts.LocalTTL <= 0 {
		opts.LocalTTL = defaultLocalTTL
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = defaultSessionTTL
	}
	if opts.HashCost == 0 {
		opts.HashCost = bcrypt.DefaultCost
	}
	if log == nil {
		log = zap.NewNop()
	}
	m := make(map[string]SocialProvider, len(providers))
	for _, p := range providers {
		if p == nil {
			continue
		}
		m[strings.ToLower(p.Name())] = p
	}
	return &Service{
		creds:     creds,
		states:    states,
		providers: m,
		opts:      opts,
		log:       log.Named("identity"),
		now:       time.Now,
		newUID:    newUID,
	}
}

// Provider returns the registered social provider by name.
func (s *Service) Provider(name string) (SocialProvider, bool) {
	p, ok := s.providers[strings.TrimSpace(strings.ToLower(name))]
	return p, ok
}

// Open returns the auth handle for a browser session, restoring a persisted
// sign-in when one exists. Restore failures leave the session signed out.
func (s *Service) Open(ctx context.Context, sessionID string) *Session {
	sess := newSession(s, sessionID)

	uid, err := s.states.Load(ctx, sessionID)
	if err != nil {
		s.log.Warn("restore auth state", zap.String("session_id", sessionID), zap.Error(err))
		return sess
	}
	if uid == "" {
		return sess
	}
	id, err := s.creds.FindByUID(ctx, uid)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			_ = s.states.Delete(ctx, sessionID)
		} else {
			s.log.Warn("restore identity", zap.String("uid", uid), zap.Error(err))
		}
		return sess
	}
	sess.current = &id
	return sess
}

func (s *Service) ttl(p Persistence) time.Duration {
	switch p {
	case PersistSession:
		return s.opts.SessionTTL
	case PersistNone:
		return 0
	default:
		return s.opts.LocalTTL
	}
}

func (s *Service) createWithPassword(ctx context.Context, email, password string) (user.Identity, error) {
	email = normalizeEmail(email)
	if !emailPattern.MatchString(email) {
		return user.Identity{}, newError(CodeInvalidEmail, nil)
	}
	if len(password) < s.opts.MinPasswordLength {
		return user.Identity{}, newError(CodeWeakPassword, nil)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.opts.HashCost)
	if err != nil {
		return user.Identity{}, newError(CodeInternal, err)
	}

	now := s.now().UTC()
	created, err := s.creds.CreatePasswordIdentity(ctx, user.Identity{
		UID:          s.newUID(),
		Email:        email,
		Provider:     ProviderPassword,
		CreatedAt:    now,
		LastSignInAt: now,
	}, string(hash))
	if err != nil {
		if errors.Is(err, user.ErrEmailConflict) {
			return user.Identity{}, newError(CodeEmailInUse, err)
		}
		return user.Identity{}, classify(err)
	}
	return created, nil
}

func (s *Service) signInWithPassword(ctx context.Context, email, password string) (user.Identity, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return user.Identity{}, newError(CodeInvalidCredential, nil)
	}
	id, hash, err := s.creds.FindPasswordIdentity(ctx, email)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return user.Identity{}, newError(CodeInvalidCredential, nil)
		}
		return user.Identity{}, classify(err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return user.Identity{}, newError(CodeInvalidCredential, nil)
	}
	s.touch(ctx, &id)
	return id, nil
}

// SocialCredential is the result of the provider "popup": either an
// authorization code with its PKCE verifier, or the error the provider
// redirected back with.
type SocialCredential struct {
	Provider     string
	Code         string
	CodeVerifier string
	Error        string
}

func (s *Service) signInWithSocial(ctx context.Context, cred SocialCredential) (user.Identity, error) {
	provider, ok := s.Provider(cred.Provider)
	if !ok {
		return user.Identity{}, newError(CodeOperationNotAllowed, fmt.Errorf("provider %q is not configured", cred.Provider))
	}
	switch {
	case cred.Error == "access_denied", cred.Error == "" && strings.TrimSpace(cred.Code) == "":
		return user.Identity{}, newError(CodePopupClosed, nil)
	case cred.Error != "":
		return user.Identity{}, newError(CodeInternal, errors.New(cred.Error))
	}

	profile, err := provider.Exchange(ctx, cred.Code, cred.CodeVerifier)
	if err != nil {
		if isNetworkError(err) {
			return user.Identity{}, newError(CodeNetwork, err)
		}
		return user.Identity{}, newError(CodeInvalidCredential, err)
	}
	if err := profile.Validate(); err != nil {
		return user.Identity{}, newError(CodeInvalidCredential, err)
	}

	id, err := s.creds.FindByProvider(ctx, provider.Name(), profile.ProviderUserID)
	if err == nil {
		s.touch(ctx, &id)
		return id, nil
	}
	if !errors.Is(err, user.ErrNotFound) {
		return user.Identity{}, classify(err)
	}

	email := normalizeEmail(profile.Email)
	if email != "" {
		if _, err := s.creds.FindByEmail(ctx, email); err == nil {
			return user.Identity{}, newError(CodeAccountExists, user.ErrEmailConflict)
		} else if !errors.Is(err, user.ErrNotFound) {
			return user.Identity{}, classify(err)
		}
	}

	now := s.now().UTC()
	created, err := s.creds.CreateSocialIdentity(ctx, user.Identity{
		UID:            s.newUID(),
		Email:          email,
		DisplayName:    strings.TrimSpace(profile.Name),
		Provider:       provider.Name(),
		ProviderUserID: profile.ProviderUserID,
		CreatedAt:      now,
		LastSignInAt:   now,
	})
	if err != nil {
		if errors.Is(err, user.ErrEmailConflict) || errors.Is(err, user.ErrIdentityConflict) {
			return user.Identity{}, newError(CodeAccountExists, err)
		}
		return user.Identity{}, classify(err)
	}
	return created, nil
}

func (s *Service) touch(ctx context.Context, id *user.Identity) {
	now := s.now().UTC()
	if err := s.creds.TouchSignIn(ctx, id.UID, now); err != nil {
		s.log.Warn("record sign-in", zap.String("uid", id.UID), zap.Error(err))
		return
	}
	id.LastSignInAt = now
}

func normalizeEmail(v string) string {
	return strings.TrimSpace(strings.ToLower(v))
}
