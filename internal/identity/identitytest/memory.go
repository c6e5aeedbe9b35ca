// Package identitytest provides in-memory backends for the identity
// provider, for use in tests.
package identitytest

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/benpsk/kalakaari-shop/internal/user"
)

// Credentials is an in-memory identity.CredentialStore. When Err is set
// every call fails with it.
type Credentials struct {
	mu     sync.Mutex
	byUID  map[string]user.Identity
	hashes map[string]string
	Err    error
}

func NewCredentials() *Credentials {
	return &Credentials{byUID: map[string]user.Identity{}, hashes: map[string]string{}}
}

func (c *Credentials) CreatePasswordIdentity(_ context.Context, id user.Identity, passwordHash string) (user.Identity, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return user.Identity{}, c.Err
	}
	id.Email = strings.TrimSpace(strings.ToLower(id.Email))
	if _, ok := c.findEmailLocked(id.Email); ok {
		return user.Identity{}, user.ErrEmailConflict
	}
	c.byUID[id.UID] = id
	c.hashes[id.UID] = passwordHash
	return id, nil
}

func (c *Credentials) FindPasswordIdentity(_ context.Context, email string) (user.Identity, string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return user.Identity{}, "", c.Err
	}
	id, ok := c.findEmailLocked(strings.TrimSpace(strings.ToLower(email)))
	if !ok || c.hashes[id.UID] == "" {
		return user.Identity{}, "", user.ErrNotFound
	}
	return id, c.hashes[id.UID], nil
}

func (c *Credentials) CreateSocialIdentity(_ context.Context, id user.Identity) (user.Identity, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return user.Identity{}, c.Err
	}
	for _, existing := range c.byUID {
		if strings.EqualFold(existing.Provider, id.Provider) && existing.ProviderUserID == id.ProviderUserID {
			return user.Identity{}, user.ErrIdentityConflict
		}
	}
	if _, ok := c.findEmailLocked(id.Email); ok {
		return user.Identity{}, user.ErrEmailConflict
	}
	c.byUID[id.UID] = id
	return id, nil
}

func (c *Credentials) FindByProvider(_ context.Context, provider, providerUserID string) (user.Identity, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return user.Identity{}, c.Err
	}
	for _, id := range c.byUID {
		if strings.EqualFold(id.Provider, provider) && id.ProviderUserID == providerUserID {
			return id, nil
		}
	}
	return user.Identity{}, user.ErrNotFound
}

func (c *Credentials) FindByEmail(_ context.Context, email string) (user.Identity, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return user.Identity{}, c.Err
	}
	id, ok := c.findEmailLocked(strings.TrimSpace(strings.ToLower(email)))
	if !ok {
		return user.Identity{}, user.ErrNotFound
	}
	return id, nil
}

func (c *Credentials) FindByUID(_ context.Context, uid string) (user.Identity, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return user.Identity{}, c.Err
	}
	id, ok := c.byUID[uid]
	if !ok {
		return user.Identity{}, user.ErrNotFound
	}
	return id, nil
}

func (c *Credentials) UpdateDisplayName(_ context.Context, uid, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return c.Err
	}
	id, ok := c.byUID[uid]
	if !ok {
		return user.ErrNotFound
	}
	id.DisplayName = name
	c.byUID[uid] = id
	return nil
}

func (c *Credentials) TouchSignIn(_ context.Context, uid string, at time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id, ok := c.byUID[uid]; ok {
		id.LastSignInAt = at
		c.byUID[uid] = id
	}
	return nil
}

// Identity returns the stored identity for uid.
func (c *Credentials) Identity(uid string) (user.Identity, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.byUID[uid]
	return id, ok
}

func (c *Credentials) findEmailLocked(email string) (user.Identity, bool) {
	if email == "" {
		return user.Identity{}, false
	}
	for _, id := range c.byUID {
		if id.Email == email {
			return id, true
		}
	}
	return user.Identity{}, false
}

// States is an in-memory identity.StateStore.
type States struct {
	mu   sync.Mutex
	uids map[string]string
	ttls map[string]time.Duration
}

func NewStates() *States {
	return &States{uids: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (s *States) Save(_ context.Context, sessionID, uid string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ttl <= 0 {
		delete(s.uids, sessionID)
		delete(s.ttls, sessionID)
		return nil
	}
	s.uids[sessionID] = uid
	s.ttls[sessionID] = ttl
	return nil
}

func (s *States) Load(_ context.Context, sessionID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.uids[sessionID], nil
}

func (s *States) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.uids, sessionID)
	delete(s.ttls, sessionID)
	return nil
}

// TTL reports the lifetime the session's state was last saved with.
func (s *States) TTL(sessionID string) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ttl, ok := s.ttls[sessionID]
	return ttl, ok
}

// Provider is a social provider whose authorization codes map to fixed
// profiles.
type Provider struct {
	ProviderName string
	Profiles     map[string]user.SocialProfile
	Err          error

	mu        sync.Mutex
	verifiers []string
}

func NewProvider(name string) *Provider {
	return &Provider{ProviderName: name, Profiles: map[string]user.SocialProfile{}}
}

func (p *Provider) Name() string {
	return p.ProviderName
}

func (p *Provider) AuthCodeURL(state, codeChallenge string) string {
	q := url.Values{}
	q.Set("state", state)
	q.Set("code_challenge", codeChallenge)
	return "https://provider.test/" + p.ProviderName + "/authorize?" + q.Encode()
}

func (p *Provider) Exchange(_ context.Context, code, codeVerifier string) (user.SocialProfile, error) {
	p.mu.Lock()
	p.verifiers = append(p.verifiers, codeVerifier)
	p.mu.Unlock()
	if p.Err != nil {
		return user.SocialProfile{}, p.Err
	}
	profile, ok := p.Profiles[code]
	if !ok {
		return user.SocialProfile{}, errors.New("unknown authorization code")
	}
	if profile.Provider == "" {
		profile.Provider = p.ProviderName
	}
	return profile, nil
}

// Verifiers lists the PKCE verifiers passed to Exchange, oldest first.
func (p *Provider) Verifiers() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.verifiers...)
}
