package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benpsk/kalakaari-shop/internal/metrics"
	"github.com/benpsk/kalakaari-shop/internal/user"
	"go.uber.org/zap"
)

const defaultIdleTTL = 30 * time.Minute

// Deps are shared by every client.
type Deps struct {
	Profiles          ProfileStore
	Policy            RedirectPolicy
	MinPasswordLength int
	Log               *zap.Logger
}

// Client bundles the auth state of one browser session.
type Client struct {
	id       string
	session  IdentitySession
	store    *Store
	resolver *Resolver
	listener *Listener
	actions  *Actions
}

// NewClient wires a session's store, resolver, listener and actions and
// starts listening for auth-state changes.
func NewClient(ctx context.Context, id string, session IdentitySession, pending PendingSlot, deps Deps) *Client {
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("session_id", id))

	store := NewStore(func(uid string) bool {
		current, ok := session.Current()
		return ok && current.UID == uid
	})
	resolver := NewResolver(deps.Profiles, store, session.Current, log)
	c := &Client{
		id:       id,
		session:  session,
		store:    store,
		resolver: resolver,
		listener: NewListener(session, session.Current, store, resolver, log),
		actions:  NewActions(session, pending, deps.Profiles, resolver, store, deps.Policy, deps.MinPasswordLength, log),
	}
	c.listener.Start(ctx)
	return c
}

func (c *Client) ID() string { return c.id }

func (c *Client) Store() *Store { return c.store }

func (c *Client) Actions() *Actions { return c.actions }

// SignedIn is the identity-presence signal the route guards read.
func (c *Client) SignedIn() bool {
	_, ok := c.session.Current()
	return ok
}

// View returns the view of the signed-in identity, resolving it when the
// listener has not caught up yet. ok reports whether the view is the one
// committed to the store; a held identity resolves without being committed.
func (c *Client) View(ctx context.Context) (v user.View, ok bool) {
	current, signedIn := c.session.Current()
	if !signedIn {
		return user.View{}, false
	}
	if held, has := c.store.Snapshot(); has && held.UID() == current.UID {
		return held, true
	}
	v = c.resolver.Resolve(ctx, current)
	if held, has := c.store.Snapshot(); has && held.UID() == current.UID {
		return held, true
	}
	return v, false
}

func (c *Client) Close() {
	c.listener.Stop()
}

// Opener builds the client for a browser session.
type Opener func(ctx context.Context, sessionID string) (*Client, error)

type registryEntry struct {
	client   *Client
	lastSeen time.Time
}

// Registry keeps one live client per browser session and closes clients
// that have been idle longer than the configured TTL.
type Registry struct {
	open    Opener
	idleTTL time.Duration
	log     *zap.Logger
	now     func() time.Time

	mu      sync.Mutex
	clients map[string]*registryEntry
	closed  bool
}

var ErrRegistryClosed = errors.New("auth registry closed")

func NewRegistry(open Opener, idleTTL time.Duration, log *zap.Logger) *Registry {
	if idleTTL <= 0 {
		idleTTL = defaultIdleTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		open:    open,
		idleTTL: idleTTL,
		log:     log,
		now:     time.Now,
		clients: map[string]*registryEntry{},
	}
}

// Get returns the client for sessionID, opening it on first use.
func (r *Registry) Get(ctx context.Context, sessionID string) (*Client, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrRegistryClosed
	}
	if e, ok := r.clients[sessionID]; ok {
		e.lastSeen = r.now()
		r.mu.Unlock()
		return e.client, nil
	}
	r.mu.Unlock()

	c, err := r.open(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		c.Close()
		return nil, ErrRegistryClosed
	}
	if e, ok := r.clients[sessionID]; ok {
		c.Close()
		e.lastSeen = r.now()
		return e.client, nil
	}
	r.clients[sessionID] = &registryEntry{client: c, lastSeen: r.now()}
	metrics.LiveSessions.Inc()
	return c, nil
}

// Forget closes and drops the client for sessionID.
func (r *Registry) Forget(sessionID string) {
	r.mu.Lock()
	e, ok := r.clients[sessionID]
	delete(r.clients, sessionID)
	r.mu.Unlock()
	if ok {
		e.client.Close()
		metrics.LiveSessions.Dec()
	}
}

// Sweep closes clients idle for longer than the TTL and reports how many.
func (r *Registry) Sweep() int {
	cutoff := r.now().Add(-r.idleTTL)

	r.mu.Lock()
	var idle []*Client
	for id, e := range r.clients {
		if e.lastSeen.Before(cutoff) {
			idle = append(idle, e.client)
			delete(r.clients, id)
		}
	}
	r.mu.Unlock()

	for _, c := range idle {
		c.Close()
		metrics.LiveSessions.Dec()
	}
	return len(idle)
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// Run sweeps on every interval until ctx is done, then closes the registry.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.Close()
			return
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				r.log.Debug("evicted idle auth clients", zap.Int("count", n))
			}
		}
	}
}

func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	clients := r.clients
	r.clients = map[string]*registryEntry{}
	r.mu.Unlock()

	for _, e := range clients {
		e.client.Close()
		metrics.LiveSessions.Dec()
	}
}
