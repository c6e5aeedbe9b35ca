package auth

import (
	"context"
	"sync"

	"github.com/benpsk/kalakaari-shop/internal/identity"
	"github.com/benpsk/kalakaari-shop/internal/user"
	"go.uber.org/zap"
)

type EventSource interface {
	Subscribe(fn func(identity.Event)) (unsubscribe func())
}

// Listener keeps the store in line with the provider's auth-state stream.
// Events are checked against the identity signed in at handling time, so a
// late event never undoes a newer sign-in or sign-out.
type Listener struct {
	src      EventSource
	current  func() (user.Identity, bool)
	store    *Store
	resolver *Resolver
	log      *zap.Logger

	start sync.Once
	mu    sync.Mutex
	stop  func()
}

func NewListener(src EventSource, current func() (user.Identity, bool), store *Store, resolver *Resolver, log *zap.Logger) *Listener {
	if log == nil {
		log = zap.NewNop()
	}
	return &Listener{
		src:      src,
		current:  current,
		store:    store,
		resolver: resolver,
		log:      log,
	}
}

// Start subscribes exactly once per listener. Later calls are no-ops.
func (l *Listener) Start(ctx context.Context) {
	l.start.Do(func() {
		ctx = context.WithoutCancel(ctx)
		unsubscribe := l.src.Subscribe(func(ev identity.Event) {
			l.Handle(ctx, ev)
		})
		l.mu.Lock()
		l.stop = unsubscribe
		l.mu.Unlock()
	})
}

func (l *Listener) Stop() {
	l.mu.Lock()
	stop := l.stop
	l.stop = nil
	l.mu.Unlock()
	if stop != nil {
		stop()
	}
}

func (l *Listener) Handle(ctx context.Context, ev identity.Event) {
	current, signedIn := l.current()

	if ev.Identity == nil {
		if signedIn {
			l.log.Debug("skip stale sign-out event", zap.String("uid", current.UID))
			return
		}
		if l.store.LoggedIn() {
			l.store.Clear()
		}
		return
	}

	if !signedIn || current.UID != ev.Identity.UID {
		l.log.Debug("skip stale sign-in event", zap.String("uid", ev.Identity.UID))
		return
	}

	held, ok := l.store.Snapshot()
	if ok && held.UID() == current.UID && held.AccountType.IsKnown() {
		return
	}
	l.resolver.Resolve(ctx, current)
}
