package identity

import (
	"context"
	"strings"
	"sync"

	"github.com/benpsk/kalakaari-shop/internal/user"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const subscriptionBuffer = 8

func newUID() string {
	return uuid.NewString()
}

// Event is one auth-state change. A nil Identity means signed out.
type Event struct {
	Identity *user.Identity
}

type subscription struct {
	events chan Event
	done   chan struct{}
	once   sync.Once
}

func (s *subscription) close(remove func()) {
	s.once.Do(func() {
		close(s.done)
		remove()
	})
}

// Session is the provider-side auth state of one browser session.
type Session struct {
	svc *Service
	id  string

	mu          sync.RWMutex
	current     *user.Identity
	persistence Persistence
	subs        map[uint64]*subscription
	nextSub     uint64
}

func newSession(svc *Service, id string) *Session {
	return &Session{
		svc:         svc,
		id:          id,
		persistence: PersistLocal,
		subs:        map[uint64]*subscription{},
	}
}

func (s *Session) ID() string {
	return s.id
}

// Current reports the signed-in identity at the time of the call.
func (s *Session) Current() (user.Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return user.Identity{}, false
	}
	return *s.current, true
}

func (s *Session) Persistence() Persistence {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.persistence
}

// SetPersistence changes how the sign-in is persisted and re-stores the
// current identity under the new mode.
func (s *Session) SetPersistence(ctx context.Context, p Persistence) error {
	s.mu.Lock()
	s.persistence = p
	current := s.current
	s.mu.Unlock()

	if current == nil {
		return nil
	}
	return s.persist(ctx, current.UID, p)
}

// Subscribe registers fn for auth-state changes and returns the function
// that cancels the registration. The current state is delivered first. fn is
// called from a dedicated goroutine, one event at a time, in order.
func (s *Session) Subscribe(fn func(Event)) (unsubscribe func()) {
	sub := &subscription{
		events: make(chan Event, subscriptionBuffer),
		done:   make(chan struct{}),
	}

	s.mu.Lock()
	key := s.nextSub
	s.nextSub++
	s.subs[key] = sub
	sub.events <- Event{Identity: cloneIdentity(s.current)}
	s.mu.Unlock()

	go func() {
		for {
			select {
			case ev := <-sub.events:
				fn(ev)
			case <-sub.done:
				return
			}
		}
	}()

	return func() {
		sub.close(func() {
			s.mu.Lock()
			delete(s.subs, key)
			s.mu.Unlock()
		})
	}
}

func (s *Session) CreateWithPassword(ctx context.Context, email, password string) (user.Identity, error) {
	id, err := s.svc.createWithPassword(ctx, email, password)
	if err != nil {
		return user.Identity{}, err
	}
	s.setCurrent(ctx, id)
	return id, nil
}

func (s *Session) SignInWithPassword(ctx context.Context, email, password string) (user.Identity, error) {
	id, err := s.svc.signInWithPassword(ctx, email, password)
	if err != nil {
		return user.Identity{}, err
	}
	s.setCurrent(ctx, id)
	return id, nil
}

func (s *Session) SignInWithSocial(ctx context.Context, cred SocialCredential) (user.Identity, error) {
	id, err := s.svc.signInWithSocial(ctx, cred)
	if err != nil {
		return user.Identity{}, err
	}
	s.setCurrent(ctx, id)
	return id, nil
}

func (s *Session) SignOut(ctx context.Context) error {
	s.mu.Lock()
	prev := s.current
	s.current = nil
	s.mu.Unlock()

	if err := s.svc.states.Delete(ctx, s.id); err != nil {
		s.svc.log.Warn("clear persisted auth state", zap.String("session_id", s.id), zap.Error(err))
	}
	if prev != nil {
		s.publish(Event{})
	}
	return nil
}

// UpdateDisplayName changes the signed-in identity's display name. It does
// not emit an auth-state event.
func (s *Session) UpdateDisplayName(ctx context.Context, name string) (user.Identity, error) {
	current, ok := s.Current()
	if !ok {
		return user.Identity{}, newError(CodeNoCurrentUser, nil)
	}
	name = strings.TrimSpace(name)
	if err := s.svc.creds.UpdateDisplayName(ctx, current.UID, name); err != nil {
		return user.Identity{}, classify(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil || s.current.UID != current.UID {
		return user.Identity{}, newError(CodeNoCurrentUser, nil)
	}
	s.current.DisplayName = name
	return *s.current, nil
}

func (s *Session) setCurrent(ctx context.Context, id user.Identity) {
	s.mu.Lock()
	prev := s.current
	next := id
	s.current = &next
	mode := s.persistence
	s.mu.Unlock()

	if err := s.persist(ctx, id.UID, mode); err != nil {
		s.svc.log.Warn("persist auth state", zap.String("session_id", s.id), zap.Error(err))
	}
	if prev == nil || prev.UID != id.UID {
		s.publish(Event{Identity: cloneIdentity(&next)})
	}
}

func (s *Session) persist(ctx context.Context, uid string, mode Persistence) error {
	if mode == PersistNone {
		return s.svc.states.Delete(ctx, s.id)
	}
	return s.svc.states.Save(ctx, s.id, uid, s.svc.ttl(mode))
}

func (s *Session) publish(ev Event) {
	s.mu.RLock()
	subs := make([]*subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.RUnlock()

	for _, sub := range subs {
		select {
		case sub.events <- ev:
		case <-sub.done:
		}
	}
}

func cloneIdentity(id *user.Identity) *user.Identity {
	if id == nil {
		return nil
	}
	c := *id
	return &c
}
