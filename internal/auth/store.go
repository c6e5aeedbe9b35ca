package auth

import (
	"strings"
	"sync"

	"github.com/benpsk/kalakaari-shop/internal/user"
)

const fallbackGreetingName = "User"

// Store holds the current unified user view of one session. Every derived
// read is computed from the single slot under the same lock.
type Store struct {
	mu   sync.RWMutex
	view *user.View
	// hold is a uid whose unknown-type views are dropped while its profile is
	// being completed.
	hold string
	// isCurrent reports whether uid is the identity signed in right now. It
	// is called with mu held and must not call back into the store.
	isCurrent func(uid string) bool
}

func NewStore(isCurrent func(uid string) bool) *Store {
	if isCurrent == nil {
		isCurrent = func(string) bool { return true }
	}
	return &Store{isCurrent: isCurrent}
}

// Snapshot returns the current view, if any.
func (s *Store) Snapshot() (user.View, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.view == nil {
		return user.View{}, false
	}
	return *s.view, true
}

func (s *Store) LoggedIn() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view != nil
}

func (s *Store) GreetingName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return GreetingFor(s.view)
}

// GreetingFor is the name shown for v: the display name, or "User".
func GreetingFor(v *user.View) string {
	if v == nil {
		return fallbackGreetingName
	}
	if name := strings.TrimSpace(v.Identity.DisplayName); name != "" {
		return name
	}
	return fallbackGreetingName
}

// AccountType reports the account type of the current view. ok is false
// when there is no view at all.
func (s *Store) AccountType() (t user.AccountType, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.view == nil {
		return user.Unknown, false
	}
	return s.view.AccountType, true
}

// Commit stores v if it belongs to the currently signed-in identity and
// reports whether it was stored. The identity check runs under the store
// lock, so a sign-out followed by Clear can never be overtaken by a commit
// that checked before the sign-out.
func (s *Store) Commit(v user.View) bool {
	uid := v.UID()
	if uid == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isCurrent(uid) {
		return false
	}
	if !v.AccountType.IsKnown() {
		if s.hold == uid {
			return false
		}
		// A known account type never regresses to unknown for the same
		// identity; a late or failed read must not overwrite it.
		if s.view != nil && s.view.UID() == uid && s.view.AccountType.IsKnown() {
			return false
		}
	} else if s.hold == uid {
		s.hold = ""
	}
	next := v
	s.view = &next
	return true
}

// Hold drops unknown-type views for uid until a known type is committed or
// the store is cleared. A view already held for uid is removed.
func (s *Store) Hold(uid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hold = uid
	if s.view != nil && s.view.UID() == uid {
		s.view = nil
	}
}

// Clear empties the slot and releases any hold.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.view = nil
	s.hold = ""
}
