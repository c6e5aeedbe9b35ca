// Package authtest provides in-memory profile and pending-profile stores
// for tests.
package authtest

import (
	"context"
	"sync"

	"github.com/benpsk/kalakaari-shop/internal/user"
)

// Profiles is an in-memory auth.ProfileStore. GetErr and SetErr, when set,
// make the matching calls fail.
type Profiles struct {
	mu     sync.Mutex
	docs   map[string]user.Profile
	reads  int
	GetErr error
	SetErr error
}

func NewProfiles() *Profiles {
	return &Profiles{docs: map[string]user.Profile{}}
}

func (p *Profiles) Get(_ context.Context, uid string) (user.Profile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reads++
	if p.GetErr != nil {
		return user.Profile{}, p.GetErr
	}
	doc, ok := p.docs[uid]
	if !ok {
		return user.Profile{}, user.ErrNotFound
	}
	return doc, nil
}

func (p *Profiles) Set(_ context.Context, doc user.Profile, merge bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.SetErr != nil {
		return p.SetErr
	}
	if existing, ok := p.docs[doc.UID]; ok && merge && !existing.CreatedAt.IsZero() {
		doc.CreatedAt = existing.CreatedAt
	}
	p.docs[doc.UID] = doc
	return nil
}

// Put seeds a document directly.
func (p *Profiles) Put(doc user.Profile) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.docs[doc.UID] = doc
}

// Doc returns the stored document for uid.
func (p *Profiles) Doc(uid string) (user.Profile, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	doc, ok := p.docs[uid]
	return doc, ok
}

// Reads counts Get calls.
func (p *Profiles) Reads() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reads
}

// Pending is an in-memory auth.PendingSlot.
type Pending struct {
	mu     sync.Mutex
	rec    *user.PendingProfile
	clears int
	PutErr error
}

func (s *Pending) Get(context.Context) (user.PendingProfile, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rec == nil {
		return user.PendingProfile{}, false, nil
	}
	return *s.rec, true, nil
}

func (s *Pending) Put(_ context.Context, rec user.PendingProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.PutErr != nil {
		return s.PutErr
	}
	s.rec = &rec
	return nil
}

func (s *Pending) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rec = nil
	s.clears++
	return nil
}

// Clears reports how many times Clear has been called.
func (s *Pending) Clears() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clears
}

// PendingSlots hands out one Pending per session id.
type PendingSlots struct {
	mu    sync.Mutex
	slots map[string]*Pending
}

func NewPendingSlots() *PendingSlots {
	return &PendingSlots{slots: map[string]*Pending{}}
}

func (p *PendingSlots) Slot(sessionID string) *Pending {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.slots[sessionID]
	if !ok {
		s = &Pending{}
		p.slots[sessionID] = s
	}
	return s
}
