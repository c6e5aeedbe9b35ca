package auth

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/benpsk/kalakaari-shop/internal/identity"
	"github.com/benpsk/kalakaari-shop/internal/metrics"
	"github.com/benpsk/kalakaari-shop/internal/user"
	"go.uber.org/zap"
)

var (
	ErrInFlight     = errors.New("action already in flight")
	ErrPendingWrite = errors.New("pending profile write failed")
	// ErrInvalidEntry reports profile completion with no pending record and
	// no signed-in identity.
	ErrInvalidEntry = errors.New("profile completion has no signed-in identity")
	// ErrSuperseded reports an action whose identity stopped being current
	// before the action finished.
	ErrSuperseded = errors.New("identity changed during action")
)

// IdentitySession is the per-browser handle on the identity provider.
type IdentitySession interface {
	EventSource
	Current() (user.Identity, bool)
	CreateWithPassword(ctx context.Context, email, password string) (user.Identity, error)
	SignInWithPassword(ctx context.Context, email, password string) (user.Identity, error)
	SignInWithSocial(ctx context.Context, cred identity.SocialCredential) (user.Identity, error)
	SignOut(ctx context.Context) error
	UpdateDisplayName(ctx context.Context, name string) (user.Identity, error)
}

// PendingSlot is the per-session Pending-Profile record. Clear is idempotent.
type PendingSlot interface {
	Get(ctx context.Context) (user.PendingProfile, bool, error)
	Put(ctx context.Context, p user.PendingProfile) error
	Clear(ctx context.Context) error
}

type Action string

const (
	ActionLogin           Action = "login"
	ActionSignup          Action = "signup"
	ActionSocialLogin     Action = "social_login"
	ActionCompleteProfile Action = "complete_profile"
	ActionLogout          Action = "logout"
)

type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseInFlight  Phase = "in_flight"
	PhaseSucceeded Phase = "succeeded"
	PhaseFailed    Phase = "failed"
)

type ActionState struct {
	Phase   Phase  `json:"phase"`
	Message string `json:"message,omitempty"`
}

// Outcome is what an action hands back to the page. View is nil when no view
// is available yet. Pending is set when the profile form should be shown.
type Outcome struct {
	View     *user.View           `json:"view,omitempty"`
	Redirect Destination          `json:"redirect"`
	Message  string               `json:"message,omitempty"`
	Pending  *user.PendingProfile `json:"pending_profile,omitempty"`
}

type tracker struct {
	mu     sync.Mutex
	states map[Action]ActionState
}

func newTracker() *tracker {
	return &tracker{states: map[Action]ActionState{}}
}

func (t *tracker) begin(a Action) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.states[a].Phase == PhaseInFlight {
		return ErrInFlight
	}
	t.states[a] = ActionState{Phase: PhaseInFlight}
	return nil
}

func (t *tracker) set(a Action, p Phase, msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.states[a] = ActionState{Phase: p, Message: msg}
}

func (t *tracker) get(a Action) ActionState {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.states[a]
	if !ok {
		return ActionState{Phase: PhaseIdle}
	}
	return st
}

// Actions runs the user-initiated auth flows of one session.
type Actions struct {
	session           IdentitySession
	pending           PendingSlot
	profiles          ProfileStore
	resolver          *Resolver
	store             *Store
	policy            RedirectPolicy
	minPasswordLength int
	states            *tracker
	log               *zap.Logger
}

func NewActions(session IdentitySession, pending PendingSlot, profiles ProfileStore, resolver *Resolver, store *Store, policy RedirectPolicy, minPasswordLength int, log *zap.Logger) *Actions {
	if minPasswordLength <= 0 {
		minPasswordLength = 6
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Actions{
		session:           session,
		pending:           pending,
		profiles:          profiles,
		resolver:          resolver,
		store:             store,
		policy:            policy,
		minPasswordLength: minPasswordLength,
		states:            newTracker(),
		log:               log,
	}
}

// State reports the phase of action a.
func (a *Actions) State(action Action) ActionState {
	return a.states.get(action)
}

func (a *Actions) Login(ctx context.Context, email, password string) (Outcome, error) {
	if err := a.states.begin(ActionLogin); err != nil {
		return Outcome{}, err
	}
	if err := validateLogin(email, password); err != nil {
		return a.fail(ActionLogin, err)
	}

	id, err := a.session.SignInWithPassword(ctx, strings.TrimSpace(email), password)
	if err != nil {
		return a.fail(ActionLogin, err)
	}

	view := a.resolver.Resolve(ctx, id)
	return a.finish(ActionLogin, view, "Login successful! Redirecting...")
}

func (a *Actions) Signup(ctx context.Context, in SignupInput) (Outcome, error) {
	if err := a.states.begin(ActionSignup); err != nil {
		return Outcome{}, err
	}
	role, err := in.Validate(a.minPasswordLength)
	if err != nil {
		return a.fail(ActionSignup, err)
	}

	id, err := a.session.CreateWithPassword(ctx, strings.TrimSpace(in.Email), in.Password)
	if err != nil {
		return a.fail(ActionSignup, err)
	}

	name := strings.TrimSpace(in.Name)
	view, err := a.resolver.CreateOrUpdateProfile(ctx, id.UID, name, id.Email, role, false)
	if err != nil {
		return a.fail(ActionSignup, err)
	}
	if _, err := a.session.UpdateDisplayName(ctx, name); err != nil {
		a.log.Warn("update display name", zap.String("uid", id.UID), zap.Error(err))
	}

	return a.finish(ActionSignup, view, "Account created! Redirecting...")
}

// SocialLogin completes a provider sign-in. A new identity gets a pending
// profile record and is sent to profile completion with no view.
func (a *Actions) SocialLogin(ctx context.Context, cred identity.SocialCredential) (Outcome, error) {
	if err := a.states.begin(ActionSocialLogin); err != nil {
		return Outcome{}, err
	}

	id, err := a.session.SignInWithSocial(ctx, cred)
	if err != nil {
		if identity.CodeOf(err) == identity.CodePopupClosed {
			a.states.set(ActionSocialLogin, PhaseIdle, "")
			metrics.AuthActions.WithLabelValues(string(ActionSocialLogin), "cancelled").Inc()
			return Outcome{Redirect: a.policy.Login()}, nil
		}
		return a.fail(ActionSocialLogin, err)
	}

	p, err := a.profiles.Get(ctx, id.UID)
	switch {
	case err == nil:
		view := user.View{Identity: id, AccountType: user.AccountTypeFrom(p.UserType)}
		a.store.Commit(view)
		return a.finish(ActionSocialLogin, view, "Login successful! Redirecting...")
	case errors.Is(err, user.ErrNotFound):
		return a.startProfileCompletion(ctx, id)
	default:
		a.log.Warn("check profile after social sign-in", zap.String("uid", id.UID), zap.Error(err))
		view := a.resolver.Resolve(ctx, id)
		return a.finish(ActionSocialLogin, view, "Login successful! Redirecting...")
	}
}

func (a *Actions) startProfileCompletion(ctx context.Context, id user.Identity) (Outcome, error) {
	a.store.Hold(id.UID)
	rec := pendingFrom(id)
	if err := a.pending.Put(ctx, rec); err != nil {
		a.log.Error("store pending profile", zap.String("uid", id.UID), zap.Error(err))
		return a.fail(ActionSocialLogin, errors.Join(ErrPendingWrite, err))
	}
	a.states.set(ActionSocialLogin, PhaseSucceeded, "")
	metrics.AuthActions.WithLabelValues(string(ActionSocialLogin), "pending_profile").Inc()
	return Outcome{Redirect: a.policy.CompleteProfile(), Pending: &rec}, nil
}

// PrepareCompleteProfile decides what the profile completion page shows. It
// returns either the record to prefill the form with or a redirect.
func (a *Actions) PrepareCompleteProfile(ctx context.Context) Outcome {
	current, signedIn := a.session.Current()

	rec, ok, err := a.pending.Get(ctx)
	if err != nil {
		a.log.Warn("read pending profile", zap.Error(err))
		ok = false
	}
	if ok {
		switch {
		case !signedIn:
			a.clearPending(ctx)
			return Outcome{Redirect: a.policy.Login()}
		case rec.UID == current.UID:
			return Outcome{Pending: &rec}
		default:
			a.clearPending(ctx)
		}
	}

	if !signedIn {
		return Outcome{Redirect: a.policy.Login()}
	}

	view, has := a.store.Snapshot()
	if !has || view.UID() != current.UID || !view.AccountType.IsKnown() {
		view = a.resolver.Resolve(ctx, current)
	}
	if view.AccountType.IsKnown() {
		return Outcome{View: &view, Redirect: a.policy.For(&view)}
	}

	synth := pendingFrom(current)
	return Outcome{Pending: &synth}
}

func (a *Actions) CompleteProfile(ctx context.Context, accountType string) (Outcome, error) {
	if err := a.states.begin(ActionCompleteProfile); err != nil {
		return Outcome{}, err
	}
	role, err := parseAccountType(accountType)
	if err != nil {
		return a.fail(ActionCompleteProfile, err)
	}

	entry := a.PrepareCompleteProfile(ctx)
	if entry.Pending == nil {
		if entry.View != nil {
			a.states.set(ActionCompleteProfile, PhaseSucceeded, "")
			return entry, nil
		}
		out, err := a.fail(ActionCompleteProfile, ErrInvalidEntry)
		out.Redirect = entry.Redirect
		return out, err
	}

	rec := *entry.Pending
	view, err := a.resolver.CreateOrUpdateProfile(ctx, rec.UID, rec.Name, rec.Email, role, false)
	a.clearPending(ctx)
	if err != nil {
		return a.fail(ActionCompleteProfile, err)
	}
	return a.finish(ActionCompleteProfile, view, "Profile saved! Redirecting...")
}

func (a *Actions) Logout(ctx context.Context) (Outcome, error) {
	if err := a.states.begin(ActionLogout); err != nil {
		return Outcome{}, err
	}
	if err := a.session.SignOut(ctx); err != nil {
		return a.fail(ActionLogout, err)
	}
	a.store.Clear()
	a.clearPending(ctx)
	a.states.set(ActionLogout, PhaseSucceeded, "")
	metrics.AuthActions.WithLabelValues(string(ActionLogout), "success").Inc()
	return Outcome{Redirect: a.policy.Login()}, nil
}

// finish checks that view still belongs to the signed-in identity before
// redirecting on it.
func (a *Actions) finish(action Action, view user.View, msg string) (Outcome, error) {
	current, ok := a.session.Current()
	if !ok || current.UID != view.UID() {
		return a.fail(action, ErrSuperseded)
	}
	a.states.set(action, PhaseSucceeded, msg)
	metrics.AuthActions.WithLabelValues(string(action), "success").Inc()
	return Outcome{View: &view, Redirect: a.policy.For(&view), Message: msg}, nil
}

func (a *Actions) fail(action Action, err error) (Outcome, error) {
	msg := Message(err)
	a.states.set(action, PhaseFailed, msg)
	result := "error"
	var verr *ValidationError
	if errors.As(err, &verr) {
		result = "invalid"
	} else {
		a.log.Info("auth action failed", zap.String("action", string(action)), zap.String("code", identity.CodeOf(err)), zap.Error(err))
	}
	metrics.AuthActions.WithLabelValues(string(action), result).Inc()
	return Outcome{Message: msg}, err
}

func (a *Actions) clearPending(ctx context.Context) {
	if err := a.pending.Clear(ctx); err != nil {
		a.log.Warn("clear pending profile", zap.Error(err))
	}
}

func pendingFrom(id user.Identity) user.PendingProfile {
	name := strings.TrimSpace(id.DisplayName)
	if name == "" {
		name = fallbackGreetingName
	}
	return user.PendingProfile{UID: id.UID, Name: name, Email: id.Email}
}
