package server

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/benpsk/kalakaari-shop/internal/auth"
	"github.com/benpsk/kalakaari-shop/internal/identity"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const socialFlowExpiredMessage = "Your sign-in attempt expired. Please try again."

var errOAuthFlowNotFound = errors.New("oauth flow not found")

// oauthFlowRecord is one pending provider round trip. It is bound to the
// browser session that started it.
type oauthFlowRecord struct {
	State        string
	Provider     string
	SessionID    string
	CodeVerifier string
	ExpiresAt    time.Time
}

type oauthFlowStore struct {
	mu    sync.Mutex
	ttl   time.Duration
	flows map[string]oauthFlowRecord
}

func newOAuthFlowStore(ttl time.Duration) *oauthFlowStore {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &oauthFlowStore{ttl: ttl, flows: map[string]oauthFlowRecord{}}
}

func (s *oauthFlowStore) create(provider, sessionID string, now time.Time) (oauthFlowRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleanupLocked(now)

	state, err := randomToken(24)
	if err != nil {
		return oauthFlowRecord{}, err
	}
	verifier, err := randomToken(32)
	if err != nil {
		return oauthFlowRecord{}, err
	}
	record := oauthFlowRecord{
		State:        state,
		Provider:     provider,
		SessionID:    sessionID,
		CodeVerifier: verifier,
		ExpiresAt:    now.Add(s.ttl),
	}
	s.flows[state] = record
	return record, nil
}

// consume returns and removes the flow for state. A flow is single use even
// when it does not match.
func (s *oauthFlowStore) consume(state, provider, sessionID string, now time.Time) (oauthFlowRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleanupLocked(now)

	record, ok := s.flows[state]
	if !ok {
		return oauthFlowRecord{}, errOAuthFlowNotFound
	}
	delete(s.flows, state)
	if record.Provider != provider || record.SessionID != sessionID || now.After(record.ExpiresAt) {
		return oauthFlowRecord{}, errOAuthFlowNotFound
	}
	return record, nil
}

func (s *oauthFlowStore) cleanupLocked(now time.Time) {
	for state, record := range s.flows {
		if now.After(record.ExpiresAt) {
			delete(s.flows, state)
		}
	}
}

func randomToken(n int) (string, error) {
	if n <= 0 {
		n = 32
	}
	raw := make([]byte, n)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

func oauthCodeChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// socialStart opens the provider consent page, the server-side stand-in for
// the sign-in popup.
func (h handler) socialStart(w http.ResponseWriter, r *http.Request) {
	providerName := strings.TrimSpace(strings.ToLower(chi.URLParam(r, "provider")))
	provider, ok := h.socialProvider(providerName)
	if !ok {
		redirectToLogin(w, r, auth.Message(&identity.Error{Code: identity.CodeOperationNotAllowed}))
		return
	}
	client := clientFromContext(r)
	if client == nil {
		http.Error(w, "session unavailable", http.StatusInternalServerError)
		return
	}

	flow, err := h.flows.create(providerName, client.ID(), h.now())
	if err != nil {
		h.log.Error("create oauth flow", zap.String("provider", providerName), zap.Error(err))
		redirectToLogin(w, r, auth.Message(err))
		return
	}
	http.Redirect(w, r, provider.AuthCodeURL(flow.State, oauthCodeChallenge(flow.CodeVerifier)), http.StatusSeeOther)
}

// socialCallback finishes the provider round trip and runs the social login
// action with its result.
func (h handler) socialCallback(w http.ResponseWriter, r *http.Request) {
	providerName := strings.TrimSpace(strings.ToLower(chi.URLParam(r, "provider")))
	client := clientFromContext(r)
	if client == nil {
		http.Error(w, "session unavailable", http.StatusInternalServerError)
		return
	}

	q := r.URL.Query()
	flow, err := h.flows.consume(strings.TrimSpace(q.Get("state")), providerName, client.ID(), h.now())
	if err != nil {
		redirectToLogin(w, r, socialFlowExpiredMessage)
		return
	}

	out, err := client.Actions().SocialLogin(r.Context(), identity.SocialCredential{
		Provider:     providerName,
		Code:         strings.TrimSpace(q.Get("code")),
		CodeVerifier: flow.CodeVerifier,
		Error:        strings.TrimSpace(q.Get("error")),
	})
	if err != nil {
		redirectToLogin(w, r, out.Message)
		return
	}
	if out.Redirect.IsZero() {
		http.Redirect(w, r, auth.PathLogin, http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, out.Redirect.URL, http.StatusSeeOther)
}

func (h handler) socialProvider(name string) (identity.SocialProvider, bool) {
	if h.providers == nil || name == "" {
		return nil, false
	}
	return h.providers.Provider(name)
}

func redirectToLogin(w http.ResponseWriter, r *http.Request, message string) {
	target := auth.PathLogin
	if message = strings.TrimSpace(message); message != "" {
		target += "?error=" + url.QueryEscape(message)
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}
