package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/benpsk/kalakaari-shop/internal/auth"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	sessionIssuer          = "kalakaari-shop"
	defaultSessionTokenTTL = 30 * 24 * time.Hour

	alreadyLoggedInNotice = "already-logged-in"
)

type sessionContextKey string

const clientContextKey sessionContextKey = "auth_client"

type sessionClaims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

func (h handler) issueSessionToken(sessionID string, now time.Time) (string, time.Time, error) {
	if strings.TrimSpace(sessionID) == "" || len(h.sessionSecret) == 0 {
		return "", time.Time{}, errors.New("session token not configured")
	}
	ttl := h.sessionTTL
	if ttl <= 0 {
		ttl = defaultSessionTokenTTL
	}
	expiresAt := now.Add(ttl)
	claims := sessionClaims{
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			Issuer:    sessionIssuer,
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(h.sessionSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

func (h handler) parseSessionToken(tokenString string) (sessionClaims, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" || len(h.sessionSecret) == 0 {
		return sessionClaims{}, errors.New("no session token")
	}
	var claims sessionClaims
	parsed, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return h.sessionSecret, nil
	}, jwt.WithIssuer(sessionIssuer), jwt.WithTimeFunc(h.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			// The signature has been verified; the caller may still want
			// to know which session expired.
			return claims, err
		}
		return sessionClaims{}, err
	}
	if !parsed.Valid || strings.TrimSpace(claims.SessionID) == "" {
		return sessionClaims{}, errors.New("invalid session token")
	}
	return claims, nil
}

// loadSession resolves the browser session from its cookie, minting a new
// one when the cookie is missing or invalid, and attaches the session's live
// auth client to the request context.
func (h handler) loadSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		now := h.now()
		sessionID := ""
		reissue := true
		claims, err := h.parseSessionToken(h.sessionTokenFromRequest(r))
		switch {
		case err == nil:
			sessionID = claims.SessionID
			// Refresh once less than half of the lifetime is left.
			reissue = claims.ExpiresAt != nil && claims.ExpiresAt.Sub(now) < h.sessionTTL/2
		case errors.Is(err, jwt.ErrTokenExpired) && claims.SessionID != "":
			// The browser moves to a new session id; the old client would
			// only linger until the idle sweep.
			h.clients.Forget(claims.SessionID)
			h.log.Debug("session cookie expired", zap.String("session_id", claims.SessionID))
		}
		if sessionID == "" {
			sessionID = uuid.NewString()
		}
		if reissue {
			token, expiresAt, err := h.issueSessionToken(sessionID, now)
			if err != nil {
				h.log.Error("issue session token", zap.Error(err))
				http.Error(w, "session unavailable", http.StatusInternalServerError)
				return
			}
			h.setSessionCookie(w, r, token, expiresAt)
		}

		client, err := h.clients.Get(r.Context(), sessionID)
		if err != nil {
			h.log.Error("open auth client", zap.String("session_id", sessionID), zap.Error(err))
			http.Error(w, "session unavailable", http.StatusServiceUnavailable)
			return
		}

		ctx := context.WithValue(r.Context(), clientContextKey, client)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func clientFromContext(r *http.Request) *auth.Client {
	if r == nil {
		return nil
	}
	if c, ok := r.Context().Value(clientContextKey).(*auth.Client); ok {
		return c
	}
	return nil
}

// requireAuth lets the request through only when an identity is signed in.
// It reads the identity-presence signal, not the resolved profile.
func (h handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client := clientFromContext(r)
		if client == nil || !client.SignedIn() {
			if isAPIRequest(r) {
				writeErrorJSON(w, http.StatusUnauthorized, "not signed in")
				return
			}
			http.Redirect(w, r, auth.PathLogin, http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h handler) requireGuest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if client := clientFromContext(r); client != nil && client.SignedIn() {
			http.Redirect(w, r, auth.PathHome+"?notice="+alreadyLoggedInNotice, http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func isAPIRequest(r *http.Request) bool {
	return r != nil && r.URL != nil && strings.HasPrefix(r.URL.Path, "/api/")
}

func (h handler) setSessionCookie(w http.ResponseWriter, r *http.Request, token string, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.sessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   h.sessionCookieSecure(r),
		Expires:  expiresAt,
		MaxAge:   int(expiresAt.Sub(h.now()).Seconds()),
	})
}

func (h handler) sessionTokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie(h.sessionCookieName); err == nil {
		return strings.TrimSpace(c.Value)
	}
	return ""
}

func (h handler) sessionCookieSecure(r *http.Request) bool {
	if h.sessionCookieForceSecure {
		return true
	}
	if strings.EqualFold(h.appEnv, "production") {
		return true
	}
	if r != nil && r.TLS != nil {
		return true
	}
	return r != nil && strings.EqualFold(strings.TrimSpace(r.Header.Get("X-Forwarded-Proto")), "https")
}
