package google

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/benpsk/kalakaari-shop/internal/user"
	"github.com/coreos/go-oidc/v3/oidc"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const (
	providerName = "google"
	issuerURL    = "https://accounts.google.com"
)

type Provider struct {
	oauthConfig *oauth2.Config
	verifier    *oidc.IDTokenVerifier
	log         *zap.Logger
}

func New(ctx context.Context, clientID, clientSecret, redirectURL string, log *zap.Logger) (*Provider, error) {
	if clientID == "" || clientSecret == "" || redirectURL == "" {
		return nil, errors.New("google oauth config missing required fields")
	}
	if log == nil {
		log = zap.NewNop()
	}

	oidcProvider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, fmt.Errorf("init google oidc provider: %w", err)
	}

	return &Provider{
		oauthConfig: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Endpoint:     oidcProvider.Endpoint(),
			Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
		},
		verifier: oidcProvider.Verifier(&oidc.Config{ClientID: clientID}),
		log:      log.Named("google"),
	}, nil
}

func (p *Provider) Name() string {
	return providerName
}

// AuthCodeURL builds the consent URL with PKCE parameters.
func (p *Provider) AuthCodeURL(state, codeChallenge string) string {
	return p.oauthConfig.AuthCodeURL(
		state,
		oauth2.AccessTypeOnline,
		oauth2.SetAuthURLParam("prompt", "select_account"),
		oauth2.SetAuthURLParam("code_challenge", codeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)
}

func (p *Provider) Exchange(ctx context.Context, code, codeVerifier string) (user.SocialProfile, error) {
	token, err := p.oauthConfig.Exchange(ctx, code, oauth2.SetAuthURLParam("code_verifier", codeVerifier))
	if err != nil {
		return user.SocialProfile{}, fmt.Errorf("google token exchange: %w", err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return user.SocialProfile{}, errors.New("google did not return id_token")
	}
	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return user.SocialProfile{}, fmt.Errorf("google id_token verification: %w", err)
	}

	var claims struct {
		Subject       string `json:"sub"`
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		Name          string `json:"name"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return user.SocialProfile{}, fmt.Errorf("google id_token claims: %w", err)
	}
	if claims.Subject == "" {
		return user.SocialProfile{}, errors.New("google id_token missing subject")
	}

	p.log.Debug("id token verified",
		zap.String("issuer", idToken.Issuer),
		zap.Bool("email_verified", claims.EmailVerified),
		zap.Time("expiry", idToken.Expiry),
	)

	return user.SocialProfile{
		Provider:       providerName,
		ProviderUserID: claims.Subject,
		Email:          strings.TrimSpace(strings.ToLower(claims.Email)),
		EmailVerified:  claims.EmailVerified,
		Name:           strings.TrimSpace(claims.Name),
	}, nil
}
