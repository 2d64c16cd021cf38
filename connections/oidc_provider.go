package connections

import (
	"context"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
)

// OIDCProvider talks to an upstream OpenID Connect provider found by discovery.
type OIDCProvider struct {
	provider *oidc.Provider
	verifier *oidc.IDTokenVerifier
	config   oauth2.Config
}

var _ Provider = (*OIDCProvider)(nil)

func NewOIDCProvider(ctx context.Context, conn *Connection) (Provider, error) {
	if conn.Strategy != "" && conn.Strategy != StrategyOIDC {
		return nil, errors.Errorf("[NewOIDCProvider] unsupported strategy %q", conn.Strategy)
	}
	provider, err := oidc.NewProvider(ctx, conn.Issuer)
	if err != nil {
		return nil, errors.Wrap(err, "[NewOIDCProvider] discovery")
	}
	scopes := conn.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "profile", "email"}
	}
	return &OIDCProvider{
		provider: provider,
		verifier: provider.Verifier(&oidc.Config{ClientID: conn.ClientID}),
		config: oauth2.Config{
			ClientID:     conn.ClientID,
			ClientSecret: conn.ClientSecret,
			Endpoint:     provider.Endpoint(),
			Scopes:       scopes,
		},
	}, nil
}

func (p *OIDCProvider) AuthCodeURL(state, nonce, verifier, redirectURL string) string {
	cfg := p.config
	cfg.RedirectURL = redirectURL
	return cfg.AuthCodeURL(state, oidc.Nonce(nonce), oauth2.S256ChallengeOption(verifier))
}

func (p *OIDCProvider) Exchange(ctx context.Context, code, nonce, verifier, redirectURL string) (*Identity, error) {
	cfg := p.config
	cfg.RedirectURL = redirectURL
	tok, err := cfg.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, errors.Wrap(err, "[OIDCProvider.Exchange] token exchange")
	}
	rawIDToken, ok := tok.Extra("id_token").(string)
	if !ok {
		return nil, errors.New("[OIDCProvider.Exchange] no id_token in response")
	}
	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, errors.Wrap(err, "[OIDCProvider.Exchange] verify id_token")
	}

	var claims struct {
		Nonce         string `json:"nonce"`
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		Name          string `json:"name"`
		GivenName     string `json:"given_name"`
		FamilyName    string `json:"family_name"`
		Nickname      string `json:"nickname"`
		Picture       string `json:"picture"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, errors.Wrap(err, "[OIDCProvider.Exchange] claims")
	}
	if claims.Nonce != nonce {
		return nil, errors.New("[OIDCProvider.Exchange] nonce mismatch")
	}
	return &Identity{
		Subject:       idToken.Subject,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
		Name:          claims.Name,
		GivenName:     claims.GivenName,
		FamilyName:    claims.FamilyName,
		Nickname:      claims.Nickname,
		Picture:       claims.Picture,
	}, nil
}
