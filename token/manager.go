package token

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	apperrors "github.com/jrsteele09/go-identity-core/internal/errors"
	"github.com/jrsteele09/go-identity-core/internal/utils"
	"github.com/jrsteele09/go-identity-core/tenants"
	"github.com/jrsteele09/go-identity-core/users"
	"github.com/pkg/errors"
)

// AccessTokenParams describes one access token. Scopes and Permissions are the
// resolver's output and are embedded as is.
type AccessTokenParams struct {
	TenantID       string
	Subject        string
	ClientID       string
	Audience       string
	Scopes         []string
	Permissions    []string
	OrganizationID string
	SessionID      string
	// ActorSubject is set when an operator is impersonating Subject.
	ActorSubject string
	CustomClaims map[string]any
}

type IDTokenParams struct {
	TenantID     string
	User         *users.User
	ClientID     string
	Nonce        string
	SessionID    string
	Scopes       []string
	CustomClaims map[string]any
}

// TokenIntrospection represents the metadata of a token as returned by introspection.
// When Active is false the other fields may not be populated.
type TokenIntrospection struct {
	Active      bool     `json:"active"`
	Aud         []string `json:"aud,omitempty"`
	Exp         *int64   `json:"exp,omitempty"`
	Iat         *int64   `json:"iat,omitempty"`
	Iss         string   `json:"iss,omitempty"`
	Sub         string   `json:"sub,omitempty"`
	Scope       string   `json:"scope,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
	Tenant      string   `json:"tenant_id,omitempty"`
	Act         *Actor   `json:"act,omitempty"`
}

type Manager struct {
	tenantRepo        tenants.Repo
	defaultSigner     Signer
	signers           map[string]Signer // signer id (kid) -> signer
	signersMu         sync.RWMutex
	defaultIssuer     string
	revokedCache      RevokedTokenCache
	accessTokenExpiry time.Duration
	idTokenExpiry     time.Duration
	nowTime           func() time.Time
}

type ManagerOption func(*Manager)

func WithTokenExpiry(accessTokenExpiry, idTokenExpiry time.Duration) ManagerOption {
	return func(m *Manager) {
		m.accessTokenExpiry = accessTokenExpiry
		m.idTokenExpiry = idTokenExpiry
	}
}

func WithNowTime(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowTime = now
	}
}

func WithIssuer(issuer string) ManagerOption {
	return func(m *Manager) {
		m.defaultIssuer = issuer
	}
}

func WithRevokedTokenCache(cache RevokedTokenCache) ManagerOption {
	return func(m *Manager) {
		m.revokedCache = cache
	}
}

func NewManager(tenantRepo tenants.Repo, defaultSigner Signer, options ...ManagerOption) (*Manager, error) {
	if tenantRepo == nil {
		return nil, errors.New("[NewManager] tenant repo is required")
	}
	if defaultSigner == nil {
		return nil, errors.New("[NewManager] default signer is required")
	}
	m := &Manager{
		tenantRepo:        tenantRepo,
		defaultSigner:     defaultSigner,
		signers:           map[string]Signer{defaultSigner.KeyID(): defaultSigner},
		revokedCache:      NewInMemoryRevokedTokenCache(),
		accessTokenExpiry: 24 * time.Hour,
		idTokenExpiry:     10 * time.Hour,
		nowTime:           time.Now,
	}

	for _, opt := range options {
		opt(m)
	}
	return m, nil
}

// RegisterSigner makes signer available to tenants whose SignerID matches its key id.
func (m *Manager) RegisterSigner(signer Signer) {
	m.signersMu.Lock()
	defer m.signersMu.Unlock()
	m.signers[signer.KeyID()] = signer
}

func (m *Manager) AccessTokenExpiry() time.Duration {
	return m.accessTokenExpiry
}

func (m *Manager) CreateAccessToken(ctx context.Context, p AccessTokenParams) (string, error) {
	tenant, err := m.tenantRepo.Get(ctx, p.TenantID)
	if err != nil {
		return "", errors.Wrap(err, "[Manager.CreateAccessToken] tenant")
	}

	audience := p.Audience
	if audience == "" {
		audience = tenant.Audience
	}
	now := m.nowTime()

	claims := jwt.MapClaims{}
	mergeCustomClaims(claims, p.CustomClaims)
	claims["iss"] = m.issuer(tenant)
	claims["sub"] = p.Subject
	claims["aud"] = audience
	claims["azp"] = p.ClientID
	claims["tenant_id"] = p.TenantID
	claims["iat"] = now.Unix()
	claims["exp"] = now.Add(m.accessTokenExpiry).Unix()
	claims["jti"] = uuid.NewString()
	if len(p.Scopes) > 0 {
		claims["scope"] = utils.JoinScopes(p.Scopes)
	}
	if len(p.Permissions) > 0 {
		claims["permissions"] = p.Permissions
	}
	if p.OrganizationID != "" {
		claims["org_id"] = p.OrganizationID
	}
	if p.SessionID != "" {
		claims["sid"] = p.SessionID
	}
	if p.ActorSubject != "" {
		claims["act"] = map[string]any{"sub": p.ActorSubject}
	}

	signed, err := m.signer(tenant).Sign(claims)
	if err != nil {
		return "", errors.Wrap(err, "[Manager.CreateAccessToken] Sign")
	}
	return signed, nil
}

func (m *Manager) CreateIDToken(ctx context.Context, p IDTokenParams) (string, error) {
	if p.User == nil {
		return "", errors.New("[Manager.CreateIDToken] user is required")
	}
	tenant, err := m.tenantRepo.Get(ctx, p.TenantID)
	if err != nil {
		return "", errors.Wrap(err, "[Manager.CreateIDToken] tenant")
	}
	now := m.nowTime()

	claims := jwt.MapClaims{}
	mergeCustomClaims(claims, p.CustomClaims)
	for k, v := range ProfileClaims(p.User, p.Scopes) {
		claims[k] = v
	}
	claims["iss"] = m.issuer(tenant)
	claims["sub"] = p.User.ID
	claims["aud"] = p.ClientID
	claims["iat"] = now.Unix()
	claims["exp"] = now.Add(m.idTokenExpiry).Unix()
	if p.Nonce != "" {
		claims["nonce"] = p.Nonce
	}
	if p.SessionID != "" {
		claims["sid"] = p.SessionID
	}

	signed, err := m.signer(tenant).Sign(claims)
	if err != nil {
		return "", errors.Wrap(err, "[Manager.CreateIDToken] Sign")
	}
	return signed, nil
}

// ProfileClaims returns the standard OIDC claims of user released by scopes.
func ProfileClaims(user *users.User, scopes []string) map[string]any {
	claims := map[string]any{}
	if utils.Contains(scopes, "profile") {
		claims["name"] = user.DisplayName()
		if user.Nickname != "" {
			claims["nickname"] = user.Nickname
		}
		if user.GivenName != "" {
			claims["given_name"] = user.GivenName
		}
		if user.FamilyName != "" {
			claims["family_name"] = user.FamilyName
		}
		if user.Picture != "" {
			claims["picture"] = user.Picture
		}
		if user.Username != "" {
			claims["preferred_username"] = user.Username
		}
		if !user.UpdatedAt.IsZero() {
			claims["updated_at"] = user.UpdatedAt.UTC().Format(time.RFC3339)
		}
	}
	if utils.Contains(scopes, "email") && user.Email != "" {
		claims["email"] = user.Email
		claims["email_verified"] = user.EmailVerified
	}
	if utils.Contains(scopes, "phone") && user.PhoneNumber != "" {
		claims["phone_number"] = user.PhoneNumber
	}
	return claims
}

// Verify checks the signature, expiry and revocation state of an access token.
func (m *Manager) Verify(ctx context.Context, rawToken string) (*AccessClaims, error) {
	if strings.TrimSpace(rawToken) == "" {
		return nil, apperrors.ErrInvalidToken
	}
	claims := &AccessClaims{}
	parsed, err := jwt.ParseWithClaims(rawToken, claims, m.keyFunc, jwt.WithTimeFunc(m.nowTime), jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		return nil, apperrors.Wrapf(apperrors.ErrInvalidToken, "%v", err)
	}
	if claims.ID != "" {
		revoked, err := m.revokedCache.IsRevoked(ctx, claims.ID)
		if err != nil {
			return nil, errors.Wrap(err, "[Manager.Verify] revocation lookup")
		}
		if revoked {
			return nil, apperrors.Wrapf(apperrors.ErrInvalidToken, "revoked")
		}
	}
	return claims, nil
}

func (m *Manager) Introspection(ctx context.Context, rawToken string) (*TokenIntrospection, error) {
	claims, err := m.Verify(ctx, rawToken)
	if apperrors.Is(err, apperrors.ErrInvalidToken) {
		return &TokenIntrospection{Active: false}, nil
	}
	if err != nil {
		return nil, err
	}
	ti := &TokenIntrospection{
		Active:      true,
		Aud:         claims.Audience,
		Iss:         claims.Issuer,
		Sub:         claims.Subject,
		Scope:       claims.Scope,
		Permissions: claims.Permissions,
		Tenant:      claims.TenantID,
		Act:         claims.Act,
	}
	if claims.ExpiresAt != nil {
		exp := claims.ExpiresAt.Unix()
		ti.Exp = &exp
	}
	if claims.IssuedAt != nil {
		iat := claims.IssuedAt.Unix()
		ti.Iat = &iat
	}
	return ti, nil
}

// Revoke blocks a valid access token until it expires.
func (m *Manager) Revoke(ctx context.Context, rawToken string) error {
	claims, err := m.Verify(ctx, rawToken)
	if err != nil {
		return err
	}
	if claims.ID == "" || claims.ExpiresAt == nil {
		return apperrors.Wrapf(apperrors.ErrInvalidToken, "token has no jti or exp")
	}
	return m.revokedCache.Add(ctx, claims.ID, claims.ExpiresAt.Time)
}

// JWKS returns the public keys of every asymmetric signer
func (m *Manager) JWKS() (*JWKS, error) {
	m.signersMu.RLock()
	defer m.signersMu.RUnlock()

	jwks := &JWKS{Keys: []JWK{}}
	for _, s := range m.signers {
		kp, ok := s.(*KeyPairSigner)
		if !ok {
			continue
		}
		jwk, err := kp.JWK()
		if err != nil {
			return nil, errors.Wrap(err, "[Manager.JWKS] JWK")
		}
		jwks.Keys = append(jwks.Keys, *jwk)
	}
	return jwks, nil
}

// Issuer returns the iss value used for tenantID.
func (m *Manager) Issuer(ctx context.Context, tenantID string) (string, error) {
	tenant, err := m.tenantRepo.Get(ctx, tenantID)
	if err != nil {
		return "", errors.Wrap(err, "[Manager.Issuer] tenant")
	}
	return m.issuer(tenant), nil
}

func (m *Manager) issuer(tenant *tenants.Tenant) string {
	if tenant.Issuer != "" {
		return tenant.Issuer
	}
	return m.defaultIssuer
}

func (m *Manager) signer(tenant *tenants.Tenant) Signer {
	m.signersMu.RLock()
	defer m.signersMu.RUnlock()
	if s, ok := m.signers[tenant.SignerID]; ok && tenant.SignerID != "" {
		return s
	}
	return m.defaultSigner
}

func (m *Manager) keyFunc(t *jwt.Token) (any, error) {
	kid, _ := t.Header["kid"].(string)
	m.signersMu.RLock()
	s, ok := m.signers[kid]
	m.signersMu.RUnlock()
	if !ok {
		s = m.defaultSigner
	}
	return s.VerificationKey(t)
}
