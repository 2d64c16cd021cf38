package connections_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-identity-core/connections"
	"github.com/jrsteele09/go-identity-core/connections/repofake"
	apperrors "github.com/jrsteele09/go-identity-core/internal/errors"
	"github.com/jrsteele09/go-identity-core/token"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

const (
	upstreamClientID = "upstream-client"
	upstreamCode     = "upstream-code"
)

type upstream struct {
	srv       *httptest.Server
	signer    *token.KeyPairSigner
	challenge string
	nonce     string
}

// newUpstream serves just enough of an OpenID provider for discovery, the
// token exchange and id_token verification.
func newUpstream(t *testing.T) *upstream {
	keyPair, err := token.GenerateRSAKeyPair("upstream-key", "RS256", 2048)
	require.NoError(t, err)
	jwk, err := keyPair.ToJWK()
	require.NoError(t, err)

	u := &upstream{signer: token.NewKeyPairSigner(keyPair)}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"issuer":                                u.srv.URL,
			"authorization_endpoint":                u.srv.URL + "/authorize",
			"token_endpoint":                        u.srv.URL + "/token",
			"jwks_uri":                              u.srv.URL + "/jwks",
			"id_token_signing_alg_values_supported": []string{"RS256"},
		})
	})
	mux.HandleFunc("GET /jwks", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(token.JWKS{Keys: []token.JWK{*jwk}})
	})
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.Form.Get("code") != upstreamCode || oauth2.S256ChallengeFromVerifier(r.Form.Get("code_verifier")) != u.challenge {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant"})
			return
		}
		now := time.Now()
		idToken, err := u.signer.Sign(jwt.MapClaims{
			"iss":            u.srv.URL,
			"aud":            upstreamClientID,
			"sub":            "108234",
			"iat":            now.Unix(),
			"exp":            now.Add(time.Hour).Unix(),
			"nonce":          u.nonce,
			"email":          "jane@gmail.com",
			"email_verified": true,
			"name":           "Jane Doe",
		})
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "upstream-access",
			"token_type":   "Bearer",
			"expires_in":   3600,
			"id_token":     idToken,
		})
	})
	u.srv = httptest.NewServer(mux)
	t.Cleanup(u.srv.Close)
	return u
}

func (u *upstream) connection() *connections.Connection {
	return &connections.Connection{
		ID:           "con_google",
		TenantID:     "acme",
		Name:         "google-oauth2",
		Strategy:     connections.StrategyOIDC,
		Issuer:       u.srv.URL,
		ClientID:     upstreamClientID,
		ClientSecret: "upstream-secret",
	}
}

// authorize records what a real provider would remember from the browser redirect.
func (u *upstream) authorize(t *testing.T, authURL string) {
	parsed, err := url.Parse(authURL)
	require.NoError(t, err)
	require.Equal(t, "S256", parsed.Query().Get("code_challenge_method"))
	u.challenge = parsed.Query().Get("code_challenge")
	u.nonce = parsed.Query().Get("nonce")
}

func TestOIDCProvider_Exchange(t *testing.T) {
	up := newUpstream(t)
	ctx := context.Background()

	p, err := connections.NewOIDCProvider(ctx, up.connection())
	require.NoError(t, err)

	verifier := oauth2.GenerateVerifier()
	authURL := p.AuthCodeURL("state-1", "nonce-1", verifier, "https://acme.example.com/login/callback")
	require.Contains(t, authURL, up.srv.URL+"/authorize")
	up.authorize(t, authURL)
	require.Equal(t, "nonce-1", up.nonce)

	identity, err := p.Exchange(ctx, upstreamCode, "nonce-1", verifier, "https://acme.example.com/login/callback")
	require.NoError(t, err)
	require.Equal(t, "108234", identity.Subject)
	require.Equal(t, "jane@gmail.com", identity.Email)
	require.True(t, identity.EmailVerified)
	require.Equal(t, "Jane Doe", identity.Name)
}

func TestOIDCProvider_Exchange_Failures(t *testing.T) {
	up := newUpstream(t)
	ctx := context.Background()
	p, err := connections.NewOIDCProvider(ctx, up.connection())
	require.NoError(t, err)

	verifier := oauth2.GenerateVerifier()
	up.authorize(t, p.AuthCodeURL("state-1", "nonce-1", verifier, "https://acme.example.com/login/callback"))

	_, err = p.Exchange(ctx, upstreamCode, "other-nonce", verifier, "https://acme.example.com/login/callback")
	require.Error(t, err)
	require.Contains(t, err.Error(), "nonce mismatch")

	_, err = p.Exchange(ctx, upstreamCode, "nonce-1", oauth2.GenerateVerifier(), "https://acme.example.com/login/callback")
	require.Error(t, err)
}

func TestNewOIDCProvider_UnsupportedStrategy(t *testing.T) {
	conn := &connections.Connection{Name: "saml", Strategy: "samlp"}
	_, err := connections.NewOIDCProvider(context.Background(), conn)
	require.Error(t, err)
}

func TestRegistry_CachesProviders(t *testing.T) {
	repo := repofake.NewFakeConnectionRepo()
	require.NoError(t, repo.Upsert(context.Background(), &connections.Connection{TenantID: "acme", Name: "google-oauth2"}))

	builds := 0
	fake := &repofake.FakeProvider{AuthorizeURL: "https://accounts.example.com/authorize"}
	registry, err := connections.NewRegistry(repo, connections.WithProviderFactory(func(ctx context.Context, conn *connections.Connection) (connections.Provider, error) {
		builds++
		return fake, nil
	}))
	require.NoError(t, err)

	for range 3 {
		conn, p, err := registry.Provider(context.Background(), "acme", "google-oauth2")
		require.NoError(t, err)
		require.Equal(t, "google-oauth2", conn.Name)
		require.Same(t, fake, p)
	}
	require.Equal(t, 1, builds)

	_, _, err = registry.Provider(context.Background(), "acme", "github")
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestNewRegistry_RequiresRepo(t *testing.T) {
	_, err := connections.NewRegistry(nil)
	require.Error(t, err)
}
