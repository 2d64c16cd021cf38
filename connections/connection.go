package connections

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// StrategyOIDC is the only upstream strategy implemented
const StrategyOIDC = "oidc"

// Connection is an upstream identity provider a tenant offers on its login page.
type Connection struct {
	ID           string   `json:"id" yaml:"id"`
	TenantID     string   `json:"tenant_id" yaml:"tenant_id"`
	Name         string   `json:"name" yaml:"name"` // e.g. "google-oauth2", also the user id prefix
	Strategy     string   `json:"strategy" yaml:"strategy"`
	Issuer       string   `json:"issuer" yaml:"issuer"`
	ClientID     string   `json:"client_id" yaml:"client_id"`
	ClientSecret string   `json:"client_secret" yaml:"client_secret"`
	Scopes       []string `json:"scopes" yaml:"scopes"`
}

type Repo interface {
	Upsert(ctx context.Context, conn *Connection) error
	Get(ctx context.Context, tenantID, name string) (*Connection, error)
	List(ctx context.Context, tenantID string) ([]*Connection, error)
}

// Identity is the verified profile returned by an upstream provider.
type Identity struct {
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
	GivenName     string
	FamilyName    string
	Nickname      string
	Picture       string
}

// Provider drives the authorization code round trip with one upstream provider.
type Provider interface {
	// AuthCodeURL is where the browser is sent. state, nonce and verifier are
	// stored by the caller and handed back to Exchange.
	AuthCodeURL(state, nonce, verifier, redirectURL string) string
	Exchange(ctx context.Context, code, nonce, verifier, redirectURL string) (*Identity, error)
}

// ProviderFactory builds a Provider for a connection. Swapped out in tests.
type ProviderFactory func(ctx context.Context, conn *Connection) (Provider, error)

// Registry resolves and caches providers per tenant connection
type Registry struct {
	repo      Repo
	factory   ProviderFactory
	providers map[string]Provider
	lock      sync.RWMutex
}

type RegistryOption func(*Registry)

func WithProviderFactory(factory ProviderFactory) RegistryOption {
	return func(r *Registry) {
		r.factory = factory
	}
}

func NewRegistry(repo Repo, opts ...RegistryOption) (*Registry, error) {
	if repo == nil {
		return nil, errors.New("[connections.NewRegistry] connection repo is required")
	}
	r := &Registry{
		repo:      repo,
		factory:   NewOIDCProvider,
		providers: make(map[string]Provider),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Provider returns the connection and its provider. Discovery runs once per
// connection and the result is reused.
func (r *Registry) Provider(ctx context.Context, tenantID, name string) (*Connection, Provider, error) {
	conn, err := r.repo.Get(ctx, tenantID, name)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "[Registry.Provider] connection %s", name)
	}

	key := tenantID + "/" + name
	r.lock.RLock()
	p, ok := r.providers[key]
	r.lock.RUnlock()
	if ok {
		return conn, p, nil
	}

	p, err = r.factory(ctx, conn)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "[Registry.Provider] provider %s", name)
	}
	r.lock.Lock()
	r.providers[key] = p
	r.lock.Unlock()
	return conn, p, nil
}
