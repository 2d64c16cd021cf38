package hooks

import (
	"context"
	"net/url"
	"strings"

	"github.com/jrsteele09/go-identity-core/clients"
	"github.com/jrsteele09/go-identity-core/tenants"
	"github.com/jrsteele09/go-identity-core/users"
)

// Trigger is a point in the flow where hooks run
type Trigger string

const (
	TriggerPreUserRegistration  Trigger = "pre-user-registration"
	TriggerPostUserRegistration Trigger = "post-user-registration"
	TriggerPreUserUpdate        Trigger = "pre-user-update"
	TriggerPostUserLogin        Trigger = "post-user-login"
	TriggerCredentialsExchange  Trigger = "credentials-exchange"
)

// RequestInfo is the subset of the inbound HTTP request exposed to hooks
type RequestInfo struct {
	IP        string
	UserAgent string
	// ASN is the autonomous system of IP when an edge proxy supplies it.
	ASN       string
	Hostname  string
	Query     url.Values
}

// Event is what every hook receives. User may be nil for credentials exchange
// on the client_credentials grant.
type Event struct {
	Tenant         *tenants.Tenant
	Client         *clients.Client
	User           *users.User
	Request        RequestInfo
	Scope          []string
	Audience       string
	OrganizationID string
	GrantType      string
}

type (
	PreUserRegistrationHook  func(ctx context.Context, event *Event) error
	PostUserRegistrationHook func(ctx context.Context, event *Event) error
	PreUserUpdateHook        func(ctx context.Context, event *Event, update *users.User) error
	PostLoginHook            func(ctx context.Context, event *Event, api *PostLoginAPI) error
	CredentialsExchangeHook  func(ctx context.Context, event *Event, api *CredentialsExchangeAPI) error
)

// Registry holds the hooks supplied by the embedding application. It is built
// once at startup and handed to the Pipeline.
type Registry struct {
	preUserRegistration  []PreUserRegistrationHook
	postUserRegistration []PostUserRegistrationHook
	preUserUpdate        []PreUserUpdateHook
	postLogin            []PostLoginHook
	credentialsExchange  []CredentialsExchangeHook
}

func NewRegistry() *Registry {
	return &Registry{}
}

func (r *Registry) OnPreUserRegistration(h PreUserRegistrationHook) *Registry {
	r.preUserRegistration = append(r.preUserRegistration, h)
	return r
}

func (r *Registry) OnPostUserRegistration(h PostUserRegistrationHook) *Registry {
	r.postUserRegistration = append(r.postUserRegistration, h)
	return r
}

func (r *Registry) OnPreUserUpdate(h PreUserUpdateHook) *Registry {
	r.preUserUpdate = append(r.preUserUpdate, h)
	return r
}

func (r *Registry) OnPostLogin(h PostLoginHook) *Registry {
	r.postLogin = append(r.postLogin, h)
	return r
}

func (r *Registry) OnCredentialsExchange(h CredentialsExchangeHook) *Registry {
	r.credentialsExchange = append(r.credentialsExchange, h)
	return r
}

// ContinuationScope is the scope a detour to path is allowed to continue
// under. "/u/impersonate" and "/u/impersonate/switch" both map to "impersonate".
func ContinuationScope(path string) string {
	p := strings.TrimPrefix(path, "/u/")
	if i := strings.IndexByte(p, '/'); i >= 0 {
		p = p[:i]
	}
	return p
}
