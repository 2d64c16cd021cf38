package hooks

import (
	"context"
	"time"

	apperrors "github.com/jrsteele09/go-identity-core/internal/errors"
	"github.com/jrsteele09/go-identity-core/token"
	"github.com/jrsteele09/go-identity-core/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Pipeline runs template hooks and code hooks at each trigger point. Template
// hooks run first so code hooks see their effects.
type Pipeline struct {
	registry       *Registry
	templates      TemplateRepo
	users          users.UserRepo
	allocator      *UsernameAllocator
	tokens         *token.Manager
	redirectSecret []byte
	nowTime        func() time.Time
}

type PipelineOption func(*Pipeline)

func WithUsernameAllocator(a *UsernameAllocator) PipelineOption {
	return func(p *Pipeline) {
		p.allocator = a
	}
}

func WithServiceTokens(m *token.Manager) PipelineOption {
	return func(p *Pipeline) {
		p.tokens = m
	}
}

func WithRedirectSecret(secret string) PipelineOption {
	return func(p *Pipeline) {
		p.redirectSecret = []byte(secret)
	}
}

func WithNowTime(now func() time.Time) PipelineOption {
	return func(p *Pipeline) {
		p.nowTime = now
	}
}

func NewPipeline(registry *Registry, templates TemplateRepo, userRepo users.UserRepo, opts ...PipelineOption) (*Pipeline, error) {
	if registry == nil {
		return nil, errors.New("[NewPipeline] hook registry is required")
	}
	if templates == nil {
		return nil, errors.New("[NewPipeline] template hook repo is required")
	}
	if userRepo == nil {
		return nil, errors.New("[NewPipeline] user repo is required")
	}
	p := &Pipeline{
		registry:  registry,
		templates: templates,
		users:     userRepo,
		nowTime:   time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.allocator == nil {
		p.allocator = NewUsernameAllocator(userRepo, 10)
	}
	return p, nil
}

func (p *Pipeline) RunPreUserRegistration(ctx context.Context, event *Event) error {
	for _, h := range p.registry.preUserRegistration {
		if err := h(ctx, event); err != nil {
			return denied(err)
		}
	}
	return nil
}

// RunPostUserRegistration never fails the registration; hook errors are logged.
func (p *Pipeline) RunPostUserRegistration(ctx context.Context, event *Event) {
	for _, h := range p.registry.postUserRegistration {
		if err := h(ctx, event); err != nil {
			log.Err(err).Str("trigger", string(TriggerPostUserRegistration)).Msg("hook failed")
		}
	}
}

func (p *Pipeline) RunPreUserUpdate(ctx context.Context, event *Event, update *users.User) error {
	for _, h := range p.registry.preUserUpdate {
		if err := h(ctx, event, update); err != nil {
			return denied(err)
		}
	}
	return nil
}

// PostLoginResult carries the refreshed user and the detour, if any hook asked for one.
type PostLoginResult struct {
	User   *users.User
	Detour *Detour
}

func (p *Pipeline) RunPostLogin(ctx context.Context, event *Event) (*PostLoginResult, error) {
	if err := p.runTemplates(ctx, event, TriggerPostUserLogin, nil); err != nil {
		return nil, err
	}

	api := &PostLoginAPI{}
	api.Prompt = &PromptAPI{api: api}
	api.Redirect = &RedirectAPI{api: api, secret: p.redirectSecret, nowTime: p.nowTime}
	api.Token = &ServiceTokenAPI{tokens: p.tokens}
	if event.Tenant != nil {
		api.Token.tenantID = event.Tenant.ID
	}
	if event.Client != nil {
		api.Token.clientID = event.Client.ID
	}

	for _, h := range p.registry.postLogin {
		if err := h(ctx, event, api); err != nil {
			return nil, denied(err)
		}
		if api.detour != nil {
			break
		}
	}
	return &PostLoginResult{User: event.User, Detour: api.detour}, nil
}

// CredentialsExchangeResult holds the custom claims contributed by hooks
type CredentialsExchangeResult struct {
	AccessTokenClaims map[string]any
	IDTokenClaims     map[string]any
}

func (p *Pipeline) RunCredentialsExchange(ctx context.Context, event *Event) (*CredentialsExchangeResult, error) {
	api := &CredentialsExchangeAPI{
		AccessToken: &ClaimSetter{claims: map[string]any{}},
		IDToken:     &ClaimSetter{claims: map[string]any{}},
	}
	if err := p.runTemplates(ctx, event, TriggerCredentialsExchange, api); err != nil {
		return nil, err
	}
	for _, h := range p.registry.credentialsExchange {
		if err := h(ctx, event, api); err != nil {
			return nil, denied(err)
		}
		if api.denied != "" {
			break
		}
	}
	if api.denied != "" {
		return nil, apperrors.AccessDenied(api.denied)
	}
	return &CredentialsExchangeResult{
		AccessTokenClaims: api.AccessToken.claims,
		IDTokenClaims:     api.IDToken.claims,
	}, nil
}

func (p *Pipeline) runTemplates(ctx context.Context, event *Event, trigger Trigger, exchange *CredentialsExchangeAPI) error {
	if event.Tenant == nil {
		return nil
	}
	configured, err := p.templates.List(ctx, event.Tenant.ID)
	if err != nil {
		return errors.Wrap(err, "[Pipeline.runTemplates] templates.List")
	}

	for _, hook := range configured {
		if !hook.Enabled {
			continue
		}
		id, ok := ParseTemplateID(hook.TemplateID)
		if !ok {
			log.Warn().Str("tenant_id", hook.TenantID).Str("template_id", hook.TemplateID).Msg("unknown template hook, skipping")
			continue
		}
		if id.Trigger() != trigger {
			continue
		}

		switch id {
		case TemplateEnsureUsername:
			p.ensureUsername(ctx, event)
		case TemplateSetPreferredUsername:
			if event.User != nil && event.User.Username != "" && exchange != nil {
				if err := exchange.IDToken.SetCustomClaim("preferred_username", event.User.Username); err != nil {
					log.Warn().Err(err).Str("template_id", id.String()).Str("user_id", event.User.ID).Msg("template could not set id token claim")
				}
			}
		}

		// the template may have written the user; the event copy is stale now
		if event.User != nil {
			fresh, err := p.users.Get(ctx, event.User.TenantID, event.User.ID)
			if err != nil {
				return errors.Wrap(err, "[Pipeline.runTemplates] refetch user")
			}
			event.User = fresh
		}
	}
	return nil
}

func (p *Pipeline) ensureUsername(ctx context.Context, event *Event) {
	if event.User == nil {
		return
	}
	res, err := p.allocator.EnsureUsername(ctx, event.User.TenantID, event.User.ID)
	if err != nil {
		log.Err(err).Str("user_id", event.User.ID).Msg("ensure-username failed")
		return
	}
	log.Debug().Str("user_id", event.User.ID).Str("outcome", res.Outcome.String()).
		Int("attempts", res.Attempts).Msg("ensure-username")
}

func denied(err error) error {
	if _, ok := apperrors.AsHTTPError(err); ok {
		return err
	}
	return apperrors.AccessDenied(err.Error())
}
