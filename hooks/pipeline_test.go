package hooks_test

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/jrsteele09/go-identity-core/clients"
	"github.com/jrsteele09/go-identity-core/hooks"
	"github.com/jrsteele09/go-identity-core/hooks/repofake"
	apperrors "github.com/jrsteele09/go-identity-core/internal/errors"
	"github.com/jrsteele09/go-identity-core/tenants"
	"github.com/jrsteele09/go-identity-core/users"
	fakeuserrepo "github.com/jrsteele09/go-identity-core/users/repofake"
	"github.com/stretchr/testify/require"
)

type pipelineFixture struct {
	registry  *hooks.Registry
	templates *repofake.FakeTemplateRepo
	users     *fakeuserrepo.FakeUserRepo
	pipeline  *hooks.Pipeline
	user      *users.User
}

func setupPipeline(t *testing.T) *pipelineFixture {
	f := &pipelineFixture{
		registry:  hooks.NewRegistry(),
		templates: repofake.NewFakeTemplateRepo(),
		users:     fakeuserrepo.NewFakeUserRepo(),
	}
	p, err := hooks.NewPipeline(f.registry, f.templates, f.users, hooks.WithRedirectSecret("redirect-secret"))
	require.NoError(t, err)
	f.pipeline = p
	f.user = createUser(t, f.users, users.User{ID: "u1", Nickname: "John Doe"})
	return f
}

func (f *pipelineFixture) event() *hooks.Event {
	return &hooks.Event{
		Tenant: &tenants.Tenant{ID: testTenant},
		Client: &clients.Client{ID: "app", TenantID: testTenant},
		User:   f.user,
	}
}

func (f *pipelineFixture) enable(t *testing.T, id, templateID string) {
	require.NoError(t, f.templates.Upsert(context.Background(), &hooks.TemplateHook{
		ID: id, TenantID: testTenant, TemplateID: templateID, Enabled: true,
	}))
}

func TestNewPipeline_RequiresDeps(t *testing.T) {
	_, err := hooks.NewPipeline(nil, repofake.NewFakeTemplateRepo(), fakeuserrepo.NewFakeUserRepo())
	require.Error(t, err)
}

func TestParseTemplateID(t *testing.T) {
	id, ok := hooks.ParseTemplateID("ensure-username")
	require.True(t, ok)
	require.Equal(t, hooks.TemplateEnsureUsername, id)
	require.Equal(t, hooks.TriggerPostUserLogin, id.Trigger())

	_, ok = hooks.ParseTemplateID("not-deployed-yet")
	require.False(t, ok)
}

func TestPostLogin_EnsureUsernameTemplateRefetchesUser(t *testing.T) {
	f := setupPipeline(t)
	f.enable(t, "h1", "ensure-username")
	f.enable(t, "h2", "some-future-template")

	var seen string
	f.registry.OnPostLogin(func(_ context.Context, ev *hooks.Event, _ *hooks.PostLoginAPI) error {
		seen = ev.User.Username
		return nil
	})

	res, err := f.pipeline.RunPostLogin(context.Background(), f.event())
	require.NoError(t, err)
	require.Nil(t, res.Detour)
	require.Equal(t, "john", res.User.Username)
	require.Equal(t, "john", seen)
}

func TestPostLogin_DisabledTemplateDoesNothing(t *testing.T) {
	f := setupPipeline(t)
	require.NoError(t, f.templates.Upsert(context.Background(), &hooks.TemplateHook{
		ID: "h1", TenantID: testTenant, TemplateID: "ensure-username",
	}))

	res, err := f.pipeline.RunPostLogin(context.Background(), f.event())
	require.NoError(t, err)
	require.Empty(t, res.User.Username)
}

func TestPostLogin_SendUserToFirstDetourWins(t *testing.T) {
	f := setupPipeline(t)
	calls := 0
	f.registry.
		OnPostLogin(func(_ context.Context, _ *hooks.Event, api *hooks.PostLoginAPI) error {
			calls++
			api.Redirect.SendUserTo("/u/impersonate", url.Values{"foo": {"bar"}})
			return nil
		}).
		OnPostLogin(func(_ context.Context, _ *hooks.Event, api *hooks.PostLoginAPI) error {
			calls++
			return nil
		})

	res, err := f.pipeline.RunPostLogin(context.Background(), f.event())
	require.NoError(t, err)
	require.Equal(t, 1, calls)
	require.Equal(t, "/u/impersonate", res.Detour.Path)
	require.Equal(t, "impersonate", res.Detour.Scope)
	require.Equal(t, "bar", res.Detour.Query.Get("foo"))
}

func TestPostLogin_HookErrorDenies(t *testing.T) {
	f := setupPipeline(t)
	f.registry.OnPostLogin(func(context.Context, *hooks.Event, *hooks.PostLoginAPI) error {
		return errors.New("blocked by policy")
	})

	_, err := f.pipeline.RunPostLogin(context.Background(), f.event())
	httpErr, ok := apperrors.AsHTTPError(err)
	require.True(t, ok)
	require.Equal(t, apperrors.CodeAccessDenied, httpErr.Code)
	require.Equal(t, "blocked by policy", httpErr.Description)
}

func TestRedirectTokens(t *testing.T) {
	f := setupPipeline(t)
	var encoded string
	f.registry.OnPostLogin(func(_ context.Context, _ *hooks.Event, api *hooks.PostLoginAPI) error {
		var err error
		encoded, err = api.Redirect.EncodeToken(map[string]any{"user": "u1"}, time.Minute)
		if err != nil {
			return err
		}
		payload, err := api.Redirect.ValidateToken(encoded)
		if err != nil {
			return err
		}
		require.Equal(t, map[string]any{"user": "u1"}, payload)

		_, err = api.Redirect.ValidateToken(encoded + "x")
		require.ErrorIs(t, err, apperrors.ErrInvalidToken)
		return nil
	})

	_, err := f.pipeline.RunPostLogin(context.Background(), f.event())
	require.NoError(t, err)
	require.NotEmpty(t, encoded)
}

func TestCredentialsExchange_CustomClaims(t *testing.T) {
	f := setupPipeline(t)
	f.user.Username = "johnd"
	require.NoError(t, f.users.Update(context.Background(), f.user))
	f.enable(t, "h1", "set-preferred-username")

	f.registry.OnCredentialsExchange(func(_ context.Context, _ *hooks.Event, api *hooks.CredentialsExchangeAPI) error {
		require.Error(t, api.AccessToken.SetCustomClaim("sub", "forged"))
		return api.AccessToken.SetCustomClaim("https://example.com/tier", "gold")
	})

	res, err := f.pipeline.RunCredentialsExchange(context.Background(), f.event())
	require.NoError(t, err)
	require.Equal(t, map[string]any{"https://example.com/tier": "gold"}, res.AccessTokenClaims)
	require.Equal(t, map[string]any{"preferred_username": "johnd"}, res.IDTokenClaims)
}

func TestCredentialsExchange_Deny(t *testing.T) {
	f := setupPipeline(t)
	f.registry.OnCredentialsExchange(func(_ context.Context, _ *hooks.Event, api *hooks.CredentialsExchangeAPI) error {
		api.Deny("tenant suspended")
		return nil
	})

	_, err := f.pipeline.RunCredentialsExchange(context.Background(), f.event())
	httpErr, ok := apperrors.AsHTTPError(err)
	require.True(t, ok)
	require.Equal(t, "tenant suspended", httpErr.Description)
}

func TestContinuationScope(t *testing.T) {
	require.Equal(t, "impersonate", hooks.ContinuationScope("/u/impersonate/switch"))
	require.Equal(t, "confirm-email-change", hooks.ContinuationScope("/u/confirm-email-change"))
	require.Equal(t, "forms", hooks.ContinuationScope("/u/forms/abc"))
}
