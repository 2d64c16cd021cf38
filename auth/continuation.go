package auth

import (
	"context"
	"sort"

	"github.com/jrsteele09/go-identity-core/grants"
	"github.com/jrsteele09/go-identity-core/hooks"
	"github.com/jrsteele09/go-identity-core/loginsession"
	"github.com/jrsteele09/go-identity-core/users"
	"github.com/pkg/errors"
)

const (
	ScopeImpersonate        = "impersonate"
	ScopeConfirmEmailChange = "confirm-email-change"
	ScopeForms              = "forms"
)

// Continue resumes a login session parked by a post-login detour and issues
// the authorization code. scope must be covered by the stored continuation;
// an empty scope accepts any.
func (as *AuthorizationService) Continue(ctx context.Context, tenantID, state, scope string, info hooks.RequestInfo) (*Result, error) {
	ls, err := as.LoginSessions.Get(ctx, tenantID, state)
	if err != nil {
		return nil, err
	}
	if _, err := as.LoginSessions.Continue(ctx, ls, scope); err != nil {
		return nil, err
	}
	as.Metrics.RecordLoginSessionState(string(ls.State))

	client, err := as.client(ctx, ls.TenantID, ls.AuthParams.ClientID)
	if err != nil {
		return nil, err
	}
	return as.issueCode(ctx, ls, client, info)
}

// ContinuationPage is the data a detour page renders.
type ContinuationPage struct {
	LoginSession *loginsession.LoginSession
	User         *users.User
	ContinueURL  string
}

// ContinuationView loads a parked login session for a detour page under
// scope. It never changes the session, however often the page is reloaded.
func (as *AuthorizationService) ContinuationView(ctx context.Context, tenantID, state, scope string) (*ContinuationPage, error) {
	ls, data, err := as.LoginSessions.View(ctx, tenantID, state, scope)
	if err != nil {
		return nil, err
	}
	user, err := as.Users.Get(ctx, ls.TenantID, ls.UserID)
	if err != nil {
		return nil, errors.Wrap(err, "[AuthorizationService.ContinuationView] user")
	}
	return &ContinuationPage{LoginSession: ls, User: user, ContinueURL: data.ContinuationReturnURL}, nil
}

// ConfirmationView backs GET /u/confirm-email-change.
func (as *AuthorizationService) ConfirmationView(ctx context.Context, tenantID, state string) (*ContinuationPage, error) {
	return as.ContinuationView(ctx, tenantID, state, ScopeConfirmEmailChange)
}

// ImpersonationPage lists the users the operator may switch to.
type ImpersonationPage struct {
	ContinuationPage
	Candidates []*users.User
}

// ImpersonationView backs GET /u/impersonate. Operators without
// users:impersonate get grants.ErrImpersonationDenied.
func (as *AuthorizationService) ImpersonationView(ctx context.Context, tenantID, state string) (*ImpersonationPage, error) {
	page, err := as.ContinuationView(ctx, tenantID, state, ScopeImpersonate)
	if err != nil {
		return nil, err
	}
	allowed, err := as.Grants.CanImpersonate(ctx, tenantID, page.User.ID)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, grants.ErrImpersonationDenied
	}

	all, err := as.Users.List(ctx, tenantID)
	if err != nil {
		return nil, errors.Wrap(err, "[AuthorizationService.ImpersonationView] users")
	}
	candidates := make([]*users.User, 0, len(all))
	for _, u := range all {
		if u.ID == page.User.ID || u.ID == page.User.PrimaryID() || u.LinkedTo != "" {
			continue
		}
		candidates = append(candidates, u)
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].DisplayName() < candidates[j].DisplayName()
	})
	return &ImpersonationPage{ContinuationPage: *page, Candidates: candidates}, nil
}

// SwitchImpersonation backs POST /u/impersonate/switch: the login session is
// rebound to the target user and the flow completes with the operator recorded
// as actor.
func (as *AuthorizationService) SwitchImpersonation(ctx context.Context, tenantID, state, targetUserID string, info hooks.RequestInfo) (*Result, error) {
	ls, err := as.LoginSessions.Get(ctx, tenantID, state)
	if err != nil {
		return nil, err
	}
	if ls.State != loginsession.StateAwaitingContinuation {
		return nil, loginsession.ErrNotAwaiting
	}
	data, err := ls.Continuation()
	if err != nil {
		return nil, err
	}
	if data == nil || !data.Allows(ScopeImpersonate) {
		return nil, loginsession.ErrScopeNotAllowed
	}

	if _, err := as.Grants.Impersonate(ctx, grants.ImpersonationRequest{
		LoginSession: ls,
		TargetUserID: targetUserID,
		Info:         info,
	}); err != nil {
		return nil, err
	}
	if _, err := as.LoginSessions.Continue(ctx, ls, ScopeImpersonate); err != nil {
		return nil, err
	}
	as.Metrics.RecordLoginSessionState(string(ls.State))

	client, err := as.client(ctx, ls.TenantID, ls.AuthParams.ClientID)
	if err != nil {
		return nil, err
	}
	return as.issueCode(ctx, ls, client, info)
}

// ContinueImpersonation backs POST /u/impersonate/continue: the operator keeps
// their own identity.
func (as *AuthorizationService) ContinueImpersonation(ctx context.Context, tenantID, state string, info hooks.RequestInfo) (*Result, error) {
	return as.Continue(ctx, tenantID, state, ScopeImpersonate, info)
}
