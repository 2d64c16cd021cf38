package loginsession

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/jrsteele09/go-identity-core/internal/errors"
	"github.com/pkg/errors"
)

var (
	ErrNotFound          = apperrors.New(http.StatusBadRequest, apperrors.CodeInvalidRequest, "Login session not found")
	ErrExpired           = apperrors.New(http.StatusBadRequest, apperrors.CodeInvalidRequest, "Login session expired")
	ErrNotAwaiting       = apperrors.New(http.StatusBadRequest, apperrors.CodeInvalidRequest, "Login session is not awaiting continuation")
	ErrScopeNotAllowed   = apperrors.New(http.StatusBadRequest, apperrors.CodeInvalidRequest, "Continuation scope not allowed")
	ErrInvalidTransition = apperrors.New(http.StatusBadRequest, apperrors.CodeInvalidRequest, "Invalid login session state")
)

// transitions lists the states reachable from each state. Expiry to failed is
// handled separately since it applies to every non-terminal state.
var transitions = map[State][]State{
	StatePending:              {StateAuthenticated, StateAwaitingContinuation, StateFailed},
	StateAuthenticated:        {StateAwaitingContinuation, StateCompleted, StateFailed},
	StateAwaitingContinuation: {StateAuthenticated, StateCompleted, StateFailed},
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Machine owns every state change of a LoginSession.
type Machine struct {
	repo    Repo
	ttl     time.Duration
	nowTime func() time.Time
}

type Option func(*Machine)

func WithNowTime(now func() time.Time) Option {
	return func(m *Machine) {
		m.nowTime = now
	}
}

func WithTTL(ttl time.Duration) Option {
	return func(m *Machine) {
		m.ttl = ttl
	}
}

func NewMachine(repo Repo, opts ...Option) (*Machine, error) {
	if repo == nil {
		return nil, errors.New("[NewMachine] login session repo is required")
	}
	m := &Machine{
		repo:    repo,
		ttl:     24 * time.Hour,
		nowTime: time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Create starts a pending login session for the given authorize parameters.
func (m *Machine) Create(ctx context.Context, tenantID string, params AuthParams) (*LoginSession, error) {
	csrf, err := randomToken()
	if err != nil {
		return nil, errors.Wrap(err, "[Machine.Create] csrf token")
	}
	now := m.nowTime().UTC()
	ls := &LoginSession{
		ID:         uuid.NewString(),
		TenantID:   tenantID,
		State:      StatePending,
		AuthParams: params,
		CSRFToken:  csrf,
		CreatedAt:  now,
		UpdatedAt:  now,
		ExpiresAt:  now.Add(m.ttl),
	}
	if err := m.repo.Create(ctx, ls); err != nil {
		return nil, errors.Wrap(err, "[Machine.Create] repo.Create")
	}
	return ls, nil
}

// Get loads a session for a mutating flow. A non-terminal session past its
// expiry is moved to failed before ErrExpired is returned.
func (m *Machine) Get(ctx context.Context, tenantID, id string) (*LoginSession, error) {
	ls, err := m.load(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if ls.Expired(m.nowTime()) {
		if !ls.State.Terminal() {
			if err := m.transition(ctx, ls, StateFailed, func(ls *LoginSession) { ls.FailureReason = "expired" }); err != nil {
				return nil, err
			}
		}
		return nil, ErrExpired
	}
	return ls, nil
}

// View loads a session that is awaiting continuation for scope. It never
// writes, so rendering a confirmation page any number of times leaves the
// session untouched.
func (m *Machine) View(ctx context.Context, tenantID, id, scope string) (*LoginSession, *ContinuationData, error) {
	ls, err := m.load(ctx, tenantID, id)
	if err != nil {
		return nil, nil, err
	}
	if ls.Expired(m.nowTime()) {
		return nil, nil, ErrExpired
	}
	if ls.State != StateAwaitingContinuation {
		return nil, nil, ErrNotAwaiting
	}
	data, err := ls.Continuation()
	if err != nil {
		return nil, nil, err
	}
	if data == nil || !data.Allows(scope) {
		return nil, nil, ErrScopeNotAllowed
	}
	return ls, data, nil
}

// Authenticate binds the user and session to a pending session.
func (m *Machine) Authenticate(ctx context.Context, ls *LoginSession, userID, sessionID string) error {
	return m.transition(ctx, ls, StateAuthenticated, func(ls *LoginSession) {
		ls.UserID = userID
		ls.SessionID = sessionID
	})
}

// AwaitContinuation parks the session while the user visits returnURL's page.
func (m *Machine) AwaitContinuation(ctx context.Context, ls *LoginSession, data ContinuationData) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return errors.Wrap(err, "[Machine.AwaitContinuation] marshal state data")
	}
	if ls.State == StateAwaitingContinuation && string(ls.StateData) == string(raw) {
		return nil
	}
	return m.transition(ctx, ls, StateAwaitingContinuation, func(ls *LoginSession) {
		ls.StateData = raw
	})
}

// Continue resumes a parked session. The stored continuation must cover scope;
// an empty scope accepts whichever continuation is stored. A session already
// authenticated is returned as is.
func (m *Machine) Continue(ctx context.Context, ls *LoginSession, scope string) (*ContinuationData, error) {
	if ls.State == StateAuthenticated {
		return ls.Continuation()
	}
	if ls.State != StateAwaitingContinuation {
		return nil, ErrNotAwaiting
	}
	data, err := ls.Continuation()
	if err != nil {
		return nil, err
	}
	if data == nil || (scope != "" && !data.Allows(scope)) {
		return nil, ErrScopeNotAllowed
	}
	if err := m.transition(ctx, ls, StateAuthenticated, func(ls *LoginSession) {
		ls.StateData = nil
	}); err != nil {
		return nil, err
	}
	return data, nil
}

// Complete marks the session as finished once an authorization response has been issued.
func (m *Machine) Complete(ctx context.Context, ls *LoginSession) error {
	return m.transition(ctx, ls, StateCompleted, nil)
}

func (m *Machine) Fail(ctx context.Context, ls *LoginSession, reason string) error {
	return m.transition(ctx, ls, StateFailed, func(ls *LoginSession) {
		ls.FailureReason = reason
	})
}

// Impersonate rebinds the session to targetUserID with actorID recorded as the
// operator. The state does not change.
func (m *Machine) Impersonate(ctx context.Context, ls *LoginSession, targetUserID, actorID string) error {
	if ls.State.Terminal() {
		return ErrInvalidTransition
	}
	next := ls.Clone()
	next.UserID = targetUserID
	next.ActorID = actorID
	next.UpdatedAt = m.nowTime().UTC()
	if err := m.repo.Update(ctx, next); err != nil {
		return errors.Wrap(err, "[Machine.Impersonate] repo.Update")
	}
	*ls = *next
	return nil
}

func (m *Machine) load(ctx context.Context, tenantID, id string) (*LoginSession, error) {
	ls, err := m.repo.Get(ctx, tenantID, id)
	if apperrors.Is(err, apperrors.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "[Machine.load] repo.Get")
	}
	return ls, nil
}

func (m *Machine) transition(ctx context.Context, ls *LoginSession, to State, mutate func(*LoginSession)) error {
	if !CanTransition(ls.State, to) {
		return ErrInvalidTransition.WithCause(errors.Errorf("%s -> %s", ls.State, to))
	}
	next := ls.Clone()
	next.State = to
	next.UpdatedAt = m.nowTime().UTC()
	if mutate != nil {
		mutate(next)
	}
	if err := m.repo.Update(ctx, next); err != nil {
		return errors.Wrapf(err, "[Machine.transition] %s -> %s", ls.State, to)
	}
	*ls = *next
	return nil
}

func randomToken() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
