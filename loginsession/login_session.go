package loginsession

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jrsteele09/go-identity-core/oauth2"
	"github.com/pkg/errors"
)

// State of an in-progress authentication attempt.
type State string

const (
	StatePending              State = "pending"
	StateAwaitingContinuation State = "awaiting_continuation"
	StateAuthenticated        State = "authenticated"
	StateCompleted            State = "completed"
	StateFailed               State = "failed"
)

func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// AuthParams are the client's /authorize parameters, carried until a code is issued.
type AuthParams struct {
	ClientID            string                  `json:"client_id"`
	RedirectURI         string                  `json:"redirect_uri"`
	Scope               string                  `json:"scope,omitempty"`
	Audience            string                  `json:"audience,omitempty"`
	ResponseType        oauth2.ResponseType     `json:"response_type,omitempty"`
	ResponseMode        oauth2.ResponseModeType `json:"response_mode,omitempty"`
	Nonce               string                  `json:"nonce,omitempty"`
	State               string                  `json:"state,omitempty"`
	Organization        string                  `json:"organization,omitempty"`
	CodeChallenge       string                  `json:"code_challenge,omitempty"`
	CodeChallengeMethod oauth2.CodeMethodType   `json:"code_challenge_method,omitempty"`
	Prompt              string                  `json:"prompt,omitempty"`
	Username            string                  `json:"username,omitempty"`
}

// ContinuationData is stored in StateData while a hook has detoured the flow.
type ContinuationData struct {
	ContinuationScope     []string `json:"continuationScope"`
	ContinuationReturnURL string   `json:"continuationReturnUrl"`
}

// Allows reports whether the stored continuation covers scope.
func (c *ContinuationData) Allows(scope string) bool {
	for _, s := range c.ContinuationScope {
		if s == scope {
			return true
		}
	}
	return false
}

type LoginSession struct {
	ID            string          `json:"id"`
	TenantID      string          `json:"tenant_id"`
	State         State           `json:"state"`
	StateData     json.RawMessage `json:"state_data,omitempty"`
	AuthParams    AuthParams      `json:"authParams"`
	SessionID     string          `json:"session_id,omitempty"`
	UserID        string          `json:"user_id,omitempty"`
	// ActorID is the operator when UserID is being impersonated.
	ActorID       string          `json:"actor_id,omitempty"`
	CSRFToken     string          `json:"csrf_token"`
	FailureReason string          `json:"failure_reason,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	ExpiresAt     time.Time       `json:"expires_at"`
}

func (ls *LoginSession) Expired(now time.Time) bool {
	return !ls.ExpiresAt.IsZero() && now.After(ls.ExpiresAt)
}

// Continuation decodes StateData. It returns nil when nothing is stored.
func (ls *LoginSession) Continuation() (*ContinuationData, error) {
	if len(ls.StateData) == 0 {
		return nil, nil
	}
	var data ContinuationData
	if err := json.Unmarshal(ls.StateData, &data); err != nil {
		return nil, errors.Wrap(err, "[LoginSession.Continuation] state_data")
	}
	return &data, nil
}

// Clone returns a deep copy so callers never share StateData bytes with a store.
func (ls *LoginSession) Clone() *LoginSession {
	c := *ls
	if ls.StateData != nil {
		c.StateData = append(json.RawMessage(nil), ls.StateData...)
	}
	return &c
}

// Repo persists login sessions. Writes are last-write-wins at the record level.
type Repo interface {
	Create(ctx context.Context, ls *LoginSession) error
	Get(ctx context.Context, tenantID, id string) (*LoginSession, error)
	Update(ctx context.Context, ls *LoginSession) error
}
