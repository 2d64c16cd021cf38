package codes

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/jrsteele09/go-identity-core/oauth2"
	"github.com/pkg/errors"
)

// Type discriminates what a Code is exchanged for.
type Type string

const (
	TypeAuthorizationCode Type = "authorization_code"
	// TypeOAuth2State guards the round trip to an upstream social provider.
	TypeOAuth2State Type = "oauth2_state"
)

// Code is a single-use exchange artifact.
type Code struct {
	ID                  string                `json:"code_id"`
	TenantID            string                `json:"tenant_id"`
	Type                Type                  `json:"code_type"`
	LoginSessionID      string                `json:"login_id"`
	UserID              string                `json:"user_id,omitempty"`
	Connection          string                `json:"connection,omitempty"`
	RedirectURI         string                `json:"redirect_uri,omitempty"`
	CodeChallenge       string                `json:"code_challenge,omitempty"`
	CodeChallengeMethod oauth2.CodeMethodType `json:"code_challenge_method,omitempty"`
	Nonce               string                `json:"nonce,omitempty"`
	CodeVerifier        string                `json:"code_verifier,omitempty"` // upstream PKCE verifier, oauth2_state only
	CreatedAt           time.Time             `json:"created_at"`
	ExpiresAt           time.Time             `json:"expires_at"`
	UsedAt              *time.Time            `json:"used_at,omitempty"`
}

func (c *Code) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

func (c *Code) Used() bool {
	return c.UsedAt != nil
}

// Repo stores codes. MarkUsed must be a conditional write: of any number of
// concurrent callers for the same code exactly one succeeds and the rest get
// errors.ErrCodeAlreadyUsed.
type Repo interface {
	Create(ctx context.Context, code *Code) error
	Get(ctx context.Context, tenantID, id string, codeType Type) (*Code, error)
	MarkUsed(ctx context.Context, tenantID, id string, at time.Time) error
	Delete(ctx context.Context, tenantID, id string) error
}

// Generate returns a url-safe random code value of n random bytes.
func Generate(n int) (string, error) {
	if n <= 0 {
		return "", errors.New("[codes.Generate] length must be positive")
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", errors.Wrap(err, "[codes.Generate] rand.Read")
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
