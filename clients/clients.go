package clients

import (
	"crypto/subtle"
	"strings"
)

type ClientType string

const (
	ClientTypeConfidential ClientType = "confidential" // Can keep secrets (server-side apps)
	ClientTypePublic       ClientType = "public"       // Cannot keep secrets (SPAs, mobile apps)
)

type Client struct {
	ID                string     `json:"client_id" yaml:"client_id"`
	TenantID          string     `json:"tenant_id" yaml:"tenant_id"`
	Name              string     `json:"name" yaml:"name"`
	Type              ClientType `json:"type" yaml:"type"`
	Secret            string     `json:"client_secret" yaml:"client_secret"`
	Callbacks         []string   `json:"callbacks" yaml:"callbacks"`
	AllowedLogoutURLs []string   `json:"allowed_logout_urls" yaml:"allowed_logout_urls"`

	// RotateRefreshTokens replaces the refresh token on every exchange.
	RotateRefreshTokens bool `json:"rotate_refresh_tokens" yaml:"rotate_refresh_tokens"`

	// Connections lists the social connections offered on the login page.
	Connections []string `json:"connections,omitempty" yaml:"connections"`
}

// IsPublic returns true if the client is a public client
func (c *Client) IsPublic() bool {
	return c.Type == ClientTypePublic
}

// VerifySecret compares the presented secret in constant time. Public clients
// have no secret and only match an empty value.
func (c *Client) VerifySecret(secret string) bool {
	return subtle.ConstantTimeCompare([]byte(c.Secret), []byte(secret)) == 1
}

// IsValidCallback reports whether redirectURI is registered for the client.
func (c *Client) IsValidCallback(redirectURI string) bool {
	return matchAny(c.Callbacks, redirectURI)
}

// IsAllowedLogoutURL reports whether returnTo may be used after logout. Callback
// URLs are accepted as well as the dedicated logout list.
func (c *Client) IsAllowedLogoutURL(returnTo string) bool {
	return matchAny(c.AllowedLogoutURLs, returnTo) || matchAny(c.Callbacks, returnTo)
}

func matchAny(allowed []string, candidate string) bool {
	candidate = strings.TrimSuffix(candidate, "/")
	if candidate == "" {
		return false
	}
	for _, a := range allowed {
		if strings.TrimSuffix(a, "/") == candidate {
			return true
		}
	}
	return false
}

// ClientGrant authorizes a client for the client_credentials grant against one
// audience. Scope is the ceiling of what the client may request.
type ClientGrant struct {
	ID       string   `json:"id" yaml:"id"`
	TenantID string   `json:"tenant_id" yaml:"tenant_id"`
	ClientID string   `json:"client_id" yaml:"client_id"`
	Audience string   `json:"audience" yaml:"audience"`
	Scope    []string `json:"scope" yaml:"scope"`
}
