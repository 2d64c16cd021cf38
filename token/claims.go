package token

import (
	"github.com/golang-jwt/jwt/v5"
)

// Actor identifies who is acting on behalf of the subject (RFC 8693).
type Actor struct {
	Subject string `json:"sub"`
}

// AccessClaims is the verified view of an access token. Hook-contributed claims
// are not part of it.
type AccessClaims struct {
	jwt.RegisteredClaims
	TenantID       string   `json:"tenant_id,omitempty"`
	Scope          string   `json:"scope,omitempty"`
	Permissions    []string `json:"permissions,omitempty"`
	AuthorizedPart string   `json:"azp,omitempty"`
	OrganizationID string   `json:"org_id,omitempty"`
	SessionID      string   `json:"sid,omitempty"`
	Act            *Actor   `json:"act,omitempty"`
}

// reservedClaims cannot be set through custom claims.
var reservedClaims = map[string]struct{}{
	"iss": {}, "sub": {}, "aud": {}, "exp": {}, "nbf": {}, "iat": {}, "jti": {},
	"scope": {}, "permissions": {}, "azp": {}, "act": {}, "org_id": {}, "sid": {},
	"tenant_id": {}, "nonce": {}, "auth_time": {},
}

func IsReservedClaim(name string) bool {
	_, ok := reservedClaims[name]
	return ok
}

func mergeCustomClaims(claims jwt.MapClaims, custom map[string]any) {
	for k, v := range custom {
		if IsReservedClaim(k) {
			continue
		}
		claims[k] = v
	}
}
