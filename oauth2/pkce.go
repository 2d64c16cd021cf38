package oauth2

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
)

// VerifyCodeChallenge checks a PKCE code_verifier against the stored challenge.
// An empty method is treated as "plain" (RFC 7636 section 4.3).
func VerifyCodeChallenge(method CodeMethodType, challenge, verifier string) bool {
	if challenge == "" || verifier == "" {
		return false
	}
	var computed string
	switch method {
	case CodeMethodTypeS256:
		sum := sha256.Sum256([]byte(verifier))
		computed = base64.RawURLEncoding.EncodeToString(sum[:])
	case CodeMethodTypeNone, "":
		computed = verifier
	default:
		return false
	}
	return subtle.ConstantTimeCompare([]byte(computed), []byte(challenge)) == 1
}
