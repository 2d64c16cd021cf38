package oauth2_test

import (
	"testing"

	"github.com/jrsteele09/go-identity-core/oauth2"
	"github.com/stretchr/testify/require"
)

const (
	testCodeChallenge = "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"
	testCodeVerifier  = "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
)

func TestVerifyCodeChallenge(t *testing.T) {
	require.True(t, oauth2.VerifyCodeChallenge(oauth2.CodeMethodTypeS256, testCodeChallenge, testCodeVerifier))
	require.False(t, oauth2.VerifyCodeChallenge(oauth2.CodeMethodTypeS256, testCodeChallenge, "wrong"))
	require.True(t, oauth2.VerifyCodeChallenge(oauth2.CodeMethodTypeNone, "abc", "abc"))
	require.True(t, oauth2.VerifyCodeChallenge("", "abc", "abc"))
	require.False(t, oauth2.VerifyCodeChallenge("S512", "abc", "abc"))
	require.False(t, oauth2.VerifyCodeChallenge(oauth2.CodeMethodTypeS256, testCodeChallenge, ""))
}
