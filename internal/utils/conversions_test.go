package utils_test

import (
	"testing"

	"github.com/jrsteele09/go-identity-core/internal/utils"
	"github.com/stretchr/testify/require"
)

func TestScopeHelpers(t *testing.T) {
	scopes := utils.SplitScopes("  openid  profile openid read:things ")
	require.Equal(t, []string{"openid", "profile", "openid", "read:things"}, scopes)
	require.Equal(t, []string{"openid", "profile", "read:things"}, utils.Unique(scopes))
	require.Equal(t, "openid profile", utils.JoinScopes([]string{"openid", "profile"}))
	require.True(t, utils.Contains(scopes, "read:things"))
	require.False(t, utils.Contains(scopes, "write:things"))
	require.Empty(t, utils.SplitScopes(""))
}
