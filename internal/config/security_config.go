package config

type SecurityConfig interface {
	GetRequirePKCE() bool
	GetEnableRateLimiting() bool
	GetTokenRateLimit() float64
	GetTokenRateBurst() int
	GetSigningAlgorithm() string
	GetSigningSecret() string
}

type Security struct{}

var _ SecurityConfig = Security{}

func (Security) GetRequirePKCE() bool {
	return GetEnvBool("REQUIRE_PKCE", false)
}

func (Security) GetEnableRateLimiting() bool {
	return GetEnvBool("RATE_LIMITING", false)
}

// GetTokenRateLimit is the per client IP request rate allowed on the token endpoint.
func (Security) GetTokenRateLimit() float64 {
	return float64(GetEnvInt("TOKEN_RATE_LIMIT", 10))
}

func (Security) GetTokenRateBurst() int {
	return GetEnvInt("TOKEN_RATE_BURST", 20)
}

// GetSigningAlgorithm selects the default signer: HS256, RS256 or ES256.
func (Security) GetSigningAlgorithm() string {
	return GetEnv("SIGNING_ALGORITHM", "RS256")
}

func (Security) GetSigningSecret() string {
	return GetEnv("SIGNING_SECRET", "")
}
