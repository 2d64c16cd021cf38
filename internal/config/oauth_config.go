package config

import "time"

type OAuthConfig interface {
	GetAuthCodeTimeout() time.Duration
	GetCodeGenerationLength() int
	GetRefreshTokenLength() int
	GetLoginSessionTTL() time.Duration
	GetSessionLifetime() time.Duration
	GetDefaultAccessTokenExpiry() time.Duration
	GetDefaultIDTokenExpiry() time.Duration
	GetDefaultRefreshTokenExpiry() time.Duration
	GetDefaultRefreshTokenIdleExpiry() time.Duration
	GetManagementAudience() string
	GetUsernameMaxRetries() int
}

type OAuth struct{}

var _ OAuthConfig = OAuth{}

func (OAuth) GetAuthCodeTimeout() time.Duration {
	return GetEnvDuration("AUTH_CODE_TIMEOUT", 5*time.Minute)
}

func (OAuth) GetCodeGenerationLength() int {
	return 32
}

func (OAuth) GetRefreshTokenLength() int {
	return 32 // 32 bytes = 256 bits
}

func (OAuth) GetLoginSessionTTL() time.Duration {
	return GetEnvDuration("LOGIN_SESSION_TTL", 24*time.Hour)
}

func (OAuth) GetSessionLifetime() time.Duration {
	return GetEnvDuration("SESSION_LIFETIME", 30*24*time.Hour)
}

func (OAuth) GetDefaultAccessTokenExpiry() time.Duration {
	return GetEnvDuration("ACCESS_TOKEN_EXPIRY", 24*time.Hour)
}

func (OAuth) GetDefaultIDTokenExpiry() time.Duration {
	return GetEnvDuration("ID_TOKEN_EXPIRY", 10*time.Hour)
}

func (OAuth) GetDefaultRefreshTokenExpiry() time.Duration {
	return GetEnvDuration("REFRESH_TOKEN_EXPIRY", 30*24*time.Hour)
}

func (OAuth) GetDefaultRefreshTokenIdleExpiry() time.Duration {
	return GetEnvDuration("REFRESH_TOKEN_IDLE_EXPIRY", 3*24*time.Hour)
}

// GetManagementAudience is the administrative API against which impersonation
// permissions are checked.
func (OAuth) GetManagementAudience() string {
	return GetEnv("MANAGEMENT_AUDIENCE", "urn:authhero:management")
}

func (OAuth) GetUsernameMaxRetries() int {
	return GetEnvInt("USERNAME_MAX_RETRIES", 10)
}
