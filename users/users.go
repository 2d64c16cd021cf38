package users

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

// Providers the core knows about. Social providers use the connection name.
const (
	ProviderPassword = "auth2"
	ProviderEmail    = "email"
	ProviderSMS      = "sms"

	DefaultDatabaseConnection = "Username-Password-Authentication"
)

type User struct {
	ID            string `json:"user_id" yaml:"user_id"`
	TenantID      string `json:"tenant_id" yaml:"tenant_id"`
	Email         string `json:"email,omitempty" yaml:"email"`
	EmailVerified bool   `json:"email_verified" yaml:"email_verified"`
	Username      string `json:"username,omitempty" yaml:"username"`
	Nickname      string `json:"nickname,omitempty" yaml:"nickname"`
	Name          string `json:"name,omitempty" yaml:"name"`
	GivenName     string `json:"given_name,omitempty" yaml:"given_name"`
	FamilyName    string `json:"family_name,omitempty" yaml:"family_name"`
	PhoneNumber   string `json:"phone_number,omitempty" yaml:"phone_number"`
	Picture       string `json:"picture,omitempty" yaml:"picture"`

	// Provider and Connection identify where the identity came from
	// (e.g. "auth2"/"Username-Password-Authentication", "google-oauth2"/"google-oauth2").
	Provider   string `json:"provider" yaml:"provider"`
	Connection string `json:"connection" yaml:"connection"`

	// LinkedTo holds the primary user id when this identity is linked to another user.
	LinkedTo string `json:"linked_to,omitempty" yaml:"linked_to"`

	PasswordHash string `json:"-" yaml:"password_hash"` // never serialize

	Blocked     bool           `json:"blocked,omitempty" yaml:"blocked"`
	AppMetadata map[string]any `json:"app_metadata,omitempty" yaml:"app_metadata"`
	LoginsCount int            `json:"logins_count" yaml:"-"`
	LastLogin   time.Time      `json:"last_login,omitempty" yaml:"-"`
	CreatedAt   time.Time      `json:"created_at" yaml:"-"`
	UpdatedAt   time.Time      `json:"updated_at" yaml:"-"`
}

// PrimaryID returns the id permissions are evaluated against. Linked secondary
// identities resolve to the user they are linked to.
func (u *User) PrimaryID() string {
	if u.LinkedTo != "" {
		return u.LinkedTo
	}
	return u.ID
}

// DisplayName picks the most human readable identifier available.
func (u *User) DisplayName() string {
	switch {
	case u.Name != "":
		return u.Name
	case u.Email != "":
		return u.Email
	case u.Username != "":
		return u.Username
	}
	return u.ID
}

// NormalizeUsername is the form used for uniqueness checks.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// ValidatePasswordStrength checks if password meets security requirements:
// - At least 8 characters long
// - Contains uppercase and lowercase letters
// - Contains at least one number
func ValidatePasswordStrength(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters long")
	}

	var (
		hasUpper  bool
		hasLower  bool
		hasNumber bool
	)

	for _, char := range password {
		if unicode.IsUpper(char) {
			hasUpper = true
		} else if unicode.IsLower(char) {
			hasLower = true
		} else if unicode.IsDigit(char) {
			hasNumber = true
		}
	}

	if !hasUpper {
		return fmt.Errorf("password must contain at least one uppercase letter")
	}
	if !hasLower {
		return fmt.Errorf("password must contain at least one lowercase letter")
	}
	if !hasNumber {
		return fmt.Errorf("password must contain at least one number")
	}

	return nil
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}
