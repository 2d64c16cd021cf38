package audit

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Type is the abbreviated log type code stored by the sink
type Type string

const (
	TypeSuccessLogin                          Type = "s"
	TypeFailedLogin                           Type = "f"
	TypeFailedExchangeAuthCodeForAccessToken  Type = "feacft"
	TypeSuccessExchangeAuthCodeForAccessToken Type = "seacft"
	TypeSuccessExchangeClientCredentials      Type = "seccft"
	TypeSuccessExchangePasswordForAccessToken Type = "sepft"
	TypeSuccessExchangeRefreshToken           Type = "sertft"
	TypeFailedExchangeRefreshToken            Type = "fertft"
	TypeFailedExchangeClientCredentials       Type = "feccft"
	TypeSuccessSilentAuth                     Type = "ssa"
	TypeFailedSilentAuth                      Type = "fsa"
	TypeSuccessLogout                         Type = "slo"
	TypeFailedImpersonation                   Type = "fi"
	TypeSuccessSignup                         Type = "ss"
)

var typeNames = map[Type]string{
	TypeSuccessLogin:                          "SUCCESS_LOGIN",
	TypeFailedLogin:                           "FAILED_LOGIN",
	TypeFailedExchangeAuthCodeForAccessToken:  "FAILED_EXCHANGE_AUTHORIZATION_CODE_FOR_ACCESS_TOKEN",
	TypeSuccessExchangeAuthCodeForAccessToken: "SUCCESS_EXCHANGE_AUTHORIZATION_CODE_FOR_ACCESS_TOKEN",
	TypeSuccessExchangeClientCredentials:      "SUCCESS_EXCHANGE_CLIENT_CREDENTIALS_FOR_ACCESS_TOKEN",
	TypeSuccessExchangePasswordForAccessToken: "SUCCESS_EXCHANGE_PASSWORD_FOR_ACCESS_TOKEN",
	TypeSuccessExchangeRefreshToken:           "SUCCESS_EXCHANGE_REFRESH_TOKEN_FOR_ACCESS_TOKEN",
	TypeFailedExchangeRefreshToken:            "FAILED_EXCHANGE_REFRESH_TOKEN_FOR_ACCESS_TOKEN",
	TypeFailedExchangeClientCredentials:       "FAILED_EXCHANGE_CLIENT_CREDENTIALS_FOR_ACCESS_TOKEN",
	TypeSuccessSilentAuth:                     "SUCCESS_SILENT_AUTH",
	TypeFailedSilentAuth:                      "FAILED_SILENT_AUTH",
	TypeSuccessLogout:                         "SUCCESS_LOGOUT",
	TypeFailedImpersonation:                   "FAILED_IMPERSONATION",
	TypeSuccessSignup:                         "SUCCESS_SIGNUP",
}

// Name returns the long form, e.g. SUCCESS_LOGIN for "s".
func (t Type) Name() string {
	if n, ok := typeNames[t]; ok {
		return n
	}
	return string(t)
}

// Entry is one audit log record
type Entry struct {
	ID          string         `json:"log_id"`
	TenantID    string         `json:"tenant_id"`
	Type        Type           `json:"type"`
	Date        time.Time      `json:"date"`
	Description string         `json:"description,omitempty"`
	IP          string         `json:"ip,omitempty"`
	UserAgent   string         `json:"user_agent,omitempty"`
	ClientID    string         `json:"client_id,omitempty"`
	ClientName  string         `json:"client_name,omitempty"`
	UserID      string         `json:"user_id,omitempty"`
	UserName    string         `json:"user_name,omitempty"`
	Connection  string         `json:"connection,omitempty"`
	Audience    string         `json:"audience,omitempty"`
	Scope       string         `json:"scope,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
}

// Sink persists batches of entries
type Sink interface {
	Write(ctx context.Context, entries []Entry) error
}

// Writer is what flows depend on. Implementations must not block the caller.
type Writer interface {
	Log(ctx context.Context, entry Entry)
}

// ZerologSink writes entries to a zerolog logger. Used when no durable store is configured.
type ZerologSink struct {
	logger zerolog.Logger
}

func NewZerologSink(logger zerolog.Logger) *ZerologSink {
	return &ZerologSink{logger: logger}
}

func (s *ZerologSink) Write(_ context.Context, entries []Entry) error {
	for _, e := range entries {
		s.logger.Info().
			Str("log_id", e.ID).
			Str("tenant_id", e.TenantID).
			Str("type", string(e.Type)).
			Str("type_name", e.Type.Name()).
			Str("client_id", e.ClientID).
			Str("user_id", e.UserID).
			Str("ip", e.IP).
			Msg(e.Description)
	}
	return nil
}
