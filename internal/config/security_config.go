package config

import "time"

type SecurityConfig interface {
	GetMaxSessionAge() time.Duration
	GetSessionCookieName() string
	GetCookieSecure() bool
	GetSessionSealKey() string
}

type Security struct {
	MaxSessionAge     time.Duration `env:"SESSION_MAX_AGE" envDefault:"1h"`
	SessionCookieName string        `env:"SESSION_COOKIE_NAME" envDefault:"oidc_session"`
	CookieSecure      bool          `env:"COOKIE_SECURE"`
	SessionSealKey    string        `env:"SESSION_SEAL_KEY"` // base64, 32 bytes
}

var _ SecurityConfig = Security{}

func (s Security) GetMaxSessionAge() time.Duration {
	if s.MaxSessionAge <= 0 {
		return time.Hour
	}
	return s.MaxSessionAge
}

func (s Security) GetSessionCookieName() string {
	if s.SessionCookieName == "" {
		return "oidc_session"
	}
	return s.SessionCookieName
}

// GetCookieSecure forces the Secure cookie attribute even when the request did not arrive over TLS
func (s Security) GetCookieSecure() bool {
	return s.CookieSecure
}

func (s Security) GetSessionSealKey() string {
	return s.SessionSealKey
}
