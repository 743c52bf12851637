package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// Kind names the token from a Bundle that is presented to an upstream API.
type Kind string

const (
	// KindAccess selects the OAuth2 access token. Used for resource server calls.
	KindAccess Kind = "access_token"
	// KindID selects the OIDC ID token. Only for APIs whose contract is the own application's audience.
	KindID Kind = "id_token"
)

var (
	ErrMissingIDToken   = errors.New("token bundle has no id token")
	ErrTokenUnavailable = errors.New("token not present in bundle")
	ErrUnknownKind      = errors.New("unknown token kind")
)

// ParseKind maps a configuration value onto a Kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindAccess, KindID:
		return Kind(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Bundle is the set of tokens obtained by one successful authentication.
// A Bundle is replaced as a whole; fields are never updated individually.
type Bundle struct {
	IDToken      string    `json:"id_token"`
	AccessToken  string    `json:"access_token,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	IssuedAt     time.Time `json:"issued_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// NewBundle assembles a Bundle from a verified raw ID token and the optional
// token endpoint response. idTokenExpiry is the verified ID token's exp and is
// used when nothing better describes the access token lifetime.
func NewBundle(rawIDToken string, idTokenExpiry time.Time, tok *oauth2.Token, issuedAt time.Time) (Bundle, error) {
	b := Bundle{
		IDToken:   rawIDToken,
		IssuedAt:  issuedAt,
		ExpiresAt: idTokenExpiry,
	}
	if tok != nil {
		b.AccessToken = tok.AccessToken
		b.RefreshToken = tok.RefreshToken
		b.TokenType = tok.Type()
		b.ExpiresAt = accessTokenExpiry(tok, idTokenExpiry)
	}
	if err := b.Validate(); err != nil {
		return Bundle{}, err
	}
	return b, nil
}

// Validate checks the structural invariant of a Bundle: an ID token is always present.
func (b Bundle) Validate() error {
	if b.IDToken == "" {
		return ErrMissingIDToken
	}
	return nil
}

// Token returns the raw token of the requested kind.
func (b Bundle) Token(kind Kind) (string, error) {
	var value string
	switch kind {
	case KindAccess:
		value = b.AccessToken
	case KindID:
		value = b.IDToken
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if value == "" {
		return "", fmt.Errorf("%w: %s", ErrTokenUnavailable, kind)
	}
	return value, nil
}

// Expired reports whether the bundle's primary token has passed its expiry.
// A zero ExpiresAt never expires.
func (b Bundle) Expired(now time.Time) bool {
	return !b.ExpiresAt.IsZero() && !now.Before(b.ExpiresAt)
}

// HasRefreshToken reports whether the provider issued a refresh token.
func (b Bundle) HasRefreshToken() bool {
	return b.RefreshToken != ""
}

// accessTokenExpiry prefers expires_in from the token response, then the exp
// claim of a JWT access token, then the ID token expiry.
func accessTokenExpiry(tok *oauth2.Token, fallback time.Time) time.Time {
	if !tok.Expiry.IsZero() {
		return tok.Expiry
	}
	if exp, ok := JWTExpiry(tok.AccessToken); ok {
		return exp
	}
	return fallback
}

// JWTExpiry reads the exp claim of a JWT without verifying it. Access tokens
// are opaque to a relying party; the value is only used as a lifetime hint.
func JWTExpiry(raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, false
	}
	parsed, _, err := jwt.NewParser().ParseUnverified(raw, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, false
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
