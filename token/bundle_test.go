package token_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-oidc-relay/token"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

var (
	issuedAt = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	idExpiry = issuedAt.Add(time.Hour)
)

func signedAccessToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-1",
		"exp": exp.Unix(),
	})
	s, err := tok.SignedString([]byte("access-token-test-key"))
	require.NoError(t, err)
	return s
}

func TestNewBundle(t *testing.T) {
	t.Run("id token only", func(t *testing.T) {
		b, err := token.NewBundle("raw-id", idExpiry, nil, issuedAt)
		require.NoError(t, err)
		require.Equal(t, "raw-id", b.IDToken)
		require.Empty(t, b.AccessToken)
		require.Equal(t, idExpiry, b.ExpiresAt)
		require.False(t, b.HasRefreshToken())
	})

	t.Run("missing id token", func(t *testing.T) {
		_, err := token.NewBundle("", idExpiry, &oauth2.Token{AccessToken: "at"}, issuedAt)
		require.ErrorIs(t, err, token.ErrMissingIDToken)
	})

	t.Run("expiry from token response", func(t *testing.T) {
		expiry := issuedAt.Add(5 * time.Minute)
		b, err := token.NewBundle("raw-id", idExpiry, &oauth2.Token{
			AccessToken:  "opaque",
			RefreshToken: "rt",
			TokenType:    "Bearer",
			Expiry:       expiry,
		}, issuedAt)
		require.NoError(t, err)
		require.Equal(t, expiry, b.ExpiresAt)
		require.Equal(t, "Bearer", b.TokenType)
		require.True(t, b.HasRefreshToken())
	})

	t.Run("expiry from jwt access token", func(t *testing.T) {
		exp := issuedAt.Add(20 * time.Minute)
		b, err := token.NewBundle("raw-id", idExpiry, &oauth2.Token{AccessToken: signedAccessToken(t, exp)}, issuedAt)
		require.NoError(t, err)
		require.Equal(t, exp.Unix(), b.ExpiresAt.Unix())
	})

	t.Run("opaque access token falls back to id token expiry", func(t *testing.T) {
		b, err := token.NewBundle("raw-id", idExpiry, &oauth2.Token{AccessToken: "opaque"}, issuedAt)
		require.NoError(t, err)
		require.Equal(t, idExpiry, b.ExpiresAt)
	})
}

func TestBundle_Token(t *testing.T) {
	b := token.Bundle{IDToken: "id", AccessToken: "access"}

	v, err := b.Token(token.KindAccess)
	require.NoError(t, err)
	require.Equal(t, "access", v)

	v, err = b.Token(token.KindID)
	require.NoError(t, err)
	require.Equal(t, "id", v)

	_, err = token.Bundle{IDToken: "id"}.Token(token.KindAccess)
	require.ErrorIs(t, err, token.ErrTokenUnavailable)

	_, err = b.Token("refresh_token")
	require.ErrorIs(t, err, token.ErrUnknownKind)
}

func TestBundle_Expired(t *testing.T) {
	b := token.Bundle{IDToken: "id", ExpiresAt: idExpiry}
	require.False(t, b.Expired(idExpiry.Add(-time.Second)))
	require.True(t, b.Expired(idExpiry))
	require.False(t, token.Bundle{IDToken: "id"}.Expired(idExpiry))
}

func TestParseKind(t *testing.T) {
	k, err := token.ParseKind("id_token")
	require.NoError(t, err)
	require.Equal(t, token.KindID, k)

	_, err = token.ParseKind("bogus")
	require.ErrorIs(t, err, token.ErrUnknownKind)
}

func TestJWTExpiry(t *testing.T) {
	_, ok := token.JWTExpiry("not-a-jwt")
	require.False(t, ok)

	_, ok = token.JWTExpiry("")
	require.False(t, ok)
}
