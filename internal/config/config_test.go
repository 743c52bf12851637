package config_test

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/jrsteele09/go-oidc-relay/internal/config"
	apperrors "github.com/jrsteele09/go-oidc-relay/internal/errors"
	"github.com/stretchr/testify/require"
)

func validVars() map[string]string {
	return map[string]string{
		"OIDC_CLIENT_ID":         "relay-client",
		"OIDC_CLIENT_SECRET":     "relay-secret",
		"OIDC_IDENTITY_METADATA": "https://login.example.com/tenant/v2.0/.well-known/openid-configuration",
	}
}

func TestLoadFromMap_Defaults(t *testing.T) {
	c, err := config.LoadFromMap(validVars())
	require.NoError(t, err)
	require.NoError(t, c.Validate())

	require.Equal(t, ":8080", c.GetPort())
	require.Equal(t, "DEV", c.GetEnv())
	require.Equal(t, "https://login.example.com/tenant/v2.0", c.GetIssuerURL())
	require.True(t, c.GetValidateIssuer(), "issuer validation must default to enabled")
	require.True(t, c.GetUsePKCE())
	require.Equal(t, []string{"openid", "profile", "email", "offline_access"}, c.GetScopes())
	require.Equal(t, "code id_token", c.GetResponseType())
	require.Equal(t, "form_post", c.GetResponseMode())
	require.Equal(t, 10*time.Minute, c.GetFlowStateTTL())
	require.Equal(t, time.Hour, c.GetMaxSessionAge())
	require.Equal(t, "oidc_session", c.GetSessionCookieName())
	require.Equal(t, config.StoreBackendMemory, c.GetStoreBackend())
	require.Equal(t, "access_token", c.GetWebAPIToken())
	require.False(t, c.GetRelayInsecureSkipVerify())
}

func TestLoadFromMap_ExplicitIssuerOptOut(t *testing.T) {
	vars := validVars()
	vars["OIDC_VALIDATE_ISSUER"] = "false"
	vars["OIDC_ALLOWED_ISSUERS"] = "https://a.example.com, https://b.example.com"

	c, err := config.LoadFromMap(vars)
	require.NoError(t, err)
	require.False(t, c.GetValidateIssuer())
	require.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, c.GetAllowedIssuers())
}

func TestOIDC_ZeroValueIsStrict(t *testing.T) {
	var o config.OIDC
	require.True(t, o.GetValidateIssuer())
	require.Equal(t, "code", o.GetResponseType())
	require.Equal(t, "query", o.GetResponseMode())
}

func TestValidate(t *testing.T) {
	t.Run("missing required values are all reported", func(t *testing.T) {
		c, err := config.LoadFromMap(map[string]string{})
		require.NoError(t, err)

		err = c.Validate()
		require.Error(t, err)
		require.True(t, apperrors.Is(err, apperrors.ErrInvalidConfig))
		require.Contains(t, err.Error(), "OIDC_CLIENT_ID is required")
		require.Contains(t, err.Error(), "OIDC_CLIENT_SECRET is required")
		require.Contains(t, err.Error(), "OIDC_IDENTITY_METADATA is required")
	})

	t.Run("id_token in query mode", func(t *testing.T) {
		vars := validVars()
		vars["OIDC_RESPONSE_MODE"] = "query"
		c, err := config.LoadFromMap(vars)
		require.NoError(t, err)
		require.ErrorContains(t, c.Validate(), "query cannot be used")
	})

	t.Run("fragment mode rejected", func(t *testing.T) {
		vars := validVars()
		vars["OIDC_RESPONSE_TYPE"] = "code"
		vars["OIDC_RESPONSE_MODE"] = "fragment"
		c, err := config.LoadFromMap(vars)
		require.NoError(t, err)
		require.ErrorContains(t, c.Validate(), "OIDC_RESPONSE_MODE \"fragment\" is not supported")
	})

	t.Run("implicit flow needs no secret", func(t *testing.T) {
		vars := validVars()
		delete(vars, "OIDC_CLIENT_SECRET")
		vars["OIDC_RESPONSE_TYPE"] = "id_token"
		c, err := config.LoadFromMap(vars)
		require.NoError(t, err)
		require.NoError(t, c.Validate())
	})

	t.Run("redis requires a seal key", func(t *testing.T) {
		vars := validVars()
		vars["SESSION_STORE"] = "redis"
		c, err := config.LoadFromMap(vars)
		require.NoError(t, err)
		require.ErrorContains(t, c.Validate(), "SESSION_SEAL_KEY is required")

		vars["SESSION_SEAL_KEY"] = base64.StdEncoding.EncodeToString([]byte(strings.Repeat("k", 32)))
		c, err = config.LoadFromMap(vars)
		require.NoError(t, err)
		require.NoError(t, c.Validate())
	})

	t.Run("short seal key", func(t *testing.T) {
		vars := validVars()
		vars["SESSION_SEAL_KEY"] = base64.StdEncoding.EncodeToString([]byte("short"))
		c, err := config.LoadFromMap(vars)
		require.NoError(t, err)
		require.ErrorContains(t, c.Validate(), "must be 32 bytes")
	})

	t.Run("unknown web api token kind", func(t *testing.T) {
		vars := validVars()
		vars["WEBAPI_TOKEN"] = "refresh_token"
		c, err := config.LoadFromMap(vars)
		require.NoError(t, err)
		require.ErrorContains(t, c.Validate(), "WEBAPI_TOKEN")
	})
}
