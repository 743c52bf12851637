package config

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/hashicorp/go-multierror"
	apperrors "github.com/jrsteele09/go-oidc-relay/internal/errors"
)

var (
	supportedResponseTypes = []string{"code", "id_token", "code id_token"}
	supportedResponseModes = []string{"query", "form_post"}
	supportedAuthStyles    = []string{"post", "basic", "auto"}
	supportedTokenKinds    = []string{"access_token", "id_token"}
)

// Validate reports every configuration problem at once.
func (c mainConfig) Validate() error {
	var result *multierror.Error

	if c.GetClientID() == "" {
		result = multierror.Append(result, fmt.Errorf("OIDC_CLIENT_ID is required"))
	}
	if strings.Contains(c.GetResponseType(), "code") && c.GetClientSecret() == "" {
		result = multierror.Append(result, fmt.Errorf("OIDC_CLIENT_SECRET is required for response type %q", c.GetResponseType()))
	}
	if err := validateAbsoluteURL("OIDC_IDENTITY_METADATA", c.GetIdentityMetadataURL()); err != nil {
		result = multierror.Append(result, err)
	}
	if err := validateAbsoluteURL("OIDC_REDIRECT_URL", c.GetRedirectURL()); err != nil {
		result = multierror.Append(result, err)
	}
	if c.GetPostLogoutRedirectURL() != "" {
		if err := validateAbsoluteURL("OIDC_POST_LOGOUT_REDIRECT_URL", c.GetPostLogoutRedirectURL()); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if !slices.Contains(c.GetScopes(), "openid") {
		result = multierror.Append(result, fmt.Errorf("OIDC_SCOPES must contain openid"))
	}

	responseType := c.GetResponseType()
	responseMode := c.GetResponseMode()
	if !slices.Contains(supportedResponseTypes, responseType) {
		result = multierror.Append(result, fmt.Errorf("OIDC_RESPONSE_TYPE %q is not supported (one of %s)", responseType, strings.Join(supportedResponseTypes, ", ")))
	}
	if !slices.Contains(supportedResponseModes, responseMode) {
		result = multierror.Append(result, fmt.Errorf("OIDC_RESPONSE_MODE %q is not supported (one of %s)", responseMode, strings.Join(supportedResponseModes, ", ")))
	}
	// Tokens must never be returned in the query string
	if strings.Contains(responseType, "id_token") && responseMode == "query" {
		result = multierror.Append(result, fmt.Errorf("OIDC_RESPONSE_MODE query cannot be used with response type %q", responseType))
	}
	if !slices.Contains(supportedAuthStyles, c.GetTokenAuthStyle()) {
		result = multierror.Append(result, fmt.Errorf("OIDC_TOKEN_AUTH_STYLE %q is not supported", c.GetTokenAuthStyle()))
	}
	for _, iss := range c.GetAllowedIssuers() {
		if err := validateAbsoluteURL("OIDC_ALLOWED_ISSUERS", iss); err != nil {
			result = multierror.Append(result, err)
		}
	}

	if !slices.Contains(supportedTokenKinds, c.GetWebAPIToken()) {
		result = multierror.Append(result, fmt.Errorf("WEBAPI_TOKEN %q is not supported (one of %s)", c.GetWebAPIToken(), strings.Join(supportedTokenKinds, ", ")))
	}

	switch c.GetStoreBackend() {
	case StoreBackendMemory:
	case StoreBackendRedis:
		if c.GetRedisAddr() == "" {
			result = multierror.Append(result, fmt.Errorf("REDIS_ADDR is required for the redis session store"))
		}
		if c.GetSessionSealKey() == "" {
			result = multierror.Append(result, fmt.Errorf("SESSION_SEAL_KEY is required for the redis session store"))
		}
	default:
		result = multierror.Append(result, fmt.Errorf("SESSION_STORE %q is not supported", c.GetStoreBackend()))
	}
	if key := c.GetSessionSealKey(); key != "" {
		if raw, err := base64.StdEncoding.DecodeString(key); err != nil || len(raw) != 32 {
			result = multierror.Append(result, fmt.Errorf("SESSION_SEAL_KEY must be 32 bytes, base64 encoded"))
		}
	}

	if err := result.ErrorOrNil(); err != nil {
		return fmt.Errorf("[config Validate] %w: %w", apperrors.ErrInvalidConfig, err)
	}
	return nil
}

func validateAbsoluteURL(name, value string) error {
	if value == "" {
		return fmt.Errorf("%s is required", name)
	}
	u, err := url.Parse(value)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%s %q must be an absolute URL", name, value)
	}
	return nil
}
