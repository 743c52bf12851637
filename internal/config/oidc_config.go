package config

import (
	"strings"
	"time"
)

type OIDCConfig interface {
	GetClientID() string
	GetClientSecret() string
	GetRedirectURL() string
	GetIdentityMetadataURL() string
	GetIssuerURL() string
	GetAllowedIssuers() []string
	GetValidateIssuer() bool
	GetScopes() []string
	GetResponseType() string
	GetResponseMode() string
	GetPostLogoutRedirectURL() string
	GetFlowStateTTL() time.Duration
	GetTokenAuthStyle() string
	GetUsePKCE() bool
}

const wellKnownSuffix = "/.well-known/openid-configuration"

// OIDC holds the relying party registration with the identity provider.
type OIDC struct {
	ClientID              string        `env:"OIDC_CLIENT_ID"`
	ClientSecret          string        `env:"OIDC_CLIENT_SECRET"`
	RedirectURL           string        `env:"OIDC_REDIRECT_URL" envDefault:"http://localhost:8080/auth/openid/return"`
	IdentityMetadataURL   string        `env:"OIDC_IDENTITY_METADATA"`
	AllowedIssuers        []string      `env:"OIDC_ALLOWED_ISSUERS" envSeparator:","`
	ValidateIssuer        *bool         `env:"OIDC_VALIDATE_ISSUER"` // nil means true
	Scopes                []string      `env:"OIDC_SCOPES" envSeparator:"," envDefault:"openid,profile,email,offline_access"`
	ResponseType          string        `env:"OIDC_RESPONSE_TYPE" envDefault:"code id_token"`
	ResponseMode          string        `env:"OIDC_RESPONSE_MODE" envDefault:"form_post"`
	PostLogoutRedirectURL string        `env:"OIDC_POST_LOGOUT_REDIRECT_URL" envDefault:"http://localhost:8080/"`
	FlowStateTTL          time.Duration `env:"OIDC_FLOW_STATE_TTL" envDefault:"10m"`
	TokenAuthStyle        string        `env:"OIDC_TOKEN_AUTH_STYLE" envDefault:"post"`
	UsePKCE               *bool         `env:"OIDC_USE_PKCE"` // nil means true
}

var _ OIDCConfig = OIDC{}

func (o OIDC) GetClientID() string {
	return o.ClientID
}

func (o OIDC) GetClientSecret() string {
	return o.ClientSecret
}

func (o OIDC) GetRedirectURL() string {
	return o.RedirectURL
}

func (o OIDC) GetIdentityMetadataURL() string {
	return o.IdentityMetadataURL
}

// GetIssuerURL derives the issuer base URL from the identity metadata URL.
func (o OIDC) GetIssuerURL() string {
	return strings.TrimSuffix(strings.TrimRight(o.IdentityMetadataURL, "/"), wellKnownSuffix)
}

func (o OIDC) GetAllowedIssuers() []string {
	issuers := make([]string, 0, len(o.AllowedIssuers))
	for _, iss := range o.AllowedIssuers {
		if iss = strings.TrimSpace(iss); iss != "" {
			issuers = append(issuers, iss)
		}
	}
	return issuers
}

// GetValidateIssuer is true unless issuer validation was explicitly disabled.
func (o OIDC) GetValidateIssuer() bool {
	return o.ValidateIssuer == nil || *o.ValidateIssuer
}

func (o OIDC) GetScopes() []string {
	if len(o.Scopes) == 0 {
		return []string{"openid"}
	}
	return o.Scopes
}

func (o OIDC) GetResponseType() string {
	if o.ResponseType == "" {
		return "code"
	}
	return strings.Join(strings.Fields(o.ResponseType), " ")
}

func (o OIDC) GetResponseMode() string {
	if o.ResponseMode == "" {
		return "query"
	}
	return o.ResponseMode
}

func (o OIDC) GetPostLogoutRedirectURL() string {
	return o.PostLogoutRedirectURL
}

func (o OIDC) GetFlowStateTTL() time.Duration {
	if o.FlowStateTTL <= 0 {
		return 10 * time.Minute
	}
	return o.FlowStateTTL
}

func (o OIDC) GetTokenAuthStyle() string {
	if o.TokenAuthStyle == "" {
		return "post"
	}
	return o.TokenAuthStyle
}

func (o OIDC) GetUsePKCE() bool {
	return o.UsePKCE == nil || *o.UsePKCE
}
