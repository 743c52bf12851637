package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/jrsteele09/go-oidc-relay/internal/config"
	apperrors "github.com/jrsteele09/go-oidc-relay/internal/errors"
	"github.com/jrsteele09/go-oidc-relay/server/authflowrepo"
	"github.com/jrsteele09/go-oidc-relay/server/loginsession"
	"github.com/jrsteele09/go-oidc-relay/token"
	"github.com/jrsteele09/go-oidc-relay/users"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

const (
	// randomValueBytes is the entropy of state and nonce values (256 bits)
	randomValueBytes   = 32
	defaultLandingPath = "/"
)

// RedirectInstruction is where to send the browser to start authentication.
type RedirectInstruction struct {
	URL   string
	State string
}

// Completion is the result of a successful callback.
type Completion struct {
	SessionID string
	Identity  users.Identity
	ReturnTo  string
}

// Authenticator runs the relying party side of the OpenID Connect flow:
// it builds authorization requests, validates callbacks and creates sessions.
type Authenticator struct {
	cfg      config.OIDCConfig
	provider *Provider
	flows    authflowrepo.Repo
	sessions *loginsession.Store
	nowTime  func() time.Time

	mu sync.Mutex
	rp *relyingParty
}

// relyingParty is the client configuration derived from discovery.
type relyingParty struct {
	oauth2    *oauth2.Config
	validator *IDTokenValidator
	metadata  ProviderMetadata
}

// AuthenticatorOption defines a function type to modify the Authenticator instance.
type AuthenticatorOption func(*Authenticator)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) AuthenticatorOption {
	return func(a *Authenticator) {
		a.nowTime = nowFunc
	}
}

// NewAuthenticator wires an Authenticator to its provider and stores.
func NewAuthenticator(
	cfg config.OIDCConfig,
	provider *Provider,
	flows authflowrepo.Repo,
	sessions *loginsession.Store,
	options ...AuthenticatorOption,
) (*Authenticator, error) {
	if cfg == nil {
		return nil, errors.New("[NewAuthenticator] config is required")
	}
	if provider == nil {
		return nil, errors.New("[NewAuthenticator] provider is required")
	}
	if flows == nil {
		return nil, errors.New("[NewAuthenticator] flow state repo is required")
	}
	if sessions == nil {
		return nil, errors.New("[NewAuthenticator] session store is required")
	}

	a := &Authenticator{
		cfg:      cfg,
		provider: provider,
		flows:    flows,
		sessions: sessions,
		nowTime:  time.Now,
	}
	for _, opt := range options {
		opt(a)
	}

	if !cfg.GetValidateIssuer() {
		log.Warn().Msg("ID token issuer validation is DISABLED by configuration")
	}
	return a, nil
}

func (a *Authenticator) relyingParty(ctx context.Context) (*relyingParty, error) {
	a.mu.Lock()
	rp := a.rp
	a.mu.Unlock()
	if rp != nil {
		return rp, nil
	}

	prov, md, err := a.provider.Discover(ctx)
	if err != nil {
		return nil, err
	}

	endpoint := prov.Endpoint()
	endpoint.AuthStyle = authStyle(a.cfg.GetTokenAuthStyle())

	verifierConfig := VerifierConfig(a.cfg.GetClientID())
	verifierConfig.Now = a.nowTime

	rp = &relyingParty{
		oauth2: &oauth2.Config{
			ClientID:     a.cfg.GetClientID(),
			ClientSecret: a.cfg.GetClientSecret(),
			RedirectURL:  a.cfg.GetRedirectURL(),
			Endpoint:     endpoint,
			Scopes:       a.cfg.GetScopes(),
		},
		validator: NewIDTokenValidator(
			prov.Verifier(verifierConfig),
			a.cfg.GetClientID(),
			a.cfg.GetAllowedIssuers(),
			a.cfg.GetValidateIssuer(),
		),
		metadata: md,
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.rp == nil {
		a.rp = rp
	}
	return a.rp, nil
}

func authStyle(style string) oauth2.AuthStyle {
	switch style {
	case "basic":
		return oauth2.AuthStyleInHeader
	case "post":
		return oauth2.AuthStyleInParams
	default:
		return oauth2.AuthStyleAutoDetect
	}
}

// BeginAuthentication records a new flow state and returns the provider
// authorization URL to redirect the browser to.
func (a *Authenticator) BeginAuthentication(ctx context.Context, req BeginRequest) (*RedirectInstruction, error) {
	rp, err := a.relyingParty(ctx)
	if err != nil {
		return nil, fmt.Errorf("[auth BeginAuthentication] %w", err)
	}

	state, err := randomValue()
	if err != nil {
		return nil, err
	}
	nonce, err := randomValue()
	if err != nil {
		return nil, err
	}

	responseTypes := ParseResponseTypes(a.cfg.GetResponseType())
	opts := []oauth2.AuthCodeOption{
		oidc.Nonce(nonce),
		oauth2.SetAuthURLParam("response_type", responseTypes.String()),
	}
	if mode := ResponseModeType(a.cfg.GetResponseMode()); mode != QueryResponseMode {
		opts = append(opts, oauth2.SetAuthURLParam("response_mode", string(mode)))
	}

	var verifier string
	if responseTypes.Has(CodeResponseType) && a.cfg.GetUsePKCE() {
		verifier = oauth2.GenerateVerifier()
		opts = append(opts, oauth2.S256ChallengeOption(verifier))
	}

	now := a.nowTime()
	flow := &authflowrepo.AuthFlowState{
		State:          state,
		Nonce:          nonce,
		CodeVerifier:   verifier,
		ExpectedIssuer: rp.metadata.Issuer,
		Scopes:         rp.oauth2.Scopes,
		ReturnURL:      SafeLocalPath(req.ReturnTo, defaultLandingPath),
		FailureURL:     SafeLocalPath(req.FailureRedirect, defaultLandingPath),
		CreatedAt:      now,
		ExpiresAt:      now.Add(a.cfg.GetFlowStateTTL()),
	}
	if err := a.flows.Upsert(ctx, state, flow); err != nil {
		return nil, fmt.Errorf("[auth BeginAuthentication] failed to store flow state: %w", err)
	}

	return &RedirectInstruction{
		URL:   rp.oauth2.AuthCodeURL(state, opts...),
		State: state,
	}, nil
}

// CompleteAuthentication validates an authorization response and, on success,
// creates a login session. The flow state is consumed whatever the outcome.
// Errors carrying an AuthError are fatal to the attempt; FailureURL(err)
// returns where the flow asked to be sent on failure.
func (a *Authenticator) CompleteAuthentication(ctx context.Context, params CallbackParams) (*Completion, error) {
	if params.State == "" {
		return nil, ErrInvalidState
	}

	flow, err := a.flows.Consume(ctx, params.State)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return nil, ErrInvalidState
		}
		return nil, fmt.Errorf("[auth CompleteAuthentication] %w", err)
	}
	failureURL := flow.FailureURL

	now := a.nowTime()
	if flow.IsExpired(now) {
		return nil, failFlow(failureURL, ErrFlowExpired)
	}

	if params.Error != "" {
		return nil, failFlow(failureURL, withCause(ErrProviderError, fmt.Errorf("%s: %s", params.Error, params.ErrorDescription)))
	}

	responseTypes := ParseResponseTypes(a.cfg.GetResponseType())
	if params.Code == "" && params.IDToken == "" {
		return nil, failFlow(failureURL, ErrMissingCredential)
	}
	if responseTypes.Has(CodeResponseType) && params.Code == "" {
		return nil, failFlow(failureURL, withCause(ErrMissingCredential, errors.New("no authorization code")))
	}
	if responseTypes.Has(IDTokenResponseType) && params.IDToken == "" {
		return nil, failFlow(failureURL, withCause(ErrMissingCredential, errors.New("no id token")))
	}

	rp, err := a.relyingParty(ctx)
	if err != nil {
		return nil, fmt.Errorf("[auth CompleteAuthentication] %w", err)
	}

	var front *ValidatedIDToken
	if params.IDToken != "" {
		front, err = rp.validator.Validate(ctx, params.IDToken, flow.Nonce, flow.ExpectedIssuer)
		if err != nil {
			return nil, failFlow(failureURL, classify(err))
		}
		if params.Code != "" {
			if err := front.VerifyCodeHash(params.Code); err != nil {
				return nil, failFlow(failureURL, err)
			}
		}
	}

	identityToken := front
	var tok *oauth2.Token
	if params.Code != "" {
		var exchangeOpts []oauth2.AuthCodeOption
		if flow.CodeVerifier != "" {
			exchangeOpts = append(exchangeOpts, oauth2.VerifierOption(flow.CodeVerifier))
		}
		tok, err = rp.oauth2.Exchange(a.provider.ClientContext(ctx), params.Code, exchangeOpts...)
		if err != nil {
			return nil, failFlow(failureURL, withCause(ErrTokenExchangeFailed, err))
		}

		raw, _ := tok.Extra("id_token").(string)
		if raw == "" {
			return nil, failFlow(failureURL, withCause(ErrTokenExchangeFailed, errors.New("token response has no id_token")))
		}
		back, err := rp.validator.Validate(ctx, raw, flow.Nonce, flow.ExpectedIssuer)
		if err != nil {
			return nil, failFlow(failureURL, classify(err))
		}
		if front != nil && front.Token.Subject != back.Token.Subject {
			return nil, failFlow(failureURL, ErrSubjectMismatch)
		}
		if err := back.VerifyAccessTokenHash(tok.AccessToken); err != nil {
			return nil, failFlow(failureURL, err)
		}
		identityToken = back
	}

	bundle, err := token.NewBundle(identityToken.Raw, identityToken.Token.Expiry, tok, now)
	if err != nil {
		return nil, fmt.Errorf("[auth CompleteAuthentication] %w", err)
	}
	claims := identityToken.Claims
	claims.Issuer = identityToken.Token.Issuer
	claims.Subject = identityToken.Token.Subject
	identity := users.IdentityFromClaims(claims, now)

	sessionID, err := a.sessions.Create(ctx, identity, bundle)
	if err != nil {
		return nil, fmt.Errorf("[auth CompleteAuthentication] %w", err)
	}

	log.Info().Str("sub", identity.Subject).Str("iss", identity.Issuer).Msg("authentication completed")
	return &Completion{
		SessionID: sessionID,
		Identity:  identity,
		ReturnTo:  flow.ReturnURL,
	}, nil
}

// Logout destroys the session and returns the URL to send the browser to:
// the provider end session endpoint when it has one, otherwise the configured
// post logout redirect.
func (a *Authenticator) Logout(ctx context.Context, sessionID string) (string, error) {
	var idTokenHint string
	if sessionID != "" {
		session, err := a.sessions.Lookup(ctx, sessionID)
		switch {
		case err == nil:
			idTokenHint = session.Tokens.IDToken
		case !apperrors.Is(err, apperrors.ErrSessionNotFound):
			log.Warn().Err(err).Msg("session lookup failed during logout")
		}
		if err := a.sessions.Destroy(ctx, sessionID); err != nil {
			return "", fmt.Errorf("[auth Logout] %w", err)
		}
	}

	postLogout := a.cfg.GetPostLogoutRedirectURL()
	if postLogout == "" {
		postLogout = defaultLandingPath
	}

	rp, err := a.relyingParty(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("provider unavailable, skipping end session redirect")
		return postLogout, nil
	}
	if rp.metadata.EndSessionEndpoint == "" {
		return postLogout, nil
	}

	u, err := url.Parse(rp.metadata.EndSessionEndpoint)
	if err != nil {
		log.Warn().Err(err).Str("end_session_endpoint", rp.metadata.EndSessionEndpoint).Msg("invalid end session endpoint")
		return postLogout, nil
	}
	q := u.Query()
	q.Set("post_logout_redirect_uri", postLogout)
	q.Set("client_id", a.cfg.GetClientID())
	if idTokenHint != "" {
		q.Set("id_token_hint", idTokenHint)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// classify makes sure err carries an AuthError, defaulting to ErrSignatureInvalid.
func classify(err error) error {
	var ae *AuthError
	if errors.As(err, &ae) {
		return err
	}
	return withCause(ErrSignatureInvalid, err)
}

func randomValue() (string, error) {
	b := make([]byte, randomValueBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("[auth randomValue] %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
