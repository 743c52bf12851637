package auth_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-oidc-relay/auth"
	"github.com/jrsteele09/go-oidc-relay/internal/config"
	"github.com/jrsteele09/go-oidc-relay/server/authflowrepo"
	"github.com/jrsteele09/go-oidc-relay/server/loginsession"
	"github.com/stretchr/testify/require"
)

const signingKeyID = "test-key"

// signingProvider is an identity provider that serves discovery, its signing
// key and a token endpoint. ID tokens for the token endpoint are registered
// per authorization code with issue.
type signingProvider struct {
	srv    *httptest.Server
	key    *rsa.PrivateKey
	issuer string // Issuer named by the discovery document

	mu    sync.Mutex
	codes map[string]jwt.MapClaims
}

func newSigningProvider(t *testing.T, documentIssuer string) *signingProvider {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	p := &signingProvider{key: key, codes: map[string]jwt.MapClaims{}}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /.well-known/openid-configuration", p.discovery)
	mux.HandleFunc("GET /keys", p.keys)
	mux.HandleFunc("POST /token", p.token)
	p.srv = httptest.NewServer(mux)
	t.Cleanup(p.srv.Close)

	p.issuer = documentIssuer
	if p.issuer == "" {
		p.issuer = p.srv.URL
	}
	return p
}

func (p *signingProvider) discovery(w http.ResponseWriter, _ *http.Request) {
	writeTestJSON(w, http.StatusOK, map[string]any{
		"issuer":                                p.issuer,
		"authorization_endpoint":                p.srv.URL + "/authorize",
		"token_endpoint":                        p.srv.URL + "/token",
		"jwks_uri":                              p.srv.URL + "/keys",
		"id_token_signing_alg_values_supported": []string{"RS256"},
	})
}

func (p *signingProvider) keys(w http.ResponseWriter, _ *http.Request) {
	pub := &p.key.PublicKey
	writeTestJSON(w, http.StatusOK, map[string]any{
		"keys": []map[string]string{{
			"kty": "RSA",
			"kid": signingKeyID,
			"alg": "RS256",
			"use": "sig",
			"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		}},
	})
}

func (p *signingProvider) token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeTestJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request"})
		return
	}
	code := r.PostForm.Get("code")

	p.mu.Lock()
	claims, ok := p.codes[code]
	delete(p.codes, code)
	p.mu.Unlock()
	if !ok {
		writeTestJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
		return
	}

	accessToken := "access-" + code
	claims["at_hash"] = leftHalfSHA256(accessToken)
	idToken, err := p.sign(claims)
	if err != nil {
		writeTestJSON(w, http.StatusInternalServerError, map[string]string{"error": "server_error"})
		return
	}
	writeTestJSON(w, http.StatusOK, map[string]any{
		"access_token": accessToken,
		"token_type":   "Bearer",
		"expires_in":   3600,
		"id_token":     idToken,
	})
}

// issue registers the claims of the ID token the token endpoint returns for code.
func (p *signingProvider) issue(code string, claims jwt.MapClaims) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.codes[code] = claims
}

func (p *signingProvider) sign(claims jwt.MapClaims) (string, error) {
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = signingKeyID
	return tok.SignedString(p.key)
}

func (p *signingProvider) mustSign(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	raw, err := p.sign(claims)
	require.NoError(t, err)
	return raw
}

func idTokenClaims(issuer, subject, nonce string) jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"iss":   issuer,
		"sub":   subject,
		"aud":   testClientID,
		"exp":   now.Add(time.Hour).Unix(),
		"iat":   now.Unix(),
		"nonce": nonce,
		"email": subject + "@example.com",
	}
}

type signingFlowFixture struct {
	ctx      context.Context
	provider *signingProvider
	auth     *auth.Authenticator
	sessions *loginsession.Store
}

func newSigningFlowFixture(t *testing.T, p *signingProvider, overrides map[string]string) *signingFlowFixture {
	t.Helper()
	vars := map[string]string{
		"OIDC_CLIENT_ID":         testClientID,
		"OIDC_CLIENT_SECRET":     "secret",
		"OIDC_IDENTITY_METADATA": p.srv.URL + "/.well-known/openid-configuration",
		"OIDC_REDIRECT_URL":      "http://localhost:8080/auth/openid/return",
		"OIDC_SCOPES":            "openid,profile,email",
	}
	for k, v := range overrides {
		vars[k] = v
	}
	cfg, err := config.LoadFromMap(vars)
	require.NoError(t, err)

	sessions := loginsession.NewStore(loginsession.NewInMemoryLoginSessionRepo(), time.Hour)
	provider := auth.NewProvider(cfg.GetIssuerURL(), auth.WithAllowedIssuers(cfg.GetAllowedIssuers()))
	a, err := auth.NewAuthenticator(cfg, provider, authflowrepo.NewInMemoryRepo(), sessions)
	require.NoError(t, err)

	return &signingFlowFixture{
		ctx:      context.Background(),
		provider: p,
		auth:     a,
		sessions: sessions,
	}
}

// begin starts a flow and returns its state and nonce.
func (f *signingFlowFixture) begin(t *testing.T) (string, string) {
	t.Helper()
	redirect, err := f.auth.BeginAuthentication(f.ctx, auth.BeginRequest{})
	require.NoError(t, err)
	u, err := url.Parse(redirect.URL)
	require.NoError(t, err)
	nonce := u.Query().Get("nonce")
	require.NotEmpty(t, nonce)
	return redirect.State, nonce
}

func leftHalfSHA256(value string) string {
	sum := sha256.Sum256([]byte(value))
	return base64.RawURLEncoding.EncodeToString(sum[:len(sum)/2])
}

func writeTestJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestCompleteAuthentication_Hybrid(t *testing.T) {
	p := newSigningProvider(t, "")
	f := newSigningFlowFixture(t, p, map[string]string{
		"OIDC_RESPONSE_TYPE": "code id_token",
		"OIDC_RESPONSE_MODE": "form_post",
	})

	tests := []struct {
		name        string
		frontSub    string
		backSub     string
		codeHashOf  string // Value the front channel c_hash is computed from, the code when empty
		omitIDToken bool
		wantError   *auth.AuthError
	}{
		{
			name:     "code and id token",
			frontSub: "alice",
			backSub:  "alice",
		},
		{
			name:       "c_hash of another code",
			frontSub:   "alice",
			backSub:    "alice",
			codeHashOf: "some-other-code",
			wantError:  auth.ErrTokenHashMismatch,
		},
		{
			name:      "token endpoint names another subject",
			frontSub:  "alice",
			backSub:   "mallory",
			wantError: auth.ErrSubjectMismatch,
		},
		{
			name:        "code without id token",
			frontSub:    "alice",
			backSub:     "alice",
			omitIDToken: true,
			wantError:   auth.ErrMissingCredential,
		},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state, nonce := f.begin(t)
			code := fmt.Sprintf("code-%d", i)
			p.issue(code, idTokenClaims(p.issuer, tt.backSub, nonce))

			hashed := tt.codeHashOf
			if hashed == "" {
				hashed = code
			}
			front := idTokenClaims(p.issuer, tt.frontSub, nonce)
			front["c_hash"] = leftHalfSHA256(hashed)

			params := auth.CallbackParams{State: state, Code: code}
			if !tt.omitIDToken {
				params.IDToken = p.mustSign(t, front)
			}

			completion, err := f.auth.CompleteAuthentication(f.ctx, params)
			if tt.wantError != nil {
				require.ErrorIs(t, err, tt.wantError)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.backSub, completion.Identity.Subject)
			require.Equal(t, p.issuer, completion.Identity.Issuer)

			session, err := f.sessions.Lookup(f.ctx, completion.SessionID)
			require.NoError(t, err)
			require.Equal(t, "access-"+code, session.Tokens.AccessToken)
			require.NotEmpty(t, session.Tokens.IDToken)
		})
	}
}

func TestCompleteAuthentication_Implicit(t *testing.T) {
	p := newSigningProvider(t, "")
	f := newSigningFlowFixture(t, p, map[string]string{
		"OIDC_RESPONSE_TYPE": "id_token",
		"OIDC_RESPONSE_MODE": "form_post",
	})

	state, nonce := f.begin(t)
	idToken := p.mustSign(t, idTokenClaims(p.issuer, "bob", nonce))

	completion, err := f.auth.CompleteAuthentication(f.ctx, auth.CallbackParams{State: state, IDToken: idToken})
	require.NoError(t, err)
	require.Equal(t, "bob", completion.Identity.Subject)

	session, err := f.sessions.Lookup(f.ctx, completion.SessionID)
	require.NoError(t, err)
	require.Equal(t, idToken, session.Tokens.IDToken)
	require.Empty(t, session.Tokens.AccessToken)

	// A second id token for a fresh flow with the wrong nonce is rejected.
	state, _ = f.begin(t)
	_, err = f.auth.CompleteAuthentication(f.ctx, auth.CallbackParams{
		State:   state,
		IDToken: p.mustSign(t, idTokenClaims(p.issuer, "bob", "not-the-nonce")),
	})
	require.ErrorIs(t, err, auth.ErrNonceMismatch)
}

func TestCompleteAuthentication_TemplatedIssuerAllowList(t *testing.T) {
	const (
		tenantA = "https://login.example.com/tenant-a/v2.0"
		tenantB = "https://login.example.com/tenant-b/v2.0"
		tenantC = "https://login.example.com/tenant-c/v2.0"
	)
	p := newSigningProvider(t, "https://login.example.com/{tenantid}/v2.0")
	f := newSigningFlowFixture(t, p, map[string]string{
		"OIDC_RESPONSE_TYPE":   "code",
		"OIDC_RESPONSE_MODE":   "query",
		"OIDC_ALLOWED_ISSUERS": tenantA + "," + tenantB,
	})

	for i, issuer := range []string{tenantA, tenantB} {
		state, nonce := f.begin(t)
		code := fmt.Sprintf("tenant-code-%d", i)
		p.issue(code, idTokenClaims(issuer, "user", nonce))

		completion, err := f.auth.CompleteAuthentication(f.ctx, auth.CallbackParams{State: state, Code: code})
		require.NoError(t, err)
		require.Equal(t, issuer, completion.Identity.Issuer)
	}

	state, nonce := f.begin(t)
	p.issue("tenant-code-c", idTokenClaims(tenantC, "user", nonce))
	_, err := f.auth.CompleteAuthentication(f.ctx, auth.CallbackParams{State: state, Code: "tenant-code-c"})
	require.ErrorIs(t, err, auth.ErrIssuerMismatch)
}

func TestBeginAuthentication_TemplatedIssuerWithoutAllowList(t *testing.T) {
	p := newSigningProvider(t, "https://login.example.com/{tenantid}/v2.0")
	f := newSigningFlowFixture(t, p, map[string]string{
		"OIDC_RESPONSE_TYPE": "code",
		"OIDC_RESPONSE_MODE": "query",
	})

	_, err := f.auth.BeginAuthentication(f.ctx, auth.BeginRequest{})
	require.Error(t, err)
}
