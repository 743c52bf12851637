package auth

import (
	"context"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"hash"
	"slices"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-oidc-relay/users"
)

// ValidatedIDToken is an ID token that passed every check in IDTokenValidator.
type ValidatedIDToken struct {
	Raw        string
	SigningAlg string
	Token      *oidc.IDToken
	Claims     users.Claims
}

// IDTokenValidator checks ID tokens against the provider keys, the issuer
// allow-list, the client id and the nonce of the flow that requested them.
type IDTokenValidator struct {
	verifier       *oidc.IDTokenVerifier
	clientID       string
	allowedIssuers []string
	validateIssuer bool
}

// NewIDTokenValidator wraps verifier. The verifier checks signature and expiry
// only; issuer and audience are checked here so that failures can be told apart.
// When allowedIssuers is empty the issuer expected by each flow is the only one allowed.
func NewIDTokenValidator(verifier *oidc.IDTokenVerifier, clientID string, allowedIssuers []string, validateIssuer bool) *IDTokenValidator {
	return &IDTokenValidator{
		verifier:       verifier,
		clientID:       clientID,
		allowedIssuers: slices.Clone(allowedIssuers),
		validateIssuer: validateIssuer,
	}
}

// VerifierConfig is the go-oidc configuration matching IDTokenValidator.
func VerifierConfig(clientID string) *oidc.Config {
	return &oidc.Config{
		ClientID:          clientID,
		SkipClientIDCheck: true,
		SkipIssuerCheck:   true,
	}
}

// Validate checks raw and returns the decoded token.
func (v *IDTokenValidator) Validate(ctx context.Context, raw, expectedNonce, expectedIssuer string) (*ValidatedIDToken, error) {
	parsed, _, err := jwt.NewParser().ParseUnverified(raw, jwt.MapClaims{})
	if err != nil {
		return nil, fmt.Errorf("%w: malformed token: %v", ErrSignatureInvalid, err)
	}
	issuer, _ := parsed.Claims.GetIssuer()
	alg, _ := parsed.Header["alg"].(string)

	if v.validateIssuer && !slices.Contains(v.issuers(expectedIssuer), issuer) {
		return nil, fmt.Errorf("%w: %q", ErrIssuerMismatch, issuer)
	}

	idToken, err := v.verifier.Verify(ctx, raw)
	if err != nil {
		var expired *oidc.TokenExpiredError
		if errors.As(err, &expired) {
			return nil, fmt.Errorf("%w: expired at %s", ErrTokenExpired, expired.Expiry)
		}
		return nil, fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}

	if !slices.Contains(idToken.Audience, v.clientID) {
		return nil, fmt.Errorf("%w: %v", ErrAudienceMismatch, idToken.Audience)
	}

	var claims struct {
		users.Claims
		AuthorizedParty string `json:"azp"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%w: decoding claims: %v", ErrSignatureInvalid, err)
	}
	if len(idToken.Audience) > 1 && claims.AuthorizedParty != v.clientID {
		return nil, fmt.Errorf("%w: azp %q", ErrAudienceMismatch, claims.AuthorizedParty)
	}

	if expectedNonce == "" || subtle.ConstantTimeCompare([]byte(idToken.Nonce), []byte(expectedNonce)) != 1 {
		return nil, ErrNonceMismatch
	}

	if idToken.Subject == "" {
		return nil, fmt.Errorf("%w: token has no subject", ErrSignatureInvalid)
	}

	return &ValidatedIDToken{
		Raw:        raw,
		SigningAlg: alg,
		Token:      idToken,
		Claims:     claims.Claims,
	}, nil
}

func (v *IDTokenValidator) issuers(expected string) []string {
	if len(v.allowedIssuers) > 0 {
		return v.allowedIssuers
	}
	if expected == "" {
		return nil
	}
	return []string{expected}
}

// VerifyCodeHash checks the c_hash claim of a front channel ID token against
// the authorization code delivered with it. A token without c_hash passes.
func (t *ValidatedIDToken) VerifyCodeHash(code string) error {
	var claims struct {
		CodeHash string `json:"c_hash"`
	}
	if err := t.Token.Claims(&claims); err != nil {
		return fmt.Errorf("%w: %v", ErrTokenHashMismatch, err)
	}
	if claims.CodeHash == "" {
		return nil
	}
	want, err := leftHalfHash(t.SigningAlg, code)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTokenHashMismatch, err)
	}
	if subtle.ConstantTimeCompare([]byte(want), []byte(claims.CodeHash)) != 1 {
		return fmt.Errorf("%w: c_hash", ErrTokenHashMismatch)
	}
	return nil
}

// VerifyAccessTokenHash checks the at_hash claim. A token without at_hash passes.
func (t *ValidatedIDToken) VerifyAccessTokenHash(accessToken string) error {
	if t.Token.AccessTokenHash == "" {
		return nil
	}
	if err := t.Token.VerifyAccessToken(accessToken); err != nil {
		return fmt.Errorf("%w: at_hash: %v", ErrTokenHashMismatch, err)
	}
	return nil
}

// leftHalfHash is base64url of the left half of the hash of value, using the
// hash size of the token signing algorithm.
func leftHalfHash(alg, value string) (string, error) {
	var h hash.Hash
	switch {
	case strings.HasSuffix(alg, "256"):
		h = sha256.New()
	case strings.HasSuffix(alg, "384"):
		h = sha512.New384()
	case strings.HasSuffix(alg, "512"), alg == "EdDSA":
		h = sha512.New()
	default:
		return "", fmt.Errorf("unsupported signing algorithm %q", alg)
	}
	h.Write([]byte(value))
	sum := h.Sum(nil)
	return base64.RawURLEncoding.EncodeToString(sum[:len(sum)/2]), nil
}
