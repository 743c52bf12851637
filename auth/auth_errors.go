package auth

import (
	"errors"
	"fmt"
)

// AuthError is a fatal failure of one authentication attempt. The user is
// sent back to start a new flow; an AuthError is never retried.
type AuthError struct {
	Code    string // Stable machine readable code, safe to show in a redirect
	Message string
}

func (e *AuthError) Error() string {
	return e.Message
}

var (
	ErrInvalidState        = &AuthError{Code: "invalid_state", Message: "auth flow state not found or already used"}
	ErrFlowExpired         = &AuthError{Code: "flow_expired", Message: "auth flow state has expired"}
	ErrTokenExchangeFailed = &AuthError{Code: "token_exchange_failed", Message: "authorization code exchange failed"}
	ErrMissingCredential   = &AuthError{Code: "missing_credential", Message: "callback carried no authorization code or id token"}
	ErrSignatureInvalid    = &AuthError{Code: "signature_invalid", Message: "id token signature is invalid"}
	ErrIssuerMismatch      = &AuthError{Code: "issuer_mismatch", Message: "id token issuer is not allowed"}
	ErrNonceMismatch       = &AuthError{Code: "nonce_mismatch", Message: "id token nonce does not match"}
	ErrAudienceMismatch    = &AuthError{Code: "audience_mismatch", Message: "id token audience does not match client"}
	ErrTokenExpired        = &AuthError{Code: "token_expired", Message: "id token has expired"}
	ErrSubjectMismatch     = &AuthError{Code: "subject_mismatch", Message: "id tokens name different subjects"}
	ErrTokenHashMismatch   = &AuthError{Code: "token_hash_mismatch", Message: "id token hash claim does not match"}
	ErrProviderError       = &AuthError{Code: "provider_error", Message: "identity provider returned an error"}
)

// AuthErrorCode returns the code of the AuthError in err's chain.
func AuthErrorCode(err error) (string, bool) {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.Code, true
	}
	return "", false
}

// flowFailure attaches the failure redirect chosen when the flow began.
type flowFailure struct {
	err        error
	failureURL string
}

func (f *flowFailure) Error() string { return f.err.Error() }
func (f *flowFailure) Unwrap() error { return f.err }

func failFlow(failureURL string, err error) error {
	return &flowFailure{err: err, failureURL: failureURL}
}

func withCause(ae *AuthError, cause error) error {
	if cause == nil {
		return ae
	}
	return fmt.Errorf("%w: %v", ae, cause)
}

// FailureURL returns the failure redirect recorded for the flow that produced
// err, or "" when the flow could not be identified.
func FailureURL(err error) string {
	var f *flowFailure
	if errors.As(err, &f) {
		return f.failureURL
	}
	return ""
}
