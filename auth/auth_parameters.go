package auth

import (
	"net/url"
	"slices"
	"strings"
	"unicode"
)

// ResponseType is one value of the space separated response_type parameter.
type ResponseType string

const (
	// CodeResponseType asks for an authorization code that the relay exchanges
	// at the token endpoint.
	CodeResponseType ResponseType = "code"

	// IDTokenResponseType asks for an ID token delivered to the redirect URI
	// directly. Combined with code this is the hybrid flow.
	IDTokenResponseType ResponseType = "id_token"
)

// ResponseModeType denotes how the provider returns the authorization response.
type ResponseModeType string

const (
	// QueryResponseMode returns parameters in the redirect URL query string.
	QueryResponseMode ResponseModeType = "query"

	// FormPostResponseMode returns parameters in an auto submitted POST body.
	FormPostResponseMode ResponseModeType = "form_post"
)

// ResponseTypes is a parsed response_type parameter.
type ResponseTypes []ResponseType

// ParseResponseTypes splits a response_type value such as "code id_token".
func ParseResponseTypes(s string) ResponseTypes {
	fields := strings.Fields(s)
	types := make(ResponseTypes, 0, len(fields))
	for _, f := range fields {
		types = append(types, ResponseType(f))
	}
	return types
}

func (rt ResponseTypes) Has(t ResponseType) bool {
	return slices.Contains(rt, t)
}

func (rt ResponseTypes) String() string {
	parts := make([]string, len(rt))
	for i, t := range rt {
		parts[i] = string(t)
	}
	return strings.Join(parts, " ")
}

// BeginRequest carries the caller's choices for a new authentication flow.
type BeginRequest struct {
	ReturnTo        string // Local path to continue to after success
	FailureRedirect string // Local path to continue to after failure
}

// CallbackParams are the authorization response parameters, taken from the
// query string or the form body depending on the response mode.
type CallbackParams struct {
	State            string
	Code             string
	IDToken          string
	Error            string
	ErrorDescription string
}

// CallbackParamsFromValues reads the standard authorization response fields.
func CallbackParamsFromValues(v url.Values) CallbackParams {
	return CallbackParams{
		State:            v.Get("state"),
		Code:             v.Get("code"),
		IDToken:          v.Get("id_token"),
		Error:            v.Get("error"),
		ErrorDescription: v.Get("error_description"),
	}
}

// SafeLocalPath returns target if it is a path on this host, otherwise fallback.
// Absolute URLs, scheme relative URLs and anything a browser could resolve to
// another origin are rejected.
func SafeLocalPath(target, fallback string) string {
	if target == "" || !strings.HasPrefix(target, "/") {
		return fallback
	}
	if strings.HasPrefix(target, "//") || strings.ContainsRune(target, '\\') {
		return fallback
	}
	if strings.IndexFunc(target, unicode.IsControl) >= 0 {
		return fallback
	}
	u, err := url.Parse(target)
	if err != nil || u.Scheme != "" || u.Host != "" || u.User != nil {
		return fallback
	}
	return target
}
