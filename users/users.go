package users

import (
	"strings"
	"time"
)

// Claims are the ID token claims this application reads. Azure AD style
// providers put the sign-in name in upn or preferred_username instead of email.
type Claims struct {
	Issuer            string `json:"iss"`
	Subject           string `json:"sub"`
	Name              string `json:"name"`
	GivenName         string `json:"given_name"`
	FamilyName        string `json:"family_name"`
	Email             string `json:"email"`
	UPN               string `json:"upn"`
	PreferredUsername string `json:"preferred_username"`
	ObjectID          string `json:"oid"`
	Nonce             string `json:"nonce"`
}

// Identity is the provider asserted profile of an authenticated user. It is
// built once per authentication event and never modified afterwards.
type Identity struct {
	Subject           string    `json:"sub"`                          // Provider subject identifier, unique per issuer
	Issuer            string    `json:"iss"`                          // Issuer that asserted the identity
	Name              string    `json:"name,omitempty"`               // Display name
	Email             string    `json:"email,omitempty"`              // email, upn or preferred_username claim
	PreferredUsername string    `json:"preferred_username,omitempty"` // Sign-in name
	ObjectID          string    `json:"oid,omitempty"`                // Directory object id (Azure AD)
	AuthenticatedAt   time.Time `json:"authenticated_at"`             // When the flow that produced this identity completed
}

// IdentityFromClaims builds an Identity from verified ID token claims.
func IdentityFromClaims(c Claims, authenticatedAt time.Time) Identity {
	return Identity{
		Subject:           c.Subject,
		Issuer:            c.Issuer,
		Name:              displayName(c),
		Email:             firstNonEmpty(c.Email, c.UPN, c.PreferredUsername),
		PreferredUsername: c.PreferredUsername,
		ObjectID:          c.ObjectID,
		AuthenticatedAt:   authenticatedAt,
	}
}

func displayName(c Claims) string {
	if c.Name != "" {
		return c.Name
	}
	if full := strings.TrimSpace(c.GivenName + " " + c.FamilyName); full != "" {
		return full
	}
	return firstNonEmpty(c.PreferredUsername, c.Email, c.Subject)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
