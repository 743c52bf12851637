package users_test

import (
	"testing"
	"time"

	"github.com/jrsteele09/go-oidc-relay/users"
	"github.com/stretchr/testify/require"
)

func TestIdentityFromClaims(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name      string
		claims    users.Claims
		wantName  string
		wantEmail string
	}{
		{
			name:      "standard claims",
			claims:    users.Claims{Subject: "s1", Name: "Jane Doe", Email: "jane@example.com"},
			wantName:  "Jane Doe",
			wantEmail: "jane@example.com",
		},
		{
			name:      "upn fallback",
			claims:    users.Claims{Subject: "s2", Name: "Jo", UPN: "jo@contoso.com", PreferredUsername: "jo@contoso.onmicrosoft.com"},
			wantName:  "Jo",
			wantEmail: "jo@contoso.com",
		},
		{
			name:      "given and family name",
			claims:    users.Claims{Subject: "s3", GivenName: "Ada", FamilyName: "Lovelace", PreferredUsername: "ada"},
			wantName:  "Ada Lovelace",
			wantEmail: "ada",
		},
		{
			name:      "subject only",
			claims:    users.Claims{Subject: "s4"},
			wantName:  "s4",
			wantEmail: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := users.IdentityFromClaims(tt.claims, now)
			require.Equal(t, tt.claims.Subject, id.Subject)
			require.Equal(t, tt.wantName, id.Name)
			require.Equal(t, tt.wantEmail, id.Email)
			require.Equal(t, now, id.AuthenticatedAt)
		})
	}
}
