package oidc

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/al-bashkir/oidc-tunnel-login/internal/config"
)

// Validator provides token checks beyond what go-oidc does.
//
// Note: go-oidc already validates:
// - JWT signature via JWKS
// - Standard claims: iss, aud, exp, iat, nbf
//
// This adds:
// - Tenant (tid) enforcement when the tenant is a directory GUID
// - Username claim extraction
type Validator struct {
	usernameClaim string
	tenant        string
}

// NewValidator creates a new token validator.
func NewValidator(oidcCfg *config.OIDCConfig, tenant string) *Validator {
	return &Validator{
		usernameClaim: oidcCfg.UsernameClaim,
		tenant:        tenant,
	}
}

// ValidateToken checks the tenant of the token.
// Domain-style tenants (contoso.onmicrosoft.com) cannot be compared with the
// tid claim and are trusted to the issuer check.
func (v *Validator) ValidateToken(claims map[string]interface{}) error {
	tenantID, err := uuid.Parse(v.tenant)
	if err != nil {
		return nil
	}

	tid, err := getClaimString(claims, "tid")
	if err != nil {
		return fmt.Errorf("tenant claim 'tid' not found: %w", err)
	}

	got, err := uuid.Parse(tid)
	if err != nil || got != tenantID {
		return fmt.Errorf("tenant mismatch: expected '%s', got '%s'", v.tenant, tid)
	}

	return nil
}

// Username returns the configured username claim, falling back to sub.
func (v *Validator) Username(claims map[string]interface{}) string {
	if v.usernameClaim != "" {
		if name, err := getClaimString(claims, v.usernameClaim); err == nil && name != "" {
			return name
		}
	}
	sub, _ := getClaimString(claims, "sub")
	return sub
}

// getClaimString extracts a string claim, supporting dot notation for nested claims.
// For example: "email", "preferred_username", "xms_st.sub"
func getClaimString(claims map[string]interface{}, path string) (string, error) {
	value, err := getNestedClaim(claims, path)
	if err != nil {
		return "", err
	}

	str, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("claim '%s' is not a string", path)
	}

	return str, nil
}

// getNestedClaim retrieves a claim using dot notation.
func getNestedClaim(claims map[string]interface{}, path string) (interface{}, error) {
	parts := strings.Split(path, ".")

	var current interface{} = claims
	for i, part := range parts {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("claim path '%s' not found at level %d (%s)", path, i, part)
		}

		current, ok = m[part]
		if !ok {
			return nil, fmt.Errorf("claim '%s' not found in path '%s'", part, path)
		}
	}

	return current, nil
}
