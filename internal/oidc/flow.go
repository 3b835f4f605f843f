package oidc

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// AuthFlowData contains the data needed to initiate an OIDC authorization flow.
type AuthFlowData struct {
	// State is the OIDC state parameter for CSRF protection
	State string

	// CodeVerifier is the PKCE code verifier (must be kept for token exchange)
	CodeVerifier string

	// RedirectURI is the redirect URI embedded in AuthURL
	RedirectURI string

	// AuthURL is the complete authorization URL to open in a browser
	AuthURL string
}

// TokenData contains the tokens and claims returned from the OIDC provider.
type TokenData struct {
	// AccessToken is the OAuth2 access token
	AccessToken string `json:"-"`

	// RefreshToken is the OAuth2 refresh token (if available)
	RefreshToken string `json:"-"`

	// IDToken is the raw OIDC ID token (JWT); tagged json:"-" because it
	// encodes identity claims in a base64-decodable payload.
	IDToken string `json:"-"`

	// TokenType is the access token type (usually Bearer)
	TokenType string

	// Username is the value of the configured username claim
	Username string

	// Claims are the parsed claims from the ID token
	Claims map[string]interface{}

	// Expiry is when the access token expires
	Expiry time.Time
}

// oauth2Config builds the OAuth2 configuration for one redirect URI.
func (p *Provider) oauth2Config(prov *oidc.Provider, redirectURI string) *oauth2.Config {
	endpoint := prov.Endpoint()
	if p.cfg.ClientSecret == "" {
		endpoint.AuthStyle = oauth2.AuthStyleInParams
	}

	return &oauth2.Config{
		ClientID:     p.cfg.ClientID,
		ClientSecret: p.cfg.ClientSecret,
		RedirectURL:  redirectURI,
		Endpoint:     endpoint,
		Scopes:       p.cfg.Scopes,
	}
}

// StartAuthFlow initiates an OIDC authorization flow with PKCE.
// The caller supplies the state (the attempt's correlation token) and the
// redirect URI, which must use the configured redirect port.
func (p *Provider) StartAuthFlow(ctx context.Context, state, redirectURI string) (*AuthFlowData, error) {
	if state == "" {
		return nil, fmt.Errorf("state must not be empty")
	}
	if err := p.checkRedirectURI(redirectURI); err != nil {
		return nil, err
	}

	prov, err := p.discover(ctx)
	if err != nil {
		return nil, err
	}

	// Generate PKCE verifier and challenge
	verifier, err := generateCodeVerifier()
	if err != nil {
		return nil, fmt.Errorf("failed to generate code verifier: %w", err)
	}

	challenge := generateCodeChallenge(verifier)

	authOpts := []oauth2.AuthCodeOption{
		oauth2.SetAuthURLParam("code_challenge", challenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	}
	if p.cfg.Prompt != "" {
		authOpts = append(authOpts, oauth2.SetAuthURLParam("prompt", p.cfg.Prompt))
	}

	// Construct authorization URL with PKCE parameters
	authURL := p.oauth2Config(prov, redirectURI).AuthCodeURL(state, authOpts...)

	return &AuthFlowData{
		State:        state,
		CodeVerifier: verifier,
		RedirectURI:  redirectURI,
		AuthURL:      authURL,
	}, nil
}

// ExchangeCode exchanges an authorization code for tokens.
// redirectURI must be the exact URI used to obtain the code.
// The ID token is verified (signature, issuer, audience, expiry) and the
// tenant is checked before returning.
func (p *Provider) ExchangeCode(ctx context.Context, code, codeVerifier, redirectURI string) (*TokenData, error) {
	prov, err := p.discover(ctx)
	if err != nil {
		return nil, err
	}

	ctx = oidc.ClientContext(ctx, p.httpClient)

	// Exchange authorization code for tokens
	token, err := p.oauth2Config(prov, redirectURI).Exchange(ctx, code,
		oauth2.SetAuthURLParam("code_verifier", codeVerifier),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code: %w", err)
	}

	// Extract ID token
	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		return nil, fmt.Errorf("no id_token in token response")
	}

	issuerTemplate, multiTenant := multiTenantIssuer(p.Issuer())

	// Verify ID token (signature, audience, expiry; issuer unless multi-tenant)
	verifier := prov.Verifier(&oidc.Config{
		ClientID:        p.cfg.ClientID,
		SkipIssuerCheck: multiTenant,
	})
	idToken, err := verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("failed to verify ID token: %w", err)
	}

	// Parse claims from ID token
	var claims map[string]interface{}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to parse claims: %w", err)
	}

	if multiTenant {
		if err := checkTenantIssuer(issuerTemplate, idToken.Issuer, claims); err != nil {
			return nil, err
		}
	}

	validator := NewValidator(&p.cfg, p.Options().Tenant)
	if err := validator.ValidateToken(claims); err != nil {
		return nil, err
	}

	return &TokenData{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		IDToken:      rawIDToken,
		TokenType:    token.Type(),
		Username:     validator.Username(claims),
		Claims:       claims,
		Expiry:       token.Expiry,
	}, nil
}

// checkTenantIssuer verifies a multi-tenant token's issuer against the
// template with the token's own tid substituted.
func checkTenantIssuer(template, issuer string, claims map[string]interface{}) error {
	tid, err := getClaimString(claims, "tid")
	if err != nil {
		return fmt.Errorf("multi-tenant ID token has no tenant: %w", err)
	}
	want := strings.ReplaceAll(template, entraTenantPlaceholder, tid)
	if issuer != want {
		return fmt.Errorf("ID token issuer %q does not match tenant issuer %q", issuer, want)
	}
	return nil
}

// generateCodeVerifier creates a cryptographically random PKCE code verifier.
// The verifier is 32 random bytes encoded as base64url (43 characters).
// Per RFC 7636, the verifier must be 43-128 characters.
func generateCodeVerifier() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// generateCodeChallenge creates a PKCE code challenge from the verifier.
// It uses the S256 method: BASE64URL(SHA256(ASCII(verifier)))
func generateCodeChallenge(verifier string) string {
	h := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(h[:])
}
