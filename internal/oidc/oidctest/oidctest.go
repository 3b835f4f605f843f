// Package oidctest provides an in-process OpenID provider for tests.
//
// The server publishes a discovery document and a JWKS, and its token
// endpoint redeems a single configured authorization code for an RS256
// signed ID token.
package oidctest

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"maps"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	jose "github.com/go-jose/go-jose/v4"
)

const keyID = "oidctest-key"

// Server is a minimal OpenID provider.
type Server struct {
	*httptest.Server

	// Issuer is the issuer URL (the server's base URL)
	Issuer string

	// ClientID is the audience of issued ID tokens
	ClientID string

	key *rsa.PrivateKey

	mu            sync.Mutex
	validCode     string
	claims        map[string]interface{}
	discoveryHits int
	tokenRequests []url.Values
}

// NewServer starts a provider that redeems code "test-code" for clientID.
func NewServer(t testing.TB, clientID string) *Server {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate signing key: %v", err)
	}

	s := &Server{
		ClientID:  clientID,
		key:       key,
		validCode: "test-code",
		claims: map[string]interface{}{
			"sub":                "user-123",
			"preferred_username": "alice@example.com",
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", s.handleDiscovery)
	mux.HandleFunc("/keys", s.handleKeys)
	mux.HandleFunc("/token", s.handleToken)

	s.Server = httptest.NewServer(mux)
	s.Issuer = s.URL
	t.Cleanup(s.Close)

	return s
}

// SetValidCode changes the only code the token endpoint accepts.
func (s *Server) SetValidCode(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.validCode = code
}

// SetClaims merges extra claims into issued ID tokens.
func (s *Server) SetClaims(claims map[string]interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	maps.Copy(s.claims, claims)
}

// DiscoveryHits returns how many times the discovery document was fetched.
func (s *Server) DiscoveryHits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.discoveryHits
}

// TokenRequests returns the forms posted to the token endpoint.
func (s *Server) TokenRequests() []url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]url.Values(nil), s.tokenRequests...)
}

func (s *Server) handleDiscovery(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	s.discoveryHits++
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"issuer":                                s.Issuer,
		"authorization_endpoint":                s.Issuer + "/authorize",
		"token_endpoint":                        s.Issuer + "/token",
		"jwks_uri":                              s.Issuer + "/keys",
		"id_token_signing_alg_values_supported": []string{"RS256"},
		"response_types_supported":              []string{"code"},
	})
}

func (s *Server) handleKeys(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, jose.JSONWebKeySet{
		Keys: []jose.JSONWebKey{{
			Key:       &s.key.PublicKey,
			KeyID:     keyID,
			Algorithm: string(jose.RS256),
			Use:       "sig",
		}},
	})
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request"})
		return
	}

	s.mu.Lock()
	s.tokenRequests = append(s.tokenRequests, r.PostForm)
	validCode := s.validCode
	claims := maps.Clone(s.claims)
	s.mu.Unlock()

	if r.PostForm.Get("grant_type") != "authorization_code" || r.PostForm.Get("code") != validCode {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":             "invalid_grant",
			"error_description": "authorization code is invalid or expired",
		})
		return
	}

	now := time.Now()
	claims["iss"] = s.Issuer
	claims["aud"] = s.ClientID
	claims["iat"] = now.Unix()
	claims["exp"] = now.Add(time.Hour).Unix()

	idToken, err := s.SignIDToken(claims)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "server_error"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"access_token":  "access-" + validCode,
		"refresh_token": "refresh-" + validCode,
		"token_type":    "Bearer",
		"expires_in":    3600,
		"id_token":      idToken,
	})
}

// SignIDToken signs claims with the server's key.
func (s *Server) SignIDToken(claims map[string]interface{}) (string, error) {
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.RS256, Key: jose.JSONWebKey{Key: s.key, KeyID: keyID}},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return "", err
	}

	payload, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}

	jws, err := signer.Sign(payload)
	if err != nil {
		return "", err
	}
	return jws.CompactSerialize()
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
