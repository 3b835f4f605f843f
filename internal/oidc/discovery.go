package oidc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/coreos/go-oidc/v3/oidc"

	"github.com/al-bashkir/oidc-tunnel-login/internal/cache"
)

// discoveryCacheTTL is how long a cached discovery document is trusted
const discoveryCacheTTL = 24 * time.Hour

// entraTenantPlaceholder is the issuer template Entra publishes for multi-tenant endpoints
const entraTenantPlaceholder = "{tenantid}"

// discoveryDocument holds the provider metadata needed to rebuild a provider offline.
type discoveryDocument struct {
	Issuer        string   `json:"issuer"`
	AuthURL       string   `json:"authorization_endpoint"`
	TokenURL      string   `json:"token_endpoint"`
	DeviceAuthURL string   `json:"device_authorization_endpoint,omitempty"`
	UserInfoURL   string   `json:"userinfo_endpoint,omitempty"`
	JWKSURL       string   `json:"jwks_uri"`
	Algorithms    []string `json:"id_token_signing_alg_values_supported,omitempty"`
}

type discoveryCacheEntry struct {
	// RequestedIssuer is the issuer URL discovery was run against
	RequestedIssuer string            `json:"requested_issuer"`
	FetchedAt       time.Time         `json:"fetched_at"`
	Document        discoveryDocument `json:"document"`
}

func (d *discoveryDocument) providerConfig() *oidc.ProviderConfig {
	return &oidc.ProviderConfig{
		IssuerURL:     d.Issuer,
		AuthURL:       d.AuthURL,
		TokenURL:      d.TokenURL,
		DeviceAuthURL: d.DeviceAuthURL,
		UserInfoURL:   d.UserInfoURL,
		JWKSURL:       d.JWKSURL,
		Algorithms:    d.Algorithms,
	}
}

func (p *Provider) discoveryTimeout() time.Duration {
	if p.cfg.DiscoveryTimeout <= 0 {
		return 30 * time.Second
	}
	return time.Duration(p.cfg.DiscoveryTimeout) * time.Second
}

// Discover resolves the provider metadata for the current tenant.
func (p *Provider) Discover(ctx context.Context) error {
	_, err := p.discover(ctx)
	return err
}

// discover returns the provider for the current issuer. Results are kept in
// memory for the process and, when cache persistence is enabled, on disk.
func (p *Provider) discover(ctx context.Context) (*oidc.Provider, error) {
	issuer := p.Issuer()
	opts := p.Options()
	persist := opts.CachePersistenceEnabled && p.cachePath != ""

	p.mu.Lock()
	prov, ok := p.discovered[issuer]
	p.mu.Unlock()
	if ok {
		return prov, nil
	}

	ctx = oidc.ClientContext(ctx, p.httpClient)
	if template, multi := multiTenantIssuer(issuer); multi {
		ctx = oidc.InsecureIssuerURLContext(ctx, template)
	}

	if persist {
		if doc, ok := p.readDiscoveryCache(ctx, issuer); ok {
			slog.Debug("Using cached OIDC discovery document", "issuer", issuer, "path", p.cachePath)
			prov = doc.providerConfig().NewProvider(ctx)
			p.remember(issuer, prov)
			return prov, nil
		}
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = 250 * time.Millisecond

	prov, err := backoff.Retry(ctx, func() (*oidc.Provider, error) {
		discoveryCtx, cancel := context.WithTimeout(ctx, p.discoveryTimeout())
		defer cancel()
		return oidc.NewProvider(discoveryCtx, issuer)
	},
		backoff.WithBackOff(expBackoff),
		backoff.WithMaxTries(p.discoveryTries),
		backoff.WithNotify(func(err error, d time.Duration) {
			slog.Warn("OIDC discovery failed, retrying", "issuer", issuer, "retry_in", d, "error", err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider %s: %w", issuer, err)
	}

	slog.Debug("OIDC provider discovered", "issuer", issuer)

	if persist {
		if err := p.writeDiscoveryCache(ctx, issuer, prov); err != nil {
			slog.Warn("Failed to write OIDC discovery cache", "path", p.cachePath, "error", err)
		}
	}

	p.remember(issuer, prov)
	return prov, nil
}

func (p *Provider) remember(issuer string, prov *oidc.Provider) {
	p.mu.Lock()
	p.discovered[issuer] = prov
	p.mu.Unlock()
}

// readDiscoveryCache returns the cached document for issuer if it is fresh.
func (p *Provider) readDiscoveryCache(ctx context.Context, issuer string) (*discoveryDocument, bool) {
	var entry discoveryCacheEntry

	err := cache.WithLock(ctx, p.cachePath, cache.DefaultLockTimeout, func() error {
		data, err := os.ReadFile(p.cachePath)
		if err != nil {
			return err
		}
		return json.Unmarshal(data, &entry)
	})
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			slog.Debug("Ignoring unreadable OIDC discovery cache", "path", p.cachePath, "error", err)
		}
		return nil, false
	}

	if entry.RequestedIssuer != issuer || time.Since(entry.FetchedAt) > discoveryCacheTTL {
		return nil, false
	}
	if entry.Document.AuthURL == "" || entry.Document.TokenURL == "" || entry.Document.JWKSURL == "" {
		return nil, false
	}

	return &entry.Document, true
}

// writeDiscoveryCache stores the provider metadata atomically with mode 0600.
func (p *Provider) writeDiscoveryCache(ctx context.Context, issuer string, prov *oidc.Provider) error {
	entry := discoveryCacheEntry{
		RequestedIssuer: issuer,
		FetchedAt:       time.Now().UTC(),
	}
	if err := prov.Claims(&entry.Document); err != nil {
		return fmt.Errorf("failed to read discovery document: %w", err)
	}

	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode discovery cache: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(p.cachePath), 0700); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	return cache.WithLock(ctx, p.cachePath, cache.DefaultLockTimeout, func() error {
		tmp := p.cachePath + ".tmp"
		if err := os.WriteFile(tmp, data, 0600); err != nil {
			return fmt.Errorf("failed to write discovery cache: %w", err)
		}
		if err := os.Rename(tmp, p.cachePath); err != nil {
			_ = os.Remove(tmp)
			return fmt.Errorf("failed to replace discovery cache: %w", err)
		}
		return nil
	})
}

// multiTenantIssuer reports whether issuer is an Entra multi-tenant endpoint
// and returns the issuer template its discovery document and tokens carry.
func multiTenantIssuer(issuer string) (string, bool) {
	if !strings.Contains(issuer, "login.microsoftonline.com") {
		return "", false
	}
	trimmed := strings.TrimSuffix(issuer, "/")
	for _, segment := range []string{"/common", "/organizations", "/consumers"} {
		idx := strings.Index(trimmed, segment)
		if idx == -1 {
			continue
		}
		suffix := trimmed[idx+len(segment):]
		if suffix != "" && suffix[0] != '/' {
			continue
		}
		return trimmed[:idx] + "/" + entraTenantPlaceholder + suffix, true
	}
	return "", false
}
