package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const minimalYAML = `
oidc:
  issuer: "https://login.microsoftonline.com/common/v2.0"
  client_id: "11111111-2222-3333-4444-555555555555"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Login.CallbackPath != "/" {
		t.Errorf("expected callback path /, got %s", cfg.Login.CallbackPath)
	}

	if cfg.Login.RedirectHost != "localhost" {
		t.Errorf("expected redirect host localhost, got %s", cfg.Login.RedirectHost)
	}

	if cfg.Login.Timeout != 300 {
		t.Errorf("expected login timeout 300, got %d", cfg.Login.Timeout)
	}

	if !cfg.Cache.DisableDuringLogin {
		t.Error("expected cache persistence to be disabled during login by default")
	}

	if cfg.Log.Level != "info" {
		t.Errorf("expected log level info, got %s", cfg.Log.Level)
	}
}

func TestLoadConfig(t *testing.T) {
	tests := []struct {
		name        string
		configYAML  string
		wantErr     bool
		errContains string
	}{
		{
			name: "valid config",
			configYAML: `
oidc:
  issuer: "https://login.microsoftonline.com/common/v2.0"
  client_id: "11111111-2222-3333-4444-555555555555"
  scopes:
    - openid
    - profile
  tenant: "contoso.onmicrosoft.com"
login:
  callback_path: "/callback"
  redirect_host: "127.0.0.1"
  timeout: 120
log:
  level: "debug"
  format: "json"
`,
			wantErr: false,
		},
		{
			name: "missing issuer",
			configYAML: `
oidc:
  client_id: "cli"
`,
			wantErr:     true,
			errContains: "issuer is required",
		},
		{
			name: "missing client_id",
			configYAML: `
oidc:
  issuer: "https://idp.example.com"
`,
			wantErr:     true,
			errContains: "client_id is required",
		},
		{
			name: "scopes missing openid",
			configYAML: `
oidc:
  issuer: "https://idp.example.com"
  client_id: "cli"
  scopes:
    - profile
`,
			wantErr:     true,
			errContains: "must include 'openid'",
		},
		{
			name: "callback path without slash",
			configYAML: minimalYAML + `
login:
  callback_path: "callback"
`,
			wantErr:     true,
			errContains: "must start with '/'",
		},
		{
			name: "non-loopback redirect host",
			configYAML: minimalYAML + `
login:
  redirect_host: "0.0.0.0"
`,
			wantErr:     true,
			errContains: "login.redirect_host must be one of",
		},
		{
			name: "invalid log level",
			configYAML: minimalYAML + `
log:
  level: "verbose"
`,
			wantErr:     true,
			errContains: "log.level must be one of",
		},
		{
			name: "invalid yaml",
			configYAML: `
this is not: valid: yaml:
  bad: [syntax
`,
			wantErr:     true,
			errContains: "failed to parse",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, tt.configYAML))

			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error containing '%s', got nil", tt.errContains)
				} else if tt.errContains != "" && !strings.Contains(err.Error(), tt.errContains) {
					t.Errorf("error = %v, want error containing %v", err, tt.errContains)
				}
			} else {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				if cfg == nil {
					t.Error("expected config, got nil")
				}
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.yaml")

	if _, err := Load(missing); err == nil {
		t.Error("expected Load to fail for a missing file")
	}

	t.Setenv("OIDC_TUNNEL_ISSUER", "https://idp.example.com")
	t.Setenv("OIDC_TUNNEL_CLIENT_ID", "cli")

	cfg, err := LoadOptional(missing)
	if err != nil {
		t.Fatalf("LoadOptional failed: %v", err)
	}
	if cfg.OIDC.Issuer != "https://idp.example.com" {
		t.Errorf("expected issuer from env, got %s", cfg.OIDC.Issuer)
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("OIDC_TUNNEL_CLIENT_SECRET", "env-secret")
	t.Setenv("OIDC_TUNNEL_TENANT", "fabrikam.onmicrosoft.com")
	t.Setenv("OIDC_TUNNEL_TIMEOUT", "90")
	t.Setenv("OIDC_TUNNEL_LOG_LEVEL", "debug")

	configYAML := minimalYAML + `
  client_secret: "yaml-secret"
login:
  timeout: 600
log:
  level: "info"
`

	cfg, err := Load(writeConfig(t, configYAML))
	if err != nil {
		t.Fatal(err)
	}

	if cfg.OIDC.ClientSecret != "env-secret" {
		t.Errorf("expected client_secret='env-secret', got '%s'", cfg.OIDC.ClientSecret)
	}

	if cfg.OIDC.Tenant != "fabrikam.onmicrosoft.com" {
		t.Errorf("expected tenant from env, got '%s'", cfg.OIDC.Tenant)
	}

	if cfg.Login.Timeout != 90 {
		t.Errorf("expected timeout 90, got %d", cfg.Login.Timeout)
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("expected log level 'debug', got '%s'", cfg.Log.Level)
	}
}

func TestEnvironmentOverrideInvalidTimeout(t *testing.T) {
	t.Setenv("OIDC_TUNNEL_TIMEOUT", "five minutes")

	_, err := Load(writeConfig(t, minimalYAML))
	if err == nil || !strings.Contains(err.Error(), "OIDC_TUNNEL_TIMEOUT") {
		t.Errorf("expected OIDC_TUNNEL_TIMEOUT error, got %v", err)
	}
}

func TestCachePathsResolved(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(writeConfig(t, minimalYAML+`
cache:
  dir: "`+dir+`"
`))
	if err != nil {
		t.Fatal(err)
	}

	want := filepath.Join(dir, "discovery.json")
	if cfg.DiscoveryCachePath() != want {
		t.Errorf("expected discovery cache %s, got %s", want, cfg.DiscoveryCachePath())
	}
	if len(cfg.Cache.Artifacts) != 1 || cfg.Cache.Artifacts[0] != want {
		t.Errorf("expected default artifact %s, got %v", want, cfg.Cache.Artifacts)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name: "login timeout too high",
			modify: func(c *Config) {
				c.Login.Timeout = 7200
			},
			wantErr: true,
			errMsg:  "should not exceed 3600",
		},
		{
			name: "login timeout zero",
			modify: func(c *Config) {
				c.Login.Timeout = 0
			},
			wantErr: true,
			errMsg:  "must be positive",
		},
		{
			name: "callback path with query",
			modify: func(c *Config) {
				c.Login.CallbackPath = "/cb?x=1"
			},
			wantErr: true,
			errMsg:  "must not contain a query",
		},
		{
			name: "callback path with space",
			modify: func(c *Config) {
				c.Login.CallbackPath = "/auth callback"
			},
			wantErr: true,
			errMsg:  "login.callback_path may only contain",
		},
		{
			name: "callback path with open brace",
			modify: func(c *Config) {
				c.Login.CallbackPath = "/cb{"
			},
			wantErr: true,
			errMsg:  "login.callback_path may only contain",
		},
		{
			name: "callback path with wildcard",
			modify: func(c *Config) {
				c.Login.CallbackPath = "/a/{x}"
			},
			wantErr: true,
			errMsg:  "login.callback_path may only contain",
		},
		{
			name: "callback path with percent escape",
			modify: func(c *Config) {
				c.Login.CallbackPath = "/a%20b"
			},
			wantErr: true,
			errMsg:  "login.callback_path may only contain",
		},
		{
			name:    "nested callback path",
			modify:  func(c *Config) { c.Login.CallbackPath = "/oauth2/callback-v1.0_x~" },
			wantErr: false,
		},
		{
			name: "lock timeout zero",
			modify: func(c *Config) {
				c.Cache.LockTimeout = 0
			},
			wantErr: true,
			errMsg:  "cache.lock_timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.OIDC.Issuer = "https://idp.example.com"
			cfg.OIDC.ClientID = "cli"

			tt.modify(cfg)

			err := cfg.Validate()
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error containing '%s', got nil", tt.errMsg)
				} else if !strings.Contains(err.Error(), tt.errMsg) {
					t.Errorf("error = %v, want error containing %v", err, tt.errMsg)
				}
			} else {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
			}
		})
	}
}

func TestRedact(t *testing.T) {
	cfg := &Config{
		OIDC: OIDCConfig{
			ClientSecret: "super-secret",
			Scopes:       []string{"openid"},
		},
	}

	redacted := cfg.Redact()

	if redacted.OIDC.ClientSecret != "[REDACTED]" {
		t.Errorf("expected [REDACTED], got %s", redacted.OIDC.ClientSecret)
	}

	// Original should be unchanged
	if cfg.OIDC.ClientSecret != "super-secret" {
		t.Errorf("original was modified")
	}

	redacted.OIDC.Scopes[0] = "changed"
	if cfg.OIDC.Scopes[0] != "openid" {
		t.Errorf("redacted copy shares the scopes slice")
	}
}

func TestSetupLogging(t *testing.T) {
	old := slog.Default()
	t.Cleanup(func() {
		slog.SetDefault(old)
	})

	SetupLogging(&LogConfig{Level: "debug", Format: "json"})
	if !slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		t.Error("expected debug logs to be enabled")
	}

	SetupLogging(&LogConfig{Level: "error", Format: "text"})
	if slog.Default().Enabled(context.Background(), slog.LevelInfo) {
		t.Error("expected info logs to be disabled at error level")
	}
	if !slog.Default().Enabled(context.Background(), slog.LevelError) {
		t.Error("expected error logs to be enabled")
	}
}
