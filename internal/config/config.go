package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// appName is used for the default config and cache directories
const appName = "oidc-tunnel-login"

// discoveryCacheFile is the OIDC client's on-disk discovery cache
const discoveryCacheFile = "discovery.json"

// callbackPathRe limits the callback path to unreserved URL characters
var callbackPathRe = regexp.MustCompile(`^/[A-Za-z0-9._~/-]*$`)

// Config represents the complete application configuration
type Config struct {
	OIDC  OIDCConfig  `yaml:"oidc"`
	Login LoginConfig `yaml:"login"`
	Cache CacheConfig `yaml:"cache"`
	Log   LogConfig   `yaml:"log"`
}

// OIDCConfig defines the identity provider client settings
type OIDCConfig struct {
	Issuer           string   `yaml:"issuer"`            // Issuer URL (may contain {tenant} or /common/)
	ClientID         string   `yaml:"client_id"`         // Public client ID
	ClientSecret     string   `yaml:"client_secret"`     // Empty for public clients (PKCE only)
	Scopes           []string `yaml:"scopes"`            // Requested scopes, must include openid
	Tenant           string   `yaml:"tenant"`            // Default tenant, overridden by --tenant
	UsernameClaim    string   `yaml:"username_claim"`    // Claim shown after login
	Prompt           string   `yaml:"prompt"`            // Optional prompt parameter (e.g. select_account)
	DiscoveryTimeout int      `yaml:"discovery_timeout"` // Discovery timeout in seconds
}

// LoginConfig defines the redirect capture behavior
type LoginConfig struct {
	CallbackPath string `yaml:"callback_path"` // Path the provider redirects to
	RedirectHost string `yaml:"redirect_host"` // Host used in the redirect URI (localhost or 127.0.0.1)
	Timeout      int    `yaml:"timeout"`       // Callback wait timeout in seconds
	OpenBrowser  bool   `yaml:"open_browser"`  // Try to launch a local browser as well
}

// CacheConfig defines the cache hygiene step
type CacheConfig struct {
	Dir                string   `yaml:"dir"`                  // Cache directory
	Artifacts          []string `yaml:"artifacts"`            // Files removed before each attempt
	DisableDuringLogin bool     `yaml:"disable_during_login"` // Disable cache persistence for the attempt
	LockTimeout        int      `yaml:"lock_timeout"`         // Artifact lock timeout in seconds
}

// LogConfig defines logging settings
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// DefaultPath returns the default config file location
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".", appName+".yaml")
	}
	return filepath.Join(dir, appName, "config.yaml")
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	// Read file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return parse(data)
}

// LoadOptional behaves like Load but falls back to defaults (plus environment
// overrides) when the file does not exist.
func LoadOptional(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return parse(nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return parse(data)
}

func parse(data []byte) (*Config, error) {
	// Parse YAML
	cfg := DefaultConfig()
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Apply environment variable overrides
	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	cfg.resolveCachePaths()

	// Validate
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		OIDC: OIDCConfig{
			Scopes:           []string{"openid", "profile", "offline_access"},
			UsernameClaim:    "preferred_username",
			DiscoveryTimeout: 30,
		},
		Login: LoginConfig{
			CallbackPath: "/",
			RedirectHost: "localhost",
			Timeout:      300, // 5 minutes
			OpenBrowser:  false,
		},
		Cache: CacheConfig{
			DisableDuringLogin: true,
			LockTimeout:        5,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// applyEnvOverrides applies environment variable overrides
func (c *Config) applyEnvOverrides() error {
	// OIDC overrides
	if v := os.Getenv("OIDC_TUNNEL_ISSUER"); v != "" {
		c.OIDC.Issuer = v
	}
	if v := os.Getenv("OIDC_TUNNEL_CLIENT_ID"); v != "" {
		c.OIDC.ClientID = v
	}
	if v := os.Getenv("OIDC_TUNNEL_CLIENT_SECRET"); v != "" {
		c.OIDC.ClientSecret = v
	}
	if v := os.Getenv("OIDC_TUNNEL_TENANT"); v != "" {
		c.OIDC.Tenant = v
	}

	// Login overrides
	if v := os.Getenv("OIDC_TUNNEL_CALLBACK_PATH"); v != "" {
		c.Login.CallbackPath = v
	}
	if v := os.Getenv("OIDC_TUNNEL_TIMEOUT"); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("OIDC_TUNNEL_TIMEOUT must be an integer number of seconds: %w", err)
		}
		c.Login.Timeout = seconds
	}

	// Log overrides
	if v := os.Getenv("OIDC_TUNNEL_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("OIDC_TUNNEL_LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}

	return nil
}

// resolveCachePaths fills in the cache directory and artifact list when unset
func (c *Config) resolveCachePaths() {
	if c.Cache.Dir == "" {
		if dir, err := os.UserCacheDir(); err == nil {
			c.Cache.Dir = filepath.Join(dir, appName)
		} else {
			c.Cache.Dir = filepath.Join(os.TempDir(), appName)
		}
	}
	if len(c.Cache.Artifacts) == 0 {
		c.Cache.Artifacts = []string{c.DiscoveryCachePath()}
	}
}

// DiscoveryCachePath returns the path of the OIDC discovery cache file
func (c *Config) DiscoveryCachePath() string {
	return filepath.Join(c.Cache.Dir, discoveryCacheFile)
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	// Validate OIDC config
	if c.OIDC.Issuer == "" {
		return fmt.Errorf("oidc.issuer is required")
	}
	if !strings.HasPrefix(c.OIDC.Issuer, "http://") && !strings.HasPrefix(c.OIDC.Issuer, "https://") {
		return fmt.Errorf("oidc.issuer must be a valid HTTP(S) URL")
	}

	if c.OIDC.ClientID == "" {
		return fmt.Errorf("oidc.client_id is required")
	}

	hasOpenID := false
	for _, scope := range c.OIDC.Scopes {
		if scope == "openid" {
			hasOpenID = true
			break
		}
	}
	if !hasOpenID {
		return fmt.Errorf("oidc.scopes must include 'openid'")
	}

	if c.OIDC.DiscoveryTimeout <= 0 {
		return fmt.Errorf("oidc.discovery_timeout must be positive")
	}

	// Validate login config
	if !strings.HasPrefix(c.Login.CallbackPath, "/") {
		return fmt.Errorf("login.callback_path must start with '/'")
	}
	if strings.ContainsAny(c.Login.CallbackPath, "?#") {
		return fmt.Errorf("login.callback_path must not contain a query or fragment")
	}
	if !callbackPathRe.MatchString(c.Login.CallbackPath) {
		return fmt.Errorf("login.callback_path may only contain letters, digits, '-', '.', '_', '~' and '/'")
	}

	switch c.Login.RedirectHost {
	case "localhost", "127.0.0.1":
	default:
		return fmt.Errorf("login.redirect_host must be one of: localhost, 127.0.0.1")
	}

	if c.Login.Timeout <= 0 {
		return fmt.Errorf("login.timeout must be positive")
	}
	if c.Login.Timeout > 3600 {
		return fmt.Errorf("login.timeout should not exceed 3600 seconds (1 hour)")
	}

	// Validate cache config
	if c.Cache.LockTimeout <= 0 {
		return fmt.Errorf("cache.lock_timeout must be positive")
	}

	// Validate log config
	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[c.Log.Level] {
		return fmt.Errorf("log.level must be one of: debug, info, warn, error")
	}

	validFormats := map[string]bool{
		"json": true,
		"text": true,
	}
	if !validFormats[c.Log.Format] {
		return fmt.Errorf("log.format must be one of: json, text")
	}

	return nil
}

// SetupLogging configures the global slog logger based on the LogConfig.
func SetupLogging(cfg *LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	default:
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(handler))
}

// Redact returns a deep-enough copy of the config with secrets redacted for safe logging
func (c *Config) Redact() *Config {
	redacted := *c
	// Deep copy slices to avoid sharing underlying arrays with the original
	if c.OIDC.Scopes != nil {
		redacted.OIDC.Scopes = make([]string, len(c.OIDC.Scopes))
		copy(redacted.OIDC.Scopes, c.OIDC.Scopes)
	}
	if c.Cache.Artifacts != nil {
		redacted.Cache.Artifacts = make([]string, len(c.Cache.Artifacts))
		copy(redacted.Cache.Artifacts, c.Cache.Artifacts)
	}
	if redacted.OIDC.ClientSecret != "" {
		redacted.OIDC.ClientSecret = "[REDACTED]"
	}
	return &redacted
}
