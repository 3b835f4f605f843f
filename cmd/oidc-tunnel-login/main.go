package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/al-bashkir/oidc-tunnel-login/internal/autherr"
	"github.com/al-bashkir/oidc-tunnel-login/internal/config"
	"github.com/al-bashkir/oidc-tunnel-login/internal/login"
	"github.com/al-bashkir/oidc-tunnel-login/internal/oidc"
	"github.com/al-bashkir/oidc-tunnel-login/internal/present"
	"github.com/al-bashkir/oidc-tunnel-login/internal/tokenfile"
)

// Version information (set via ldflags at build time)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// Global flags
var (
	configFile string
	logLevel   string
	logFormat  string
)

// Login flags
var (
	loginPort         int
	loginTenant       string
	loginTimeout      time.Duration
	loginCallbackPath string
	loginOpenBrowser  bool
	loginTokenFile    string
)

// Exit codes not tied to a login failure kind
const (
	ExitSuccess = 0
	ExitError   = 1
	ExitConfig  = 3
)

var rootCmd = &cobra.Command{
	Use:   "oidc-tunnel-login",
	Short: "OpenID Connect login for headless hosts over an SSH tunnel",
	Long: `Interactive OpenID Connect sign-in for a host without a browser.

The login command listens on a fixed loopback port for the provider's
redirect and prints the authorization URL. Forward that port from the
machine running the browser, for example:

  ssh -L 8400:127.0.0.1:8400 user@this-host

then open the URL there. The redirect reaches this host through the
tunnel and the authorization code is exchanged for tokens locally.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in through a forwarded callback port",
	Long: `Run one sign-in attempt on a fixed callback port.

The port must be between 1024 and 65535 and free on 127.0.0.1. If it is
taken the command fails immediately and suggests another port; it never
switches ports on its own because the SSH tunnel points at this one.

Exit codes:
  0   = Signed in
  1   = Unexpected error
  3   = Configuration error
  10  = Port out of range
  11  = Port unavailable (in use or TIME_WAIT)
  12  = Listener could not be started
  13  = No callback before the timeout
  14  = Callback state did not match (possible forged redirect)
  15  = Sign-in denied
  16  = Identity provider error
  17  = Code exchange failed
  130 = Cancelled`,
	Args: cobra.NoArgs,
	RunE: runLogin,
}

// overrideExitCode is set by subcommands (login, check-config) so main() can
// call os.Exit() after cobra finishes.  This avoids calling os.Exit() inside
// RunE which would bypass deferred functions.  -1 means "use default".
var overrideExitCode = -1

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Display version information",
	Long:  `Display version, commit hash, and build date.`,
	Run:   runVersion,
}

var checkConfigCmd = &cobra.Command{
	Use:   "check-config",
	Short: "Validate configuration file",
	Long: `Load and validate the configuration without signing in.

Checks for:
  - Valid YAML syntax
  - Required fields present (issuer, client ID)
  - Valid callback path, timeout and log settings

Exit codes:
  0 = Configuration is valid
  3 = Configuration error`,
	RunE: runCheckConfig,
}

func init() {
	// Global flags (available to all commands)
	rootCmd.PersistentFlags().StringVar(&configFile, "config", config.DefaultPath(),
		"Path to configuration file (optional unless set explicitly)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Log level (debug, info, warn, error) - overrides config file")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "",
		"Log format (json, text) - overrides config file")

	loginCmd.Flags().IntVarP(&loginPort, "port", "p", 0,
		"Fixed callback port forwarded over SSH (1024-65535)")
	loginCmd.Flags().StringVarP(&loginTenant, "tenant", "t", "",
		"Tenant ID or domain - overrides config file")
	loginCmd.Flags().DurationVar(&loginTimeout, "timeout", 0,
		"How long to wait for the callback (default from config, 5m)")
	loginCmd.Flags().StringVar(&loginCallbackPath, "callback-path", "",
		"Path of the redirect URI (default from config, /)")
	loginCmd.Flags().BoolVar(&loginOpenBrowser, "open-browser", false,
		"Also try to open the URL in a browser on this host")
	loginCmd.Flags().StringVar(&loginTokenFile, "token-file", "",
		"Write the obtained tokens as JSON to this file (0600)")
	_ = loginCmd.MarkFlagRequired("port")

	// Add subcommands
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(checkConfigCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitError)
	}

	// If a subcommand set a specific exit code, use it.
	// This is done outside RunE so deferred functions run properly.
	if overrideExitCode >= 0 {
		os.Exit(overrideExitCode)
	}
}

// loadConfig reads the config file (optional at the default location), then
// applies the global flag overrides and validates the result.
func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if rootCmd.PersistentFlags().Changed("config") {
		cfg, err = config.Load(configFile)
	} else {
		cfg, err = config.LoadOptional(configFile)
	}
	if err != nil {
		return nil, err
	}

	// Override log settings from flags if provided
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}

	return cfg, nil
}

// applyLoginFlags copies explicitly set login flags over the config.
func applyLoginFlags(cmd *cobra.Command, cfg *config.Config) error {
	if cmd.Flags().Changed("timeout") {
		cfg.Login.Timeout = int(loginTimeout.Round(time.Second) / time.Second)
	}
	if cmd.Flags().Changed("callback-path") {
		cfg.Login.CallbackPath = loginCallbackPath
	}
	if cmd.Flags().Changed("open-browser") {
		cfg.Login.OpenBrowser = loginOpenBrowser
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	return nil
}

// runLogin performs one sign-in attempt
func runLogin(cmd *cobra.Command, _ []string) error {
	stderr := cmd.ErrOrStderr()

	cfg, err := loadConfig()
	if err == nil {
		err = applyLoginFlags(cmd, cfg)
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		overrideExitCode = ExitConfig
		return nil // exit code handled via overrideExitCode
	}

	// Initialize structured logging based on config
	config.SetupLogging(&cfg.Log)

	slog.Debug("starting login",
		"version", version,
		"config", configFile,
		"settings", cfg.Redact(),
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	provider := oidc.NewProvider(&cfg.OIDC, oidc.WithDiscoveryCache(cfg.DiscoveryCachePath()))
	presenter := present.New(stderr)
	coordinator := login.New(cfg, provider, presenter)

	out, err := coordinator.Run(ctx, login.Request{Port: loginPort, Tenant: loginTenant})
	if out != nil {
		for _, w := range out.Warnings {
			printProblem(stderr, "Warning", w)
		}
	}
	if err != nil {
		printProblem(stderr, "Error", err)
		overrideExitCode = autherr.ExitCode(err)
		return nil // exit code handled via overrideExitCode
	}

	if loginTokenFile != "" {
		if err := tokenfile.Write(loginTokenFile, out.Tokens); err != nil {
			return err
		}
	}

	return presenter.Success(out.Tokens.Username, out.Tokens.Expiry, loginTokenFile)
}

// printProblem prints "<label>: <message>" and the hint when there is one.
func printProblem(w io.Writer, label string, err error) {
	fmt.Fprintf(w, "%s: %v\n", label, err)
	if hint := autherr.HintOf(err); hint != "" {
		fmt.Fprintf(w, "Hint: %s\n", hint)
	}
}

// runVersion displays version information
func runVersion(cmd *cobra.Command, _ []string) {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "oidc-tunnel-login version %s\n", version)
	fmt.Fprintf(w, "  Commit:     %s\n", commit)
	fmt.Fprintf(w, "  Build date: %s\n", buildDate)
	fmt.Fprintf(w, "  Go version: %s\n", getGoVersion())
}

// runCheckConfig validates the configuration
func runCheckConfig(cmd *cobra.Command, _ []string) error {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Checking configuration: %s\n\n", configFile)

	// Load configuration
	cfg, err := loadConfig()
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "❌ Configuration validation failed:\n")
		fmt.Fprintf(cmd.ErrOrStderr(), "   %v\n", err)
		overrideExitCode = ExitConfig
		return nil // exit code handled via overrideExitCode
	}

	// Print configuration summary (with secrets redacted)
	fmt.Fprintln(w, "✅ Configuration is valid")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Configuration summary:")
	fmt.Fprintf(w, "  OIDC Issuer:     %s\n", cfg.OIDC.Issuer)
	fmt.Fprintf(w, "  Client ID:       %s\n", cfg.OIDC.ClientID)
	fmt.Fprintf(w, "  Tenant:          %s\n", valueOrNone(cfg.OIDC.Tenant))
	fmt.Fprintf(w, "  Scopes:          %v\n", cfg.OIDC.Scopes)
	fmt.Fprintf(w, "  Redirect URI:    http://%s:<port>%s\n", cfg.Login.RedirectHost, cfg.Login.CallbackPath)
	fmt.Fprintf(w, "  Timeout:         %d seconds\n", cfg.Login.Timeout)
	fmt.Fprintf(w, "  Cache Artifacts: %v\n", cfg.Cache.Artifacts)
	fmt.Fprintf(w, "  Log Level:       %s\n", cfg.Log.Level)
	fmt.Fprintf(w, "  Log Format:      %s\n", cfg.Log.Format)

	if cfg.OIDC.ClientSecret != "" {
		fmt.Fprintln(w, "\n  Client Secret:   [SET]")
	} else {
		fmt.Fprintln(w, "\n  Client Secret:   [NOT SET] (using public client with PKCE)")
	}

	fmt.Fprintln(w, "\n✅ Ready to sign in")

	return nil
}

func valueOrNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

// getGoVersion returns the Go version used to build the binary
func getGoVersion() string {
	return runtime.Version()
}
