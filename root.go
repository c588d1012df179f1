package main

import (
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/harbordocs/docdrive/internal/config"
	"github.com/harbordocs/docdrive/internal/credential"
	"github.com/harbordocs/docdrive/internal/dropbox"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagListenAddr string
	flagJSON       bool
	flagVerbose    bool
	flagQuiet      bool
)

// resolvedCfg holds the effective configuration loaded by PersistentPreRunE.
// It is available to all subcommands after the root pre-run phase completes.
var resolvedCfg *config.Config

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "docdrive",
		Short:   "Document store credential and sync service",
		Long:    "Credential lifecycle manager and change-sync engine for a cloud-storage-backed document store.",
		Version: version,
		// Silence Cobra's default error/usage printing; we handle it ourselves.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := config.Resolve(config.ReadEnvOverrides(), flagConfigPath, flagListenAddr)
			if err != nil {
				return err
			}

			resolvedCfg = cfg

			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().StringVar(&flagListenAddr, "listen", "", "webhook listener address")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "log in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newSyncCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newProvisionCmd())

	return cmd
}

// buildLogger creates an slog.Logger configured by the resolved config and
// CLI flags. Config-file log level provides the baseline; --verbose and
// --quiet override it because CLI flags always win. Non-TTY output defaults
// to JSON for log shippers.
func buildLogger() *slog.Logger {
	level := slog.LevelInfo

	if resolvedCfg != nil {
		switch resolvedCfg.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
	}

	if flagVerbose {
		level = slog.LevelDebug
	}

	if flagQuiet {
		level = slog.LevelWarn
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if flagJSON || !isatty.IsTerminal(os.Stderr.Fd()) {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}

// defaultHTTPClient returns an HTTP client with the fixed provider timeout.
// Prevents hung provider calls from blocking workers indefinitely.
func defaultHTTPClient() *http.Client {
	return &http.Client{Timeout: dropbox.RequestTimeout}
}

// renewalInterval is the background refresh cadence.
const renewalInterval = config.DefaultRenewalInterval

// buildManager constructs the credential manager from the resolved config
// and loads the record from the ordered source chain.
func buildManager(logger *slog.Logger) (*credential.Manager, error) {
	httpClient := defaultHTTPClient()

	oauth := dropbox.NewOAuthClient(
		resolvedCfg.Provider.TokenURL,
		os.Getenv(credential.EnvAppKey),
		os.Getenv(credential.EnvAppSecret),
		httpClient,
		logger,
	)

	prober := dropbox.NewProber(resolvedCfg.Provider.APIBaseURL, httpClient, logger)

	manager := credential.NewManager(oauth, prober, credential.Options{
		CachePath:     resolvedCfg.CredentialPath,
		StaleAfter:    config.DefaultStaleAfter,
		AllowFallback: credential.AllowFallbackFromEnv(),
	}, logger)

	if err := manager.Load(); err != nil {
		return nil, err
	}

	return manager, nil
}

// shutdownTimeout bounds graceful HTTP server shutdown.
const shutdownTimeout = 10 * time.Second
