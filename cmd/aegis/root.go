package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"mercator-hq/aegis/pkg/cli"
	"mercator-hq/aegis/pkg/config"
	"mercator-hq/aegis/pkg/security/secrets"
	"mercator-hq/aegis/pkg/telemetry/logging"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "aegis",
	Short: "Aegis - governance for generative AI requests",
	Long: `Aegis screens prompts for risk, applies role- and context-aware policy,
audits generated responses for compliance, and records an append-only audit
trail of every decision.

Configuration is read from the file given with --config, overridden by
AEGIS_* environment variables. Without a file the built-in defaults apply.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (defaults only when empty)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.SetVersionTemplate("aegis {{.Version}}\n")
}

// loadConfig loads the configuration named by --config, applies the
// command's adjustments, resolves ${secret:name} references, validates the
// result and installs it as the process-wide configuration.
func loadConfig(adjust ...func(*config.Config)) (*config.Config, error) {
	cfg, err := config.LoadUnvalidated(cfgFile)
	if err != nil {
		return nil, cli.WrapConfigError(err)
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}
	for _, fn := range adjust {
		fn(cfg)
	}
	sm, err := secrets.FromConfig(cfg.Secrets)
	if err != nil {
		return nil, cli.NewConfigError("secrets.directory", err.Error())
	}
	if err := sm.ResolveConfig(context.Background(), cfg); err != nil {
		return nil, cli.WrapConfigError(err)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, cli.WrapConfigError(err)
	}
	config.SetConfig(cfg)
	return cfg, nil
}

// offline adjusts the configuration for commands that never serve HTTP and
// so need no token signing.
func offline(cfg *config.Config) {
	cfg.Identity.Enabled = false
	cfg.Evidence.Recorder.Async = false
}

// setupLogging installs the configured slog handler. Commands other than
// run log as text to stderr so stdout stays clean for results.
func setupLogging(cfg *config.Config, interactive bool) (*logging.Logger, error) {
	lc := logging.FromConfig(cfg.Telemetry.Logging)
	if interactive {
		lc.Writer = rootCmd.ErrOrStderr()
		lc.Format = string(logging.FormatText)
		lc.BufferSize = 0
		if !verbose {
			lc.Level = "warn"
		}
	}
	logger, err := logging.Setup(lc)
	if err != nil {
		return nil, cli.NewConfigError("telemetry.logging", fmt.Sprintf("%v", err))
	}
	return logger, nil
}
