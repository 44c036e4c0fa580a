package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/spf13/cobra"

	"mercator-hq/aegis/pkg/cli"
	"mercator-hq/aegis/pkg/config"
	"mercator-hq/aegis/pkg/knowledge"
	knowledgegit "mercator-hq/aegis/pkg/knowledge/git"
	"mercator-hq/aegis/pkg/server"
)

var runFlags struct {
	listenAddress  string
	logLevel       string
	dryRun         bool
	bootstrapToken string
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the Aegis API server",
	Long: `Start the Aegis API server with the specified configuration.

The server exposes the governance pipeline, the audit and analytics APIs,
session management, the review queue, and health and metrics probes.

SIGHUP reloads the knowledge pack from disk. SIGINT and SIGTERM shut the
server down gracefully.

Examples:
  # Start with built-in defaults
  AEGIS_IDENTITY_SECRET=... aegis run

  # Start with a config file and override the listen address
  aegis run --config /etc/aegis/aegis.yaml --listen 0.0.0.0:8080

  # Print an admin token bound to an in-memory session at startup
  aegis run --bootstrap-token ops:admin

  # Validate config without starting the server
  aegis run --dry-run`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting server")
	runCmd.Flags().StringVar(&runFlags.bootstrapToken, "bootstrap-token", "", "issue a token for USER[:ROLE] at startup and print it to stderr")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(func(cfg *config.Config) {
		if runFlags.listenAddress != "" {
			cfg.Server.ListenAddress = runFlags.listenAddress
		}
		if runFlags.logLevel != "" {
			cfg.Telemetry.Logging.Level = runFlags.logLevel
		}
	})
	if err != nil {
		return err
	}

	logger, err := setupLogging(cfg, false)
	if err != nil {
		return err
	}
	defer logger.Shutdown()

	if runFlags.dryRun {
		fmt.Fprintln(cmd.OutOrStdout(), "✓ Configuration valid")
		return nil
	}

	ctx, stop := cli.SetupSignalHandler()
	defer stop()

	a, err := buildApp(ctx, cfg, appOptions{})
	if err != nil {
		return cli.NewCommandError("run", err)
	}
	defer a.close()

	printBanner(cmd.ErrOrStderr(), cfg, a)

	if runFlags.bootstrapToken != "" {
		if err := issueBootstrapToken(ctx, cmd.ErrOrStderr(), a, runFlags.bootstrapToken); err != nil {
			return err
		}
	}

	if err := a.pruner.Start(ctx); err != nil {
		a.logger.Warn("Failed to start retention scheduler", "error", err)
	} else {
		defer a.pruner.Stop()
	}

	if cfg.Knowledge.Watch && cfg.Knowledge.Path != "" {
		w, err := knowledge.NewWatcher(a.knowledge, cfg.Knowledge.Debounce)
		if err != nil {
			a.logger.Warn("Knowledge pack watcher disabled", "error", err)
		} else {
			go func() {
				if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					a.logger.Error("Knowledge pack watcher stopped", "error", err)
				}
			}()
		}
	}
	if a.packRepo != nil {
		go knowledgegit.NewWatcher(a.packRepo, a.knowledge, cfg.Knowledge.Git.PollInterval).Run(ctx)
	}
	go reloadOnHangup(ctx, a)

	srv, err := server.New(cfg, server.Deps{
		Pipeline: a.pipeline,
		Storage:  a.storage,
		Exports:  a.exports,
		Sessions: a.sessions,
		Tokens:   tokenIssuer(a),
		Review:   a.queue,
		Metrics:  a.metrics,
		Tracer:   a.tracer,
		Health:   a.health,
		Build:    server.BuildInfo{Version: Version, Commit: GitCommit, BuildTime: BuildDate},
	})
	if err != nil {
		return cli.NewCommandError("run", err)
	}

	ln, err := net.Listen("tcp", cfg.Server.ListenAddress)
	if err != nil {
		return cli.NewCommandError("run", fmt.Errorf("failed to listen on %s: %w", cfg.Server.ListenAddress, err))
	}
	scheme := "http"
	if cfg.Server.TLS.Enabled {
		scheme = "https"
	}
	out := cmd.ErrOrStderr()
	fmt.Fprintf(out, "✓ Server listening on %s://%s\n", scheme, ln.Addr())
	if cfg.Telemetry.Health.Enabled {
		fmt.Fprintf(out, "✓ Health endpoint: %s://%s%s\n", scheme, ln.Addr(), cfg.Telemetry.Health.ReadinessPath)
	}
	if cfg.Telemetry.Metrics.Enabled {
		fmt.Fprintf(out, "✓ Metrics endpoint: %s://%s%s\n", scheme, ln.Addr(), cfg.Telemetry.Metrics.Path)
	}
	fmt.Fprintln(out, "\nPress Ctrl+C to stop")

	if err := srv.Serve(ctx, ln); err != nil {
		return cli.NewCommandError("run", err)
	}
	fmt.Fprintln(out, "✓ Server stopped")
	return nil
}

// tokenIssuer avoids handing the server a typed nil when identity is off.
func tokenIssuer(a *app) server.TokenIssuer {
	if a.tokens == nil {
		return nil
	}
	return a.tokens
}

func reloadOnHangup(ctx context.Context, a *app) {
	hup, stop := cli.ReloadSignals()
	defer stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if a.packRepo != nil {
				if _, err := a.packRepo.Pull(ctx); err != nil {
					a.logger.Error("Knowledge repository pull failed", "error", err)
				}
			}
			if err := a.knowledge.Reload(); err != nil {
				a.logger.Error("Knowledge pack reload failed, keeping previous pack", "error", err)
				continue
			}
			pack := a.knowledge.Current()
			a.logger.Info("Knowledge pack reloaded", "name", pack.Name, "version", pack.Version)
		}
	}
}

// parseUserRole splits "user[:role]".
func parseUserRole(s string) (userID, role string, err error) {
	userID, role, _ = strings.Cut(s, ":")
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", "", cli.NewConfigError("--bootstrap-token", "expected USER[:ROLE]")
	}
	return userID, strings.TrimSpace(role), nil
}

func issueBootstrapToken(ctx context.Context, w io.Writer, a *app, spec string) error {
	if a.tokens == nil {
		return cli.NewConfigError("--bootstrap-token", "identity is disabled")
	}
	userID, role, err := parseUserRole(spec)
	if err != nil {
		return err
	}
	token, sess, err := a.tokens.Issue(ctx, userID, role)
	if err != nil {
		return cli.NewCommandError("run", err)
	}
	fmt.Fprintf(w, "✓ Bootstrap token for %s (%s), expires %s:\n%s\n",
		sess.UserID, sess.Role, sess.ExpiresAt.Format("2006-01-02 15:04 MST"), token)
	return nil
}

func printBanner(w io.Writer, cfg *config.Config, a *app) {
	fmt.Fprintf(w, "Aegis v%s\n", Version)
	if cfgFile != "" {
		fmt.Fprintf(w, "Loading configuration from: %s\n", cfgFile)
	}
	fmt.Fprintln(w, "✓ Configuration loaded")

	pack := a.knowledge.Current()
	fmt.Fprintf(w, "✓ Knowledge pack %s %s (%d roles, %d policy families)\n",
		pack.Name, pack.Version, len(pack.Policy.Roles), len(pack.Policy.Families))
	fmt.Fprintf(w, "✓ Evidence store: %s\n", cfg.Evidence.Backend)
	fmt.Fprintf(w, "✓ Moderation: %s, generation: %s\n", cfg.Moderation.Provider, cfg.Generation.Provider)
	fmt.Fprintf(w, "✓ Sessions: %s, identity enabled: %t\n", cfg.Session.Backend, cfg.Identity.Enabled)
}
