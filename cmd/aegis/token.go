package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/aegis/pkg/cli"
)

var tokenFlags struct {
	user   string
	role   string
	format string
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage API bearer tokens",
}

var tokenIssueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Open a session and print a bearer token for it",
	Long: `Open a session in the shared session store and print a signed bearer
token bound to it.

Tokens are only honoured while their session exists, so this command needs
the redis session backend that the server also uses. With in-memory
sessions use "aegis run --bootstrap-token USER[:ROLE]" or POST
/api/v1/sessions instead.

Examples:
  aegis token issue --user ops --role admin`,
	Args: cobra.NoArgs,
	RunE: issueToken,
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.AddCommand(tokenIssueCmd)

	tokenIssueCmd.Flags().StringVarP(&tokenFlags.user, "user", "u", "", "user id (required)")
	tokenIssueCmd.Flags().StringVarP(&tokenFlags.role, "role", "r", "", "role (knowledge pack default when empty)")
	tokenIssueCmd.Flags().StringVar(&tokenFlags.format, "format", "text", "output format: text, json")
	_ = tokenIssueCmd.MarkFlagRequired("user")
}

type issuedToken struct {
	Token     string    `json:"token"`
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}

func issueToken(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(tokenFlags.format)
	if err != nil {
		return err
	}
	if format == cli.FormatCSV {
		return cli.NewConfigError("--format", "token issue supports text and json")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !cfg.Identity.Enabled {
		return cli.NewConfigError("identity.enabled", "identity is disabled, tokens are not used")
	}
	if cfg.Session.Backend != "redis" {
		return cli.NewConfigError("session.backend", `tokens issued here need the redis session backend; use "aegis run --bootstrap-token" with in-memory sessions`)
	}
	if _, err := setupLogging(cfg, true); err != nil {
		return err
	}

	ctx, stop := cli.SetupSignalHandler()
	defer stop()

	a, err := buildApp(ctx, cfg, appOptions{withoutTelemetry: true, withoutPipeline: true})
	if err != nil {
		return cli.NewCommandError("token issue", err)
	}
	defer a.close()

	token, sess, err := a.tokens.Issue(ctx, tokenFlags.user, tokenFlags.role)
	if err != nil {
		return cli.NewCommandError("token issue", err)
	}

	out := cmd.OutOrStdout()
	if format == cli.FormatJSON {
		return cli.NewFormatter(format).FormatTo(out, issuedToken{
			Token:     token,
			SessionID: sess.ID,
			UserID:    sess.UserID,
			Role:      sess.Role,
			ExpiresAt: sess.ExpiresAt,
		})
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "✓ Session %s for %s (%s), expires %s\n",
		sess.ID, sess.UserID, sess.Role, sess.ExpiresAt.Format(time.RFC3339))
	fmt.Fprintln(out, token)
	return nil
}
