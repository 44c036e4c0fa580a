package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"mercator-hq/aegis/pkg/cli"
	"mercator-hq/aegis/pkg/knowledge"
)

var knowledgeCmd = &cobra.Command{
	Use:   "knowledge",
	Short: "Inspect and validate knowledge packs",
	Long: `A knowledge pack holds every table the pipeline consults: risk keywords,
PII patterns, policy families, the role table, time windows, audit
indicators, advisory guidance and retention periods.

Examples:
  # Check a pack before pointing the server at it
  aegis knowledge validate ./packs/finance.yaml

  # Start a custom pack from the built-in one
  aegis knowledge default > my-pack.yaml

  # List the roles of the configured pack
  aegis knowledge roles`,
}

var knowledgeFlags struct {
	format string
}

var knowledgeValidateCmd = &cobra.Command{
	Use:   "validate [path]",
	Short: "Validate a knowledge pack file",
	Long: `Validate a knowledge pack file and print a summary. Without a path the
pack configured under knowledge.path is checked, or the built-in pack when
none is configured.`,
	Args: cobra.MaximumNArgs(1),
	RunE: validateKnowledge,
}

var knowledgeDefaultCmd = &cobra.Command{
	Use:   "default",
	Short: "Print the built-in knowledge pack",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := cmd.OutOrStdout().Write(knowledge.DefaultBytes())
		return err
	},
}

var knowledgeRolesCmd = &cobra.Command{
	Use:   "roles [path]",
	Short: "List the role table of a knowledge pack",
	Args:  cobra.MaximumNArgs(1),
	RunE:  listRoles,
}

func init() {
	rootCmd.AddCommand(knowledgeCmd)
	knowledgeCmd.AddCommand(knowledgeValidateCmd, knowledgeDefaultCmd, knowledgeRolesCmd)

	knowledgeRolesCmd.Flags().StringVar(&knowledgeFlags.format, "format", "text", "output format: text, json, csv")
}

// loadPack loads the pack named by args, else the configured one, else the
// built-in pack. The returned source names where it came from.
func loadPack(args []string) (*knowledge.Pack, string, error) {
	path := ""
	if len(args) == 1 {
		path = args[0]
	} else {
		cfg, err := loadConfig(offline)
		if err != nil {
			return nil, "", err
		}
		path = cfg.Knowledge.Path
	}
	if path == "" {
		return knowledge.Default(), "built-in", nil
	}
	if _, err := os.Stat(path); err != nil {
		return nil, path, cli.NewConfigError("knowledge", fmt.Sprintf("cannot read pack: %v", err))
	}
	pack, err := knowledge.Load(path)
	return pack, path, err
}

func validateKnowledge(cmd *cobra.Command, args []string) error {
	pack, source, err := loadPack(args)
	out := cmd.OutOrStdout()
	if err != nil {
		var verr *knowledge.ValidationError
		if errors.As(err, &verr) {
			fmt.Fprintf(out, "✗ %s has %d problem(s):\n", source, len(verr.Problems))
			for _, p := range verr.Problems {
				fmt.Fprintf(out, "  - %s\n", p)
			}
			return cli.NewConfigError("knowledge", "pack validation failed")
		}
		var cerr *cli.ConfigError
		if errors.As(err, &cerr) {
			return err
		}
		return cli.NewConfigError("knowledge", err.Error())
	}

	fmt.Fprintf(out, "✓ %s is valid\n", source)
	printPackSummary(out, pack)
	return nil
}

func printPackSummary(w io.Writer, p *knowledge.Pack) {
	fmt.Fprintf(w, "  Name:              %s\n", p.Name)
	fmt.Fprintf(w, "  Version:           %s\n", p.Version)
	fmt.Fprintf(w, "  Risk categories:   %d\n", len(p.Screening.Categories))
	fmt.Fprintf(w, "  PII patterns:      %d\n", len(p.Screening.PIIPatterns))
	fmt.Fprintf(w, "  Policy families:   %d\n", len(p.Policy.Families))
	fmt.Fprintf(w, "  Industries:        %d\n", len(p.Policy.Industries))
	fmt.Fprintf(w, "  Roles:             %d (default %s)\n", len(p.Policy.Roles), p.Policy.DefaultRole)
	fmt.Fprintf(w, "  Time windows:      %d\n", len(p.Policy.Windows))
	fmt.Fprintf(w, "  Advisory domains:  %d\n", len(p.Advisory.Domains))
	fmt.Fprintf(w, "  Retention default: %d days\n", p.Retention.DefaultDays)

	frameworks := make([]string, 0, len(p.Retention.Frameworks))
	for name, f := range p.Retention.Frameworks {
		frameworks = append(frameworks, fmt.Sprintf("%s=%dd", name, f.Days))
	}
	sort.Strings(frameworks)
	if len(frameworks) > 0 {
		fmt.Fprintf(w, "  Retention:         %s\n", strings.Join(frameworks, ", "))
	}
}

func listRoles(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(knowledgeFlags.format)
	if err != nil {
		return err
	}
	pack, _, err := loadPack(args)
	if err != nil {
		return cli.WrapConfigError(err)
	}
	out := cmd.OutOrStdout()
	if format == cli.FormatJSON {
		return cli.NewFormatter(format).FormatTo(out, pack.Policy.Roles)
	}
	return cli.NewFormatter(format).FormatTo(out, roleTable{roles: pack.Policy.Roles, defaultRole: pack.Policy.DefaultRole})
}

type roleTable struct {
	roles       map[string]knowledge.Role
	defaultRole string
}

func (t roleTable) Header() []string {
	return []string{"ROLE", "DATA_ACCESS", "AUDIT_ACCESS", "MFA", "SESSION_TIMEOUT", "PERMISSIONS"}
}

func (t roleTable) Rows() [][]string {
	rows := make([][]string, 0, len(t.roles))
	for _, name := range sortedKeys(t.roles) {
		r := t.roles[name]
		label := name
		if name == t.defaultRole {
			label += " (default)"
		}
		rows = append(rows, []string{
			label,
			r.DataAccess,
			r.AuditAccess,
			strconv.FormatBool(r.MFARequired),
			strconv.Itoa(r.SessionTimeout),
			strings.Join(r.Permissions, ","),
		})
	}
	return rows
}
