package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"mercator-hq/aegis/pkg/cli"
	"mercator-hq/aegis/pkg/config"
	"mercator-hq/aegis/pkg/governance"
	"mercator-hq/aegis/pkg/pipeline"
)

var screenFlags struct {
	user     string
	role     string
	session  string
	context  map[string]string
	file     string
	format   string
	record   bool
	response string
}

var screenCmd = &cobra.Command{
	Use:   "screen [prompt]",
	Short: "Run prompts through the governance pipeline locally",
	Long: `Run one prompt, or every line of a file, through the full governance
pipeline without starting the server.

Audit records go to a throwaway in-memory store unless --record is given,
in which case the configured evidence backend is used.

Examples:
  # Screen one prompt as an analyst in the finance industry
  aegis screen "Summarise Q3 revenue by region" --role analyst --context industry=finance

  # Audit a known response instead of generating one
  aegis screen "Should I take ibuprofen?" --response "Take two tablets."

  # Screen a file of prompts and export the verdicts as CSV
  aegis screen --file prompts.txt --format csv > verdicts.csv`,
	Args: cobra.MaximumNArgs(1),
	RunE: screenPrompts,
}

func init() {
	rootCmd.AddCommand(screenCmd)

	screenCmd.Flags().StringVarP(&screenFlags.user, "user", "u", "cli", "user id for the request")
	screenCmd.Flags().StringVarP(&screenFlags.role, "role", "r", "", "role for the request (knowledge pack default when empty)")
	screenCmd.Flags().StringVar(&screenFlags.session, "session", "", "session id (generated when empty)")
	screenCmd.Flags().StringToStringVar(&screenFlags.context, "context", nil, "request context as key=value pairs")
	screenCmd.Flags().StringVarP(&screenFlags.file, "file", "f", "", "file with one prompt per line (- for stdin)")
	screenCmd.Flags().StringVar(&screenFlags.format, "format", "text", "output format: text, json, csv")
	screenCmd.Flags().BoolVar(&screenFlags.record, "record", false, "write audit records to the configured evidence backend")
	screenCmd.Flags().StringVar(&screenFlags.response, "response", "", "audit this response instead of calling the generator")
}

func screenPrompts(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(screenFlags.format)
	if err != nil {
		return err
	}
	prompts, err := collectPrompts(cmd.InOrStdin(), args, screenFlags.file)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(offline, func(cfg *config.Config) {
		if !screenFlags.record {
			cfg.Evidence.Backend = "memory"
			cfg.Evidence.Retention.ArchiveBeforeDelete = false
		}
		if screenFlags.response != "" {
			cfg.Generation.Provider = "static"
			cfg.Generation.Static = config.StaticGeneratorConfig{Fallback: screenFlags.response}
		}
	})
	if err != nil {
		return err
	}
	if _, err := setupLogging(cfg, true); err != nil {
		return err
	}

	ctx, stop := cli.SetupSignalHandler()
	defer stop()

	a, err := buildApp(ctx, cfg, appOptions{withoutTelemetry: true})
	if err != nil {
		return cli.NewCommandError("screen", err)
	}
	defer a.close()

	results, err := runScreening(ctx, a.pipeline, prompts, cmd.ErrOrStderr())
	if err != nil {
		return cli.NewCommandError("screen", err)
	}

	out := cmd.OutOrStdout()
	if len(results) == 1 && format == cli.FormatText {
		printVerdict(out, results[0])
		return nil
	}
	if format == cli.FormatJSON {
		if len(results) == 1 {
			return cli.NewFormatter(format).FormatTo(out, results[0])
		}
		return cli.NewFormatter(format).FormatTo(out, results)
	}
	return cli.NewFormatter(format).FormatTo(out, verdictTable(results))
}

// collectPrompts reads the prompt argument or the prompt file. Blank lines
// and lines starting with # are skipped.
func collectPrompts(stdin io.Reader, args []string, file string) ([]string, error) {
	if len(args) == 1 && file != "" {
		return nil, cli.NewConfigError("--file", "give a prompt argument or --file, not both")
	}
	if len(args) == 1 {
		return args, nil
	}
	if file == "" {
		return nil, cli.NewConfigError("prompt", "a prompt argument or --file is required")
	}

	var r io.Reader = stdin
	if file != "-" {
		f, err := os.Open(file)
		if err != nil {
			return nil, cli.WrapConfigError(err)
		}
		defer f.Close()
		r = f
	}

	var prompts []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		prompts = append(prompts, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read prompts: %w", err)
	}
	if len(prompts) == 0 {
		return nil, cli.NewConfigError("--file", "no prompts found")
	}
	return prompts, nil
}

func runScreening(ctx context.Context, p *pipeline.Pipeline, prompts []string, progressOut io.Writer) ([]*pipeline.Response, error) {
	var progress cli.ProgressReporter
	if len(prompts) > 1 {
		progress = cli.NewProgressReporter(progressOut)
		progress.Start(int64(len(prompts)))
	}

	reqContext := make(map[string]any, len(screenFlags.context))
	for k, v := range screenFlags.context {
		reqContext[k] = v
	}

	results := make([]*pipeline.Response, 0, len(prompts))
	for i, prompt := range prompts {
		if err := ctx.Err(); err != nil {
			if progress != nil {
				progress.Error(err)
			}
			return nil, err
		}
		resp, err := p.Process(ctx, governance.Request{
			Prompt:    prompt,
			UserID:    screenFlags.user,
			Role:      screenFlags.role,
			SessionID: screenFlags.session,
			Context:   reqContext,
		})
		if err != nil {
			if progress != nil {
				progress.Error(err)
			}
			return nil, fmt.Errorf("prompt %d: %w", i+1, err)
		}
		results = append(results, resp)
		if progress != nil {
			progress.Update(int64(i + 1))
		}
	}
	if progress != nil {
		progress.Finish()
	}
	return results, nil
}

func printVerdict(w io.Writer, r *pipeline.Response) {
	risk := r.RiskAssessment
	fmt.Fprintf(w, "Risk:        %s (%.2f) -> %s\n", risk.Level, risk.Score, risk.Action)
	fmt.Fprintf(w, "Compliance:  %s\n", r.ComplianceStatus)
	if r.Policy != nil {
		fmt.Fprintf(w, "Role:        %s\n", r.Policy.Role)
		if len(r.Policy.Frameworks) > 0 {
			fmt.Fprintf(w, "Frameworks:  %s\n", strings.Join(r.Policy.Frameworks, ", "))
		}
	}
	fmt.Fprintf(w, "Audit:       %s (stored: %t)\n", r.Summary.ID, r.Summary.Stored)
	if len(r.ReviewFlags) > 0 {
		fmt.Fprintf(w, "Review:      %d flag(s)\n", len(r.ReviewFlags))
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, r.ResponseText)
	if len(r.Recommendations) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Recommendations:")
		for _, rec := range r.Recommendations {
			fmt.Fprintf(w, "  - %s\n", rec)
		}
	}
}

// verdictTable renders one row per screened prompt.
type verdictTable []*pipeline.Response

func (t verdictTable) Header() []string {
	return []string{"#", "risk_level", "risk_score", "action", "compliance_status", "review_flags", "audit_id"}
}

func (t verdictTable) Rows() [][]string {
	rows := make([][]string, len(t))
	for i, r := range t {
		rows[i] = []string{
			strconv.Itoa(i + 1),
			string(r.RiskAssessment.Level),
			strconv.FormatFloat(r.RiskAssessment.Score, 'f', 2, 64),
			string(r.RiskAssessment.Action),
			string(r.ComplianceStatus),
			strconv.Itoa(len(r.ReviewFlags)),
			r.Summary.ID,
		}
	}
	return rows
}
