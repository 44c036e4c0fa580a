package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/aegis/pkg/cli"
	"mercator-hq/aegis/pkg/evidence"
	"mercator-hq/aegis/pkg/evidence/export"
	"mercator-hq/aegis/pkg/evidence/query"
)

var evidenceCmd = &cobra.Command{
	Use:   "evidence",
	Short: "Inspect, export and prune audit evidence",
	Long: `Work with the audit records held by the configured evidence backend.

Examples:
  # Blocked requests from the last day
  aegis evidence query --since 24h --status blocked

  # Export March as CSV to the configured sink
  aegis evidence export --start 2026-03-01 --end 2026-03-31 --format csv

  # Compliance analytics for the last week
  aegis evidence analytics --since 168h

  # Delete records whose retention has ended
  aegis evidence prune`,
}

var evidenceFlags struct {
	since     time.Duration
	start     string
	end       string
	user      string
	session   string
	risk      string
	status    string
	anomalous bool
	limit     int
	offset    int
	sortBy    string
	sortOrder string

	queryFormat     string
	exportFormat    string
	analyticsFormat string
}

var evidenceQueryCmd = &cobra.Command{
	Use:   "query",
	Short: "List audit records matching filters",
	Args:  cobra.NoArgs,
	RunE:  queryEvidence,
}

var evidenceExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export audit records in a time window to the export sink",
	Args:  cobra.NoArgs,
	RunE:  exportEvidence,
}

var evidenceAnalyticsCmd = &cobra.Command{
	Use:   "analytics",
	Short: "Aggregate compliance analytics over a time window",
	Args:  cobra.NoArgs,
	RunE:  analyzeEvidence,
}

var evidencePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete audit records whose retention period has ended",
	Args:  cobra.NoArgs,
	RunE:  pruneEvidence,
}

func init() {
	rootCmd.AddCommand(evidenceCmd)
	evidenceCmd.AddCommand(evidenceQueryCmd, evidenceExportCmd, evidenceAnalyticsCmd, evidencePruneCmd)

	for _, c := range []*cobra.Command{evidenceQueryCmd, evidenceExportCmd, evidenceAnalyticsCmd} {
		c.Flags().DurationVar(&evidenceFlags.since, "since", 0, "window ending now (e.g. 24h); overrides --start and --end")
		c.Flags().StringVar(&evidenceFlags.start, "start", "", "window start (RFC 3339 or YYYY-MM-DD)")
		c.Flags().StringVar(&evidenceFlags.end, "end", "", "window end (RFC 3339 or YYYY-MM-DD, inclusive)")
	}

	f := evidenceQueryCmd.Flags()
	f.StringVar(&evidenceFlags.user, "user", "", "filter by user id")
	f.StringVar(&evidenceFlags.session, "session", "", "filter by session id")
	f.StringVar(&evidenceFlags.risk, "risk", "", "filter by risk level (low, medium, high)")
	f.StringVar(&evidenceFlags.status, "status", "", "filter by compliance status")
	f.BoolVar(&evidenceFlags.anomalous, "anomalous", false, "only records with anomalies")
	f.IntVar(&evidenceFlags.limit, "limit", 0, "maximum records (config default when 0)")
	f.IntVar(&evidenceFlags.offset, "offset", 0, "records to skip")
	f.StringVar(&evidenceFlags.sortBy, "sort", "", "sort field (timestamp, recorded_at, risk_score, retention_end)")
	f.StringVar(&evidenceFlags.sortOrder, "order", "", "sort order (asc, desc)")
	f.StringVar(&evidenceFlags.queryFormat, "format", "text", "output format: text, json, csv")

	evidenceExportCmd.Flags().StringVar(&evidenceFlags.user, "user", "", "export only this user's records")
	evidenceExportCmd.Flags().StringVar(&evidenceFlags.exportFormat, "format", export.FormatJSON, "export format: json, csv")

	evidenceAnalyticsCmd.Flags().StringVar(&evidenceFlags.analyticsFormat, "format", "text", "output format: text, json")
}

// openEvidence builds the storage side of the app.
func openEvidence() (*app, context.Context, func(), error) {
	cfg, err := loadConfig(offline)
	if err != nil {
		return nil, nil, nil, err
	}
	if _, err := setupLogging(cfg, true); err != nil {
		return nil, nil, nil, err
	}
	ctx, stop := cli.SetupSignalHandler()
	a, err := buildApp(ctx, cfg, appOptions{withoutTelemetry: true, withoutPipeline: true})
	if err != nil {
		stop()
		return nil, nil, nil, cli.NewCommandError("evidence", err)
	}
	return a, ctx, func() { a.close(); stop() }, nil
}

func queryEvidence(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(evidenceFlags.queryFormat)
	if err != nil {
		return err
	}
	start, end, err := evidenceWindow(time.Now(), false)
	if err != nil {
		return err
	}

	q := &evidence.Query{
		StartTime:        start,
		EndTime:          end,
		UserID:           evidenceFlags.user,
		SessionID:        evidenceFlags.session,
		RiskLevel:        evidenceFlags.risk,
		ComplianceStatus: evidenceFlags.status,
		AnomalousOnly:    evidenceFlags.anomalous,
		Limit:            evidenceFlags.limit,
		Offset:           evidenceFlags.offset,
		SortBy:           evidenceFlags.sortBy,
		SortOrder:        evidenceFlags.sortOrder,
	}

	a, ctx, done, err := openEvidence()
	if err != nil {
		return err
	}
	defer done()

	qc := a.cfg.Evidence.Query
	v := query.Validator{DefaultLimit: qc.DefaultLimit, MaxLimit: qc.MaxLimit}
	v.ApplyDefaults(q)
	if err := v.Validate(q); err != nil {
		return cli.NewConfigError("query", err.Error())
	}

	if qc.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, qc.Timeout)
		defer cancel()
	}
	records, err := a.storage.Query(ctx, q)
	if err != nil {
		return cli.NewCommandError("evidence query", err)
	}

	out := cmd.OutOrStdout()
	switch format {
	case cli.FormatJSON:
		return export.NewJSONExporter(a.cfg.Evidence.Export.JSONPretty).Export(ctx, records, out)
	case cli.FormatCSV:
		return export.NewCSVExporter(a.cfg.Evidence.Export.CSVIncludeHeader).Export(ctx, records, out)
	default:
		if len(records) == 0 {
			fmt.Fprintln(out, "No matching records")
			return nil
		}
		return cli.NewFormatter(cli.FormatText).FormatTo(out, recordTable(records))
	}
}

func exportEvidence(cmd *cobra.Command, args []string) error {
	start, end, err := evidenceWindow(time.Now(), true)
	if err != nil {
		return err
	}
	format := strings.ToLower(evidenceFlags.exportFormat)
	if format != export.FormatJSON && format != export.FormatCSV {
		return cli.NewConfigError("--format", fmt.Sprintf("unsupported export format %q (expected json or csv)", evidenceFlags.exportFormat))
	}

	a, ctx, done, err := openEvidence()
	if err != nil {
		return err
	}
	defer done()

	res, err := a.exports.Export(ctx, export.Request{
		Start:       *start,
		End:         *end,
		UserID:      evidenceFlags.user,
		RequestedBy: "cli",
		Format:      format,
	})
	if err != nil {
		return cli.NewCommandError("evidence export", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✓ Exported %d records to %s\n", res.RecordCount, res.Location)
	fmt.Fprintf(out, "  Export ID:  %s\n", res.ExportID)
	if len(res.Frameworks) > 0 {
		fmt.Fprintf(out, "  Frameworks: %s\n", strings.Join(res.Frameworks, ", "))
	}
	return nil
}

func analyzeEvidence(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(evidenceFlags.analyticsFormat)
	if err != nil {
		return err
	}
	if format == cli.FormatCSV {
		return cli.NewConfigError("--format", "analytics supports text and json")
	}
	now := time.Now()
	start, end, err := evidenceWindow(now, false)
	if err != nil {
		return err
	}
	if start == nil {
		s := now.Add(-24 * time.Hour)
		start = &s
	}
	if end == nil {
		end = &now
	}

	a, ctx, done, err := openEvidence()
	if err != nil {
		return err
	}
	defer done()

	stats, err := evidence.Analyze(ctx, a.storage, *start, *end)
	if err != nil {
		return cli.NewCommandError("evidence analytics", err)
	}

	out := cmd.OutOrStdout()
	if format == cli.FormatJSON {
		return cli.NewFormatter(format).FormatTo(out, stats)
	}
	printAnalytics(out, stats)
	return nil
}

func pruneEvidence(cmd *cobra.Command, args []string) error {
	a, ctx, done, err := openEvidence()
	if err != nil {
		return err
	}
	defer done()

	deleted, err := a.pruner.Prune(ctx)
	if err != nil {
		return cli.NewCommandError("evidence prune", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Pruned %d expired records\n", deleted)
	return nil
}

// evidenceWindow resolves --since, --start and --end. A date-only --end
// covers that whole day. When required is set both bounds must resolve.
func evidenceWindow(now time.Time, required bool) (start, end *time.Time, err error) {
	if evidenceFlags.since > 0 {
		s := now.Add(-evidenceFlags.since)
		return &s, &now, nil
	}
	if evidenceFlags.start != "" {
		t, err := parseTimeFlag("--start", evidenceFlags.start, false)
		if err != nil {
			return nil, nil, err
		}
		start = &t
	}
	if evidenceFlags.end != "" {
		t, err := parseTimeFlag("--end", evidenceFlags.end, true)
		if err != nil {
			return nil, nil, err
		}
		end = &t
	}
	if required && (start == nil || end == nil) {
		return nil, nil, cli.NewConfigError("--start", "a window is required: give --since or both --start and --end")
	}
	if start != nil && end != nil && end.Before(*start) {
		return nil, nil, cli.NewConfigError("--end", "end must not be before start")
	}
	return start, end, nil
}

func parseTimeFlag(flag, value string, endOfDay bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(time.DateOnly, value, time.UTC)
	if err != nil {
		return time.Time{}, cli.NewConfigError(flag, fmt.Sprintf("invalid time %q (expected RFC 3339 or YYYY-MM-DD)", value))
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}

// recordTable is the text listing of audit records.
type recordTable []*evidence.AuditRecord

func (t recordTable) Header() []string {
	return []string{"ID", "TIMESTAMP", "USER", "ROLE", "RISK", "STATUS", "ANOMALIES"}
}

func (t recordTable) Rows() [][]string {
	rows := make([][]string, len(t))
	for i, r := range t {
		anomalies := "-"
		if len(r.Anomalies) > 0 {
			anomalies = strings.Join(r.Anomalies, ",")
		}
		rows[i] = []string{
			r.ID,
			r.Timestamp.UTC().Format(time.RFC3339),
			r.UserID,
			r.Role,
			fmt.Sprintf("%s %.2f", r.RiskLevel, r.RiskScore),
			string(r.ComplianceStatus),
			anomalies,
		}
	}
	return rows
}

func printAnalytics(w io.Writer, a *evidence.Analytics) {
	fmt.Fprintf(w, "Window:            %s .. %s\n", a.Start.UTC().Format(time.RFC3339), a.End.UTC().Format(time.RFC3339))
	fmt.Fprintf(w, "Interactions:      %d\n", a.TotalInteractions)
	fmt.Fprintf(w, "Compliance rate:   %.1f%%\n", a.ComplianceRate*100)
	fmt.Fprintf(w, "Blocked:           %d\n", a.Blocked)
	fmt.Fprintf(w, "Policy violations: %d\n", a.PolicyViolations)
	fmt.Fprintf(w, "Anomalies:         %d\n", a.AnomalyDetections)
	fmt.Fprintf(w, "Avg response:      %.0f ms\n", a.AverageResponseTimeMs)

	printCounts(w, "Risk distribution", a.RiskDistribution)
	printCounts(w, "Compliance status", a.StatusCounts)
	printCounts(w, "Anomaly types", a.AnomalyCounts)

	if len(a.FrameworkCompliance) > 0 {
		fmt.Fprintln(w, "\nFramework compliance:")
		for _, name := range sortedKeys(a.FrameworkCompliance) {
			fmt.Fprintf(w, "  %-20s %.1f%%\n", name, a.FrameworkCompliance[name]*100)
		}
	}
	if len(a.TopUsers) > 0 {
		fmt.Fprintln(w, "\nTop users:")
		for _, u := range a.TopUsers {
			fmt.Fprintf(w, "  %-20s %d\n", u.UserID, u.Interactions)
		}
	}
}

func printCounts(w io.Writer, title string, counts map[string]int64) {
	if len(counts) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s:\n", title)
	for _, k := range sortedKeys(counts) {
		fmt.Fprintf(w, "  %-20s %s\n", k, strconv.FormatInt(counts[k], 10))
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
