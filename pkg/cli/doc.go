/*
Package cli provides the output, error and process helpers shared by the
aegis commands.

Output Formatting:

Results can be printed as text, JSON or CSV. Types that implement Table
get aligned columns in text mode and one row per record in CSV:

	formatter := cli.NewFormatter(cli.FormatCSV)
	if err := formatter.FormatTo(os.Stdout, rows); err != nil {
		return err
	}

Progress Reporting:

Batch commands report progress on stderr. On a terminal the bar redraws in
place; otherwise a line is written every tenth of the work:

	progress := cli.NewProgressReporter(os.Stderr)
	progress.Start(int64(len(prompts)))
	for i := range prompts {
		// screen prompts[i]
		progress.Update(int64(i + 1))
	}
	progress.Finish()

Signal Handling:

	ctx, stop := cli.SetupSignalHandler()
	defer stop()
	// ctx is cancelled on SIGINT or SIGTERM

Exit Codes:

ExitCode maps an error to the process exit status: 2 for configuration and
usage problems, 1 for everything else.
*/
package cli
