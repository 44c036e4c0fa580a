// Aegis is a governance service for generative AI requests.
//
// Every prompt passes a risk screener, a role-aware policy engine, the
// configured generator, a content auditor and an advisory composer before
// an append-only audit record is written.
//
// Usage:
//
//	# Start the HTTP API
//	aegis run --config /etc/aegis/aegis.yaml
//
//	# Screen a single prompt locally
//	aegis screen "How do I reset my password?" --user alice --role user
//
//	# Query the audit store
//	aegis evidence query --user alice --since 24h
//
//	# Check a knowledge pack before deploying it
//	aegis knowledge validate packs/healthcare.yaml
package main

import (
	"fmt"
	"os"

	"mercator-hq/aegis/pkg/cli"
)

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.ExitCode(err))
	}
}
