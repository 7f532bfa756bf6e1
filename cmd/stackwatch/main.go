package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags.
var Version = "dev"

// errNoServiceSpawned signals that neither service could be spawned; the
// process exits with a distinct status so scripts can tell an
// infrastructure failure from a completed diagnosis.
var errNoServiceSpawned = errors.New("no service could be spawned")

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		if errors.Is(err, errNoServiceSpawned) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func buildRoot() *cobra.Command {
	runFlags := &RunFlags{}
	scanFlags := &ScanFlags{}

	root := &cobra.Command{
		Use:   "stackwatch",
		Short: "Dev-stack supervision and error triage tool",
		Long: `Stackwatch launches a frontend/backend dev stack, watches the captured
output for known failure signatures, asks a configured triage command for
advice, and writes a timestamped diagnostics report.

Examples:
  stackwatch run --frontend ./frontend --backend ./backend
  stackwatch run --config stackwatch.toml --listen :8080
  stackwatch scan --root ./backend`,
		SilenceUsage: true,
	}

	root.AddCommand(
		createRunCommand(runFlags),
		createScanCommand(scanFlags),
		createVersionCommand(),
	)
	return root
}

func createVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the stackwatch version",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("stackwatch %s\n", Version)
		},
	}
}
