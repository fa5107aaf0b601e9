// Package cli implements the mailsync command line interface using cobra.
// Commands depend only on driving/driven ports; wiring happens in main.
package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/mailsync-cli/internal/core/ports/driven"
	"github.com/custodia-labs/mailsync-cli/internal/core/ports/driving"
	"github.com/custodia-labs/mailsync-cli/internal/logger"
)

// version is overridden at build time via -ldflags.
var version = "0.1.0-dev"

// SyncFactory builds a sync orchestrator writing fetched messages to
// outputDir. An empty outputDir uses the configured default.
type SyncFactory func(outputDir string) (driving.SyncOrchestrator, error)

// Wired dependencies, set by main before Execute.
var (
	syncFactory     SyncFactory
	checkpointStore driven.CheckpointStore
	deadLetterQueue driven.DeadLetterQueue
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "mailsync",
	Short: "Bulk Gmail synchronisation with crash-safe resume",
	Long: `mailsync drives bulk operations (fetch, trash, delete) over large Gmail
message sets through a rate-limited, circuit-broken batch pipeline.

Progress is checkpointed durably, so an interrupted run resumes from the
last acknowledged message instead of starting over. Messages that fail
permanently land in a dead-letter queue for inspection and replay.`,
	SilenceUsage: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.SetVerbose(verbose)
	},
}

// Services bundles the wired dependencies the commands need.
type Services struct {
	SyncFactory SyncFactory
	Checkpoints driven.CheckpointStore
	DeadLetters driven.DeadLetterQueue
}

// SetServices installs the wired dependencies. Call before Execute.
func SetServices(s Services) {
	syncFactory = s.SyncFactory
	checkpointStore = s.Checkpoints
	deadLetterQueue = s.DeadLetters
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// ExecuteContext runs the root command with the given context, so signal
// cancellation reaches long-running commands.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
}
