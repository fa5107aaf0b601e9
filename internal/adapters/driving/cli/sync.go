package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/custodia-labs/mailsync-cli/internal/core/domain"
	"github.com/custodia-labs/mailsync-cli/internal/core/ports/driving"
)

var (
	syncQuery     string
	syncOperation string
	syncResume    bool
	syncOutput    string
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run a bulk operation over a Gmail message set",
	Long: `Enumerates every message matching the query and applies the operation
in rate-limited batches. Progress is checkpointed; rerun with --resume to
continue an interrupted run from its last acknowledged message.`,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().StringVarP(&syncQuery, "query", "q", "", "Gmail search query selecting the message set")
	syncCmd.Flags().StringVar(&syncOperation, "operation", "fetch", "operation to apply: fetch, trash or delete")
	syncCmd.Flags().BoolVar(&syncResume, "resume", false, "resume the latest resumable run for this query")
	syncCmd.Flags().StringVarP(&syncOutput, "output", "o", "", "output directory for fetched messages (default from config)")
	_ = syncCmd.MarkFlagRequired("query")
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, _ []string) error {
	if syncFactory == nil {
		return errors.New("sync service not configured")
	}

	op := domain.Operation(syncOperation)
	if !op.Valid() {
		return fmt.Errorf("unknown operation %q (want fetch, trash or delete)", syncOperation)
	}

	orch, err := syncFactory(syncOutput)
	if err != nil {
		return err
	}

	req := driving.RunRequest{
		Query:          syncQuery,
		Operation:      op,
		Resume:         syncResume,
		OutputLocation: syncOutput,
	}

	var cp *domain.SyncCheckpoint
	var runErr error
	if term.IsTerminal(int(os.Stdout.Fd())) {
		cp, runErr = syncWithProgressBar(cmd.Context(), orch, req)
	} else {
		cp, runErr = syncWithPolling(cmd.Context(), cmd, orch, req)
	}

	if cp != nil {
		printSummary(cmd, cp)
	}
	if runErr != nil {
		return fmt.Errorf("sync: %w", runErr)
	}
	return nil
}

// syncWithPolling runs the sync while printing plain-text progress,
// suitable for non-interactive output.
func syncWithPolling(
	ctx context.Context,
	cmd *cobra.Command,
	orch driving.SyncOrchestrator,
	req driving.RunRequest,
) (*domain.SyncCheckpoint, error) {
	type result struct {
		cp  *domain.SyncCheckpoint
		err error
	}
	resCh := make(chan result, 1)
	go func() {
		cp, err := orch.Run(ctx, req)
		resCh <- result{cp, err}
	}()

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	lastCount := 0
	for {
		select {
		case res := <-resCh:
			return res.cp, res.err
		case <-ticker.C:
			// Best effort; a status error just skips one update.
			status, err := orch.Status(ctx, req.Query)
			if err == nil && status.ProcessedItems > lastCount {
				cmd.Printf("Processed %d/%d messages (%d failed)\n",
					status.ProcessedItems, status.TotalItems, status.FailedItems)
				lastCount = status.ProcessedItems
			}
		}
	}
}

// printSummary reports the run outcome the way operators read it: counts
// first, then what to do next.
func printSummary(cmd *cobra.Command, cp *domain.SyncCheckpoint) {
	switch cp.State {
	case domain.SyncCompleted:
		cmd.Printf("Sync complete: %d/%d messages processed, %d dead-lettered.\n",
			cp.ProcessedItems, cp.TotalItems, len(cp.FailedItemIDs))
	case domain.SyncInterrupted:
		cmd.Printf("Sync interrupted at %d/%d messages (%d dead-lettered).\n",
			cp.ProcessedItems, cp.TotalItems, len(cp.FailedItemIDs))
		cmd.Printf("Rerun with --resume --query %q to continue.\n", cp.Query)
	case domain.SyncFailed:
		cmd.Printf("Sync failed at %d/%d messages (%d dead-lettered).\n",
			cp.ProcessedItems, cp.TotalItems, len(cp.FailedItemIDs))
	default:
		cmd.Printf("Sync %s in state %s: %d/%d messages.\n",
			cp.SyncID, cp.State, cp.ProcessedItems, cp.TotalItems)
	}
	if len(cp.FailedItemIDs) > 0 {
		cmd.Println("Inspect failures with: mailsync deadletter list")
	}
}
