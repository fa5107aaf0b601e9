package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/mailsync-cli/internal/core/domain"
)

var checkpointsCmd = &cobra.Command{
	Use:   "checkpoints",
	Short: "Inspect and manage sync checkpoints",
	Long: `Every sync run persists a checkpoint so interrupted work can resume.
Checkpoints are never deleted automatically; clear them once a run is
finished with and its record is no longer needed.`,
}

var checkpointsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sync checkpoints",
	RunE:  runCheckpointsList,
}

var checkpointsClearCmd = &cobra.Command{
	Use:   "clear [sync-id]",
	Short: "Delete a checkpoint",
	Args:  cobra.ExactArgs(1),
	RunE:  runCheckpointsClear,
}

func init() {
	checkpointsCmd.AddCommand(checkpointsListCmd)
	checkpointsCmd.AddCommand(checkpointsClearCmd)
	rootCmd.AddCommand(checkpointsCmd)
}

func runCheckpointsList(cmd *cobra.Command, args []string) error {
	if checkpointStore == nil {
		return errors.New("checkpoint store not configured")
	}

	checkpoints, err := checkpointStore.List(context.Background())
	if err != nil {
		return fmt.Errorf("failed to list checkpoints: %w", err)
	}

	if len(checkpoints) == 0 {
		cmd.Println("No checkpoints.")
		return nil
	}

	cmd.Println("Checkpoints:")
	cmd.Println()
	for i := range checkpoints {
		cp := &checkpoints[i]
		cmd.Printf("  %s\n", cp.SyncID)
		cmd.Printf("    Query:     %s\n", cp.Query)
		cmd.Printf("    Operation: %s\n", cp.Operation)
		cmd.Printf("    State:     %s\n", cp.State)
		cmd.Printf("    Progress:  %d/%d (%d failed)\n",
			cp.ProcessedItems, cp.TotalItems, len(cp.FailedItemIDs))
		cmd.Printf("    Updated:   %s\n", cp.UpdatedAt.Format("2006-01-02 15:04:05"))
		if cp.State.Resumable() {
			cmd.Printf("    Resume:    mailsync sync --resume --query %q\n", cp.Query)
		}
		cmd.Println()
	}

	cmd.Printf("Total: %d checkpoints\n", len(checkpoints))
	return nil
}

func runCheckpointsClear(cmd *cobra.Command, args []string) error {
	if checkpointStore == nil {
		return errors.New("checkpoint store not configured")
	}

	syncID := args[0]
	if err := checkpointStore.Delete(context.Background(), syncID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("no checkpoint with sync ID %s", syncID)
		}
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}

	cmd.Printf("Deleted checkpoint %s.\n", syncID)
	return nil
}
