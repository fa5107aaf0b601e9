package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/custodia-labs/mailsync-cli/internal/core/domain"
)

var deadletterCmd = &cobra.Command{
	Use:   "deadletter",
	Short: "Inspect and manage dead-lettered messages",
	Long: `Messages that fail permanently or exhaust their retries are recorded in
the dead-letter queue instead of being dropped. List them to diagnose
failures, export them for replay tooling, and clear entries once handled.`,
}

var deadletterListCmd = &cobra.Command{
	Use:   "list",
	Short: "List dead-lettered messages",
	RunE:  runDeadletterList,
}

var deadletterClearCmd = &cobra.Command{
	Use:   "clear [item-id]",
	Short: "Remove all dead-letter entries for a message",
	Args:  cobra.ExactArgs(1),
	RunE:  runDeadletterClear,
}

var deadletterExportCmd = &cobra.Command{
	Use:   "export [file]",
	Short: "Export dead-letter entries as YAML",
	Args:  cobra.ExactArgs(1),
	RunE:  runDeadletterExport,
}

var (
	deadletterOperation string
	deadletterCategory  string
)

func init() {
	deadletterListCmd.Flags().StringVar(&deadletterOperation, "operation", "", "filter by operation (fetch, trash, delete)")
	deadletterListCmd.Flags().StringVar(&deadletterCategory, "category", "", "filter by error category (transient, systemic, permanent)")
	deadletterExportCmd.Flags().StringVar(&deadletterOperation, "operation", "", "filter by operation (fetch, trash, delete)")
	deadletterExportCmd.Flags().StringVar(&deadletterCategory, "category", "", "filter by error category (transient, systemic, permanent)")

	deadletterCmd.AddCommand(deadletterListCmd)
	deadletterCmd.AddCommand(deadletterClearCmd)
	deadletterCmd.AddCommand(deadletterExportCmd)
	rootCmd.AddCommand(deadletterCmd)
}

func deadletterFilter() (domain.DeadLetterFilter, error) {
	var filter domain.DeadLetterFilter
	if deadletterOperation != "" {
		op := domain.Operation(deadletterOperation)
		if !op.Valid() {
			return filter, fmt.Errorf("unknown operation %q", deadletterOperation)
		}
		filter.Operation = op
	}
	if deadletterCategory != "" {
		cat := domain.ErrorCategory(deadletterCategory)
		if !cat.Valid() {
			return filter, fmt.Errorf("unknown error category %q", deadletterCategory)
		}
		filter.Category = cat
	}
	return filter, nil
}

func runDeadletterList(cmd *cobra.Command, args []string) error {
	if deadLetterQueue == nil {
		return errors.New("dead-letter queue not configured")
	}

	filter, err := deadletterFilter()
	if err != nil {
		return err
	}

	entries, err := deadLetterQueue.List(context.Background(), filter)
	if err != nil {
		return fmt.Errorf("failed to list dead letters: %w", err)
	}

	if len(entries) == 0 {
		cmd.Println("No dead-lettered messages.")
		return nil
	}

	cmd.Println("Dead-lettered messages:")
	cmd.Println()
	for i := range entries {
		e := &entries[i]
		cmd.Printf("  %s\n", e.ItemID)
		cmd.Printf("    Operation: %s\n", e.Operation)
		cmd.Printf("    Category:  %s\n", e.ErrorCategory)
		cmd.Printf("    Error:     %s\n", e.ErrorMessage)
		cmd.Printf("    Attempts:  %d\n", e.AttemptCount)
		cmd.Printf("    Last seen: %s\n", e.LastSeenAt.Format("2006-01-02 15:04:05"))
		cmd.Println()
	}

	cmd.Printf("Total: %d entries\n", len(entries))
	return nil
}

func runDeadletterClear(cmd *cobra.Command, args []string) error {
	if deadLetterQueue == nil {
		return errors.New("dead-letter queue not configured")
	}

	itemID := args[0]
	if err := deadLetterQueue.Clear(context.Background(), itemID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("no dead-letter entries for %s", itemID)
		}
		return fmt.Errorf("failed to clear dead letters: %w", err)
	}

	cmd.Printf("Cleared dead-letter entries for %s.\n", itemID)
	return nil
}

func runDeadletterExport(cmd *cobra.Command, args []string) error {
	if deadLetterQueue == nil {
		return errors.New("dead-letter queue not configured")
	}

	filter, err := deadletterFilter()
	if err != nil {
		return err
	}

	entries, err := deadLetterQueue.List(context.Background(), filter)
	if err != nil {
		return fmt.Errorf("failed to list dead letters: %w", err)
	}

	out, err := yaml.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to encode dead letters: %w", err)
	}

	if err := os.WriteFile(args[0], out, 0o600); err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}

	cmd.Printf("Exported %d entries to %s.\n", len(entries), args[0])
	return nil
}
