// mailsync is a CLI for bulk Gmail operations: fetch, trash, or delete
// every message matching a query, with rate limiting, circuit breaking,
// and crash-safe resume.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"golang.org/x/oauth2"

	configfile "github.com/custodia-labs/mailsync-cli/internal/adapters/driven/config/file"
	"github.com/custodia-labs/mailsync-cli/internal/adapters/driven/output/eml"
	filestore "github.com/custodia-labs/mailsync-cli/internal/adapters/driven/storage/file"
	"github.com/custodia-labs/mailsync-cli/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/mailsync-cli/internal/adapters/driving/cli"
	"github.com/custodia-labs/mailsync-cli/internal/breaker"
	"github.com/custodia-labs/mailsync-cli/internal/connectors/google"
	"github.com/custodia-labs/mailsync-cli/internal/connectors/google/gmail"
	"github.com/custodia-labs/mailsync-cli/internal/core/ports/driven"
	"github.com/custodia-labs/mailsync-cli/internal/core/ports/driving"
	"github.com/custodia-labs/mailsync-cli/internal/core/services"
	"github.com/custodia-labs/mailsync-cli/internal/ratelimit"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("resolving home directory: %w", err)
	}
	dataDir := filepath.Join(home, ".mailsync")

	cfgStore, err := configfile.NewConfigStore(dataDir)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	cfg := cfgStore.Config()

	store, err := sqlite.NewStore(filepath.Join(dataDir, "data"))
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer store.Close()

	checkpoints, err := checkpointBackend(cfg, dataDir, store)
	if err != nil {
		return err
	}

	// One limiter and one breaker per process: every Gmail call shares
	// the same quota budget and the same view of upstream health.
	limiter := ratelimit.New(ratelimit.Config{
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		BurstSize:         cfg.RateLimit.BurstSize,
	})
	gate := breaker.New(breaker.Config{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		SuccessThreshold: cfg.Breaker.SuccessThreshold,
		RecoveryTimeout:  cfg.Breaker.RecoveryTimeout(),
		IsFailure:        google.IsFailure,
	})

	cli.SetServices(cli.Services{
		SyncFactory: newSyncFactory(ctx, cfg, checkpoints, store.DeadLetterQueue(), limiter, gate),
		Checkpoints: checkpoints,
		DeadLetters: store.DeadLetterQueue(),
	})

	return cli.ExecuteContext(ctx)
}

// checkpointBackend picks the configured checkpoint store. Dead letters
// always live in SQLite; only checkpoint persistence is selectable.
func checkpointBackend(cfg configfile.Config, dataDir string, store *sqlite.Store) (driven.CheckpointStore, error) {
	switch cfg.Storage.CheckpointBackend {
	case "", "sqlite":
		return store.CheckpointStore(), nil
	case "file":
		return filestore.NewCheckpointStore(filepath.Join(dataDir, "checkpoints"))
	default:
		return nil, fmt.Errorf("unknown checkpoint backend %q (want sqlite or file)", cfg.Storage.CheckpointBackend)
	}
}

// newSyncFactory defers Gmail client construction until a sync actually
// runs, so checkpoint and dead-letter commands work without credentials.
func newSyncFactory(
	ctx context.Context,
	cfg configfile.Config,
	checkpoints driven.CheckpointStore,
	deadLetters driven.DeadLetterQueue,
	limiter *ratelimit.Limiter,
	gate *breaker.Breaker,
) cli.SyncFactory {
	return func(outputDir string) (driving.SyncOrchestrator, error) {
		ts, err := google.TokenSource(ctx, cfg.Credentials.ClientSecretsFile, cfg.Credentials.TokenFile)
		if err != nil {
			return nil, fmt.Errorf("gmail credentials: %w", err)
		}
		svc, err := google.NewGmailService(ctx, ts)
		if err != nil {
			return nil, fmt.Errorf("gmail service: %w", err)
		}

		if outputDir == "" {
			outputDir = cfg.Output.Directory
		}
		sink, err := eml.NewSink(outputDir)
		if err != nil {
			return nil, fmt.Errorf("output directory: %w", err)
		}

		transport := gmail.NewTransport(svc, oauth2.NewClient(ctx, ts), limiter)
		batch := services.NewBatchClient(transport, limiter, gate, google.Classify, services.BatchConfig{
			MaxBatchSize:   cfg.Batch.MaxBatchSize,
			MaxItemRetries: cfg.Batch.MaxItemRetries,
		})

		return services.NewSyncOrchestrator(
			gmail.NewEnumerator(svc),
			batch,
			sink,
			checkpoints,
			deadLetters,
			gate,
			services.SyncConfig{
				CheckpointInterval: cfg.Sync.CheckpointInterval,
				MaxOpenCycles:      cfg.Sync.MaxOpenCycles,
			},
		), nil
	}
}
