package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/mailsync-cli/internal/breaker"
	"github.com/custodia-labs/mailsync-cli/internal/core/domain"
	"github.com/custodia-labs/mailsync-cli/internal/core/ports/driven"
	"github.com/custodia-labs/mailsync-cli/internal/core/ports/driving"
	"github.com/custodia-labs/mailsync-cli/internal/logger"
)

// Ensure SyncOrchestrator implements the interface.
var _ driving.SyncOrchestrator = (*SyncOrchestrator)(nil)

// RecoveryHinter reports how long until an open circuit admits traffic
// again. Implemented by breaker.Breaker.
type RecoveryHinter interface {
	RetryAfter() time.Duration
}

// SyncConfig holds orchestration tuning.
type SyncConfig struct {
	// CheckpointInterval persists progress every this many acknowledged
	// items, bounding both I/O overhead and resume granularity.
	CheckpointInterval int
	// MaxOpenCycles bounds how many times the run waits out an open
	// circuit before giving up and leaving an interrupted checkpoint.
	MaxOpenCycles int
	// MaxSystemicRetries bounds how often a systemically failed chunk
	// is retried at the same position. The circuit breaker normally
	// opens well before this bound; it exists so a run without a
	// breaker still terminates.
	MaxSystemicRetries int
}

// DefaultSyncConfig checkpoints every 50 items and tolerates 3 circuit
// reopen cycles per run.
var DefaultSyncConfig = SyncConfig{CheckpointInterval: 50, MaxOpenCycles: 3, MaxSystemicRetries: 10}

// SyncOrchestrator drives one sync run: enumerates candidate item IDs,
// feeds them through the BatchClient, persists progress checkpoints at a
// bounded cadence, and routes permanent failures to the dead-letter queue.
type SyncOrchestrator struct {
	enumerator  driven.ItemEnumerator
	batch       *BatchClient
	sink        driven.ItemSink
	checkpoints driven.CheckpointStore
	deadLetters driven.DeadLetterQueue
	hinter      RecoveryHinter
	cfg         SyncConfig

	// Status tracking
	mu          sync.RWMutex
	activeSyncs map[string]*driving.SyncStatus
}

// NewSyncOrchestrator creates a sync orchestrator. hinter is optional; when
// nil the run waits a fixed second between circuit reopen cycles.
func NewSyncOrchestrator(
	enumerator driven.ItemEnumerator,
	batch *BatchClient,
	sink driven.ItemSink,
	checkpoints driven.CheckpointStore,
	deadLetters driven.DeadLetterQueue,
	hinter RecoveryHinter,
	cfg SyncConfig,
) *SyncOrchestrator {
	if cfg.CheckpointInterval <= 0 {
		cfg.CheckpointInterval = DefaultSyncConfig.CheckpointInterval
	}
	if cfg.MaxOpenCycles < 0 {
		cfg.MaxOpenCycles = DefaultSyncConfig.MaxOpenCycles
	}
	if cfg.MaxSystemicRetries <= 0 {
		cfg.MaxSystemicRetries = DefaultSyncConfig.MaxSystemicRetries
	}
	return &SyncOrchestrator{
		enumerator:  enumerator,
		batch:       batch,
		sink:        sink,
		checkpoints: checkpoints,
		deadLetters: deadLetters,
		hinter:      hinter,
		cfg:         cfg,
		activeSyncs: make(map[string]*driving.SyncStatus),
	}
}

// Run executes one sync run to completion, failure, or interruption.
// The returned checkpoint always reflects the run's final persisted state.
//
//nolint:gocyclo // Orchestration function with necessary sequential steps
func (o *SyncOrchestrator) Run(ctx context.Context, req driving.RunRequest) (*domain.SyncCheckpoint, error) {
	if req.Query == "" {
		return nil, fmt.Errorf("query: %w", domain.ErrInvalidInput)
	}
	if !req.Operation.Valid() {
		return nil, fmt.Errorf("operation %q: %w", req.Operation, domain.ErrInvalidInput)
	}

	// 1. Resume check: reuse the latest resumable checkpoint or create
	// a fresh one.
	cp, fresh, err := o.checkpoint(ctx, req)
	if err != nil {
		return nil, err
	}

	status := &driving.SyncStatus{SyncID: cp.SyncID, Query: req.Query, Running: true}
	if !o.track(req.Query, status) {
		return nil, fmt.Errorf("query %q: %w", req.Query, domain.ErrSyncInProgress)
	}
	defer o.untrack(req.Query)

	if fresh {
		logger.Info("Starting sync %s for query %q", cp.SyncID, req.Query)
	} else {
		logger.Info("Resuming sync %s for query %q at %d/%d items",
			cp.SyncID, req.Query, cp.ProcessedItems, cp.TotalItems)
	}

	// 2. Enumerate the candidate set once, up front, so total_items is
	// known before work starts. The set is never re-queried mid-run.
	ids, err := o.enumerator.Enumerate(ctx, req.Query)
	if err != nil {
		o.abort(ctx, cp, fresh)
		return cp, fmt.Errorf("enumerate items: %w", err)
	}

	remaining := o.skipAcknowledged(cp, fresh, ids)

	if err := cp.Start(cp.ProcessedItems + len(remaining)); err != nil {
		return cp, err
	}
	if err := o.checkpoints.Save(ctx, cp); err != nil {
		o.abort(ctx, cp, fresh)
		return cp, fmt.Errorf("save checkpoint: %w", err)
	}

	status.TotalItems = cp.TotalItems
	status.ProcessedItems = cp.ProcessedItems

	// 3-4. Drive the remaining IDs through the batch client, persisting
	// progress every CheckpointInterval acknowledged items.
	runErr := o.process(ctx, req, cp, status, remaining)

	// 5. Final state.
	return o.finalise(ctx, cp, runErr)
}

// Status returns live progress for the run identified by query.
func (o *SyncOrchestrator) Status(_ context.Context, query string) (*driving.SyncStatus, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if status, ok := o.activeSyncs[query]; ok {
		// Return a copy to avoid race conditions.
		snapshot := *status
		return &snapshot, nil
	}
	return &driving.SyncStatus{Query: query, Running: false}, nil
}

// checkpoint finds a resumable checkpoint or creates a fresh pending one.
func (o *SyncOrchestrator) checkpoint(ctx context.Context, req driving.RunRequest) (*domain.SyncCheckpoint, bool, error) {
	if req.Resume {
		cp, err := o.checkpoints.GetLatestResumable(ctx, req.Query)
		switch {
		case err == nil:
			return cp, false, nil
		case !errors.Is(err, domain.ErrNotFound):
			return nil, false, fmt.Errorf("find resumable checkpoint: %w", err)
		}
		logger.Debug("No resumable checkpoint for query %q, starting fresh", req.Query)
	}

	cp := domain.NewSyncCheckpoint(uuid.NewString(), req.Query, req.Operation, req.OutputLocation, req.Metadata)
	if err := o.checkpoints.Save(ctx, cp); err != nil {
		return nil, false, fmt.Errorf("save checkpoint: %w", err)
	}
	return cp, true, nil
}

// skipAcknowledged drops items already acknowledged at or before the
// resume cursor. The enumerator's ordering is assumed stable across runs;
// if the cursor is no longer present the processed count is used as a
// prefix length instead.
func (o *SyncOrchestrator) skipAcknowledged(cp *domain.SyncCheckpoint, fresh bool, ids []string) []string {
	if fresh || cp.LastItemID == "" {
		return ids
	}
	if idx := slices.Index(ids, cp.LastItemID); idx >= 0 {
		return ids[idx+1:]
	}
	logger.Warn("Resume cursor %s not in enumeration; skipping %d items by count",
		cp.LastItemID, cp.ProcessedItems)
	if cp.ProcessedItems <= len(ids) {
		return ids[cp.ProcessedItems:]
	}
	return nil
}

// process drives the batch client over the remaining IDs, waiting out open
// circuits up to MaxOpenCycles times.
func (o *SyncOrchestrator) process(
	ctx context.Context,
	req driving.RunRequest,
	cp *domain.SyncCheckpoint,
	status *driving.SyncStatus,
	remaining []string,
) error {
	acked := 0
	pending := 0
	var pendingFailed []string
	var lastItemID string

	emit := func(outcome driven.ItemOutcome) {
		acked++
		pending++
		lastItemID = outcome.ItemID

		if outcome.Err != nil {
			o.deadLetter(ctx, req.Operation, outcome)
			pendingFailed = append(pendingFailed, outcome.ItemID)
		} else if o.sink != nil {
			if err := o.sink.Put(ctx, req.Operation, outcome.Item); err != nil {
				logger.Warn("Sink rejected item %s: %v", outcome.ItemID, err)
				o.deadLetter(ctx, req.Operation, driven.ItemOutcome{
					ItemID: outcome.ItemID,
					Err:    &domain.ItemError{ItemID: outcome.ItemID, Category: domain.CategoryPermanent, Err: err},
				})
				pendingFailed = append(pendingFailed, outcome.ItemID)
			}
		}

		o.updateStatus(status, cp, outcome.Err != nil)

		// Interim persist at the configured cadence; the final write
		// at run end covers the tail.
		if pending >= o.cfg.CheckpointInterval && cp.ProcessedItems+pending < cp.TotalItems {
			if err := cp.ApplyProgress(pending, lastItemID, pendingFailed); err != nil {
				logger.Warn("Checkpoint progress rejected: %v", err)
				return
			}
			pending = 0
			pendingFailed = nil
			if err := o.checkpoints.Save(ctx, cp); err != nil {
				logger.Warn("Checkpoint save failed (will retry at next interval): %v", err)
			}
		}
	}

	openCycles := 0
	systemicRetries := 0
	for {
		_, execErr := o.batch.Execute(ctx, req.Operation, remaining, emit)

		// Flush whatever the last interval did not cover.
		if pending > 0 {
			if err := cp.ApplyProgress(pending, lastItemID, pendingFailed); err == nil {
				pending = 0
				pendingFailed = nil
			}
		}

		if execErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return execErr
		}

		// Skip past whatever this attempt acknowledged; retries resume
		// at the first unacknowledged item, never past it.
		remaining = remaining[acked:]
		acked = 0

		if errors.Is(execErr, breaker.ErrOpen) {
			openCycles++
			if openCycles > o.cfg.MaxOpenCycles {
				logger.Warn("Circuit still open after %d recovery cycles, pausing run %s",
					o.cfg.MaxOpenCycles, cp.SyncID)
				return execErr
			}
			if err := o.waitForRecovery(ctx); err != nil {
				return err
			}
			logger.Info("Retrying run %s with %d items left", cp.SyncID, len(remaining))
			continue
		}

		// Systemic failure with the circuit still closed: retry the
		// same position and let the breaker accumulate failures until
		// it opens. Acknowledged items are never reattempted.
		systemicRetries++
		if systemicRetries > o.cfg.MaxSystemicRetries {
			return execErr
		}
		logger.Warn("Chunk failed systemically (attempt %d/%d) in run %s: %v",
			systemicRetries, o.cfg.MaxSystemicRetries, cp.SyncID, execErr)
	}
}

// waitForRecovery sleeps until the circuit should admit traffic again.
func (o *SyncOrchestrator) waitForRecovery(ctx context.Context) error {
	wait := time.Second
	if o.hinter != nil {
		if ra := o.hinter.RetryAfter(); ra > wait {
			wait = ra
		}
	}
	logger.Info("Circuit open, waiting %v before retrying", wait)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
		return nil
	}
}

// finalise persists the terminal (or interrupted) state and reports the
// run outcome.
func (o *SyncOrchestrator) finalise(ctx context.Context, cp *domain.SyncCheckpoint, runErr error) (*domain.SyncCheckpoint, error) {
	switch {
	case runErr == nil:
		if err := cp.MarkCompleted(); err != nil {
			return cp, err
		}
		logger.Info("Sync %s complete: %d/%d items, %d dead-lettered",
			cp.SyncID, cp.ProcessedItems, cp.TotalItems, len(cp.FailedItemIDs))

	case errors.Is(runErr, context.Canceled),
		errors.Is(runErr, context.DeadlineExceeded),
		errors.Is(runErr, breaker.ErrOpen):
		// Interrupted runs stay resumable: in-flight progress was
		// flushed, later invocations continue from the cursor.
		if err := cp.MarkInterrupted(); err != nil {
			return cp, err
		}
		logger.Warn("Sync %s interrupted at %d/%d items: %v",
			cp.SyncID, cp.ProcessedItems, cp.TotalItems, runErr)

	default:
		if err := cp.MarkFailed(); err != nil {
			return cp, err
		}
		logger.Warn("Sync %s failed at %d/%d items: %v",
			cp.SyncID, cp.ProcessedItems, cp.TotalItems, runErr)
	}

	// The terminal write uses a background-derived context so an
	// interrupted run can still persist its resume point.
	saveCtx := ctx
	if saveCtx.Err() != nil {
		var cancel context.CancelFunc
		saveCtx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}
	if err := o.checkpoints.Save(saveCtx, cp); err != nil {
		return cp, errors.Join(runErr, fmt.Errorf("save final checkpoint: %w", err))
	}
	return cp, runErr
}

// deadLetter routes a permanently failed item to the dead-letter queue.
func (o *SyncOrchestrator) deadLetter(ctx context.Context, op domain.Operation, outcome driven.ItemOutcome) {
	category := domain.CategoryPermanent
	message := outcome.Err.Error()

	var itemErr *domain.ItemError
	if errors.As(outcome.Err, &itemErr) {
		category = itemErr.Category
		message = itemErr.Err.Error()
	}

	entry := domain.NewDeadLetterEntry(outcome.ItemID, op, category, message)
	if err := o.deadLetters.Record(ctx, entry); err != nil {
		logger.Warn("Dead-letter record failed for item %s: %v", outcome.ItemID, err)
	}
}

func (o *SyncOrchestrator) updateStatus(status *driving.SyncStatus, cp *domain.SyncCheckpoint, failed bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	status.ProcessedItems++
	if failed {
		status.FailedItems++
		status.DeadLettered++
	}
	status.TotalItems = cp.TotalItems
}

// track registers a running sync, refusing concurrent runs for one query.
func (o *SyncOrchestrator) track(query string, status *driving.SyncStatus) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, running := o.activeSyncs[query]; running {
		return false
	}
	o.activeSyncs[query] = status
	return true
}

func (o *SyncOrchestrator) untrack(query string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.activeSyncs, query)
}

// abort marks a checkpoint after a pre-processing failure: fresh runs are
// failed outright, resumed runs stay interrupted so the prior progress is
// not lost.
func (o *SyncOrchestrator) abort(ctx context.Context, cp *domain.SyncCheckpoint, fresh bool) {
	var err error
	if fresh {
		err = cp.MarkFailed()
	} else {
		err = cp.MarkInterrupted()
	}
	if err == nil {
		err = o.checkpoints.Save(ctx, cp)
	}
	if err != nil {
		logger.Warn("Abort bookkeeping failed for sync %s: %v", cp.SyncID, err)
	}
}
