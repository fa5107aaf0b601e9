package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/mailsync-cli/internal/breaker"
	"github.com/custodia-labs/mailsync-cli/internal/core/domain"
	"github.com/custodia-labs/mailsync-cli/internal/core/ports/driven"
	"github.com/custodia-labs/mailsync-cli/internal/logger"
)

// RateGate admits outbound work at a bounded rate. Implemented by
// ratelimit.Limiter; tests substitute fakes.
type RateGate interface {
	Acquire(ctx context.Context, cost int) (time.Duration, error)
}

// CallGate guards calls against a failing upstream. Implemented by
// breaker.Breaker; a rejected call returns breaker.ErrOpen.
type CallGate interface {
	Call(ctx context.Context, fn func(context.Context) error) error
}

// BatchConfig holds batch execution tuning.
type BatchConfig struct {
	// MaxBatchSize caps items per batch call. Clamped to the
	// transport's protocol bound.
	MaxBatchSize int
	// MaxItemRetries bounds transient-error retries per item on the
	// sequential path before the item is treated as permanently failed.
	MaxItemRetries int
}

// DefaultBatchConfig mirrors the upstream batch endpoint limit of 100
// requests per call.
var DefaultBatchConfig = BatchConfig{MaxBatchSize: 100, MaxItemRetries: 2}

// EmitFunc observes the final outcome of each attempted item, in request
// order. Failure outcomes carry a *domain.ItemError.
type EmitFunc func(outcome driven.ItemOutcome)

// BatchClient groups many item operations into bounded-size batch calls,
// guarded by a rate limiter and a circuit breaker, and demultiplexes the
// batch response into per-item outcomes. When the batching protocol itself
// fails it degrades to a sequential one-item-per-call fallback so a batch
// outage costs throughput, not availability.
type BatchClient struct {
	transport driven.BatchTransport
	limiter   RateGate
	gate      CallGate
	classify  domain.Classifier
	cfg       BatchConfig
}

// NewBatchClient creates a batch client. limiter and gate are the
// process-wide guards for the upstream target; classify is the
// transport-specific error classifier.
func NewBatchClient(
	transport driven.BatchTransport,
	limiter RateGate,
	gate CallGate,
	classify domain.Classifier,
	cfg BatchConfig,
) *BatchClient {
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = DefaultBatchConfig.MaxBatchSize
	}
	if cfg.MaxItemRetries < 0 {
		cfg.MaxItemRetries = DefaultBatchConfig.MaxItemRetries
	}
	return &BatchClient{
		transport: transport,
		limiter:   limiter,
		gate:      gate,
		classify:  classify,
		cfg:       cfg,
	}
}

// Execute applies the operation to every item ID, chunked into batch calls.
// emit (optional) observes each final per-item outcome in request order.
// A non-nil error means the run was aborted systemically; the returned
// result then covers only the items actually attempted.
func (c *BatchClient) Execute(
	ctx context.Context,
	op domain.Operation,
	itemIDs []string,
	emit EmitFunc,
) (*domain.BatchResult, error) {
	result := domain.NewBatchResult()
	size := c.chunkSize()

	for start := 0; start < len(itemIDs); start += size {
		end := min(start+size, len(itemIDs))
		chunk := itemIDs[start:end]

		if err := c.executeChunk(ctx, op, chunk, emit, result); err != nil {
			return result, err
		}
	}
	return result, nil
}

// executeChunk runs one batch call and demultiplexes its outcomes,
// degrading to the sequential path when the batch protocol fails.
func (c *BatchClient) executeChunk(
	ctx context.Context,
	op domain.Operation,
	chunk []string,
	emit EmitFunc,
	result *domain.BatchResult,
) error {
	waited, err := c.limiter.Acquire(ctx, len(chunk))
	if err != nil {
		return err
	}
	if waited > time.Second {
		logger.Debug("Rate limiter delayed batch by %v", waited)
	}

	var outcomes []driven.ItemOutcome
	callErr := c.gate.Call(ctx, func(ctx context.Context) error {
		var batchErr error
		outcomes, batchErr = c.transport.ExecuteBatch(ctx, op, chunk)
		return batchErr
	})

	switch {
	case callErr == nil:
		return c.applyOutcomes(ctx, op, chunk, outcomes, emit, result)

	case errors.Is(callErr, breaker.ErrOpen):
		return callErr

	case c.classify(callErr) == domain.CategorySystemic:
		logger.Warn("Batch %s call failed systemically for items %v: %v", op, chunk, callErr)
		return callErr

	default:
		// Batching-protocol failure: the items themselves may be fine.
		logger.Warn("Batch %s call failed, retrying %d items sequentially: %v (items: %v)",
			op, len(chunk), callErr, chunk)
		return c.sequential(ctx, op, chunk, emit, result)
	}
}

// applyOutcomes folds the demultiplexed batch response into the result,
// preserving request order. Items that failed transiently inside an
// otherwise successful batch are retried one-by-one.
func (c *BatchClient) applyOutcomes(
	ctx context.Context,
	op domain.Operation,
	chunk []string,
	outcomes []driven.ItemOutcome,
	emit EmitFunc,
	result *domain.BatchResult,
) error {
	byID := make(map[string]driven.ItemOutcome, len(outcomes))
	for _, o := range outcomes {
		byID[o.ItemID] = o
	}

	for _, id := range chunk {
		outcome, ok := byID[id]
		if !ok {
			// The upstream dropped the item from the response.
			c.fail(op, id, domain.CategoryPermanent,
				fmt.Errorf("missing from batch response: %w", domain.ErrNotFound), emit, result)
			continue
		}

		switch {
		case outcome.Err == nil:
			c.finish(op, outcome, emit, result)

		case c.classify(outcome.Err) == domain.CategoryPermanent:
			c.fail(op, id, domain.CategoryPermanent, outcome.Err, emit, result)

		default:
			// Transient or systemic for one item only: retry it
			// individually rather than failing the whole chunk.
			if err := c.retryOne(ctx, op, id, emit, result); err != nil {
				return err
			}
		}
	}
	return nil
}

// sequential is the fallback path: the same item set, one call per item,
// with bounded retries. Produces the same per-item classification as the
// batch path.
func (c *BatchClient) sequential(
	ctx context.Context,
	op domain.Operation,
	chunk []string,
	emit EmitFunc,
	result *domain.BatchResult,
) error {
	for _, id := range chunk {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.retryOne(ctx, op, id, emit, result); err != nil {
			return err
		}
	}
	return nil
}

// retryOne drives a single item to a final outcome. Transient errors are
// retried up to MaxItemRetries times; permanent errors and exhausted
// retries are recorded as item failures. Systemic errors and an open
// circuit abort the run.
func (c *BatchClient) retryOne(
	ctx context.Context,
	op domain.Operation,
	id string,
	emit EmitFunc,
	result *domain.BatchResult,
) error {
	var lastErr error

	for attempt := 0; attempt <= c.cfg.MaxItemRetries; attempt++ {
		if _, err := c.limiter.Acquire(ctx, 1); err != nil {
			return err
		}

		var item *domain.Item
		callErr := c.gate.Call(ctx, func(ctx context.Context) error {
			var e error
			item, e = c.transport.Execute(ctx, op, id)
			return e
		})

		if callErr == nil {
			c.finish(op, driven.ItemOutcome{ItemID: id, Item: item}, emit, result)
			return nil
		}
		if errors.Is(callErr, breaker.ErrOpen) {
			return callErr
		}

		switch c.classify(callErr) {
		case domain.CategoryPermanent:
			c.fail(op, id, domain.CategoryPermanent, callErr, emit, result)
			return nil
		case domain.CategorySystemic:
			return callErr
		default:
			lastErr = callErr
			logger.Debug("Transient error for item %s (attempt %d/%d): %v",
				id, attempt+1, c.cfg.MaxItemRetries+1, callErr)
		}
	}

	c.fail(op, id, domain.CategoryTransient,
		fmt.Errorf("%w after %d attempts: %v", domain.ErrRetriesExhausted, c.cfg.MaxItemRetries+1, lastErr),
		emit, result)
	return nil
}

// finish records a successful item.
func (c *BatchClient) finish(_ domain.Operation, outcome driven.ItemOutcome, emit EmitFunc, result *domain.BatchResult) {
	result.RecordSuccess()
	if emit != nil {
		emit(outcome)
	}
}

// fail records a classified item failure.
func (c *BatchClient) fail(
	op domain.Operation,
	id string,
	category domain.ErrorCategory,
	err error,
	emit EmitFunc,
	result *domain.BatchResult,
) {
	itemErr := &domain.ItemError{ItemID: id, Category: category, Err: err}
	result.RecordFailure(id, category, err.Error())
	logger.Debug("Item %s failed %s: %v", id, op, err)
	if emit != nil {
		emit(driven.ItemOutcome{ItemID: id, Err: itemErr})
	}
}

func (c *BatchClient) chunkSize() int {
	size := c.cfg.MaxBatchSize
	if bound := c.transport.MaxBatchSize(); bound > 0 && bound < size {
		size = bound
	}
	return size
}
