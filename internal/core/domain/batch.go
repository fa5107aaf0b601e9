package domain

// ItemFailure describes why a single item failed within a batch.
type ItemFailure struct {
	Category ErrorCategory `json:"category"`
	Message  string        `json:"message"`
}

// BatchResult summarises the per-item outcomes of a batch execution.
// For a fully-processed batch Successful+Failed equals the requested count;
// batches aborted by the circuit breaker report only the items actually
// attempted.
type BatchResult struct {
	// Successful counts items that completed.
	Successful int
	// Failed counts items that failed after classification.
	Failed int
	// Failures maps item ID to its failure detail.
	Failures map[string]ItemFailure
}

// NewBatchResult returns an empty result.
func NewBatchResult() *BatchResult {
	return &BatchResult{Failures: make(map[string]ItemFailure)}
}

// RecordSuccess counts one completed item.
func (r *BatchResult) RecordSuccess() {
	r.Successful++
}

// RecordFailure counts one failed item with its classification.
func (r *BatchResult) RecordFailure(itemID string, category ErrorCategory, message string) {
	r.Failed++
	r.Failures[itemID] = ItemFailure{Category: category, Message: message}
}

// Attempted returns the number of items this result accounts for.
func (r *BatchResult) Attempted() int {
	return r.Successful + r.Failed
}

// Merge folds another result into this one.
func (r *BatchResult) Merge(other *BatchResult) {
	if other == nil {
		return
	}
	r.Successful += other.Successful
	r.Failed += other.Failed
	for id, f := range other.Failures {
		r.Failures[id] = f
	}
}
