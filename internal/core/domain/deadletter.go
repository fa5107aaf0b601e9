package domain

import "time"

// DeadLetterEntry is the durable record of an item that exhausted its
// retries or failed permanently. Entries are created on first permanent
// failure, updated on repeat failures across runs, and removed only by
// explicit operator action.
type DeadLetterEntry struct {
	ItemID        string        `json:"item_id" yaml:"item_id"`
	Operation     Operation     `json:"operation" yaml:"operation"`
	ErrorCategory ErrorCategory `json:"error_category" yaml:"error_category"`
	ErrorMessage  string        `json:"error_message" yaml:"error_message"`
	AttemptCount  int           `json:"attempt_count" yaml:"attempt_count"`
	FirstSeenAt   time.Time     `json:"first_seen_at" yaml:"first_seen_at"`
	LastSeenAt    time.Time     `json:"last_seen_at" yaml:"last_seen_at"`
}

// NewDeadLetterEntry creates a first-attempt entry.
func NewDeadLetterEntry(itemID string, op Operation, category ErrorCategory, message string) *DeadLetterEntry {
	now := time.Now().UTC()
	return &DeadLetterEntry{
		ItemID:        itemID,
		Operation:     op,
		ErrorCategory: category,
		ErrorMessage:  message,
		AttemptCount:  1,
		FirstSeenAt:   now,
		LastSeenAt:    now,
	}
}

// DeadLetterFilter narrows a dead-letter listing. Zero fields match
// everything.
type DeadLetterFilter struct {
	Operation Operation
	Category  ErrorCategory
}

// Matches reports whether an entry satisfies the filter.
func (f DeadLetterFilter) Matches(e DeadLetterEntry) bool {
	if f.Operation != "" && e.Operation != f.Operation {
		return false
	}
	if f.Category != "" && e.ErrorCategory != f.Category {
		return false
	}
	return true
}
