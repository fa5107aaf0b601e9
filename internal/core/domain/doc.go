// Package domain defines the core business entities for mailsync.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - SyncCheckpoint: Durable record of a sync run's progress
//   - BatchResult: Per-item outcomes of one batch execution
//   - DeadLetterEntry: Permanently failed item awaiting operator action
//   - Item: A fetched or mutated mail message
//   - ErrorCategory: Closed classification of upstream failures
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
