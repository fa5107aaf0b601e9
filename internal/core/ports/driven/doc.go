// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
//   - ItemEnumerator: Lists the candidate item IDs for a query
//   - BatchTransport: Executes batch and single-item upstream calls
//   - ItemSink: Receives fetched/mutated item payloads
//   - CheckpointStore: Sync progress persistence
//   - DeadLetterQueue: Permanently failed item persistence
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter or connector package
package driven
