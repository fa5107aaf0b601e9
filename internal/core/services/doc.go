// Package services implements the driving port interfaces.
// Services contain the core business logic: batch execution with
// rate-limit and circuit-breaker guards, and sync orchestration with
// checkpointed resume and dead-letter routing.
//
// Services depend only on domain types, driven ports, and the leaf
// ratelimit/breaker packages injected at construction.
package services
