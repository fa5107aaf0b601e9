// Package google provides shared infrastructure for the Gmail upstream
// adapter.
//
// This package contains common utilities used by the gmail subpackage
// including:
//   - Service factories for creating authenticated Google API clients
//   - Error classification mapping googleapi errors onto the pipeline's
//     transient/systemic/permanent taxonomy
//   - Retry-After extraction for rate limit backoff
//
// # Usage
//
//	ts, err := google.TokenSource(ctx, secretsFile, tokenFile)
//	svc, err := google.NewGmailService(ctx, ts)
//
// # OAuth2 Scopes
//
// The Gmail adapter uses the full https://mail.google.com/ scope: permanent
// delete is not covered by gmail.modify.
package google
