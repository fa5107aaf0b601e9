package google

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"

	"google.golang.org/api/googleapi"

	"github.com/custodia-labs/mailsync-cli/internal/core/domain"
)

// Classify maps a Google API error onto the pipeline's error taxonomy.
// It is the domain.Classifier for the Gmail upstream.
//
// Systemic errors cover everything that indicates the upstream as a whole
// is refusing traffic: expired credentials, quota exhaustion, rate limit
// rejections, server errors, and unreachable hosts. Retrying other items
// during such a condition only burns quota, so these trip the breaker.
func Classify(err error) domain.ErrorCategory {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == http.StatusUnauthorized,
			gerr.Code == http.StatusTooManyRequests,
			gerr.Code >= http.StatusInternalServerError:
			return domain.CategorySystemic

		case gerr.Code == http.StatusForbidden:
			// Gmail reports per-user quota exhaustion as 403
			// userRateLimitExceeded, so 403 is upstream-wide too.
			return domain.CategorySystemic

		case gerr.Code == http.StatusBadRequest,
			gerr.Code == http.StatusNotFound,
			gerr.Code == http.StatusGone:
			return domain.CategoryPermanent

		default:
			return domain.CategoryTransient
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return domain.CategoryTransient
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return domain.CategoryTransient
		}
		// Connection refused, DNS failure: the host is unreachable for
		// every item, not just this one.
		return domain.CategorySystemic
	}

	return domain.CategoryTransient
}

// IsFailure reports whether an error should count against the circuit
// breaker. Permanent per-item errors never trip it.
func IsFailure(err error) bool {
	return Classify(err) != domain.CategoryPermanent
}

// IsRateLimited returns true if the error indicates rate limiting.
func IsRateLimited(err error) bool {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code == http.StatusTooManyRequests
	}
	return false
}

// RetryAfterSeconds extracts the Retry-After header from a rate limit
// response. Returns 0 when the upstream gave no hint.
func RetryAfterSeconds(err error) int {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return 0
	}
	seconds, convErr := strconv.Atoi(gerr.Header.Get("Retry-After"))
	if convErr != nil || seconds < 0 {
		return 0
	}
	return seconds
}
