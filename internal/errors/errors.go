package errors

import "errors"

// Common application errors for type-safe error handling.
// These errors can be checked using errors.Is() instead of string comparison.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrUnauthorized = errors.New("unauthorized")
	ErrInternal     = errors.New("internal server error")

	// ErrUnsupportedMediaType rejects an upload whose MIME type is not in
	// the ingest allow-list. Surfaced to the user as an actionable message.
	ErrUnsupportedMediaType = errors.New("unsupported media type")

	// ErrCompressionBudgetExceeded means the image could not be compressed
	// under the configured byte ceiling even at the minimum quality floor.
	ErrCompressionBudgetExceeded = errors.New("compression budget exceeded")

	// ErrFetchFailed aborts a single listing load. The consuming view keeps
	// its last good snapshot instead of clearing to empty.
	ErrFetchFailed = errors.New("listing fetch failed")

	// ErrMediaUnresolved is per-item and non-fatal: the item degrades to a
	// placeholder image and never aborts sibling resolutions.
	ErrMediaUnresolved = errors.New("media unresolved")

	// ErrSubscriptionDegraded signals lost change-feed connectivity. Views
	// flip to a stale-data indicator and may fall back to polling.
	ErrSubscriptionDegraded = errors.New("subscription degraded")
)
