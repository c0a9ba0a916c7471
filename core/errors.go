package core

import "errors"

// Error taxonomy for upstream collaborator failures. Executors catch all four
// kinds at their boundary and translate them into user-safe reply text; the
// dispatch engine never sees a raw upstream error escape an executor.
var (
	// ErrRateLimited indicates the upstream quota was exceeded. The completion
	// client retries internally before surfacing it.
	ErrRateLimited = errors.New("rate limited")

	// ErrUnavailable indicates a transient network or service failure.
	// Retried a bounded number of times, then surfaced.
	ErrUnavailable = errors.New("service unavailable")

	// ErrInvalidRequest indicates a malformed prompt or options: a programming
	// defect. Logged at error severity and never retried.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrNotFound indicates a missing thread or search target.
	ErrNotFound = errors.New("not found")
)

// ErrStaleTurn is returned by session appends whose turn sequence has been
// superseded by a newer turn on the same conversation key. The stale exchange
// is discarded; it is not part of the upstream taxonomy above.
var ErrStaleTurn = errors.New("stale turn superseded")
