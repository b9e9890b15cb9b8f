package types

import "errors"

// Shared allocator errors. Sentinel variables let callers detect conditions
// with errors.Is instead of string comparison; mutating paths wrap these with
// fmt.Errorf("%w: ...") to attach detail.

var (
	// ErrInvalidConfig is returned when constructor parameters fall outside
	// the configured bounds. Fatal: the caller must fix the configuration
	// and retry construction.
	ErrInvalidConfig = errors.New("grove: invalid configuration")

	// ErrSessionExpired is returned when a session's wall-clock timeout has
	// elapsed, or the token was never issued by this allocator. Recoverable:
	// the caller re-authenticates and retries.
	ErrSessionExpired = errors.New("grove: session expired")

	// ErrInsufficientCapacity is returned when no node (or, for compute,
	// the whole tree) can satisfy the requested size at the requested
	// priority. Recoverable: retry later, lower priority, or ask for less.
	ErrInsufficientCapacity = errors.New("grove: insufficient capacity")

	// ErrUnknownHandle is returned when a release names no live allocation:
	// a double release, a foreign owner, or a corrupted handle. This is a
	// caller bug and is surfaced, never retried.
	ErrUnknownHandle = errors.New("grove: unknown handle")

	// ErrClosed is returned by every operation invoked after Shutdown.
	ErrClosed = errors.New("grove: allocator closed")
)
