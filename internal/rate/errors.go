package rate

import "errors"

var (
	// ErrRateLimited means the attempt budget for the window is spent.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps backend failures; callers decide whether to
	// fail open or closed.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
