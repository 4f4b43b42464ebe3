package rate

import "errors"

var (
	// ErrRateLimited is returned when a counter exceeds its budget.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps counter I/O failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
