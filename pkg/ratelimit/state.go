// Package ratelimit gates requests after the API answered 429 Too Many
// Requests. The block-until timestamp lives in Redis so every client sharing
// the database backs off together.
package ratelimit

import "time"

// Redis keys for throttle state storage.
const (
	RedisKeyBlockedUntil = "ram:throttle:blocked_until"
	RedisKeyLastUpdate   = "ram:throttle:last_update"
)

// DefaultRetryAfter is used when a 429 response carries no usable Retry-After header.
const DefaultRetryAfter = 10 * time.Second

// ThrottleState is the current server-imposed backoff.
type ThrottleState struct {
	// BlockedUntil is when requests may resume. Zero means not blocked.
	BlockedUntil time.Time `json:"blocked_until"`

	// LastUpdate is when the state was last written.
	LastUpdate time.Time `json:"last_update"`
}

// IsBlocked reports whether requests must be held back.
func (s *ThrottleState) IsBlocked() bool {
	return time.Now().Before(s.BlockedUntil)
}

// Remaining returns the time until requests may resume, 0 if not blocked.
func (s *ThrottleState) Remaining() time.Duration {
	d := time.Until(s.BlockedUntil)
	if d < 0 {
		return 0
	}
	return d
}
