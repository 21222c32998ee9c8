package domain

import "time"

// BreakerState is the circuit breaker state carried between runs. A zero
// OpenedAt means the breaker was closed when the last run ended.
type BreakerState struct {
	ConsecutiveFailures uint32    `json:"consecutive_failures"`
	OpenedAt            time.Time `json:"opened_at"`
}

// IsOpen reports whether the breaker was open at the time and still within timeout
func (s BreakerState) IsOpen(now time.Time, timeout time.Duration) bool {
	return !s.OpenedAt.IsZero() && now.Sub(s.OpenedAt) < timeout
}
