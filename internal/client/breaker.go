package client

import (
	"errors"
	"time"

	"github.com/sony/gobreaker"
)

// BreakerConfig holds circuit breaker parameters for archive calls.
type BreakerConfig struct {
	FailureThreshold uint32
	HalfOpenRequests uint32
	Timeout          time.Duration
	OnStateChange    func(from, to gobreaker.State)
}

// NewCircuitBreaker builds a breaker that opens after FailureThreshold
// consecutive failures. Requests the provider rejected as bad (4xx other
// than 429) and rejected queries do not count as failures.
func NewCircuitBreaker(cfg BreakerConfig) *gobreaker.CircuitBreaker {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.HalfOpenRequests == 0 {
		cfg.HalfOpenRequests = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	onChange := cfg.OnStateChange
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "archive_api",
		MaxRequests: cfg.HalfOpenRequests,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(_ string, from, to gobreaker.State) {
			if onChange != nil {
				onChange(from, to)
			}
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrBadRequest) || errors.Is(err, ErrInvalidQuery)
		},
	})
}
