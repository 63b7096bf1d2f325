package httpx

import (
	"fmt"
	"time"

	"github.com/sony/gobreaker"
)

// CircuitBreaker shields the request path from a repeatedly failing
// dependency; once open, calls fail fast until the cool-off elapses.
type CircuitBreaker interface {
	Execute(fn func() error) error
}

type BreakerSettings struct {
	Name        string
	CoolOff     time.Duration // how long the breaker stays open
	MaxFailures uint32        // consecutive failures before tripping
	MaxProbes   uint32        // half-open probe requests
}

type breaker struct {
	cb *gobreaker.CircuitBreaker
}

func NewCircuitBreaker(s BreakerSettings) CircuitBreaker {
	if s.MaxProbes == 0 {
		s.MaxProbes = 3
	}
	if s.MaxFailures == 0 {
		s.MaxFailures = 5
	}
	return &breaker{
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        s.Name,
			MaxRequests: s.MaxProbes,
			Timeout:     s.CoolOff,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= s.MaxFailures
			},
		}),
	}
}

func (b *breaker) Execute(fn func() error) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if err != nil {
		return fmt.Errorf("breaker (%s): %w", b.cb.Name(), err)
	}
	return nil
}
