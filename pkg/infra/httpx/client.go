package httpx

import (
	"net/http"
	"time"
)

const DefaultTimeout = 5 * time.Second

// Client abstracts the HTTP transport used by outbound integrations so
// tests can substitute a fake. *http.Client satisfies it.
type Client interface {
	Do(req *http.Request) (*http.Response, error)
}

// NewClient returns a Client with a bounded overall timeout. A zero timeout
// falls back to DefaultTimeout; outbound calls must never be unbounded.
func NewClient(timeout time.Duration) Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout}
}
