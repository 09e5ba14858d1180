// Package service provides retrieval, ranking and ingestion logic for recall.
package service

import (
	"errors"
	"sync"
	"time"
)

// Circuit breaker configuration.
const (
	cbFailureThreshold = 5
	cbCooldown         = 30 * time.Second
)

// Circuit breaker states.
const (
	cbClosed   = iota // Normal operation.
	cbOpen            // Fail fast.
	cbHalfOpen        // Probe with one request.
)

// ErrCircuitOpen is returned when a circuit breaker is open and requests
// are being rejected without calling the external service.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// breaker guards one external dependency.
type breaker struct {
	mu            sync.Mutex
	state         int
	failures      int
	lastFailureAt time.Time
	now           func() time.Time
}

func newBreaker() *breaker {
	return &breaker{state: cbClosed, now: time.Now}
}

// allow checks whether the breaker permits a request.
// In closed state, all requests pass. In open state, requests are rejected
// until the cooldown expires, at which point we transition to half-open.
// In half-open state, one probe request is allowed.
func (b *breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case cbOpen:
		if b.now().Sub(b.lastFailureAt) >= cbCooldown {
			b.state = cbHalfOpen

			return nil
		}

		return ErrCircuitOpen
	case cbHalfOpen:
		return ErrCircuitOpen
	}

	return nil
}

func (b *breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	b.state = cbClosed
}

func (b *breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.lastFailureAt = b.now()

	if b.failures >= cbFailureThreshold || b.state == cbHalfOpen {
		b.state = cbOpen
	}
}

// isOpen reports whether requests are currently being rejected.
func (b *breaker) isOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.state == cbOpen && b.now().Sub(b.lastFailureAt) < cbCooldown
}

// do runs fn under the breaker.
func (b *breaker) do(fn func() error) error {
	if err := b.allow(); err != nil {
		return err
	}

	if err := fn(); err != nil {
		b.recordFailure()

		return err
	}

	b.recordSuccess()

	return nil
}
