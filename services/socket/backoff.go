package socket

import (
	"time"

	"github.com/cenkalti/backoff"
)

// LinearBackOff waits Base × attempt before each reconnect. Reset starts the
// count over; pair it with backoff.WithMaxRetries to cap the attempts.
type LinearBackOff struct {
	Base    time.Duration
	attempt int64
}

func (b *LinearBackOff) NextBackOff() time.Duration {
	b.attempt++
	return b.Base * time.Duration(b.attempt)
}

func (b *LinearBackOff) Reset() {
	b.attempt = 0
}

// NewReconnectPolicy is the push channel policy: linear, capped at maxAttempts.
func NewReconnectPolicy(base time.Duration, maxAttempts int) backoff.BackOff {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return backoff.WithMaxRetries(&LinearBackOff{Base: base}, uint64(maxAttempts))
}
