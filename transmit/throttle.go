// Copyright The Telemetry Channel Authors
// SPDX-License-Identifier: Apache-2.0

package transmit

import (
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// throttleGate tracks the collector-signalled cool-down window. A
// server-provided Retry-After wins; without one the cool-down grows
// exponentially across consecutive throttle events and resets after the next
// successful delivery.
type throttleGate struct {
	mu      sync.Mutex
	until   time.Time
	backoff *backoff.ExponentialBackOff
}

func newThrottleGate() *throttleGate {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Second
	b.MaxInterval = 5 * time.Minute
	b.Multiplier = 2
	b.RandomizationFactor = 0.1
	// The gate never gives up on its own.
	b.MaxElapsedTime = 0
	b.Reset()
	return &throttleGate{backoff: b}
}

// throttle opens a cool-down window and returns its length. The deadline
// only ever moves forward.
func (g *throttleGate) throttle(retryAfter time.Duration) time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	d := retryAfter
	if d <= 0 {
		d = g.backoff.NextBackOff()
	}
	until := time.Now().Add(d)
	if until.After(g.until) {
		g.until = until
	}
	return d
}

// reset clears the window and the backoff state after a success.
func (g *throttleGate) reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.until = time.Time{}
	g.backoff.Reset()
}

// remaining returns how long the gate stays closed, zero when open.
func (g *throttleGate) remaining() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.until.IsZero() {
		return 0
	}
	rem := time.Until(g.until)
	if rem < 0 {
		return 0
	}
	return rem
}
