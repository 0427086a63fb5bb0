// Copyright The Telemetry Channel Authors
// SPDX-License-Identifier: Apache-2.0

package transmit

import (
	"context"
	"fmt"
	"time"

	"github.com/openmonitor/telemetry-channel/telemetry"
)

// OutcomeKind classifies one delivery attempt.
type OutcomeKind int

const (
	// Delivered means the collector accepted the batch.
	Delivered OutcomeKind = iota

	// RetryableFailure is a transient network or server error; the attempt
	// may be repeated immediately.
	RetryableFailure

	// PermanentFailure means the batch will never be accepted (malformed
	// payload, auth rejection). It is dropped, not retried.
	PermanentFailure

	// Throttled means the collector signalled backpressure; transmission is
	// suppressed for a cool-down window.
	Throttled
)

func (k OutcomeKind) String() string {
	switch k {
	case Delivered:
		return "delivered"
	case RetryableFailure:
		return "retryable-failure"
	case PermanentFailure:
		return "permanent-failure"
	case Throttled:
		return "throttled"
	default:
		return fmt.Sprintf("unknown-outcome(%d)", int(k))
	}
}

// Outcome is the result of one delivery attempt. RetryAfter is only
// meaningful for Throttled and may be zero when the collector did not say
// how long to back off.
type Outcome struct {
	Kind       OutcomeKind
	RetryAfter time.Duration
}

// Sender is the network capability the pipeline composes: one attempt to
// deliver one serialized batch. Wire format and transport mechanics live
// behind this interface. Implementations must honor ctx cancellation.
type Sender interface {
	Send(ctx context.Context, batch *telemetry.Batch) Outcome
}
