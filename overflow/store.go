// Copyright The Telemetry Channel Authors
// SPDX-License-Identifier: Apache-2.0

// Package overflow provides durable storage for batches that could not be
// delivered: transient failures and throttling spill here, and a background
// task drains the store back into the transmission pipeline later.
package overflow

import "github.com/openmonitor/telemetry-channel/telemetry"

// Store is the durable overflow capability. Capacity is bounded; a full
// store refuses the spill and the caller drops the batch. That is an
// expected overload outcome, not an error.
type Store interface {
	// Spill persists the batch, returning false when the store is at
	// capacity or the batch could not be written.
	Spill(batch *telemetry.Batch) bool

	// Drain removes and returns all currently stored batches. The bounded
	// capacity keeps the result bounded too. Undecodable entries are
	// discarded, never returned.
	Drain() []*telemetry.Batch

	// Close releases resources held by the store.
	Close() error
}
