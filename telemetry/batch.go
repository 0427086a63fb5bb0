// Copyright The Telemetry Channel Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import "github.com/google/uuid"

// Batch is an ordered, sealed group of events handed to the transmission
// pipeline as one delivery unit. Insertion order is preserved. A batch is
// immutable once created and lives until it reaches a terminal transmission
// outcome or is handed to durable overflow storage.
type Batch struct {
	id     string
	events []*Event
}

// NewBatch seals the given events into a batch. The slice is owned by the
// batch afterwards; callers must not append to it.
func NewBatch(events []*Event) *Batch {
	return &Batch{
		id:     uuid.NewString(),
		events: events,
	}
}

// ID returns the batch identifier, used for logging and spill file naming.
func (b *Batch) ID() string {
	return b.id
}

// Events returns the events in insertion order. The returned slice must be
// treated as read-only.
func (b *Batch) Events() []*Event {
	return b.events
}

// Len returns the number of events in the batch.
func (b *Batch) Len() int {
	return len(b.events)
}

// Size returns the summed size estimate of all events in the batch.
func (b *Batch) Size() int {
	total := 0
	for _, ev := range b.events {
		total += ev.Size
	}
	return total
}
