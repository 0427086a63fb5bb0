// Copyright The Telemetry Channel Authors
// SPDX-License-Identifier: Apache-2.0

// Package buffer accumulates accepted telemetry events into batches. A batch
// is emitted when it reaches the configured capacity, when the periodic flush
// timer fires, or on an explicit flush. The mutex is held only across the
// swap of the active slice, never across the emit callback doing real work.
package buffer

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/openmonitor/telemetry-channel/limits"
	"github.com/openmonitor/telemetry-channel/telemetry"
)

// Default bounds for the two buffer knobs. Out-of-range configured values are
// clamped to the nearest bound.
const (
	DefaultMaxBatchSize = 500
	MinMaxBatchSize     = 1
	MaxMaxBatchSize     = 1000

	DefaultFlushIntervalSeconds = 5
	MinFlushIntervalSeconds     = 1
	MaxFlushIntervalSeconds     = 300
)

// Buffer is a thread-safe accumulator of telemetry events.
type Buffer struct {
	mu            sync.Mutex
	events        []*telemetry.Event
	maxBatchSize  int
	flushInterval int

	// emit receives sealed batches. It must not block on network I/O; the
	// transmitter's submit is non-blocking by contract.
	emit func(*telemetry.Batch)

	capacityEnforcer *limits.Enforcer
	intervalEnforcer *limits.Enforcer
}

// New creates a buffer emitting batches through emit. maxBatchSize and
// flushIntervalSeconds are clamped into their valid ranges.
func New(maxBatchSize, flushIntervalSeconds int, emit func(*telemetry.Batch)) (*Buffer, error) {
	capacityEnforcer, err := limits.NewClosestEnforcer("MaxTelemetryBufferCapacity",
		MinMaxBatchSize, MaxMaxBatchSize, DefaultMaxBatchSize)
	if err != nil {
		return nil, err
	}
	intervalEnforcer, err := limits.NewClosestEnforcer("FlushIntervalInSeconds",
		MinFlushIntervalSeconds, MaxFlushIntervalSeconds, DefaultFlushIntervalSeconds)
	if err != nil {
		return nil, err
	}
	b := &Buffer{
		emit:             emit,
		capacityEnforcer: capacityEnforcer,
		intervalEnforcer: intervalEnforcer,
	}
	b.maxBatchSize = capacityEnforcer.Normalize(maxBatchSize)
	b.flushInterval = intervalEnforcer.Normalize(flushIntervalSeconds)
	b.events = make([]*telemetry.Event, 0, b.maxBatchSize)
	return b, nil
}

// Add appends the event to the current batch. When the batch reaches
// capacity, a new empty batch is installed atomically and the full one is
// emitted. Add never blocks beyond the swap critical section.
func (b *Buffer) Add(ev *telemetry.Event) {
	if ev == nil {
		return
	}
	var full *telemetry.Batch
	b.mu.Lock()
	b.events = append(b.events, ev)
	if len(b.events) >= b.maxBatchSize {
		full = b.seal()
	}
	b.mu.Unlock()

	if full != nil {
		b.emit(full)
	}
}

// Flush emits the current batch regardless of capacity or timer. An empty
// buffer emits nothing.
func (b *Buffer) Flush() {
	var full *telemetry.Batch
	b.mu.Lock()
	if len(b.events) > 0 {
		full = b.seal()
	}
	b.mu.Unlock()

	if full != nil {
		log.Debugf("Flushing batch %s with %d events", full.ID(), full.Len())
		b.emit(full)
	}
}

// seal swaps in a fresh slice and returns the previous one as a batch.
// Callers must hold b.mu.
func (b *Buffer) seal() *telemetry.Batch {
	batch := telemetry.NewBatch(b.events)
	b.events = make([]*telemetry.Event, 0, b.maxBatchSize)
	return batch
}

// SetMaxBatchSize clamps n into [MinMaxBatchSize, MaxMaxBatchSize] and
// applies it. The new size takes effect on the next swap; events already
// buffered are not re-cut. Returns the effective value.
func (b *Buffer) SetMaxBatchSize(n int) int {
	clamped := b.capacityEnforcer.Normalize(n)
	b.mu.Lock()
	b.maxBatchSize = clamped
	b.mu.Unlock()
	return clamped
}

// MaxBatchSize returns the batch capacity currently in effect.
func (b *Buffer) MaxBatchSize() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.maxBatchSize
}

// SetFlushIntervalSeconds clamps n into [MinFlushIntervalSeconds,
// MaxFlushIntervalSeconds] and records it. The owner of the flush timer is
// responsible for rescheduling it. Returns the effective value.
func (b *Buffer) SetFlushIntervalSeconds(n int) int {
	clamped := b.intervalEnforcer.Normalize(n)
	b.mu.Lock()
	b.flushInterval = clamped
	b.mu.Unlock()
	return clamped
}

// FlushIntervalSeconds returns the flush interval currently in effect.
func (b *Buffer) FlushIntervalSeconds() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.flushInterval
}

// Len returns the number of events waiting in the current batch.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}
