// Copyright The Telemetry Channel Authors
// SPDX-License-Identifier: Apache-2.0

// Package transmit delivers sealed batches to the collector. Attempts run
// exclusively on background workers; producers only ever enqueue. Transient
// failures get bounded instant retries, then escalate to durable overflow.
// Throttling closes a shared gate for a cool-down window. Terminal outcomes
// are counted, never surfaced to producers.
package transmit

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/openmonitor/telemetry-channel/overflow"
	"github.com/openmonitor/telemetry-channel/telemetry"
)

const (
	// DefaultMaxInstantRetry is the number of immediate re-attempts after a
	// failed first attempt, before a batch escalates to overflow.
	DefaultMaxInstantRetry = 3

	defaultWorkers       = 2
	defaultQueueCapacity = 16

	// progressModulus controls the "items sent so far" progress signal.
	progressModulus = 10000
)

// Config parameterizes a Transmitter.
type Config struct {
	// Sender performs the actual delivery attempts. Required.
	Sender Sender

	// Store receives batches that exhausted their instant retries or arrived
	// while the submit queue was full. Nil means such batches are dropped.
	Store overflow.Store

	// MaxInstantRetry is the number of immediate re-attempts after the first
	// failed attempt. Negative values select the default.
	MaxInstantRetry int

	// Workers is the number of delivery goroutines. Zero selects the default.
	Workers int

	// QueueCapacity bounds the submit queue. Zero selects the default.
	QueueCapacity int
}

// Stats is a snapshot of the pipeline counters.
type Stats struct {
	ItemsSent         uint64
	ItemsDropped      uint64
	BatchesSpilled    uint64
	PermanentFailures uint64
	ThrottleEvents    uint64
}

// Transmitter drains a bounded queue of batches through the configured
// sender on a fixed set of workers.
type Transmitter struct {
	sender          Sender
	store           overflow.Store
	maxInstantRetry int

	queue chan *telemetry.Batch
	gate  *throttleGate

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool

	itemsSent         atomic.Uint64
	itemsDropped      atomic.Uint64
	batchesSpilled    atomic.Uint64
	permanentFailures atomic.Uint64
	throttleEvents    atomic.Uint64
}

// New creates a started transmitter.
func New(cfg Config) (*Transmitter, error) {
	if cfg.Sender == nil {
		return nil, fmt.Errorf("transmitter requires a sender")
	}
	if cfg.MaxInstantRetry < 0 {
		cfg.MaxInstantRetry = DefaultMaxInstantRetry
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = defaultQueueCapacity
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &Transmitter{
		sender:          cfg.Sender,
		store:           cfg.Store,
		maxInstantRetry: cfg.MaxInstantRetry,
		queue:           make(chan *telemetry.Batch, cfg.QueueCapacity),
		gate:            newThrottleGate(),
		ctx:             ctx,
		cancel:          cancel,
	}
	for i := 0; i < cfg.Workers; i++ {
		t.wg.Add(1)
		go t.worker()
	}
	return t, nil
}

// Submit enqueues a batch for delivery. It never blocks: when the queue is
// full (or the transmitter is stopping) the batch goes to overflow storage,
// and when that refuses, the batch is dropped and counted.
func (t *Transmitter) Submit(batch *telemetry.Batch) {
	if batch == nil || batch.Len() == 0 {
		return
	}
	if t.closed.Load() {
		t.spill(batch)
		return
	}
	select {
	case t.queue <- batch:
	default:
		t.spill(batch)
	}
}

// DrainOverflow re-submits spilled batches. Intended to run as a scheduled
// background task; it does nothing while the throttle gate is closed.
func (t *Transmitter) DrainOverflow() {
	if t.store == nil || t.closed.Load() {
		return
	}
	if t.gate.remaining() > 0 {
		return
	}
	for _, batch := range t.store.Drain() {
		t.Submit(batch)
	}
}

// Stats returns a snapshot of the counters.
func (t *Transmitter) Stats() Stats {
	return Stats{
		ItemsSent:         t.itemsSent.Load(),
		ItemsDropped:      t.itemsDropped.Load(),
		BatchesSpilled:    t.batchesSpilled.Load(),
		PermanentFailures: t.permanentFailures.Load(),
		ThrottleEvents:    t.throttleEvents.Load(),
	}
}

// Stop drains the queue best-effort within timeout, then cancels the workers
// and spills whatever is still queued. Idempotent.
func (t *Transmitter) Stop(timeout time.Duration) {
	if !t.closed.CompareAndSwap(false, true) {
		return
	}

	drained := make(chan struct{})
	go func() {
		for len(t.queue) > 0 {
			time.Sleep(5 * time.Millisecond)
		}
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(timeout):
		log.Warnf("Transmitter stopping with %d batches still queued", len(t.queue))
	}

	t.cancel()
	t.wg.Wait()

	// Whatever remains goes to durable storage rather than being lost.
	for {
		select {
		case batch := <-t.queue:
			t.spill(batch)
		default:
			return
		}
	}
}

func (t *Transmitter) worker() {
	defer t.wg.Done()
	for {
		select {
		case <-t.ctx.Done():
			return
		case batch := <-t.queue:
			t.deliver(batch)
		}
	}
}

// deliver attempts one batch: wait out the throttle gate, then the first
// attempt plus up to maxInstantRetry immediate re-attempts, then spill.
func (t *Transmitter) deliver(batch *telemetry.Batch) {
	for {
		rem := t.gate.remaining()
		if rem == 0 {
			break
		}
		select {
		case <-t.ctx.Done():
			t.spill(batch)
			return
		case <-time.After(rem):
		}
	}

	for attempt := 0; attempt <= t.maxInstantRetry; attempt++ {
		select {
		case <-t.ctx.Done():
			// Stopping; park the batch instead of burning retries.
			t.spill(batch)
			return
		default:
		}
		outcome := t.sender.Send(t.ctx, batch)
		switch outcome.Kind {
		case Delivered:
			t.accountDelivered(batch)
			t.gate.reset()
			return
		case PermanentFailure:
			t.permanentFailures.Add(1)
			t.itemsDropped.Add(uint64(batch.Len()))
			log.Errorf("Dropping batch %s (%d items): permanent delivery failure",
				batch.ID(), batch.Len())
			return
		case Throttled:
			t.throttleEvents.Add(1)
			d := t.gate.throttle(outcome.RetryAfter)
			log.Warnf("Collector throttled, pausing transmissions for %v", d)
			// Requeue; Submit spills when the queue is already full.
			t.Submit(batch)
			return
		case RetryableFailure:
			// Instant retry, no delay.
		}
	}
	log.Debugf("Batch %s failed %d instant attempts, escalating to overflow",
		batch.ID(), t.maxInstantRetry+1)
	t.spill(batch)
}

func (t *Transmitter) accountDelivered(batch *telemetry.Batch) {
	n := uint64(batch.Len())
	total := t.itemsSent.Add(n)
	if total/progressModulus != (total-n)/progressModulus {
		log.Debugf("Items sent so far: %d", total)
	}
}

// spill hands the batch to durable storage; a refusal (store full or absent)
// drops the batch and counts the loss. Sustained overload always ends up
// here, so a refusal is not an error.
func (t *Transmitter) spill(batch *telemetry.Batch) {
	if t.store != nil && t.store.Spill(batch) {
		t.batchesSpilled.Add(1)
		return
	}
	t.itemsDropped.Add(uint64(batch.Len()))
	log.Warnf("Dropping batch %s (%d items): overflow storage unavailable or full",
		batch.ID(), batch.Len())
}
