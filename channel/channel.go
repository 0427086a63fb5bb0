// Copyright The Telemetry Channel Authors
// SPDX-License-Identifier: Apache-2.0

// Package channel composes the sampling engine, the telemetry buffer and the
// transmission pipeline behind a single Send/Flush/Shutdown contract. The
// channel owns the configuration limits and the background task pool.
package channel

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/openmonitor/telemetry-channel/buffer"
	"github.com/openmonitor/telemetry-channel/limits"
	"github.com/openmonitor/telemetry-channel/overflow"
	"github.com/openmonitor/telemetry-channel/sampling"
	"github.com/openmonitor/telemetry-channel/scheduler"
	"github.com/openmonitor/telemetry-channel/telemetry"
	"github.com/openmonitor/telemetry-channel/transmit"
)

const (
	// samplingPercentageAttribute annotates kept events with the percentage
	// that was applied, for downstream proportion estimation.
	samplingPercentageAttribute = "internal.sampling_percentage"

	flushTaskID = "telemetry-buffer-flush"
	drainTaskID = "overflow-drain"

	drainInterval           = 30 * time.Second
	defaultSchedulerWorkers = 2
)

// Channel is the telemetry-reliability core: it decides which events to keep,
// batches them, and delivers the batches with bounded memory and bounded
// loss. Send is fire-and-forget; delivery failures surface only through
// counters and logs.
type Channel struct {
	sampler *sampling.Sampler
	buf     *buffer.Buffer
	tx      *transmit.Transmitter
	pool    *scheduler.Pool
	store   overflow.Store

	// mu guards the mode/shutdown bookkeeping below.
	mu                sync.Mutex
	developerMode     bool
	savedMaxBatchSize int
	shutdown          bool
}

// New validates the configuration and assembles a running channel.
// Construction-time errors (malformed endpoint, impossible sampler settings)
// are fatal and returned synchronously; everything runtime is handled
// internally afterwards.
func New(cfg Config) (*Channel, error) {
	endpoint, err := cfg.endpointOrDefault()
	if err != nil {
		return nil, err
	}

	sampler, err := sampling.New(cfg.SamplingPercentage, cfg.SamplingOverrides,
		cfg.FallbackBehavior)
	if err != nil {
		return nil, err
	}

	retryEnforcer, err := limits.NewClosestEnforcer("MaxInstantRetry",
		MinMaxInstantRetry, MaxMaxInstantRetry, DefaultMaxInstantRetry)
	if err != nil {
		return nil, err
	}
	maxInstantRetry := retryEnforcer.Default()
	if cfg.MaxInstantRetry != 0 {
		maxInstantRetry = retryEnforcer.Normalize(cfg.MaxInstantRetry)
	}

	schedulerWorkers := cfg.SchedulerWorkers
	if schedulerWorkers <= 0 {
		schedulerWorkers = defaultSchedulerWorkers
	}
	pool, err := scheduler.NewPool(schedulerWorkers)
	if err != nil {
		return nil, err
	}

	var store overflow.Store
	if cfg.OverflowDir != "" {
		capacityMB := cfg.OverflowCapacityMB
		if capacityMB <= 0 {
			capacityMB = DefaultOverflowCapacityMB
		}
		store, err = overflow.NewFileStore(cfg.OverflowDir, capacityMB)
		if err != nil {
			pool.StopAll(0)
			return nil, err
		}
	}

	sender := cfg.Sender
	if sender == nil {
		sender = transmit.NewHTTPSender(endpoint, nil, nil)
	}

	tx, err := transmit.New(transmit.Config{
		Sender:          sender,
		Store:           store,
		MaxInstantRetry: maxInstantRetry,
		Workers:         cfg.TransmitWorkers,
	})
	if err != nil {
		pool.StopAll(0)
		return nil, err
	}

	buf, err := buffer.New(cfg.maxBatchSizeOrDefault(), cfg.flushIntervalOrDefault(),
		tx.Submit)
	if err != nil {
		tx.Stop(0)
		pool.StopAll(0)
		return nil, err
	}

	c := &Channel{
		sampler: sampler,
		buf:     buf,
		tx:      tx,
		pool:    pool,
		store:   store,
	}
	c.savedMaxBatchSize = buf.MaxBatchSize()

	if cfg.DeveloperMode {
		c.SetDeveloperMode(true)
	}

	if err := c.scheduleFlush(buf.FlushIntervalSeconds()); err != nil {
		c.Shutdown(0)
		return nil, err
	}
	if store != nil {
		if err := pool.Schedule(drainTaskID, tx.DrainOverflow,
			drainInterval, drainInterval); err != nil {
			c.Shutdown(0)
			return nil, err
		}
	}
	return c, nil
}

func (c *Channel) scheduleFlush(intervalSeconds int) error {
	period := time.Duration(intervalSeconds) * time.Second
	if err := c.pool.Schedule(flushTaskID, c.buf.Flush, period, period); err != nil {
		return fmt.Errorf("flush task: %w", err)
	}
	return nil
}

// Send runs the sampling engine and, on keep, forwards the event to the
// buffer with the applied percentage annotated. It never blocks on network
// I/O and never returns delivery errors.
func (c *Channel) Send(ev *telemetry.Event) {
	if ev == nil {
		return
	}
	c.mu.Lock()
	down := c.shutdown
	c.mu.Unlock()
	if down {
		log.Debugf("Channel is shut down, discarding event")
		return
	}

	decision := c.sampler.Decide(ev.CorrelationKey, ev.Attributes)
	if !decision.Sampled {
		return
	}
	ev = ev.WithAttribute(samplingPercentageAttribute,
		strconv.FormatFloat(decision.Percentage, 'f', -1, 64))
	c.buf.Add(ev)
}

// Flush emits the current batch out-of-band.
func (c *Channel) Flush() {
	c.buf.Flush()
}

// SetDeveloperMode toggles the batch-size-1 policy: enabled, every event is
// transmitted individually and promptly; disabled, the previously configured
// capacity is restored. This is a buffer reconfiguration, not a separate
// transmission path.
func (c *Channel) SetDeveloperMode(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if enabled == c.developerMode {
		return
	}
	c.developerMode = enabled
	if enabled {
		c.savedMaxBatchSize = c.buf.MaxBatchSize()
		c.buf.SetMaxBatchSize(1)
		log.Infof("Developer mode enabled, batch size forced to 1")
	} else {
		c.buf.SetMaxBatchSize(c.savedMaxBatchSize)
		log.Infof("Developer mode disabled, batch size restored to %d",
			c.savedMaxBatchSize)
	}
}

// DeveloperMode reports whether the batch-size-1 policy is in effect.
func (c *Channel) DeveloperMode() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.developerMode
}

// SetMaxBatchSize clamps n into its bounds and applies it. While developer
// mode is active, the value is remembered and applied once the mode is
// disabled. Returns the effective (clamped) value.
func (c *Channel) SetMaxBatchSize(n int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.developerMode {
		c.savedMaxBatchSize = c.buf.SetMaxBatchSize(n)
		c.buf.SetMaxBatchSize(1)
		return c.savedMaxBatchSize
	}
	clamped := c.buf.SetMaxBatchSize(n)
	c.savedMaxBatchSize = clamped
	return clamped
}

// SetFlushIntervalSeconds clamps n into its bounds, applies it and
// reschedules the periodic flush task. Returns the effective value.
func (c *Channel) SetFlushIntervalSeconds(n int) int {
	clamped := c.buf.SetFlushIntervalSeconds(n)
	c.pool.Cancel(flushTaskID)
	if err := c.scheduleFlush(clamped); err != nil {
		// Only possible when shutdown races the reschedule.
		log.Warnf("Cannot reschedule flush task: %v", err)
	}
	return clamped
}

// Stats returns a snapshot of the transmission counters.
func (c *Channel) Stats() transmit.Stats {
	return c.tx.Stats()
}

// SamplingPercentage returns the default percentage in effect at trace roots.
func (c *Channel) SamplingPercentage() float64 {
	return c.sampler.DefaultPercentage()
}

// Shutdown stops the channel: the task pool stops scheduling work, the
// buffer is flushed one last time, the transmitter drains best-effort within
// timeout, and the overflow store is closed. Bookkeeping is cleared even when
// the drain times out. Idempotent.
func (c *Channel) Shutdown(timeout time.Duration) {
	c.mu.Lock()
	if c.shutdown {
		c.mu.Unlock()
		return
	}
	c.shutdown = true
	c.mu.Unlock()

	deadline := time.Now().Add(timeout)

	// Stop periodic work first so no flush/drain tick races the teardown.
	c.pool.StopAll(timeout / 2)
	c.buf.Flush()
	c.tx.Stop(time.Until(deadline))
	if c.store != nil {
		if err := c.store.Close(); err != nil {
			log.Errorf("Cannot close overflow store: %v", err)
		}
	}
}
