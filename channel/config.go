// Copyright The Telemetry Channel Authors
// SPDX-License-Identifier: Apache-2.0

package channel

import (
	"fmt"
	"net/url"

	"github.com/openmonitor/telemetry-channel/buffer"
	"github.com/openmonitor/telemetry-channel/sampling"
	"github.com/openmonitor/telemetry-channel/transmit"
)

const (
	// DefaultEndpointAddress is used when the configuration leaves the
	// endpoint empty.
	DefaultEndpointAddress = "https://localhost:4318/v1/telemetry"

	// DefaultOverflowCapacityMB bounds the durable overflow store.
	DefaultOverflowCapacityMB = 10

	// MaxInstantRetry bounds for the clamp enforcer.
	MinMaxInstantRetry     = 0
	MaxMaxInstantRetry     = 10
	DefaultMaxInstantRetry = transmit.DefaultMaxInstantRetry
)

// Config parameterizes a Channel. It is expected to arrive already validated
// by the configuration layer; numeric fields are nevertheless clamped into
// their bounds (limits enforcer policy), while a malformed endpoint fails
// construction outright.
type Config struct {
	// EndpointAddress is the collector address. Empty means the default.
	// A non-empty malformed URI fails New.
	EndpointAddress string

	// SamplingPercentage is the default percentage applied at trace roots.
	SamplingPercentage float64

	// SamplingOverrides are evaluated in order; first full match wins.
	SamplingOverrides *sampling.Overrides

	// FallbackBehavior selects what happens when no override matches.
	FallbackBehavior sampling.FallbackBehavior

	// MaxBatchSize is the buffer capacity, clamped into [1, 1000].
	MaxBatchSize int

	// FlushIntervalSeconds is the periodic flush interval, clamped into
	// [1, 300].
	FlushIntervalSeconds int

	// MaxInstantRetry is the number of immediate delivery re-attempts,
	// clamped into [0, 10].
	MaxInstantRetry int

	// DeveloperMode forces batch size 1 so every event is transmitted
	// individually and promptly.
	DeveloperMode bool

	// TransmitWorkers is the number of delivery goroutines (0 = default).
	TransmitWorkers int

	// SchedulerWorkers is the size of the background task pool (0 = default).
	SchedulerWorkers int

	// OverflowDir is the directory of the durable overflow store. Empty
	// disables overflow storage; undeliverable batches are then dropped.
	OverflowDir string

	// OverflowCapacityMB bounds the overflow store (0 = default).
	OverflowCapacityMB int

	// Sender overrides the transport. Nil selects an HTTP sender posting to
	// the endpoint address.
	Sender transmit.Sender
}

// endpointOrDefault validates the configured endpoint. Empty is valid and
// means "use default"; a non-empty malformed value is a fatal configuration
// error.
func (c *Config) endpointOrDefault() (string, error) {
	if c.EndpointAddress == "" {
		return DefaultEndpointAddress, nil
	}
	u, err := url.Parse(c.EndpointAddress)
	if err != nil {
		return "", fmt.Errorf("endpoint address %q is not a valid URI: %w",
			c.EndpointAddress, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("endpoint address %q is not a valid URI", c.EndpointAddress)
	}
	return c.EndpointAddress, nil
}

func (c *Config) maxBatchSizeOrDefault() int {
	if c.MaxBatchSize == 0 {
		return buffer.DefaultMaxBatchSize
	}
	return c.MaxBatchSize
}

func (c *Config) flushIntervalOrDefault() int {
	if c.FlushIntervalSeconds == 0 {
		return buffer.DefaultFlushIntervalSeconds
	}
	return c.FlushIntervalSeconds
}
