// Copyright The Telemetry Channel Authors
// SPDX-License-Identifier: Apache-2.0

// Package telemetry defines the opaque data model moved through the channel:
// events produced by the instrumentation layer and the batches they are
// grouped into for delivery.
package telemetry

import "maps"

// Event is an opaque telemetry record. The channel never inspects its payload;
// it only needs the correlation key for sampling, the size estimate for
// storage accounting and the attribute map for override matching.
//
// Events are immutable after creation. Ownership moves producer -> buffer ->
// batch -> transmitter; no stage mutates an event it has handed off.
type Event struct {
	// CorrelationKey is the trace identifier shared by all telemetry produced
	// within one logical operation. It drives the deterministic sampling
	// score and is expected to be ASCII (e.g. a W3C trace id in hex).
	CorrelationKey string

	// Size is the estimated wire size of the event in bytes.
	Size int

	// Attributes carries the key/value metadata of the event.
	Attributes map[string]string
}

// NewEvent builds an event, copying the attribute map so later caller-side
// mutation cannot leak into the channel.
func NewEvent(correlationKey string, size int, attributes map[string]string) *Event {
	var attrs map[string]string
	if len(attributes) > 0 {
		attrs = make(map[string]string, len(attributes))
		maps.Copy(attrs, attributes)
	}
	return &Event{
		CorrelationKey: correlationKey,
		Size:           size,
		Attributes:     attrs,
	}
}

// Attribute returns the value of a single attribute, or the empty string when
// the attribute is not set.
func (e *Event) Attribute(key string) string {
	return e.Attributes[key]
}

// WithAttribute returns a copy of the event with one additional attribute.
// The original event is left untouched.
func (e *Event) WithAttribute(key, value string) *Event {
	attrs := make(map[string]string, len(e.Attributes)+1)
	maps.Copy(attrs, e.Attributes)
	attrs[key] = value
	return &Event{
		CorrelationKey: e.CorrelationKey,
		Size:           e.Size,
		Attributes:     attrs,
	}
}
