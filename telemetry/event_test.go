// Copyright The Telemetry Channel Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEventCopiesAttributes(t *testing.T) {
	attrs := map[string]string{"k": "v"}
	ev := NewEvent("trace-1", 128, attrs)

	attrs["k"] = "mutated"
	assert.Equal(t, "v", ev.Attribute("k"),
		"events must not alias the caller's map")
	assert.Empty(t, ev.Attribute("missing"))
}

func TestWithAttributeDoesNotMutateOriginal(t *testing.T) {
	ev := NewEvent("trace-1", 128, map[string]string{"a": "1"})
	annotated := ev.WithAttribute("b", "2")

	assert.Empty(t, ev.Attribute("b"))
	assert.Equal(t, "2", annotated.Attribute("b"))
	assert.Equal(t, "1", annotated.Attribute("a"))
	assert.Equal(t, ev.CorrelationKey, annotated.CorrelationKey)
	assert.Equal(t, ev.Size, annotated.Size)
}

func TestBatchIsSealed(t *testing.T) {
	events := []*Event{
		NewEvent("trace-1", 10, nil),
		NewEvent("trace-2", 20, nil),
	}
	b := NewBatch(events)

	require.Equal(t, 2, b.Len())
	assert.Equal(t, 30, b.Size())
	assert.NotEmpty(t, b.ID())

	// Two batches over the same events are distinct deliveries.
	assert.NotEqual(t, b.ID(), NewBatch(events).ID())
}
