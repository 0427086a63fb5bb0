// Copyright The Telemetry Channel Authors
// SPDX-License-Identifier: Apache-2.0

package channel

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gatherValues flattens a registry into metric name to value.
func gatherValues(t *testing.T, reg prometheus.Gatherer) map[string]float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	values := make(map[string]float64, len(families))
	for _, fam := range families {
		require.Len(t, fam.GetMetric(), 1)
		m := fam.GetMetric()[0]
		switch {
		case m.GetCounter() != nil:
			values[fam.GetName()] = m.GetCounter().GetValue()
		case m.GetGauge() != nil:
			values[fam.GetName()] = m.GetGauge().GetValue()
		}
	}
	return values
}

func TestCollectorExportsChannelCounters(t *testing.T) {
	sender := newCaptureSender()
	ch, err := New(Config{
		SamplingPercentage:   50,
		MaxBatchSize:         1,
		FlushIntervalSeconds: 300,
		Sender:               sender,
	})
	require.NoError(t, err)
	defer ch.Shutdown(time.Second)

	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(NewCollector(ch)))

	// All six series must gather cleanly even before any traffic.
	values := gatherValues(t, reg)
	for _, want := range []string{
		"telemetry_channel_items_sent_total",
		"telemetry_channel_items_dropped_total",
		"telemetry_channel_batches_spilled_total",
		"telemetry_channel_permanent_failures_total",
		"telemetry_channel_throttle_events_total",
		"telemetry_channel_sampling_percentage",
	} {
		_, ok := values[want]
		assert.True(t, ok, "missing metric %s", want)
	}
	assert.InDelta(t, 50.0, values["telemetry_channel_sampling_percentage"], 0.001)
}

func TestCollectorTracksDeliveries(t *testing.T) {
	sender := newCaptureSender()
	ch, err := New(Config{
		SamplingPercentage:   100,
		MaxBatchSize:         1,
		FlushIntervalSeconds: 300,
		Sender:               sender,
	})
	require.NoError(t, err)
	defer ch.Shutdown(time.Second)

	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(NewCollector(ch)))

	ch.Send(event("counted"))
	require.Eventually(t, func() bool {
		return ch.Stats().ItemsSent == 1
	}, time.Second, 5*time.Millisecond)

	values := gatherValues(t, reg)
	assert.InDelta(t, 1.0, values["telemetry_channel_items_sent_total"], 0.001)
	assert.Zero(t, values["telemetry_channel_items_dropped_total"])
}
