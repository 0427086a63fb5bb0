// Copyright The Telemetry Channel Authors
// SPDX-License-Identifier: Apache-2.0

package channel

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector exposes the channel's observability counters as Prometheus
// metrics: total items sent and dropped, batches spilled to overflow,
// permanent failures, throttle events, and the sampling percentage in effect
// at trace roots.
type Collector struct {
	ch *Channel

	itemsSent          *prometheus.Desc
	itemsDropped       *prometheus.Desc
	batchesSpilled     *prometheus.Desc
	permanentFailures  *prometheus.Desc
	throttleEvents     *prometheus.Desc
	samplingPercentage *prometheus.Desc
}

// Compile time check that Collector satisfies prometheus.Collector.
var _ prometheus.Collector = (*Collector)(nil)

// NewCollector builds a collector for the given channel. Register it with a
// prometheus.Registerer to scrape the channel.
func NewCollector(ch *Channel) *Collector {
	return &Collector{
		ch: ch,
		itemsSent: prometheus.NewDesc("telemetry_channel_items_sent_total",
			"Telemetry items delivered to the collector.", nil, nil),
		itemsDropped: prometheus.NewDesc("telemetry_channel_items_dropped_total",
			"Telemetry items dropped after exhausting retries and overflow.", nil, nil),
		batchesSpilled: prometheus.NewDesc("telemetry_channel_batches_spilled_total",
			"Batches handed to durable overflow storage.", nil, nil),
		permanentFailures: prometheus.NewDesc("telemetry_channel_permanent_failures_total",
			"Batches rejected permanently by the collector.", nil, nil),
		throttleEvents: prometheus.NewDesc("telemetry_channel_throttle_events_total",
			"Throttling signals received from the collector.", nil, nil),
		samplingPercentage: prometheus.NewDesc("telemetry_channel_sampling_percentage",
			"Sampling percentage in effect at trace roots.", nil, nil),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.itemsSent
	ch <- c.itemsDropped
	ch <- c.batchesSpilled
	ch <- c.permanentFailures
	ch <- c.throttleEvents
	ch <- c.samplingPercentage
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	stats := c.ch.Stats()
	ch <- prometheus.MustNewConstMetric(c.itemsSent,
		prometheus.CounterValue, float64(stats.ItemsSent))
	ch <- prometheus.MustNewConstMetric(c.itemsDropped,
		prometheus.CounterValue, float64(stats.ItemsDropped))
	ch <- prometheus.MustNewConstMetric(c.batchesSpilled,
		prometheus.CounterValue, float64(stats.BatchesSpilled))
	ch <- prometheus.MustNewConstMetric(c.permanentFailures,
		prometheus.CounterValue, float64(stats.PermanentFailures))
	ch <- prometheus.MustNewConstMetric(c.throttleEvents,
		prometheus.CounterValue, float64(stats.ThrottleEvents))
	ch <- prometheus.MustNewConstMetric(c.samplingPercentage,
		prometheus.GaugeValue, c.ch.SamplingPercentage())
}
