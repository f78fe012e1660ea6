// Package metrics provides prometheus collectors for the monitor and aggregator services.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MonitorCollector holds the metrics published by the segment-monitor service.
type MonitorCollector struct {
	reg *prometheus.Registry

	UpdatesProcessed     prometheus.Counter
	UpdatesSkipped       prometheus.Counter
	ObservationsEmitted  prometheus.Counter
	ObservationsRejected *prometheus.CounterVec // reason label: duration|gap|regression
	ObservationsDropped  prometheus.Counter
	StoreRetries         prometheus.Counter
	ActiveVehicles       prometheus.Gauge
	LastPollEpoch        prometheus.Gauge
	PollDuration         prometheus.Histogram
}

// NewMonitorCollector builds a MonitorCollector with a private registry.
func NewMonitorCollector() *MonitorCollector {
	reg := prometheus.NewRegistry()

	c := &MonitorCollector{
		reg: reg,
		UpdatesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "monitor_updates_processed_total",
			Help: "Total vehicle updates accepted for tracking.",
		}),
		UpdatesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "monitor_updates_skipped_total",
			Help: "Total vehicle updates skipped as malformed or stale.",
		}),
		ObservationsEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "monitor_observations_emitted_total",
			Help: "Total segment observations emitted by vehicle trackers.",
		}),
		ObservationsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "monitor_observations_rejected_total",
			Help: "Total candidate observations rejected before persistence.",
		}, []string{"reason"}),
		ObservationsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "monitor_observations_dropped_total",
			Help: "Total observations dropped after the store retry budget was exhausted.",
		}),
		StoreRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "monitor_store_retries_total",
			Help: "Total retried store appends.",
		}),
		ActiveVehicles: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "monitor_active_vehicles",
			Help: "Number of vehicles with live tracking state.",
		}),
		LastPollEpoch: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "monitor_last_poll_epoch",
			Help: "Unix time of the last successful feed poll.",
		}),
		PollDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "monitor_poll_duration_seconds",
			Help:    "Duration of feed poll and dispatch work.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
	}

	reg.MustRegister(
		c.UpdatesProcessed, c.UpdatesSkipped,
		c.ObservationsEmitted, c.ObservationsRejected, c.ObservationsDropped,
		c.StoreRetries, c.ActiveVehicles, c.LastPollEpoch, c.PollDuration,
	)
	return c
}

// Handler returns the promhttp handler for this collector's registry.
func (c *MonitorCollector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{})
}

// AggregatorCollector holds the metrics published by the segment-aggregator service.
type AggregatorCollector struct {
	reg *prometheus.Registry

	ObservationsApplied prometheus.Counter
	ObservationsInvalid prometheus.Counter
	Buckets             prometheus.Gauge
	EstimateRequests    *prometheus.CounterVec // granularity label
}

// NewAggregatorCollector builds an AggregatorCollector with a private registry.
func NewAggregatorCollector() *AggregatorCollector {
	reg := prometheus.NewRegistry()

	c := &AggregatorCollector{
		reg: reg,
		ObservationsApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aggregator_observations_applied_total",
			Help: "Total segment observations applied to bucket statistics.",
		}),
		ObservationsInvalid: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aggregator_observations_invalid_total",
			Help: "Total segment observations rejected by validation on arrival.",
		}),
		Buckets: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "aggregator_buckets",
			Help: "Number of buckets with at least one observation.",
		}),
		EstimateRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aggregator_estimate_requests_total",
			Help: "Total estimate queries answered, by granularity of the answer.",
		}, []string{"granularity"}),
	}

	reg.MustRegister(c.ObservationsApplied, c.ObservationsInvalid, c.Buckets, c.EstimateRequests)
	return c
}

// Handler returns the promhttp handler for this collector's registry.
func (c *AggregatorCollector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{})
}
