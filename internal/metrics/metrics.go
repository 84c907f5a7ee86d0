// Package metrics declares the gateway's Prometheus collectors,
// registered on the default registry that the /metrics route serves.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts ingest requests by outcome.
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sdkgateway",
		Name:      "requests_total",
		Help:      "Total ingest requests by HTTP status and error kind.",
	}, []string{"status", "error_kind"})

	// RequestDuration observes end-to-end request latency.
	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "sdkgateway",
		Name:      "request_duration_seconds",
		Help:      "Ingest request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"status"})

	// BusPublishDuration observes per-bus publish latency.
	BusPublishDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "sdkgateway",
		Name:      "bus_publish_duration_seconds",
		Help:      "Publish latency per downstream bus.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"bus"})

	// BusPublishFailures counts per-bus publish failures.
	BusPublishFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sdkgateway",
		Name:      "bus_publish_failures_total",
		Help:      "Publish failures per downstream bus.",
	}, []string{"bus"})

	// RegistrySize reports the current number of loaded applications.
	RegistrySize = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "sdkgateway",
		Name:      "registry_size",
		Help:      "Number of applications currently loaded in the registry.",
	})

	// RegistryRefreshSeconds holds the Unix timestamp (in seconds) of
	// the last successful refresh. The /watchdog handler does not read
	// it; it asks the refresh loop's LastRefresh instead.
	RegistryRefreshSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "sdkgateway",
		Name:      "registry_last_refresh_seconds",
		Help:      "Unix timestamp of the last successful registry refresh.",
	})

	// IdentityStoreRetries counts retry attempts against the identity
	// store, split by operation.
	IdentityStoreRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sdkgateway",
		Name:      "identity_store_retries_total",
		Help:      "Retry attempts against the identity store.",
	}, []string{"op"})
)
