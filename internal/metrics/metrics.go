// Package metrics holds the Prometheus collectors exported at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// UpstreamRequests counts leaderboard API calls by endpoint and status code
	UpstreamRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "speedrun_api_requests_total",
		Help: "Requests issued to the leaderboard API.",
	}, []string{"endpoint", "code"})

	// UpstreamDuration observes leaderboard API latency by endpoint
	UpstreamDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "speedrun_api_request_duration_seconds",
		Help:    "Latency of leaderboard API requests.",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})

	// RecordLoads counts fetch flow outcomes
	RecordLoads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "record_loads_total",
		Help: "Outcomes of the record fetch flow.",
	}, []string{"outcome"})

	// WebsocketClients tracks connected websocket clients
	WebsocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "record_websocket_clients",
		Help: "Connected websocket clients.",
	})
)

// Load outcomes
const (
	OutcomeLoaded    = "loaded"
	OutcomeEmpty     = "empty"
	OutcomeFailed    = "failed"
	OutcomeDiscarded = "discarded"
)
