package metrics

import (
	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricPrefix = "watertemp_"

var (
	// GatewayForwards counts forwarding decisions by outcome:
	// forwarded, missing_url, invalid_url, denied, upstream_error.
	GatewayForwards = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: metricPrefix + "gateway_forwards_total",
			Help: "Gateway forwarding decisions by outcome",
		},
		[]string{"outcome"},
	)

	// GatewayUpstreamDuration observes latency of forwarded upstream calls.
	GatewayUpstreamDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    metricPrefix + "gateway_upstream_seconds",
			Help:    "Latency of upstream calls made by the gateway",
			Buckets: prometheus.DefBuckets,
		},
	)

	// UpstreamFetches counts provider fetches by endpoint and outcome.
	UpstreamFetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: metricPrefix + "upstream_fetches_total",
			Help: "Provider fetches by endpoint (current, rapid, history) and outcome",
		},
		[]string{"endpoint", "outcome"},
	)

	// UpstreamFetchDuration observes provider fetch latency per endpoint.
	UpstreamFetchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    metricPrefix + "upstream_fetch_seconds",
			Help:    "Latency of provider fetches through the gateway",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)
)

func init() {
	prometheus.MustRegister(
		GatewayForwards,
		GatewayUpstreamDuration,
		UpstreamFetches,
		UpstreamFetchDuration,
	)
}

// Handler exposes the default prometheus registry as a fiber handler.
func Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
