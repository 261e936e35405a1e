// Package metrics holds Prometheus instruments that are used across the
// site.  All collectors are registered with the global registry, so
// importing this package is enough to expose them on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// DispatchTotal counts form-handler outcomes per action.  Outcomes are
	// ok, denied, not_found, and error.
	DispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviews_dispatch_total",
			Help: "Form handler dispatch outcomes by action.",
		}, []string{"action", "outcome"})

	// FormSubmissions counts parsed submissions per form key.  Outcomes are
	// ok, missing, unknown, invalid, and captcha.
	FormSubmissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviews_form_submissions_total",
			Help: "Parsed form submissions by form and outcome.",
		}, []string{"form", "outcome"})

	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviews_http_requests_total",
			Help: "HTTP requests by status class.",
		}, []string{"class"})

	HTTPDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reviews_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		})
)

func init() {
	prometheus.MustRegister(
		DispatchTotal,
		FormSubmissions,
		HTTPRequests,
		HTTPDuration,
	)
}
