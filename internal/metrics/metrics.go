// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ScansTotal counts finished scan sessions by outcome ("ok" or a failure reason).
	ScansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendease",
		Name:      "scans_total",
		Help:      "Finished NFC scan sessions by outcome.",
	}, []string{"outcome"})

	// LookupDuration observes professor and student lookups.
	LookupDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "attendease",
		Name:      "lookup_duration_seconds",
		Help:      "Latency of store lookups made while validating a scan.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"store"})

	// WritesTotal counts attendance writes by result ("ok", "error", "duplicate").
	WritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendease",
		Name:      "writes_total",
		Help:      "Attendance record writes by result.",
	}, []string{"result"})

	// ActiveSessions is the number of scan sessions not yet finished.
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "attendease",
		Name:      "active_sessions",
		Help:      "Scan sessions currently in progress.",
	})

	// RateLimited counts requests rejected by the rate limiter.
	RateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "attendease",
		Name:      "rate_limited_total",
		Help:      "HTTP requests rejected by the rate limiter.",
	})
)
