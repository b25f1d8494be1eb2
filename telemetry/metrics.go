// Package telemetry holds the prometheus collectors for calls and the /metrics endpoint.
package telemetry

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the call collectors. One instance per registry.
type Metrics struct {
	Calls    *prometheus.CounterVec   // by operation and outcome
	Duration *prometheus.HistogramVec // by operation
}

// NewMetrics creates the collectors under namespace and registers them with reg.
// A nil reg uses the default registerer.
func NewMetrics(namespace string, reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		Calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calls_total",
			Help:      "Calls by operation and outcome.",
		}, []string{"operation", "outcome"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "call_duration_seconds",
			Help:      "Call latency by operation.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}
	if err := reg.Register(m.Calls); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return nil, err
		}
		m.Calls = are.ExistingCollector.(*prometheus.CounterVec)
	}
	if err := reg.Register(m.Duration); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return nil, err
		}
		m.Duration = are.ExistingCollector.(*prometheus.HistogramVec)
	}
	return m, nil
}

// Observe records one finished call.
func (m *Metrics) Observe(operation, outcome string, d time.Duration) {
	m.Calls.WithLabelValues(operation, outcome).Inc()
	m.Duration.WithLabelValues(operation).Observe(d.Seconds())
}

// Expose binds addr and serves /metrics for gatherer in the background. Bind failures
// are returned; the caller shuts the server down with Close.
func Expose(addr string, gatherer prometheus.Gatherer) (*http.Server, error) {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: l.Addr().String(), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		_ = srv.Serve(l) // returns http.ErrServerClosed after Close
	}()
	return srv, nil
}
