// Package metrics exposes prometheus instruments for the prediction flow.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the service's collectors.
type Metrics struct {
	registry         *prometheus.Registry
	predictions      *prometheus.CounterVec
	inferenceSeconds prometheus.Histogram
	registrations    prometheus.Counter
	logins           *prometheus.CounterVec
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "glaucoscan",
			Name:      "predictions_total",
			Help:      "Prediction attempts by outcome (Positive, Negative or error).",
		}, []string{"outcome"}),
		inferenceSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "glaucoscan",
			Name:      "inference_duration_seconds",
			Help:      "Time spent classifying one image.",
			Buckets:   prometheus.DefBuckets,
		}),
		registrations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "glaucoscan",
			Name:      "registrations_total",
			Help:      "Successful account registrations.",
		}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "glaucoscan",
			Name:      "logins_total",
			Help:      "Login attempts by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(
		m.predictions,
		m.inferenceSeconds,
		m.registrations,
		m.logins,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObservePrediction records one prediction outcome and its inference latency.
func (m *Metrics) ObservePrediction(outcome string, inference time.Duration) {
	if m == nil {
		return
	}
	m.predictions.WithLabelValues(outcome).Inc()
	m.inferenceSeconds.Observe(inference.Seconds())
}

// ObserveRegistration counts a successful registration.
func (m *Metrics) ObserveRegistration() {
	if m == nil {
		return
	}
	m.registrations.Inc()
}

// ObserveLogin counts a login attempt.
func (m *Metrics) ObserveLogin(success bool) {
	if m == nil {
		return
	}
	result := "failure"
	if success {
		result = "success"
	}
	m.logins.WithLabelValues(result).Inc()
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
