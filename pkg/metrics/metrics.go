// Package metrics collects Prometheus metrics for chat session
// synchronization: hydration outcomes, URL writes and live sessions.
//
// A nil *Collector is valid and records nothing, so components can take an
// optional collector without branching.
//
//	reg := prometheus.NewRegistry()
//	m := metrics.New(metrics.WithRegistry(reg))
//	m.ObserveHydration("loaded", time.Since(start))
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Config configures the collector.
type Config struct {
	// Namespace is the metrics namespace (default: "chatsync").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for hydration duration.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// Option configures the collector.
type Option func(*Config)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) Option {
	return func(c *Config) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) Option {
	return func(c *Config) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) Option {
	return func(c *Config) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) Option {
	return func(c *Config) {
		c.Registry = registry
	}
}

func defaultConfig() Config {
	return Config{
		Namespace: "chatsync",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Collector holds the Prometheus metrics.
type Collector struct {
	hydrations        *prometheus.CounterVec
	hydrationDuration prometheus.Histogram
	urlWrites         *prometheus.CounterVec
	stepErrors        *prometheus.CounterVec
	activeSessions    prometheus.Gauge
	wsErrors          *prometheus.CounterVec
}

// New registers and returns a collector.
func New(opts ...Option) *Collector {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)

	return &Collector{
		hydrations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "hydrations_total",
			Help:        "Total number of chat hydrations by outcome",
			ConstLabels: config.ConstLabels,
		}, []string{"outcome"}),

		hydrationDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "hydration_duration_seconds",
			Help:        "Chat hydration duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}),

		urlWrites: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "url_writes_total",
			Help:        "Total number of chat URL parameter writes by operation",
			ConstLabels: config.ConstLabels,
		}, []string{"op"}),

		stepErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "populate_step_errors_total",
			Help:        "Total number of failed hydration populate steps",
			ConstLabels: config.ConstLabels,
		}, []string{"step"}),

		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "active_sessions",
			Help:        "Number of active WebSocket sessions",
			ConstLabels: config.ConstLabels,
		}),

		wsErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "websocket_errors_total",
			Help:        "Total WebSocket errors by type",
			ConstLabels: config.ConstLabels,
		}, []string{"type"}),
	}
}

// ObserveHydration records a finished hydration.
func (c *Collector) ObserveHydration(outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.hydrations.WithLabelValues(outcome).Inc()
	c.hydrationDuration.Observe(d.Seconds())
}

// URLWrite records a write of the chat URL parameter ("set" or "clear").
func (c *Collector) URLWrite(op string) {
	if c == nil {
		return
	}
	c.urlWrites.WithLabelValues(op).Inc()
}

// StepError records a failed populate step.
func (c *Collector) StepError(step string) {
	if c == nil {
		return
	}
	c.stepErrors.WithLabelValues(step).Inc()
}

// SessionOpened records a new session.
func (c *Collector) SessionOpened() {
	if c == nil {
		return
	}
	c.activeSessions.Inc()
}

// SessionClosed records a session ending.
func (c *Collector) SessionClosed() {
	if c == nil {
		return
	}
	c.activeSessions.Dec()
}

// WebSocketError records a transport error by type.
func (c *Collector) WebSocketError(kind string) {
	if c == nil {
		return
	}
	c.wsErrors.WithLabelValues(kind).Inc()
}
