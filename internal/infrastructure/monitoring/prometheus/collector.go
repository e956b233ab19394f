// Package prometheus exposes the tracker's metrics through a private
// Prometheus registry.
package prometheus

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/turtacn/edefter-tracker/internal/infrastructure/monitoring/logging"
)

// MetricsCollector registers metric families on a private registry and
// serves them.
type MetricsCollector interface {
	RegisterCounter(name, help string, labels ...string) CounterVec
	RegisterGauge(name, help string, labels ...string) GaugeVec
	RegisterHistogram(name, help string, buckets []float64, labels ...string) HistogramVec
	Handler() http.Handler
}

type Counter interface {
	Inc()
	Add(delta float64)
}

type Gauge interface {
	Set(value float64)
}

type Histogram interface {
	Observe(value float64)
}

type CounterVec interface {
	WithLabelValues(lvs ...string) Counter
}

type GaugeVec interface {
	WithLabelValues(lvs ...string) Gauge
}

type HistogramVec interface {
	WithLabelValues(lvs ...string) Histogram
}

type CollectorConfig struct {
	Namespace               string
	EnableProcessMetrics    bool
	EnableGoMetrics         bool
	DefaultHistogramBuckets []float64
}

type prometheusCollector struct {
	registry *prometheus.Registry
	config   CollectorConfig
	logger   logging.Logger
}

// NewMetricsCollector creates a collector whose families are all prefixed
// with cfg.Namespace.
func NewMetricsCollector(cfg CollectorConfig, logger logging.Logger) (MetricsCollector, error) {
	if cfg.Namespace == "" {
		return nil, fmt.Errorf("namespace is required")
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if cfg.DefaultHistogramBuckets == nil {
		cfg.DefaultHistogramBuckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()
	if cfg.EnableProcessMetrics {
		registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{Namespace: cfg.Namespace}))
	}
	if cfg.EnableGoMetrics {
		registry.MustRegister(prometheus.NewGoCollector())
	}
	return &prometheusCollector{registry: registry, config: cfg, logger: logger}, nil
}

func (c *prometheusCollector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// register adds col, or returns the collector already registered under the
// same descriptor.
func (c *prometheusCollector) register(name string, col prometheus.Collector) (prometheus.Collector, bool) {
	err := c.registry.Register(col)
	if err == nil {
		return col, true
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		return are.ExistingCollector, true
	}
	c.logger.Error("failed to register metric", logging.String("name", name), logging.Err(err))
	return nil, false
}

func (c *prometheusCollector) RegisterCounter(name, help string, labels ...string) CounterVec {
	col, ok := c.register(name, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: c.config.Namespace, Name: name, Help: help,
	}, labels))
	if vec, isVec := col.(*prometheus.CounterVec); ok && isVec {
		return labeled[Counter](func(lvs ...string) Counter { return vec.WithLabelValues(lvs...) })
	}
	c.mismatch(name, "counter", ok)
	return labeled[Counter](func(...string) Counter { return noop{} })
}

func (c *prometheusCollector) RegisterGauge(name, help string, labels ...string) GaugeVec {
	col, ok := c.register(name, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: c.config.Namespace, Name: name, Help: help,
	}, labels))
	if vec, isVec := col.(*prometheus.GaugeVec); ok && isVec {
		return labeled[Gauge](func(lvs ...string) Gauge { return vec.WithLabelValues(lvs...) })
	}
	c.mismatch(name, "gauge", ok)
	return labeled[Gauge](func(...string) Gauge { return noop{} })
}

func (c *prometheusCollector) RegisterHistogram(name, help string, buckets []float64, labels ...string) HistogramVec {
	if buckets == nil {
		buckets = c.config.DefaultHistogramBuckets
	}
	col, ok := c.register(name, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: c.config.Namespace, Name: name, Help: help, Buckets: buckets,
	}, labels))
	if vec, isVec := col.(*prometheus.HistogramVec); ok && isVec {
		return labeled[Histogram](func(lvs ...string) Histogram { return vec.WithLabelValues(lvs...) })
	}
	c.mismatch(name, "histogram", ok)
	return labeled[Histogram](func(...string) Histogram { return noop{} })
}

func (c *prometheusCollector) mismatch(name, kind string, registered bool) {
	if registered {
		c.logger.Warn("metric type mismatch", logging.String("name", name), logging.String("type", kind))
	}
}

// labeled adapts a WithLabelValues method value to the vector interfaces.
type labeled[M any] func(lvs ...string) M

func (l labeled[M]) WithLabelValues(lvs ...string) M { return l(lvs...) }

// noop stands in for families that could not be registered.
type noop struct{}

func (noop) Inc()            {}
func (noop) Add(float64)     {}
func (noop) Set(float64)     {}
func (noop) Observe(float64) {}
