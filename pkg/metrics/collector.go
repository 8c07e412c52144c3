package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds the prometheus metrics for a single invocation.
// It uses its own registry so tests and repeated runs never collide
// with the default one.
type Collector struct {
	registry *prometheus.Registry

	sumsTotal   prometheus.Counter
	sumResult   prometheus.Gauge
	sumInputs   prometheus.Gauge
	runsTotal   prometheus.Counter
	runDuration prometheus.Histogram
}

// NewCollector creates a new metrics collector
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		sumsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "example_sums_total",
			Help: "Total number of summations computed",
		}),
		sumResult: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "example_sum_result",
			Help: "Result of the most recent summation",
		}),
		sumInputs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "example_sum_inputs",
			Help: "Number of inputs in the most recent summation",
		}),
		runsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "example_runs_total",
			Help: "Total number of completed runs",
		}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "example_run_duration_seconds",
			Help:    "Wall time of the entry routine",
			Buckets: prometheus.ExponentialBuckets(0.0001, 10, 6),
		}),
	}

	c.registry.MustRegister(
		c.sumsTotal,
		c.sumResult,
		c.sumInputs,
		c.runsTotal,
		c.runDuration,
	)

	return c
}

// RecordSum records one summation over inputs values yielding result
func (c *Collector) RecordSum(inputs, result int) {
	c.sumsTotal.Inc()
	c.sumInputs.Set(float64(inputs))
	c.sumResult.Set(float64(result))
}

// ObserveRun records a completed run of the entry routine
func (c *Collector) ObserveRun(d time.Duration) {
	c.runsTotal.Inc()
	c.runDuration.Observe(d.Seconds())
}

// Registry exposes the underlying registry as a gatherer
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// WriteTextfile writes all metrics to path in the node_exporter textfile
// collector format. The file is replaced atomically.
func (c *Collector) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile %s: %w", path, err)
	}
	return nil
}
