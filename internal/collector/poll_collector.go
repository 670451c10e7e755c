package collector

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/zgpcy/azure-lro-poller/internal/clock"
	"github.com/zgpcy/azure-lro-poller/internal/lro"
	"github.com/zgpcy/azure-lro-poller/internal/version"
)

// Poll results used as the "result" label of azure_lro_polls_total
const (
	ResultOK    = "ok"
	ResultError = "error"
)

// PollCollector implements prometheus.Collector for the polling engine and
// receives the engine's lifecycle events as an lro.Observer
type PollCollector struct {
	clock clock.Clock // Time provider for testing

	// Metrics
	started      *prometheus.CounterVec
	polls        *prometheus.CounterVec
	pollDuration *prometheus.HistogramVec
	finished     *prometheus.CounterVec
	inFlight     prometheus.Gauge
	buildInfo    *prometheus.GaugeVec // Build version information
	lastPollDesc *prometheus.Desc

	mu       sync.RWMutex
	lastPoll time.Time
}

var _ lro.Observer = (*PollCollector)(nil)

// NewPollCollector creates a new PollCollector
func NewPollCollector() *PollCollector {
	buildInfo := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "azure_lro_build_info",
			Help: "Build version information",
		},
		[]string{"version", "git_commit", "build_date", "go_version"},
	)

	versionInfo := version.Info()
	buildInfo.With(prometheus.Labels{
		"version":    versionInfo["version"],
		"git_commit": versionInfo["git_commit"],
		"build_date": versionInfo["build_date"],
		"go_version": versionInfo["go_version"],
	}).Set(1)

	return &PollCollector{
		clock: clock.RealClock{},
		started: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "azure_lro_operations_started_total",
				Help: "Long-running operations that started polling in this process, by strategy",
			},
			[]string{"strategy"},
		),
		polls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "azure_lro_polls_total",
				Help: "Poll requests issued, by strategy and result (ok or error)",
			},
			[]string{"strategy", "result"},
		),
		pollDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "azure_lro_poll_duration_seconds",
				Help:    "Duration of a single poll request in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"strategy"},
		),
		finished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "azure_lro_operations_finished_total",
				Help: "Operations that stopped polling, by strategy and terminal status, Error or Abandoned",
			},
			[]string{"strategy", "status"},
		),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "azure_lro_operations_in_flight",
			Help: "Operations currently being polled",
		}),
		buildInfo: buildInfo,
		lastPollDesc: prometheus.NewDesc(
			"azure_lro_last_poll_timestamp_seconds",
			"Unix timestamp of the last completed poll",
			nil,
			nil,
		),
	}
}

// Describe implements prometheus.Collector
func (c *PollCollector) Describe(ch chan<- *prometheus.Desc) {
	c.started.Describe(ch)
	c.polls.Describe(ch)
	c.pollDuration.Describe(ch)
	c.finished.Describe(ch)
	c.inFlight.Describe(ch)
	c.buildInfo.Describe(ch)
	ch <- c.lastPollDesc
}

// Collect implements prometheus.Collector
func (c *PollCollector) Collect(ch chan<- prometheus.Metric) {
	c.started.Collect(ch)
	c.polls.Collect(ch)
	c.pollDuration.Collect(ch)
	c.finished.Collect(ch)
	c.inFlight.Collect(ch)
	c.buildInfo.Collect(ch)

	c.mu.RLock()
	last := c.lastPoll
	c.mu.RUnlock()
	if !last.IsZero() {
		ch <- prometheus.MustNewConstMetric(
			c.lastPollDesc,
			prometheus.GaugeValue,
			float64(last.Unix()),
		)
	}
}

// OperationStarted implements lro.Observer
func (c *PollCollector) OperationStarted(kind lro.Kind) {
	c.started.WithLabelValues(string(kind)).Inc()
	c.inFlight.Inc()
}

// PollCompleted implements lro.Observer
func (c *PollCollector) PollCompleted(kind lro.Kind, elapsed time.Duration, err error) {
	result := ResultOK
	if err != nil {
		result = ResultError
	}
	c.polls.WithLabelValues(string(kind), result).Inc()
	c.pollDuration.WithLabelValues(string(kind)).Observe(elapsed.Seconds())

	c.mu.Lock()
	c.lastPoll = c.clock.Now()
	c.mu.Unlock()
}

// OperationFinished implements lro.Observer
func (c *PollCollector) OperationFinished(kind lro.Kind, outcome string) {
	c.finished.WithLabelValues(string(kind), outcome).Inc()
	c.inFlight.Dec()
}

// LastPollTime returns the time of the last completed poll
func (c *PollCollector) LastPollTime() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastPoll
}
