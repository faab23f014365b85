package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the terminal service.
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Session metrics
	SessionsActive  prometheus.Gauge
	SessionsCreated prometheus.Counter

	// Command metrics
	CommandsTotal   *prometheus.CounterVec
	CommandDuration *prometheus.HistogramVec
	CommandErrors   *prometheus.CounterVec

	// Mixed-script metrics
	BlocksExecuted prometheus.Counter
	BlocksFailed   prometheus.Counter

	// WebSocket metrics
	WSConnections prometheus.Gauge

	// System metrics
	Uptime    prometheus.Gauge
	startTime time.Time

	mu sync.RWMutex
}

// NewMetrics creates a new metrics collector.
func NewMetrics() *Metrics {
	m := &Metrics{
		startTime: time.Now(),

		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "termcore_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "termcore_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		SessionsActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "termcore_sessions_active",
				Help: "Number of active terminal sessions",
			},
		),
		SessionsCreated: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "termcore_sessions_created_total",
				Help: "Total number of sessions created",
			},
		),

		CommandsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "termcore_commands_total",
				Help: "Total number of executed commands by kind",
			},
			[]string{"kind"},
		),
		CommandDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "termcore_command_duration_seconds",
				Help:    "Command execution duration in seconds",
				Buckets: []float64{.01, .05, .1, .5, 1, 5, 15, 60, 300},
			},
			[]string{"kind"},
		),
		CommandErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "termcore_command_errors_total",
				Help: "Total number of failed commands by kind",
			},
			[]string{"kind"},
		),

		BlocksExecuted: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "termcore_script_blocks_executed_total",
				Help: "Total number of mixed-script blocks executed",
			},
		),
		BlocksFailed: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "termcore_script_blocks_failed_total",
				Help: "Total number of mixed-script blocks that failed",
			},
		),

		WSConnections: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "termcore_ws_connections",
				Help: "Number of open WebSocket connections",
			},
		),

		Uptime: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "termcore_uptime_seconds",
				Help: "Service uptime in seconds",
			},
		),
	}

	// Keep uptime current
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			m.Uptime.Set(time.Since(m.startTime).Seconds())
		}
	}()

	return m
}

// SessionCreated records a new session.
func (m *Metrics) SessionCreated() {
	m.SessionsCreated.Inc()
	m.SessionsActive.Inc()
}

// SessionClosed records a terminated session.
func (m *Metrics) SessionClosed() {
	m.SessionsActive.Dec()
}

// CommandExecuted records one command completion.
func (m *Metrics) CommandExecuted(kind string, duration time.Duration, err error) {
	m.CommandsTotal.WithLabelValues(kind).Inc()
	m.CommandDuration.WithLabelValues(kind).Observe(duration.Seconds())
	if err != nil {
		m.CommandErrors.WithLabelValues(kind).Inc()
	}
}

// StartTime returns when the metrics collector was created.
func (m *Metrics) StartTime() time.Time {
	return m.startTime
}
