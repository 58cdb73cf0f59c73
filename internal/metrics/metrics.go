// Package metrics exposes tracking counters in the Prometheus text format.
package metrics

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/ayusman/handsignal/internal/movement"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics
type Metrics struct {
	// Frame processing counters
	FramesHandled atomic.Uint64
	FramesNoHand  atomic.Uint64
	FramesStale   atomic.Uint64

	// Error counters
	LandmarkErrors  atomic.Uint64
	MalformedHands  atomic.Uint64
	HandlerPanics   atomic.Uint64
	StartFailures   atomic.Uint64
	PluginFailures  atomic.Uint64
	PluginsExecuted atomic.Uint64

	// Session tracking
	SessionsStarted atomic.Uint64
	State           atomic.Int64

	// Latency tracking
	LandmarkLatencyMs atomic.Uint64 // Last landmark detection latency in ms

	// Readings consumers
	ActiveSubscribers atomic.Int64

	movements map[movement.Direction]*atomic.Uint64

	// Prometheus collectors
	registry *prometheus.Registry
}

// New creates a new Metrics instance with Prometheus collectors
func New() *Metrics {
	m := &Metrics{
		movements: make(map[movement.Direction]*atomic.Uint64, len(movement.Directions)),
		registry:  prometheus.NewRegistry(),
	}
	for _, d := range movement.Directions {
		m.movements[d] = new(atomic.Uint64)
	}

	m.registerPrometheusMetrics()

	return m
}

func (m *Metrics) counter(name, help string, value func() float64) {
	m.registry.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Name: name,
			Help: help,
		},
		value,
	))
}

func (m *Metrics) gauge(name, help string, value func() float64) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: name,
			Help: help,
		},
		value,
	))
}

// registerPrometheusMetrics registers all metrics with Prometheus
func (m *Metrics) registerPrometheusMetrics() {
	m.counter("handsignal_frames_handled_total", "Total frames handed to the landmark source",
		func() float64 { return float64(m.FramesHandled.Load()) })
	m.counter("handsignal_frames_no_hand_total", "Total frames without a detected hand",
		func() float64 { return float64(m.FramesNoHand.Load()) })
	m.counter("handsignal_frames_stale_total", "Total frames dropped because tracking had stopped",
		func() float64 { return float64(m.FramesStale.Load()) })

	m.counter("handsignal_landmark_errors_total", "Total landmark source failures",
		func() float64 { return float64(m.LandmarkErrors.Load()) })
	m.counter("handsignal_malformed_hands_total", "Total hands skipped for malformed landmark data",
		func() float64 { return float64(m.MalformedHands.Load()) })
	m.counter("handsignal_handler_panics_total", "Total panics recovered in the frame handler",
		func() float64 { return float64(m.HandlerPanics.Load()) })
	m.counter("handsignal_start_failures_total", "Total failed tracking starts",
		func() float64 { return float64(m.StartFailures.Load()) })

	m.counter("handsignal_plugins_executed_total", "Total plugin actions executed",
		func() float64 { return float64(m.PluginsExecuted.Load()) })
	m.counter("handsignal_plugin_failures_total", "Total plugin actions that failed",
		func() float64 { return float64(m.PluginFailures.Load()) })

	m.counter("handsignal_sessions_started_total", "Total tracking sessions started",
		func() float64 { return float64(m.SessionsStarted.Load()) })
	m.gauge("handsignal_session_state", "Session state (0=idle, 1=initializing, 2=ready, 3=tracking, 4=error)",
		func() float64 { return float64(m.State.Load()) })

	m.gauge("handsignal_landmark_latency_ms", "Last landmark detection latency in milliseconds",
		func() float64 { return float64(m.LandmarkLatencyMs.Load()) })
	m.gauge("handsignal_readings_subscribers", "Number of active readings subscribers",
		func() float64 { return float64(m.ActiveSubscribers.Load()) })

	for _, d := range movement.Directions {
		counter := m.movements[d]
		m.registry.MustRegister(prometheus.NewCounterFunc(
			prometheus.CounterOpts{
				Name:        "handsignal_movements_total",
				Help:        "Total classified movements by direction",
				ConstLabels: prometheus.Labels{"direction": string(d)},
			},
			func() float64 { return float64(counter.Load()) },
		))
	}
}

// ObserveMovement counts a classified movement.
func (m *Metrics) ObserveMovement(d movement.Direction) {
	if c, ok := m.movements[d]; ok {
		c.Add(1)
	}
}

// Movements returns the movement count for d.
func (m *Metrics) Movements(d movement.Direction) uint64 {
	if c, ok := m.movements[d]; ok {
		return c.Load()
	}
	return 0
}

// UpdateLandmarkLatency records how long one landmark detection took.
func (m *Metrics) UpdateLandmarkLatency(duration time.Duration) {
	m.LandmarkLatencyMs.Store(uint64(duration.Milliseconds()))
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
