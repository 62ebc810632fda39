// Package telemetry holds the Prometheus metrics exported on /metrics.
package telemetry

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "button_agent"

var (
	Registry = prometheus.NewRegistry()

	EventsEnqueued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_enqueued_total",
			Help:      "Device events accepted by the event queue.",
		},
		[]string{"kind"},
	)

	EventsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Device events dropped because the event queue was full.",
		},
		[]string{"kind"},
	)

	Publishes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publishes_total",
			Help:      "Relay publish attempts by event kind and result.",
		},
		[]string{"kind", "result"},
	)

	ButtonPresses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "button_presses_total",
			Help:      "Debounced button presses.",
		},
	)

	LinkConnects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "link_connects_total",
			Help:      "Connect requests issued to the link driver.",
		},
	)

	LinkUp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "link_up",
			Help:      "1 while the network link has an address.",
		},
	)

	SessionUp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_up",
			Help:      "1 while the broker session is established and subscribed.",
		},
	)

	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "build_info",
			Help:      "Build info (constant 1, labeled by version).",
		},
		[]string{"version"},
	)

	startTime = time.Now()
	uptime    = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Process uptime in seconds.",
		},
		func() float64 { return time.Since(startTime).Seconds() },
	)

	depthSource atomic.Pointer[func() int]
	queueDepth  = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Events waiting in the event queue.",
		},
		func() float64 {
			if fn := depthSource.Load(); fn != nil {
				return float64((*fn)())
			}
			return 0
		},
	)
)

func init() {
	Registry.MustRegister(
		EventsEnqueued, EventsDropped, Publishes, ButtonPresses,
		LinkConnects, LinkUp, SessionUp, buildInfo, uptime, queueDepth,
	)
}

// Handler exposes the registry for mounting at /metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// SetBuildInfo should be called once at startup.
func SetBuildInfo(version string) {
	buildInfo.WithLabelValues(version).Set(1)
}

// RegisterQueueDepth sets the source of the queue_depth gauge. The gauge
// is process-wide, so the most recent call wins; it reads 0 until the
// first call.
func RegisterQueueDepth(depth func() int) {
	depthSource.Store(&depth)
}

// BoolGauge converts a condition to a gauge value.
func BoolGauge(g prometheus.Gauge, v bool) {
	if v {
		g.Set(1)
		return
	}
	g.Set(0)
}
