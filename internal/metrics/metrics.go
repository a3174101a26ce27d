package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric name.
const Namespace = "resend"

// Broadcast kinds.
const (
	KindData  = "data"
	KindError = "error"
)

// Metrics holds the relay's Prometheus collectors.
type Metrics struct {
	ActiveConnections prometheus.Gauge
	ConnectionsTotal  prometheus.Counter
	SessionsClosed    *prometheus.CounterVec // reason
	FramesReceived    prometheus.Counter
	MalformedFrames   prometheus.Counter
	HandlerFaults     prometheus.Counter
	Broadcasts        *prometheus.CounterVec // kind
	Deliveries        prometheus.Counter
	SendFailures      prometheus.Counter
	DispatchDuration  *prometheus.HistogramVec // handled
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ActiveConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "active_connections",
			Help:      "Number of registered WebSocket connections",
		}),
		ConnectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "connections_total",
			Help:      "Total number of accepted WebSocket connections",
		}),
		SessionsClosed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "sessions_closed_total",
			Help:      "Total number of ended sessions by reason",
		}, []string{"reason"}),
		FramesReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "frames_received_total",
			Help:      "Total number of data frames received from clients",
		}),
		MalformedFrames: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "malformed_frames_total",
			Help:      "Total number of frames that failed to decode",
		}),
		HandlerFaults: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "handler_faults_total",
			Help:      "Total number of route handler failures",
		}),
		Broadcasts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "broadcasts_total",
			Help:      "Total number of broadcasts by kind",
		}, []string{"kind"}),
		Deliveries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "deliveries_total",
			Help:      "Total number of frames delivered to recipients",
		}),
		SendFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "send_failures_total",
			Help:      "Total number of failed sends to recipients",
		}),
		DispatchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "dispatch_duration_seconds",
			Help:      "Time from decoded envelope to completed broadcast",
			Buckets:   prometheus.DefBuckets,
		}, []string{"handled"}),
	}
}

// NewUnregistered creates collectors backed by a private registry. Useful
// for tests and for embedding a relay without exposing metrics.
func NewUnregistered() *Metrics {
	return New(prometheus.NewRegistry())
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
