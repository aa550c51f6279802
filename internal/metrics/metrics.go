package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/scarmonit-creator/LLM-sub005/internal/notify"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_bridge_http_requests_total",
			Help: "Total control-plane HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agent_bridge_http_request_duration_seconds",
			Help:    "Control-plane HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Bridge metrics
	ClientsRegistered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agent_bridge_clients_registered_total",
			Help: "Total client registrations",
		},
	)

	ClientsDisconnected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_bridge_clients_disconnected_total",
			Help: "Total client removals",
		},
		[]string{"reason"},
	)

	ConnectedClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "agent_bridge_connected_clients",
			Help: "Currently registered clients",
		},
	)

	EnvelopesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_bridge_envelopes_processed_total",
			Help: "Total envelopes accepted",
		},
		[]string{"kind"}, // "direct" or "broadcast"
	)

	EnvelopesQueued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agent_bridge_envelopes_queued_total",
			Help: "Total envelopes placed in an offline queue",
		},
	)

	QueueOverflows = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agent_bridge_queue_overflows_total",
			Help: "Envelopes not queued because the recipient backlog was full",
		},
	)

	DeliveryFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agent_bridge_delivery_failures_total",
			Help: "Per-recipient push failures",
		},
	)

	LivenessWarnings = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agent_bridge_liveness_warnings_total",
			Help: "Clients found silent past twice the heartbeat interval",
		},
	)

	MalformedFrames = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agent_bridge_malformed_frames_total",
			Help: "Inbound frames that could not be decoded",
		},
	)
)

// Observer folds bridge events into the Prometheus collectors
type Observer struct{}

// Observe implements notify.Observer
func (Observer) Observe(e notify.Event) {
	switch e.Type {
	case notify.EventClientRegistered:
		ClientsRegistered.Inc()
		ConnectedClients.Inc()
	case notify.EventClientDisconnected:
		reason := e.Reason
		if reason == "" {
			reason = "unknown"
		}
		ClientsDisconnected.WithLabelValues(reason).Inc()
		ConnectedClients.Dec()
	case notify.EventEnvelopeProcessed:
		kind := "direct"
		if e.To == "" {
			kind = "broadcast"
		}
		EnvelopesProcessed.WithLabelValues(kind).Inc()
	case notify.EventEnvelopeQueued:
		EnvelopesQueued.Inc()
	case notify.EventQueueOverflow:
		QueueOverflows.Inc()
	case notify.EventDeliveryFailed:
		DeliveryFailures.Inc()
	case notify.EventLivenessWarning:
		LivenessWarnings.Inc()
	case notify.EventMalformedFrame:
		MalformedFrames.Inc()
	}
}

// statusWriter wraps http.ResponseWriter to capture status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

// UnmatchedRoute labels requests that matched no route
const UnmatchedRoute = "unmatched"

// Middleware records request counts and latency. Paths are taken from the
// chi route pattern to keep label cardinality bounded.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		path := UnmatchedRoute
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}

		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}
