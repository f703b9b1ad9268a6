package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "matrixhub",
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests received",
	}, []string{"method", "path", "status"})

	httpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "matrixhub",
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	httpInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "matrixhub",
		Name:      "http_in_flight_requests",
		Help:      "Current number of in-flight HTTP requests",
	})

	// WSConnections tracks the number of currently registered push clients.
	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "matrixhub",
		Name:      "ws_connections",
		Help:      "Number of currently connected WebSocket clients",
	})

	// Broadcasts counts broadcast passes over the hub membership.
	Broadcasts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "matrixhub",
		Name:      "ws_broadcasts_total",
		Help:      "Total number of hub broadcast passes",
	})

	// DroppedClients counts clients pruned because delivery failed or
	// their outbound queue was full.
	DroppedClients = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "matrixhub",
		Name:      "ws_dropped_clients_total",
		Help:      "Total number of clients pruned during broadcast",
	})

	// StateUpdates counts accepted (non-noop) state mutations.
	StateUpdates = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "matrixhub",
		Name:      "state_updates_total",
		Help:      "Total number of accepted state updates",
	})

	// PersistenceFailures counts save attempts that failed and were
	// degraded to in-memory-only operation.
	PersistenceFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "matrixhub",
		Name:      "persistence_failures_total",
		Help:      "Total number of failed persistence attempts",
	})
)

type responseRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *responseRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

func (r *responseRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack is needed so the WebSocket upgrade works through the metrics
// middleware.
func (r *responseRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := r.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, fmt.Errorf("metrics: underlying ResponseWriter does not support hijacking")
}

// Middleware records request metrics with Prometheus labels.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		labels := prometheus.Labels{
			"method": r.Method,
			"path":   r.URL.Path,
			"status": strconv.Itoa(rec.status),
		}
		httpRequests.With(labels).Inc()
		httpLatency.With(labels).Observe(time.Since(start).Seconds())
	})
}

// Handler exposes the default Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
