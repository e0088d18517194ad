package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	sessionsCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sessions_created_total",
		Help: "Sessions created.",
	})

	sessionsExportedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sessions_exported_total",
		Help: "Sessions exported and torn down.",
	})

	sessionsSweptTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sessions_swept_total",
		Help: "Expired sessions removed by the sweeper.",
	})

	sweepsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sweeps_total",
			Help: "Sweeper passes by result.",
		},
		[]string{"result"},
	)

	addressesRecordedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "addresses_recorded_total",
		Help: "Address entries appended to session ledgers.",
	})

	streamEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stream_events_published_total",
			Help: "Events published to the session fan-out.",
		},
		[]string{"type"},
	)

	streamDroppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stream_events_dropped_total",
		Help: "Events dropped because a subscriber buffer was full.",
	})

	streamSubscribers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "stream_subscribers",
		Help: "Currently connected stream subscribers.",
	})

	readyGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ready",
		Help: "Whether the service is ready to serve (1) or not (0).",
	})
)

// Init registers all service metrics with the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration,
		sessionsCreatedTotal, sessionsExportedTotal, sessionsSweptTotal, sweepsTotal,
		addressesRecordedTotal,
		streamEventsTotal, streamDroppedTotal, streamSubscribers,
		readyGauge,
	)
}

// Handler exposes the default registry for the /metrics route.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Instrument wraps next with in-flight, count, and latency collection. Paths
// are collapsed to route shapes so per-session ids do not explode label
// cardinality.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// CanonicalPath maps a request path to its route shape, replacing session ids
// and join codes with placeholders. Unknown paths pass through unchanged.
func CanonicalPath(p string) string {
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	if p == "" {
		return "/"
	}
	rest, ok := strings.CutPrefix(p, "/v1/sessions/")
	if !ok || rest == "" {
		return p
	}
	if code, ok := strings.CutPrefix(rest, "by-code/"); ok {
		if code != "" && !strings.Contains(code, "/") {
			return "/v1/sessions/by-code/:code"
		}
		return p
	}
	parts := strings.Split(rest, "/")
	switch len(parts) {
	case 1:
		return "/v1/sessions/:id"
	case 2:
		switch parts[1] {
		case "addresses", "stream", "export", "close":
			return "/v1/sessions/:id/" + parts[1]
		}
	}
	return p
}

func IncSessionsCreated()  { sessionsCreatedTotal.Inc() }
func IncSessionsExported() { sessionsExportedTotal.Inc() }

// AddSessionsSwept records one sweeper pass and, on success, the number of
// sessions it reaped.
func AddSessionsSwept(n int, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	} else {
		sessionsSweptTotal.Add(float64(n))
	}
	sweepsTotal.WithLabelValues(result).Inc()
}

func IncAddressesRecorded() { addressesRecordedTotal.Inc() }

func IncStreamEvent(eventType string) { streamEventsTotal.WithLabelValues(eventType).Inc() }
func IncStreamDropped()               { streamDroppedTotal.Inc() }
func AddStreamSubscribers(delta int)  { streamSubscribers.Add(float64(delta)) }

// SetReady flips the readiness gauge, mirrored by /readyz and the gRPC
// health service.
func SetReady(ready bool) {
	if ready {
		readyGauge.Set(1)
		return
	}
	readyGauge.Set(0)
}

// statusWriter records the response code for labeling.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// Flush keeps server-sent events working through the wrapped writer.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
