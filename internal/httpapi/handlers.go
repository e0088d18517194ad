package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"notathome.app/api/spec"
	"notathome.app/internal/auth"
	"notathome.app/internal/export"
	"notathome.app/internal/ledger"
	"notathome.app/internal/obs"
	"notathome.app/internal/session"
	"notathome.app/internal/stream"
)

// ReadyProbe reports whether the service can take traffic. A nil DB means
// the in-memory store is active and readiness is unconditional.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// readinessChecker lets the gRPC health server share the probe.
type readinessChecker interface {
	Check(ctx context.Context) error
}

// API is the HTTP layer over the session, ledger, and export services.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string

	sessions  *session.Service
	entries   *ledger.Service
	exporter  *export.Service
	hub       *stream.Hub
	publisher stream.Publisher
	tokens    *auth.TokenManager

	ratePerSec float64
	rateBurst  int
	maxBody    int64
	devTokens  bool
}

// Option adjusts API construction.
type Option func(*API)

// WithRateLimit overrides the per-client request budget.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(a *API) {
		if perSecond > 0 {
			a.ratePerSec = perSecond
		}
		if burst > 0 {
			a.rateBurst = burst
		}
	}
}

// WithMaxBodyBytes overrides the request body cap.
func WithMaxBodyBytes(n int64) Option {
	return func(a *API) {
		if n > 0 {
			a.maxBody = n
		}
	}
}

// WithDevTokenMint enables the /v1/auth/token endpoint. It exists for
// development and smoke testing; deployments that take tokens from a real
// identity provider leave it off, and the route then answers 404.
func WithDevTokenMint() Option {
	return func(a *API) {
		a.devTokens = true
	}
}

// WithPublisher routes events through an external fan-out, such as the
// Redis bridge, instead of the local hub alone.
func WithPublisher(p stream.Publisher) Option {
	return func(a *API) {
		if p != nil {
			a.publisher = p
		}
	}
}

func New(rp ReadyProbe, version string, sessions *session.Service, entries *ledger.Service, exporter *export.Service, hub *stream.Hub, tokens *auth.TokenManager, opts ...Option) *API {
	a := &API{
		mux:        http.NewServeMux(),
		readyProbe: rp,
		version:    version,
		sessions:   sessions,
		entries:    entries,
		exporter:   exporter,
		hub:        hub,
		tokens:     tokens,
		ratePerSec: 50,
		rateBurst:  100,
		maxBody:    1 << 20,
	}
	if hub != nil {
		a.publisher = hub
	}
	for _, opt := range opts {
		opt(a)
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// OpenAPI YAML
	a.mux.HandleFunc("/openapi.yaml", a.OpenAPISpec)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// domain routes
	a.mux.HandleFunc("/v1/auth/token", a.handleAuthToken)
	a.mux.HandleFunc("/v1/sessions", a.handleSessionsCollection)
	a.mux.HandleFunc("/v1/sessions/", a.handleSessionSubtree)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler assembles the middleware chain around the mux. Request ids come
// first so every later layer can tag its output with one.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = MaxBodyBytes(h, a.maxBody)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = obs.Instrument(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return h
}

// publish fans the event out and counts it. The publisher is the local hub
// unless a bridge was installed.
func (a *API) publish(evt stream.Event) {
	if a.publisher == nil {
		return
	}
	a.publisher.Publish(evt)
	obs.IncStreamEvent(string(evt.Type))
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    serviceName,
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

func (a *API) OpenAPISpec(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/yaml; charset=utf-8")
	_, _ = w.Write(spec.OpenAPI)
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
