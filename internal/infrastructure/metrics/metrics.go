package metrics

import (
	"device-adapter-core/internal/domain/model"
	"device-adapter-core/internal/ports"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "device_adapter"

// unmatchedRoute labels requests that no route matched.
const unmatchedRoute = "unmatched"

var _ ports.Recorder = (*Metrics)(nil)

// Metrics implements ports.Recorder on a Prometheus registry.
type Metrics struct {
	registry      *prometheus.Registry
	cameraFetches *prometheus.CounterVec
	bridgeSetups  *prometheus.CounterVec
	pairingReqs   *prometheus.CounterVec
	registrations *prometheus.GaugeVec
	httpRequests  *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		cameraFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "camera_fetches_total",
			Help:      "Camera image requests by camera and result.",
		}, []string{"camera", "result"}),
		bridgeSetups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bridge_setups_total",
			Help:      "Hue bridge setup attempts by outcome.",
		}, []string{"outcome"}),
		pairingReqs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pairing_requests_total",
			Help:      "Pairing prompts shown, by device identity.",
		}, []string{"identity"}),
		registrations: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "registrations",
			Help:      "Tracked devices by registration state.",
		}, []string{"state"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP API requests by route, method and status.",
		}, []string{"route", "method", "status"}),
	}
	m.registry.MustRegister(
		m.cameraFetches,
		m.bridgeSetups,
		m.pairingReqs,
		m.registrations,
		m.httpRequests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) CameraFetch(camera, result string) {
	m.cameraFetches.WithLabelValues(camera, result).Inc()
}

func (m *Metrics) BridgeSetup(outcome model.SetupOutcome) {
	m.bridgeSetups.WithLabelValues(string(outcome)).Inc()
}

func (m *Metrics) PairingRequest(identity string) {
	m.pairingReqs.WithLabelValues(identity).Inc()
}

func (m *Metrics) RegistrationState(state model.RegistrationState, delta float64) {
	m.registrations.WithLabelValues(string(state)).Add(delta)
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Middleware counts requests by chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)

		route := unmatchedRoute
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		m.httpRequests.WithLabelValues(route, r.Method, strconv.Itoa(rw.status)).Inc()
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
