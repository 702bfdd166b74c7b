package http

import (
	"context"
	"device-adapter-core/internal/domain/model"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// Camera serves still images.
type Camera interface {
	Name() string
	Image(ctx context.Context) []byte
}

type BridgeManager interface {
	Setup(ctx context.Context, cfg model.BridgeConfig) (model.SetupOutcome, error)
	Deregister(ctx context.Context, host string) error
	Registrations() []model.RegistrationRecord
	Bridges() []string
}

type PendingConfigurator interface {
	Pending() []model.PendingRequest
	Submit(ctx context.Context, requestID string, data map[string]string) error
}

type ServiceCaller interface {
	Call(ctx context.Context, call model.ServiceCall) error
	Describe() map[string]map[string]model.ServiceDescription
}

// Metrics is optional request instrumentation.
type Metrics interface {
	Middleware(next http.Handler) http.Handler
	Handler() http.Handler
}

type Dependencies struct {
	Cameras      []Camera
	Bridges      BridgeManager
	Configurator PendingConfigurator
	Services     ServiceCaller
	Metrics      Metrics
}

type Server struct {
	cameras      map[string]Camera
	bridges      BridgeManager
	configurator PendingConfigurator
	services     ServiceCaller
	metrics      Metrics
	logger       zerolog.Logger
}

func NewServer(deps Dependencies, logger zerolog.Logger) *Server {
	cameras := make(map[string]Camera, len(deps.Cameras))
	for _, c := range deps.Cameras {
		cameras[c.Name()] = c
	}
	return &Server{
		cameras:      cameras,
		bridges:      deps.Bridges,
		configurator: deps.Configurator,
		services:     deps.Services,
		metrics:      deps.Metrics,
		logger:       logger.With().Str("component", "http").Logger(),
	}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	if s.metrics != nil {
		r.Use(s.metrics.Middleware)
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/camera_proxy/{name}", s.handleCameraProxy)
		r.Get("/cameras", s.handleCameras)

		r.Get("/services", s.handleServices)
		r.Post("/services/{domain}/{service}", s.handleServiceCall)

		r.Get("/configurator", s.handlePending)
		r.Post("/configurator/{id}", s.handleConfigure)

		r.Get("/registrations", s.handleRegistrations)
		r.Delete("/registrations/{identity}", s.handleDeregister)

		r.Get("/bridges", s.handleBridges)
		r.Post("/bridges", s.handleSetup)
	})
	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string, readTimeout, writeTimeout time.Duration) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Routes(),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("HTTP server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleCameraProxy(w http.ResponseWriter, r *http.Request) {
	cam, ok := s.cameras[chi.URLParam(r, "name")]
	if !ok {
		writeError(w, http.StatusNotFound, "camera not found")
		return
	}
	image := cam.Image(r.Context())
	if image == nil {
		writeError(w, http.StatusInternalServerError, "no image available")
		return
	}
	w.Header().Set("Content-Type", http.DetectContentType(image))
	w.Write(image)
}

func (s *Server) handleCameras(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(s.cameras))
	for name := range s.cameras {
		names = append(names, name)
	}
	sort.Strings(names)
	writeJSON(w, http.StatusOK, names)
}

func (s *Server) handleServices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.services.Describe())
}

func (s *Server) handleServiceCall(w http.ResponseWriter, r *http.Request) {
	data := map[string]interface{}{}
	if err := decodeBody(r, &data); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	call := model.ServiceCall{
		Domain:  chi.URLParam(r, "domain"),
		Service: chi.URLParam(r, "service"),
		Data:    data,
	}
	if err := s.services.Call(r.Context(), call); err != nil {
		s.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePending(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.configurator.Pending())
}

func (s *Server) handleConfigure(w http.ResponseWriter, r *http.Request) {
	data := map[string]string{}
	if err := decodeBody(r, &data); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.configurator.Submit(r.Context(), chi.URLParam(r, "id"), data); err != nil {
		s.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleRegistrations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.bridges.Registrations())
}

func (s *Server) handleDeregister(w http.ResponseWriter, r *http.Request) {
	if err := s.bridges.Deregister(r.Context(), chi.URLParam(r, "identity")); err != nil {
		s.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleBridges(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.bridges.Bridges())
}

type setupRequest struct {
	Host     string `json:"host"`
	Filename string `json:"filename"`
}

type setupResponse struct {
	Outcome model.SetupOutcome `json:"outcome"`
	Error   string             `json:"error,omitempty"`
}

func (s *Server) handleSetup(w http.ResponseWriter, r *http.Request) {
	var req setupRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	outcome, err := s.bridges.Setup(r.Context(), model.BridgeConfig{Host: req.Host, Filename: req.Filename})
	resp := setupResponse{Outcome: outcome}
	status := http.StatusOK
	switch outcome {
	case model.OutcomeRegistered:
		status = http.StatusCreated
	case model.OutcomeAwaitingPairing:
		status = http.StatusAccepted
	case model.OutcomeFailed:
		status = http.StatusBadGateway
		if errors.Is(err, model.ErrNoHost) {
			status = http.StatusBadRequest
		}
	}
	if err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, status, resp)
}

func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrServiceNotFound),
		errors.Is(err, model.ErrRequestNotFound),
		errors.Is(err, model.ErrBridgeNotFound),
		errors.Is(err, model.ErrGroupNotFound),
		errors.Is(err, model.ErrSceneNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, model.ErrInvalidServiceCall):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error().Err(err).Msg("Request failed")
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// decodeBody accepts an empty body.
func decodeBody(r *http.Request, v interface{}) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
