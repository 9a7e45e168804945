// Package server assembles the HTTP surface: health and readiness probes,
// Prometheus metrics and the JSON API in front of the service layer.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/ledgerdesk/ledgerdesk/pkg/configuration"
	"github.com/ledgerdesk/ledgerdesk/pkg/metrics"
)

type DefaultOptions struct {
	Logger        *logrus.Logger
	Configuration *configuration.Configuration
	Pool          *pgxpool.Pool
	Services      *Services
}

type HTTPServer struct {
	log     *logrus.Logger
	router  *mux.Router
	pool    *pgxpool.Pool
	metrics *metrics.HTTP
}

func Default(options *DefaultOptions) (*HTTPServer, error) {
	s := &HTTPServer{
		log:     options.Logger,
		router:  mux.NewRouter(),
		pool:    options.Pool,
		metrics: metrics.NewHTTP(),
	}
	s.router.Use(s.logRequests)
	s.router.HandleFunc("/health", s.health).Methods(http.MethodGet)
	s.router.HandleFunc("/ready", s.ready).Methods(http.MethodGet)
	s.router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	if options.Services != nil {
		s.mountAPI(options.Services)
	}
	return s, nil
}

// Router exposes the root router so callers can mount API subrouters.
func (s *HTTPServer) Router() *mux.Router {
	return s.router
}

func (s *HTTPServer) Start(socketAddress string) error {
	srv := &http.Server{
		Addr:              socketAddress,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return srv.ListenAndServe()
}

// statusRecorder captures the response code for logging and metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *HTTPServer) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-Id")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", requestID)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		started := time.Now()
		next.ServeHTTP(rec, r)
		elapsed := time.Since(started)

		// The route template keeps the metric cardinality bounded; raw
		// paths embed entity ids.
		path := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				path = tpl
			}
		}
		s.metrics.Observe(r.Method, path, rec.status, elapsed)
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     rec.status,
			"duration":   elapsed.String(),
		}).Debug("request")
	})
}

func (s *HTTPServer) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ready checks the database; a failed ping takes the instance out of
// rotation without killing it.
func (s *HTTPServer) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.pool.Ping(ctx); err != nil {
		s.log.WithError(err).Warn("readiness check failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
