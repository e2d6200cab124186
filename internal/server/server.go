// ABOUTME: HTTP server assembly for the alerting engine API.
// ABOUTME: Wires routes, security middleware, and graceful shutdown.

package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/vigilsec/vulnengine/internal/sweep"

	"github.com/sirupsen/logrus"
)

// SweepStatus reports the outcome of the most recent matching sweep.
type SweepStatus interface {
	LastSummary() (sweep.Summary, bool)
}

type Server struct {
	port    int
	alerts  *AlertsHandler
	images  *ImagesHandler
	metrics http.HandlerFunc
	status  SweepStatus
	logger  *logrus.Logger
}

func NewServer(port int, alerts *AlertsHandler, images *ImagesHandler, metrics http.HandlerFunc, status SweepStatus, logger *logrus.Logger) *Server {
	return &Server{
		port:    port,
		alerts:  alerts,
		images:  images,
		metrics: metrics,
		status:  status,
		logger:  logger,
	}
}

// Start serves the API until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(),
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MB
	}

	go func() {
		<-ctx.Done()
		s.logger.Info("Shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	s.logger.WithField("port", s.port).Info("Starting HTTP server")

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/alerts", s.securityMiddleware(s.alerts.List, http.MethodGet))
	mux.HandleFunc("/alerts/stats", s.securityMiddleware(s.alerts.Stats, http.MethodGet))
	mux.HandleFunc("/alerts/status", s.securityMiddleware(s.alerts.UpdateStatus, http.MethodPost))
	mux.HandleFunc("/images/info", s.securityMiddleware(s.images.Info, http.MethodGet))
	mux.HandleFunc("/images/scan", s.securityMiddleware(s.images.Scan, http.MethodGet))
	mux.HandleFunc("/images/verify", s.securityMiddleware(s.images.Verify, http.MethodGet))
	mux.HandleFunc("/metrics", s.securityMiddleware(s.metrics, http.MethodGet))
	mux.HandleFunc("/health", s.securityMiddleware(s.healthHandler, http.MethodGet))
	return mux
}

func (s *Server) securityMiddleware(next http.HandlerFunc, method string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Security headers
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-XSS-Protection", "1; mode=block")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; script-src 'none'; object-src 'none'; frame-ancestors 'none'")

		if r.Method != method && !(method == http.MethodGet && r.Method == http.MethodHead) {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		s.logger.WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"remote_ip":  r.RemoteAddr,
			"user_agent": r.UserAgent(),
		}).Debug("HTTP request received")

		next(w, r)
	}
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	health := map[string]any{"status": "ok"}
	if s.status != nil {
		if summary, ok := s.status.LastSummary(); ok {
			health["last_sweep"] = summary
		}
	}
	json.NewEncoder(w).Encode(health)
}
