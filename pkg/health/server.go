package health

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/linkguard-hq/linkguard/pkg/httpclient"
	"github.com/linkguard-hq/linkguard/pkg/logger"
	"github.com/linkguard-hq/linkguard/pkg/monitor"
	"github.com/linkguard-hq/linkguard/pkg/queue"
	"github.com/linkguard-hq/linkguard/pkg/retry"
)

// Server exposes health, status and metrics endpoints for the agent
type Server struct {
	port          string
	monitor       *monitor.StatusMonitor
	queue         *queue.OfflineQueue
	engine        *retry.Engine
	client        *httpclient.Client
	logger        logger.Logger
	metricsAPIKey string
	httpServer    *http.Server
}

// NewServer creates a new health check server
func NewServer(port string, mon *monitor.StatusMonitor, q *queue.OfflineQueue, engine *retry.Engine, client *httpclient.Client, log logger.Logger) *Server {
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	return &Server{
		port:          port,
		monitor:       mon,
		queue:         q,
		engine:        engine,
		client:        client,
		logger:        log,
		metricsAPIKey: os.Getenv("METRICS_API_KEY"),
	}
}

// metricsAuthMiddleware is a middleware that checks for a valid API key
func (s *Server) metricsAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Skip auth if no API key is configured
		if s.metricsAPIKey == "" {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Missing Authorization header", http.StatusUnauthorized)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, "Invalid Authorization header format", http.StatusUnauthorized)
			return
		}

		if parts[1] != s.metricsAPIKey {
			http.Error(w, "Invalid API key", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Start starts the health check server. It blocks until the server
// exits; run it in a goroutine and call Shutdown to stop it.
func (s *Server) Start() {
	mux := http.NewServeMux()

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	// Readiness check endpoint
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("Ready"))
	})

	// Combined status endpoint for dashboards
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		status := map[string]interface{}{
			"connectivity": s.monitor.GetStatus(),
			"queue":        s.queue.GetQueueStatus(),
			"operations": map[string]interface{}{
				"active": s.engine.GetActiveOperationsCount(),
				"list":   operationViews(s.engine.GetAllOperations()),
			},
		}

		if s.client != nil {
			circuits := make(map[string]interface{})
			for _, cb := range s.client.Breakers() {
				failures, lastFailure, open := cb.State()
				state := "closed"
				if open {
					state = "open"
				}
				circuits[cb.Host()] = map[string]interface{}{
					"state":        state,
					"failures":     failures,
					"last_failure": lastFailure,
				}
			}
			status["circuits"] = circuits
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(status); err != nil {
			s.logger.ErrorWith(logger.Health, "Error encoding status JSON: %v", err)
		}
	})

	// Admin kick for queue replay
	mux.HandleFunc("/queue/process", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		go s.queue.ProcessQueue(context.Background())
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte("Queue processing started"))
	})

	// Circuit breaker admin control endpoint
	mux.HandleFunc("/circuit/reset", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		host := r.URL.Query().Get("host")
		if host == "" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte("Missing host parameter"))
			return
		}

		if s.client == nil || !s.client.ResetBreaker(host) {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte("No circuit breaker for host " + host))
			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("Circuit breaker for " + host + " reset"))
	})

	// Expose Prometheus metrics with API key authentication
	mux.Handle("/metrics", s.metricsAuthMiddleware(promhttp.Handler()))

	s.httpServer = &http.Server{Addr: ":" + s.port, Handler: mux}

	s.logger.InfoWith(logger.Health, "Starting health and metrics server on port %s", s.port)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		s.logger.ErrorWith(logger.Health, "Health server error: %v", err)
	}
}

// Shutdown stops the server gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// operationViews flattens live operations into a JSON-friendly shape
func operationViews(ops []retry.OperationInfo) []map[string]interface{} {
	views := make([]map[string]interface{}, 0, len(ops))
	for _, op := range ops {
		view := map[string]interface{}{
			"id":         op.ID,
			"attempts":   op.Attempts,
			"status":     string(op.Status),
			"started_at": op.StartedAt.Format(time.RFC3339),
		}
		if op.LastError != nil {
			view["last_error"] = op.LastError.Error()
		}
		views = append(views, view)
	}
	return views
}
