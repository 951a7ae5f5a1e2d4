// Package api provides HTTP server setup and routing for the test
// execution engine: chi middleware, health/readiness probes, and route
// registration.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Server wraps the HTTP server and router.
type Server struct {
	router      *chi.Mux
	logger      *zap.Logger
	port        int
	mongoClient *mongo.Client
	redisClient *redis.Client
}

// Config holds server configuration.
type Config struct {
	Port        int
	Logger      *zap.Logger
	MongoClient *mongo.Client
	RedisClient *redis.Client
}

// NewServer creates a new HTTP server with configured middleware and routes.
func NewServer(cfg Config) *Server {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	s := &Server{
		router:      r,
		logger:      cfg.Logger,
		port:        cfg.Port,
		mongoClient: cfg.MongoClient,
		redisClient: cfg.RedisClient,
	}

	r.Route("/test-engine/v1/status", func(r chi.Router) {
		r.Get("/healthz", healthzHandler)
		r.Get("/readyz", s.readyzHandler)
	})

	r.Handle("/metrics", promhttp.Handler())

	return s
}

// Router returns the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// RegisterExecuteRoutes registers the test execution API routes.
func (s *Server) RegisterExecuteRoutes(handler *ExecuteHandler) {
	s.router.Route("/test-engine/v1", func(r chi.Router) {
		r.Use(handler.Authenticate)
		r.Post("/test-suites/{testSuiteId}/execute", handler.Execute)
	})
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func healthzHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *Server) readyzHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	components := make(map[string]string)
	allHealthy := true

	if s.mongoClient != nil {
		mongoCtx, mongoCancel := context.WithTimeout(ctx, time.Second)
		if err := s.mongoClient.Ping(mongoCtx, nil); err != nil {
			components["mongo"] = "unhealthy"
			allHealthy = false
			s.logger.Debug("mongo health check failed", zap.Error(err))
		} else {
			components["mongo"] = "healthy"
		}
		mongoCancel()
	} else {
		components["mongo"] = "unhealthy"
		allHealthy = false
	}

	if s.redisClient != nil {
		redisCtx, redisCancel := context.WithTimeout(ctx, time.Second)
		if err := s.redisClient.Ping(redisCtx).Err(); err != nil {
			components["redis"] = "unhealthy"
			allHealthy = false
			s.logger.Debug("redis health check failed", zap.Error(err))
		} else {
			components["redis"] = "healthy"
		}
		redisCancel()
	} else {
		components["redis"] = "not_configured"
	}

	response := map[string]interface{}{
		"status":     "ready",
		"components": components,
		"timestamp":  time.Now().Format(time.RFC3339),
	}

	if !allHealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
		response["status"] = "degraded"
	} else {
		w.WriteHeader(http.StatusOK)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}
