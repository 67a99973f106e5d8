// Package api provides the engine's thin HTTP surface: a health check, a
// Prometheus scrape endpoint, and read-only snapshot endpoints over each
// subsystem's metrics() contract. It deliberately carries none of the
// dashboard/backtest/websocket-push surface a full trading UI would need.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/quanta-engine/core/pkg/types"
)

// Snapshot is supplied by the composition root and read by every handler;
// it is the server's only dependency on the rest of the engine.
type Snapshot interface {
	GetMarketData(symbols ...string) []types.MarketDataPoint
	GetRegime() types.MarketRegime
	OrchestratorMetrics() interface{}
	RouterMetrics() interface{}
	IndicatorMetrics() interface{}
	RiskMetrics() interface{}
}

// Server is the HTTP API server.
type Server struct {
	logger     *zap.Logger
	config     types.ServerConfig
	router     *mux.Router
	httpServer *http.Server
	snapshot   Snapshot
}

// New constructs a Server bound to snapshot for its read-only endpoints.
func New(logger *zap.Logger, config types.ServerConfig, snapshot Snapshot) *Server {
	s := &Server{
		logger:   logger,
		config:   config,
		router:   mux.NewRouter(),
		snapshot: snapshot,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)

	if s.config.EnableMetrics {
		s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	}

	s.router.HandleFunc("/api/v1/market-data", s.handleMarketData).Methods(http.MethodGet)
	s.router.HandleFunc("/api/v1/market-data/{symbol}", s.handleSymbolData).Methods(http.MethodGet)
	s.router.HandleFunc("/api/v1/regime", s.handleRegime).Methods(http.MethodGet)
	s.router.HandleFunc("/api/v1/metrics/orchestrator", s.handleOrchestratorMetrics).Methods(http.MethodGet)
	s.router.HandleFunc("/api/v1/metrics/router", s.handleRouterMetrics).Methods(http.MethodGet)
	s.router.HandleFunc("/api/v1/metrics/indicators", s.handleIndicatorMetrics).Methods(http.MethodGet)
	s.router.HandleFunc("/api/v1/metrics/risk", s.handleRiskMetrics).Methods(http.MethodGet)
}

// Start begins serving HTTP on the configured host/port. It blocks until
// the server stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	handler := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet},
	}).Handler(s.router)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	s.logger.Info("starting API server", zap.String("addr", addr))
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

func (s *Server) handleMarketData(w http.ResponseWriter, r *http.Request) {
	symbols := r.URL.Query()["symbol"]
	writeJSON(w, http.StatusOK, s.snapshot.GetMarketData(symbols...))
}

func (s *Server) handleSymbolData(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	points := s.snapshot.GetMarketData(symbol)
	if len(points) == 0 {
		http.Error(w, "symbol not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, points[0])
}

func (s *Server) handleRegime(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.snapshot.GetRegime())
}

func (s *Server) handleOrchestratorMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.snapshot.OrchestratorMetrics())
}

func (s *Server) handleRouterMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.snapshot.RouterMetrics())
}

func (s *Server) handleIndicatorMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.snapshot.IndicatorMetrics())
}

func (s *Server) handleRiskMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.snapshot.RiskMetrics())
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
