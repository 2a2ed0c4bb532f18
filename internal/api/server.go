package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"signal-trading-engine/internal/combiner"
	"signal-trading-engine/internal/database"
	"signal-trading-engine/internal/detectors"
	"signal-trading-engine/internal/engine"
	"signal-trading-engine/internal/events"
	"signal-trading-engine/internal/logging"
	"signal-trading-engine/internal/risk"
	"signal-trading-engine/internal/weights"
)

// OrderReader serves persisted order records
type OrderReader interface {
	GetOrdersBySymbol(ctx context.Context, symbol string, limit int) ([]database.OrderRecord, error)
}

// AmendmentReader serves the persisted amendment ledger
type AmendmentReader interface {
	GetAmendments(ctx context.Context, limit int) ([]weights.Amendment, error)
}

// PriceSource serves the current price for a symbol
type PriceSource interface {
	GetPrice(ctx context.Context, symbol string) (float64, error)
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host           string
	Port           int
	ProductionMode bool
	AllowedOrigins []string
}

// Server exposes the decision pipeline over HTTP
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	config     ServerConfig
	logger     *logging.Logger

	parliament *weights.Parliament
	combiner   *combiner.Combiner
	runner     *detectors.Runner
	engine     *engine.Engine
	guard      *risk.Guard
	bus        *events.EventBus
	orders     OrderReader
	amendments AmendmentReader
	prices     PriceSource
}

// NewServer creates the API server and wires its routes. orders,
// amendments, and prices may be nil; the matching endpoints report
// the backend as unavailable.
func NewServer(
	config ServerConfig,
	parliament *weights.Parliament,
	comb *combiner.Combiner,
	runner *detectors.Runner,
	eng *engine.Engine,
	guard *risk.Guard,
	bus *events.EventBus,
	orders OrderReader,
	amendments AmendmentReader,
	prices PriceSource,
	logger *logging.Logger,
) *Server {
	if config.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if len(config.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = config.AllowedOrigins
	} else {
		corsConfig.AllowOrigins = []string{"http://localhost:5173", "http://localhost:8088"}
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	corsConfig.ExposeHeaders = []string{"Content-Length"}
	corsConfig.AllowCredentials = true
	router.Use(cors.New(corsConfig))

	s := &Server{
		router:     router,
		config:     config,
		logger:     logger.WithComponent("api"),
		parliament: parliament,
		combiner:   comb,
		runner:     runner,
		engine:     eng,
		guard:      guard,
		bus:        bus,
		orders:     orders,
		amendments: amendments,
		prices:     prices,
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	v1 := s.router.Group("/api/v1")
	{
		w := v1.Group("/weights")
		{
			w.GET("", s.handleGetWeights)
			w.POST("/amendments", s.handleProposeAmendment)
			w.POST("/reset", s.handleResetWeights)
			w.GET("/history", s.handleWeightHistory)
		}

		v1.GET("/decision/:symbol", s.handleDecision)
		v1.POST("/signals/execute", s.handleExecuteSignal)
		v1.GET("/orders/:symbol", s.handleOrdersBySymbol)
		v1.GET("/price/:symbol", s.handlePrice)

		r := v1.Group("/risk")
		{
			r.POST("/check", s.handleRiskCheck)
			r.GET("/status", s.handleRiskStatus)
			r.POST("/breaker/reset", s.handleBreakerReset)
		}
	}
}

// Start runs the HTTP server until the listener fails
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("API server listening", "address", addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
