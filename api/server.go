package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	clog "cosmossdk.io/log"
	"github.com/openalpha/radiant-lend/api/handlers"
	"github.com/openalpha/radiant-lend/api/middleware"
	"github.com/openalpha/radiant-lend/api/types"
	"github.com/openalpha/radiant-lend/api/websocket"
	"github.com/openalpha/radiant-lend/metrics"
)

// Server represents the API server
type Server struct {
	httpServer *http.Server
	wsServer   *websocket.Server
	config     *Config

	// Services
	marketService      types.MarketService
	positionService    types.PositionService
	liquidationService types.LiquidationService

	// Handlers
	reserveHandler     *handlers.ReserveHandler
	positionHandler    *handlers.PositionHandler
	liquidationHandler *handlers.LiquidationHandler

	// Rate limiter
	rateLimiter *middleware.RateLimiter

	stopCh chan struct{}
}

// Config contains server configuration
type Config struct {
	Host             string
	Port             int
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	Assets           []string
	BroadcastPeriod  time.Duration
	DisableRateLimit bool // For testing purposes
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Host:            "0.0.0.0",
		Port:            8080,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		Assets:          []string{"USDC", "SOL", "ETH"},
		BroadcastPeriod: time.Second,
	}
}

// NewServer creates an API server backed by an in-memory lending keeper.
// The keeper state lives only for the lifetime of the process; for
// production the server should be pointed at a running chain instead.
func NewServer(config *Config) (*Server, error) {
	if config == nil {
		config = DefaultConfig()
	}

	logger := clog.NewNopLogger()
	service, err := NewKeeperService(logger, config.Assets)
	if err != nil {
		return nil, fmt.Errorf("failed to create keeper service: %w", err)
	}

	return newServer(config, service, service, service), nil
}

// NewServerWithServices creates an API server with custom service implementations
func NewServerWithServices(config *Config, marketSvc types.MarketService, positionSvc types.PositionService, liquidationSvc types.LiquidationService) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	return newServer(config, marketSvc, positionSvc, liquidationSvc)
}

func newServer(config *Config, marketSvc types.MarketService, positionSvc types.PositionService, liquidationSvc types.LiquidationService) *Server {
	wsConfig := websocket.DefaultServerConfig()
	wsConfig.Port = config.Port

	rateLimiter := middleware.NewRateLimiter(middleware.DefaultRateLimitConfig())

	s := &Server{
		config:             config,
		wsServer:           websocket.NewServer(wsConfig),
		marketService:      marketSvc,
		positionService:    positionSvc,
		liquidationService: liquidationSvc,
		rateLimiter:        rateLimiter,
		stopCh:             make(chan struct{}),
	}

	s.reserveHandler = handlers.NewReserveHandler(s.marketService)
	s.positionHandler = handlers.NewPositionHandler(s.positionService)
	s.liquidationHandler = handlers.NewLiquidationHandler(s.liquidationService)

	return s
}

// Start starts the API server
func (s *Server) Start() error {
	mux := http.NewServeMux()

	// Health check (support both /health and /v1/health for compatibility)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/v1/health", s.handleHealth)

	// Market endpoints (read-only)
	mux.HandleFunc("/v1/assets", s.reserveHandler.HandleAssets)
	mux.HandleFunc("/v1/reserves", s.reserveHandler.HandleReserves)
	mux.HandleFunc("/v1/reserves/", s.reserveHandler.HandleReserve)

	// Position endpoints (read-only)
	mux.HandleFunc("/v1/positions/", s.positionHandler.HandlePosition)

	// Account actions (POST, per-user rate limited)
	actionLimit := middleware.ActionRateLimitMiddleware(s.rateLimiter)
	mux.Handle("/v1/actions/deposit", actionLimit(http.HandlerFunc(s.positionHandler.HandleDeposit)))
	mux.Handle("/v1/actions/withdraw", actionLimit(http.HandlerFunc(s.positionHandler.HandleWithdraw)))
	mux.Handle("/v1/actions/borrow", actionLimit(http.HandlerFunc(s.positionHandler.HandleBorrow)))
	mux.Handle("/v1/actions/repay", actionLimit(http.HandlerFunc(s.positionHandler.HandleRepay)))

	// Liquidation endpoints (GET history, POST execute)
	mux.HandleFunc("/v1/liquidations", s.liquidationHandler.HandleLiquidations)
	mux.HandleFunc("/v1/liquidations/at-risk", s.liquidationHandler.HandleAtRisk)

	// WebSocket
	mux.HandleFunc("/ws", s.wsServer.GetHub().ServeWS)

	// Prometheus metrics
	mux.Handle("/metrics", metrics.Handler())

	// Apply middleware chain: CORS -> Metrics -> RateLimit -> Handler
	var handler http.Handler = metricsMiddleware(mux)
	if !s.config.DisableRateLimit {
		handler = middleware.RateLimitMiddleware(s.rateLimiter)(handler)
	}
	handler = corsMiddleware(handler)

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	// Start WebSocket hub
	go s.wsServer.GetHub().Run()

	// Feed reserve and price snapshots into the hub
	go s.runBroadcaster()

	log.Printf("API server starting on %s", addr)
	if s.config.DisableRateLimit {
		log.Printf("Rate limiting DISABLED (for testing)")
	} else {
		log.Printf("Rate limiting enabled")
	}
	return s.httpServer.ListenAndServe()
}

// Stop gracefully shuts down the server
func (s *Server) Stop(ctx context.Context) error {
	close(s.stopCh)
	return s.httpServer.Shutdown(ctx)
}

// runBroadcaster periodically snapshots reserves and prices and pushes
// them into the websocket hub, which fans them out on its own cadence.
func (s *Server) runBroadcaster() {
	period := s.config.BroadcastPeriod
	if period <= 0 {
		period = time.Second
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.broadcastSnapshots()
		}
	}
}

func (s *Server) broadcastSnapshots() {
	ctx := context.Background()
	hub := s.wsServer.GetHub()

	reserves, err := s.marketService.GetReserves(ctx)
	if err != nil {
		return
	}
	now := time.Now().Unix()
	for _, reserve := range reserves {
		hub.UpdateReserve(reserve.AssetID, &websocket.ReserveMessage{
			AssetID:       reserve.AssetID,
			TotalDeposits: reserve.TotalDeposits,
			TotalBorrows:  reserve.TotalBorrows,
			Utilization:   reserve.Utilization,
			BorrowRate:    reserve.BorrowRate,
			SupplyRate:    reserve.SupplyRate,
			Timestamp:     now,
		})

		price, err := s.marketService.GetPrice(ctx, reserve.AssetID)
		if err != nil {
			continue
		}
		hub.UpdatePrice(price.AssetID, &websocket.PriceMessage{
			AssetID:    price.AssetID,
			Price:      price.Price,
			Confidence: price.Confidence,
			Timestamp:  price.Timestamp,
		})
	}
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
		"warning":   "This API uses in-memory storage. For production, connect to a running Cosmos chain.",
	})
}

// Helper functions

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response status for metrics
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		latency := float64(time.Since(start).Milliseconds())
		metrics.GetCollector().RecordAPIRequest(r.Method, r.URL.Path, strconv.Itoa(rec.status), latency)
	})
}
