package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"signal-streamer/src/interfaces"
	"signal-streamer/src/logger"
	"signal-streamer/src/metrics"
	"signal-streamer/src/models"

	"github.com/gin-gonic/gin"
)

// StreamService is the pipeline surface the transport layer drives.
type StreamService interface {
	Attach(symbol string, conn interfaces.IConnection) error
	Detach(symbol string, conn interfaces.IConnection)
	History(ctx context.Context, symbol, interval string) []models.MBar
	Snapshot() []models.MPipelineStatus
}

// -----------------------------------------------------------------------------
// FastAPIServer
// -----------------------------------------------------------------------------

type FastAPIServer struct {
	Config  *models.MConfig
	Logger  *logger.Logger
	engine  *gin.Engine
	http    *http.Server
	streams StreamService
	journal interfaces.ISignalJournal // nil when journaling is off

	// WebSocket clients
	clients   map[*Client]struct{}
	clientsMu sync.RWMutex
}

// -----------------------------------------------------------------------------
// Constructor
// -----------------------------------------------------------------------------

func NewFastAPIServer(cfg *models.MConfig, streams StreamService, journal interfaces.ISignalJournal, log *logger.Logger) *FastAPIServer {
	// Set Gin mode
	if !strings.EqualFold(cfg.LogLevel, "DEBUG") {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &FastAPIServer{
		Config:  cfg,
		Logger:  log,
		engine:  gin.New(),
		streams: streams,
		journal: journal,
		clients: make(map[*Client]struct{}),
	}
	s.engine.Use(gin.Recovery())

	// Add CORS Middleware
	s.engine.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if strings.HasPrefix(origin, "http://127.0.0.1:") || strings.HasPrefix(origin, "http://localhost:") {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	s.setupRoutes()

	s.http = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// -----------------------------------------------------------------------------
// Route Setup
// -----------------------------------------------------------------------------

func (s *FastAPIServer) setupRoutes() {
	s.engine.GET("/health", s.getLiveness)
	s.engine.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := s.engine.Group("/api")
	api.GET("/health", s.getHealth)
	api.GET("/config", s.getConfig)
	api.GET("/pipelines", s.getPipelines)

	v1 := api.Group("/v1")
	v1.GET("/market-data/history/:symbol", s.getHistory)
	v1.GET("/market-data/ws/:symbol", s.handleWebSocket)
	v1.GET("/signals", s.getSignals)
}

// Handler exposes the router, mainly for tests.
func (s *FastAPIServer) Handler() http.Handler {
	return s.engine
}

// -----------------------------------------------------------------------------
// Server Lifecycle
// -----------------------------------------------------------------------------

// Start blocks serving until Stop.
func (s *FastAPIServer) Start() error {
	s.Logger.Info("Starting server on %s", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// -----------------------------------------------------------------------------

// Stop shuts the HTTP server down and closes every websocket client.
func (s *FastAPIServer) Stop(ctx context.Context) error {
	err := s.http.Shutdown(ctx)

	s.clientsMu.RLock()
	clients := make([]*Client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.clientsMu.RUnlock()

	for _, c := range clients {
		c.Close()
	}
	return err
}

// -----------------------------------------------------------------------------
// Route Handlers
// -----------------------------------------------------------------------------

func (s *FastAPIServer) getLiveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// -----------------------------------------------------------------------------

func (s *FastAPIServer) getHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"connections": s.ConnectionCount(),
		"pipelines":   len(s.streams.Snapshot()),
		"simulation":  s.Config.MarketData.UseSimulation,
	})
}

// -----------------------------------------------------------------------------

func (s *FastAPIServer) getConfig(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"interval":   s.Config.MarketData.History.Interval,
		"atr_period": s.Config.Strategy.ATRPeriod,
		"multiplier": s.Config.Strategy.Multiplier,
		"sinks":      s.Config.Execution.Sinks,
	})
}

// -----------------------------------------------------------------------------

func (s *FastAPIServer) getPipelines(c *gin.Context) {
	c.JSON(http.StatusOK, s.streams.Snapshot())
}

// -----------------------------------------------------------------------------

func (s *FastAPIServer) getHistory(c *gin.Context) {
	symbol, ok := normalizeSymbol(c.Param("symbol"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid symbol"})
		return
	}
	interval := c.DefaultQuery("interval", s.Config.MarketData.History.Interval)

	bars := s.streams.History(c.Request.Context(), symbol, interval)
	if bars == nil {
		bars = []models.MBar{}
	}
	c.JSON(http.StatusOK, bars)
}

// -----------------------------------------------------------------------------

func (s *FastAPIServer) getSignals(c *gin.Context) {
	if s.journal == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "signal journal is disabled"})
		return
	}
	limit, err := parseLimit(c.Query("limit"), 50, 1000)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	signals, err := s.journal.RecentSignals(limit)
	if err != nil {
		s.Logger.Error("Reading signal journal failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "journal unavailable"})
		return
	}
	if signals == nil {
		signals = []models.MTradeSignal{}
	}
	c.JSON(http.StatusOK, signals)
}

// -----------------------------------------------------------------------------

func (s *FastAPIServer) ConnectionCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}
