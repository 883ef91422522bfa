package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"strategy-core/internal/events"
	"strategy-core/internal/indicators"
	"strategy-core/internal/monitor"
	"strategy-core/internal/order"
	"strategy-core/internal/persistence"
	"strategy-core/internal/strategy"
	"strategy-core/pkg/db"
)

// StrategyService is the part of strategy.Engine the API drives.
type StrategyService interface {
	List() []strategy.Info
	Pause(ctx context.Context, id string) error
	Resume(ctx context.Context, id string) error
	RSISnapshots() map[string][]indicators.RSISnapshot
}

// JournalStats reports the signal journal's batching counters.
type JournalStats interface {
	Metrics() persistence.BatchWriterMetrics
}

// Server wires HTTP endpoints around the strategy engine and its journal.
type Server struct {
	Router     *gin.Engine
	Bus        *events.Bus
	DB         *db.Database
	Strategies StrategyService
	Metrics    *monitor.SystemMetrics
	OrderQueue *order.Queue
	Journal    JournalStats // optional
	JWTSecret  string
	Meta       SystemMeta
}

// SystemMeta describes runtime status exposed to the UI.
type SystemMeta struct {
	Feed     string   `json:"feed"` // binance, mock
	Symbols  []string `json:"symbols"`
	Session  string   `json:"session"`
	Language string   `json:"language"`
	Version  string   `json:"version"`
	NodeID   string   `json:"node_id"`
}

func NewServer(bus *events.Bus, database *db.Database, strategies StrategyService, metrics *monitor.SystemMetrics, queue *order.Queue, meta SystemMeta, jwtSecret string) *Server {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLogger(metrics))
	r.Use(RateLimitMiddleware(newIPLimiter(20, 50, 5*time.Minute)))
	r.Use(CORSMiddleware())

	s := &Server{
		Router:     r,
		Bus:        bus,
		DB:         database,
		Strategies: strategies,
		Metrics:    metrics,
		OrderQueue: queue,
		JWTSecret:  jwtSecret,
		Meta:       meta,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	s.Router.GET("/ws", s.websocket)

	charts := s.Router.Group("/charts")
	{
		charts.GET("/rsi", s.rsiChart)
		charts.GET("/equity", s.equityChart)
	}

	api := s.Router.Group("/api")
	api.Use(TimeoutMiddleware(30 * time.Second))
	{
		api.GET("/system/status", s.getSystemStatus)
		api.GET("/metrics", s.getMetrics)
		api.GET("/strategies", s.getStrategies)
		api.GET("/rsi", s.getRSI)
		api.GET("/signals", s.getSignals)
		api.GET("/orders", s.getOrders)
		api.GET("/orders/:id/trades", s.getOrderTrades)
		api.GET("/positions", s.getPositions)
		api.GET("/equity", s.getEquity)

		protected := api.Group("")
		protected.Use(AuthMiddleware(s.JWTSecret))
		{
			protected.POST("/strategies/:id/pause", s.pauseStrategy)
			protected.POST("/strategies/:id/resume", s.resumeStrategy)
		}
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "strategies": len(s.Strategies.List())})
}
