package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"dip-trader/internal/contract"
	"dip-trader/internal/events"
	"dip-trader/internal/monitor"
	"dip-trader/internal/order"
	"dip-trader/internal/session"
)

// Session is the part of the session controller the API drives.
type Session interface {
	Status() session.Status
	Watchlist() []session.BatchView
	Contracts() []contract.View
	Holdings() []contract.View
	Orders() []order.Record
	AdmitSymbol(ctx context.Context, symbol string, openingPrice decimal.Decimal) error
	RotateBatch()
}

// Server wires HTTP endpoints around the running session.
type Server struct {
	Router    *gin.Engine
	Bus       *events.Bus
	Session   Session
	Monitor   *monitor.Monitor
	JWTSecret string
	Meta      SystemMeta

	log     zerolog.Logger
	limiter *ipLimiter
}

// SystemMeta describes runtime status exposed to operators.
type SystemMeta struct {
	Venue    string `json:"venue"`
	Capacity int    `json:"capacity"`
	Version  string `json:"version"`
}

func NewServer(sess Session, bus *events.Bus, mon *monitor.Monitor, meta SystemMeta, jwtSecret string, log zerolog.Logger) *Server {
	r := gin.New()
	s := &Server{
		Router:    r,
		Bus:       bus,
		Session:   sess,
		Monitor:   mon,
		JWTSecret: jwtSecret,
		Meta:      meta,
		log:       log,
		limiter:   newIPLimiter(20, 50),
	}

	// Middleware stack (order matters!)
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLogger(log))
	r.Use(RateLimitMiddleware(s.limiter, log))
	r.Use(CORSMiddleware())

	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	s.Router.GET("/ws", s.websocket)
	if s.Monitor != nil {
		s.Router.GET("/metrics", gin.WrapH(s.Monitor.Handler()))
	}

	api := s.Router.Group("/api")
	api.Use(TimeoutMiddleware(10 * time.Second))
	{
		api.GET("/session/status", s.getSessionStatus)
		api.GET("/watchlist", s.getWatchlist)
		api.GET("/contracts", s.getContracts)
		api.GET("/holdings", s.getHoldings)
		api.GET("/orders", s.getOrders)
		api.GET("/metrics", s.getMetrics)

		protected := api.Group("")
		protected.Use(AuthMiddleware(s.JWTSecret))
		{
			protected.POST("/symbols", s.admitSymbol)
			protected.POST("/watchlist/rotate", s.rotateWatchlist)
		}
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Handler exposes the router for an http.Server.
func (s *Server) Handler() http.Handler { return s.Router }
