// Package api serves the engine over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/helinwang/matchdex/pkg/dex"
	"github.com/hashicorp/golang-lru"
	"github.com/helinwang/matchdex/pkg/journal"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// receiptCacheSize bounds the receipts kept for GET /v1/txns/:hash.
const receiptCacheSize = 4096

// EventStore answers event history queries.
type EventStore interface {
	Events(ctx context.Context, f journal.Filter) ([]journal.Entry, error)
}

type Server struct {
	router *gin.Engine
	engine *dex.Engine
	events EventStore
	logger *zap.Logger
	// receipts of recently applied transactions by hash.
	receipts *lru.Cache
}

// NewServer creates the HTTP server of engine. events may be nil, the
// event history is then unavailable.
func NewServer(logger *zap.Logger, engine *dex.Engine, events EventStore) *Server {
	receipts, err := lru.New(receiptCacheSize)
	if err != nil {
		panic(err)
	}

	s := &Server{
		router:   gin.New(),
		engine:   engine,
		events:   events,
		logger:   logger,
		receipts: receipts,
	}

	s.router.Use(ginzap.Ginzap(logger, time.RFC3339, true))
	s.router.Use(ginzap.RecoveryWithZap(logger, true))
	s.registerRoutes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) registerRoutes() {
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.router.GET("/health", s.health)

	v1 := s.router.Group("/v1")
	{
		v1.GET("/orders/:id", s.getOrder)
		v1.GET("/orders/:id/exists", s.orderExists)
		v1.GET("/users/:addr/orders", s.userOrders)
		v1.GET("/pairs/:a/:b", s.getPair)
		v1.GET("/pairs/:a/:b/orders", s.pairOrders)
		v1.GET("/pairs/:a/:b/book", s.getBook)
		v1.GET("/match/:initiating/:matched", s.canMatch)
		v1.GET("/lock", s.lockAmount)
		v1.GET("/tokens/:addr", s.getToken)
		v1.GET("/fees/:token", s.getFees)
		v1.GET("/accounts/:addr/nonce", s.accountNonce)
		v1.GET("/settings", s.getSettings)
		v1.GET("/state/root", s.stateRoot)
		v1.GET("/events", s.getEvents)
		v1.POST("/txns", s.submitTxn)
		v1.GET("/txns/:hash", s.getReceipt)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "engine": s.engine.Address()})
}
