// Package api exposes the pair ledger over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"pairdex/internal/ledger"
)

// CallerHeader carries the hex address of the account making a call.
const CallerHeader = "X-Caller"

// Server is the HTTP front of a Ledger.
type Server struct {
	ledger *ledger.Ledger
	logger *zap.Logger
	router *gin.Engine
	server *http.Server
}

// NewServer wires routes for l. Metrics are served from gatherer; nil uses the default gatherer.
func NewServer(l *ledger.Ledger, gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		ledger: l,
		logger: logger,
		router: router,
	}
	router.Use(s.logRequests)
	s.setupRoutes(gatherer)
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes(gatherer prometheus.Gatherer) {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	s.router.GET("/fee", s.handleFeeRate)

	pairs := s.router.Group("/pairs")
	{
		pairs.GET("", s.handleListPairs)
		pairs.GET("/:token", s.handleGetPair)
		pairs.GET("/:token/status", s.handleStatus)
		pairs.GET("/:token/k", s.handleK)
		pairs.GET("/:token/ratio", s.handleRatio)
		pairs.GET("/:token/price/:direction", s.handlePrice)
		pairs.GET("/:token/fee/:direction", s.handleFee)
		pairs.GET("/:token/price-parts", s.handlePriceParts)

		pairs.POST("/:token/deposit/base", s.handleDepositBase)
		pairs.POST("/:token/withdraw/token", s.handleWithdrawToken)
		pairs.POST("/:token/withdraw/base", s.handleWithdrawBase)
		pairs.POST("/:token/swap/base-for-token", s.handleSwapBaseForToken)
	}

	s.router.POST("/deposit/token", s.handleDepositToken)
	s.router.POST("/swap/token-for-base", s.handleSwapTokenForBase)
	s.router.GET("/earnings/:asset", s.handleEarnings)
	s.router.POST("/earnings/:asset/claim", s.handleClaimEarnings)
}

func (s *Server) logRequests(c *gin.Context) {
	start := time.Now()
	path := c.Request.URL.Path

	c.Next()

	s.logger.Debug("api request",
		zap.String("method", c.Request.Method),
		zap.String("path", path),
		zap.Int("status", c.Writer.Status()),
		zap.Duration("duration", time.Since(start)),
		zap.String("caller", c.GetHeader(CallerHeader)),
	)
}

// Start serves on addr until Stop is called.
func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
	s.logger.Info("api listening", zap.String("addr", addr))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve api: %w", err)
	}
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
