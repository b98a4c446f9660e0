// Package server exposes the dashboard over HTTP: JSON bundles and quotes,
// CSV downloads, auto-refresh settings and a websocket feed of refreshes.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"StockDashboard/internal/collector"
	"StockDashboard/internal/config"
	"StockDashboard/internal/dashboard"
	"StockDashboard/internal/scheduler"
)

// Runner performs one dashboard run.
type Runner interface {
	Run(ctx context.Context, p dashboard.Params) (*dashboard.Result, error)
}

// Deps are the collaborators a Server needs. Refresher may be nil, in which
// case settings updates are rejected.
type Deps struct {
	Config    *config.Config
	Runner    Runner
	Fetcher   collector.Fetcher
	Refresher *scheduler.Refresher
	Hub       *Hub
}

// Server is the HTTP presentation surface of the dashboard.
type Server struct {
	cfg       *config.Config
	runner    Runner
	fetcher   collector.Fetcher
	refresher *scheduler.Refresher
	hub       *Hub
	engine    *gin.Engine
	httpSrv   *http.Server
	logger    zerolog.Logger
	now       func() time.Time
}

// New builds the server and its routes.
func New(deps Deps) *Server {
	if deps.Config.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	hub := deps.Hub
	if hub == nil {
		hub = NewHub()
	}

	s := &Server{
		cfg:       deps.Config,
		runner:    deps.Runner,
		fetcher:   deps.Fetcher,
		refresher: deps.Refresher,
		hub:       hub,
		engine:    gin.New(),
		logger:    log.With().Str("component", "server").Logger(),
		now:       time.Now,
	}
	s.engine.Use(gin.Recovery(), requestID(), accessLog(s.logger), cors())
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.engine.Group("/api")
	api.GET("/health", s.getHealth)
	api.GET("/config", s.getConfig)
	api.GET("/quote", s.getQuote)
	api.GET("/info", s.getInfo)
	api.GET("/bundle", s.getBundle)
	api.GET("/export", s.getExport)
	api.PUT("/settings", s.putSettings)

	s.engine.GET("/ws", s.handleWebSocket)
}

// Handler exposes the routes for embedding and tests.
func (s *Server) Handler() http.Handler { return s.engine }

// Hub returns the websocket hub that scheduled refreshes publish to.
func (s *Server) Hub() *Hub { return s.hub }

// Start runs the hub and serves HTTP until Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go s.hub.Run(ctx)

	s.logger.Info().Str("addr", addr).Msg("starting server")
	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if strings.HasPrefix(origin, "http://127.0.0.1:") || strings.HasPrefix(origin, "http://localhost:") {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		}
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Origin, X-Request-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, PUT, OPTIONS")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Disposition, X-Request-ID")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
