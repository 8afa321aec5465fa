// Package httpapi provides the HTTP API for qaforge.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/silvanlabs/qaforge/internal/extraction"
	"github.com/silvanlabs/qaforge/internal/generation"
	"github.com/silvanlabs/qaforge/internal/ingest"
	"github.com/silvanlabs/qaforge/internal/session"
)

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// Pipeline is the knowledge-base builder dependency.
type Pipeline interface {
	Rebuild(ctx context.Context, docs []ingest.Document) (*ingest.Report, error)
}

// Clearer empties the vector store.
type Clearer interface {
	DeleteAll(ctx context.Context) error
}

// TestGenerator produces test cases and scripts.
type TestGenerator interface {
	GenerateTestCases(ctx context.Context, query string) ([]generation.TestCase, error)
	GenerateScript(ctx context.Context, tc generation.TestCase, htmlContent string) (string, error)
}

// Server provides the qaforge HTTP endpoints.
type Server struct {
	echo      *echo.Echo
	pipeline  Pipeline
	store     Clearer
	generator TestGenerator
	extractor *extraction.Extractor
	sessions  *session.Manager
	logger    *zap.Logger
	config    Config
}

// NewServer creates a new HTTP server.
func NewServer(cfg Config, pipeline Pipeline, store Clearer, generator TestGenerator, extractor *extraction.Extractor, sessions *session.Manager, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg.Host == "" {
		cfg.Host = "0.0.0.0"
	}
	if cfg.Port == 0 {
		cfg.Port = 8000
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	s := &Server{
		echo:      e,
		pipeline:  pipeline,
		store:     store,
		generator: generator,
		extractor: extractor,
		sessions:  sessions,
		logger:    logger,
		config:    cfg,
	}

	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/upload", s.handleUpload)
	v1.POST("/html", s.handleHTML)
	v1.POST("/knowledge-base", s.handleBuildKnowledgeBase)
	v1.DELETE("/knowledge-base", s.handleClear)
	v1.POST("/tests", s.handleGenerateTests)
	v1.POST("/scripts", s.handleGenerateScript)
	v1.POST("/scripts/reset", s.handleResetScriptSession)
	v1.GET("/uploads/history", s.handleUploadHistory)
	v1.GET("/scripts/history", s.handleScriptHistory)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}
