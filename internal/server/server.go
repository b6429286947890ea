// Package server provides the read-only status HTTP API. It reads state
// files and journals directly and never routes through the gate, so probing
// a pipeline can never change it.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/pipegate/internal/checkpoint"
	"github.com/fyrsmithlabs/pipegate/internal/config"
	"github.com/fyrsmithlabs/pipegate/internal/journal"
	"github.com/fyrsmithlabs/pipegate/internal/statestore"
)

// Server exposes pipeline state over HTTP.
type Server struct {
	echo        *echo.Echo
	store       *statestore.Store
	journal     *journal.Writer
	checkpoints *checkpoint.Service
	logger      *zap.Logger
	cfg         config.ServerConfig
}

// NewServer creates the status server.
func NewServer(store *statestore.Store, jw *journal.Writer, cps *checkpoint.Service, logger *zap.Logger, cfg config.ServerConfig) (*Server, error) {
	if store == nil {
		return nil, errors.New("server: state store is required")
	}
	if jw == nil {
		return nil, errors.New("server: journal is required")
	}
	if cps == nil {
		return nil, errors.New("server: checkpoint service is required")
	}
	if logger == nil {
		logger = zap.NewNop()
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
		echo:        e,
		store:       store,
		journal:     jw,
		checkpoints: cps,
		logger:      logger,
		cfg:         cfg,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/healthz", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.GET("/namespaces", s.handleListNamespaces)
	v1.GET("/namespaces/:name", s.handleGetNamespace)
	v1.GET("/namespaces/:name/journal", s.handleGetJournal)
}

// HealthResponse is the response body for GET /healthz.
type HealthResponse struct {
	Status string `json:"status"`
}

// NamespaceStatus is one namespace's pipeline state plus its checkpoint, if
// one is open.
type NamespaceStatus struct {
	*statestore.PipelineState
	OpenCheckpoint *checkpoint.Checkpoint `json:"open_checkpoint,omitempty"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleListNamespaces(c echo.Context) error {
	states, err := s.store.List()
	if err != nil {
		s.logger.Error("failed to list namespaces", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list namespaces")
	}
	if states == nil {
		states = []*statestore.PipelineState{}
	}
	return c.JSON(http.StatusOK, states)
}

func (s *Server) handleGetNamespace(c echo.Context) error {
	name := c.Param("name")
	st, err := s.store.Load(name)
	if err != nil {
		if errors.Is(err, statestore.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("namespace %q not found", name))
		}
		s.logger.Error("failed to load namespace", zap.String("namespace", name), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load namespace")
	}

	status := NamespaceStatus{PipelineState: st}
	if cp, err := s.checkpoints.Get(name); err == nil {
		status.OpenCheckpoint = cp
	}
	return c.JSON(http.StatusOK, status)
}

func (s *Server) handleGetJournal(c echo.Context) error {
	name := c.Param("name")
	if !s.store.Exists(name) {
		return echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("namespace %q not found", name))
	}

	entries, err := s.journal.Read(name)
	if err != nil {
		s.logger.Error("failed to read journal", zap.String("namespace", name), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to read journal")
	}
	if entries == nil {
		entries = []journal.Entry{}
	}
	return c.JSON(http.StatusOK, entries)
}

// Handler exposes the routing tree for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start starts the HTTP server on the configured port.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	s.logger.Info("starting status server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down status server")
	return s.echo.Shutdown(ctx)
}
