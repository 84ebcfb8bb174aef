// Package api exposes the engine over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/georgepadayatti/pdfseal/config"
	"github.com/georgepadayatti/pdfseal/logging"
	"github.com/georgepadayatti/pdfseal/pipeline"
)

// Server serves the signing and validation endpoints.
type Server struct {
	engine *pipeline.Engine
	cfg    config.ServerConfig
	logger *zap.Logger
	router *gin.Engine
}

// NewServer creates a server for engine.
func NewServer(engine *pipeline.Engine, cfg config.ServerConfig, logger *zap.Logger) *Server {
	s := &Server{
		engine: engine,
		cfg:    cfg,
		logger: logging.OrNop(logger),
	}
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(s.logger), limitBody(cfg.MaxUploadBytes))
	if cfg.MaxUploadBytes > 0 {
		router.MaxMultipartMemory = cfg.MaxUploadBytes
	}
	s.RegisterRoutes(router)
	s.router = router
	return s
}

// RegisterRoutes registers the API routes on router.
func (s *Server) RegisterRoutes(router gin.IRouter) {
	router.GET("/healthz", s.health)
	v1 := router.Group("/v1")
	{
		v1.POST("/documents/sign", s.signDocument)
		v1.POST("/documents/validate", s.validateDocument)
		v1.POST("/certificates", s.issueCertificate)
	}
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// Run listens on the configured address until ctx is cancelled, then
// shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server started", zap.String("addr", s.cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
