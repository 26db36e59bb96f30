// internal/app/server.go
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	eventsHandler "backoffice-console/internal/handlers/events"
	groupHandler "backoffice-console/internal/handlers/permissiongroup"
	proxyHandler "backoffice-console/internal/handlers/proxy"
	sessionHandler "backoffice-console/internal/handlers/session"
	"backoffice-console/internal/middleware"
	"backoffice-console/internal/pkg/routes"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

type Server struct {
	stack  *Stack
	engine *gin.Engine
	logger *zap.Logger
}

// NewServer builds the console gateway on top of a wired stack.
func NewServer(stack *Stack, table *routes.Table) *Server {
	logger := stack.Logger
	engine := gin.New()

	engine.Use(
		middleware.RecoveryMiddleware(logger),
		middleware.LoggingMiddleware(logger.Named("http")),
		middleware.CORSMiddleware(stack.Config.CORSOrigins),
	)

	handlers := &Handlers{
		SessionHandler: sessionHandler.NewSessionHandler(stack.Session, stack.Config.HomePath, logger),
		GroupHandler:   groupHandler.NewPermissionGroupHandler(stack.Groups, logger),
		CatalogProxy:   proxyHandler.NewProxyHandler(stack.Private, "catalog", logger),
		UsersProxy:     proxyHandler.NewProxyHandler(stack.Private, "users", logger),
		SessionEvents:  eventsHandler.NewSessionEventsHandler(stack.Session, stack.Config.CORSOrigins, logger.Named("events")),
		Guard:          middleware.NewGuard(stack.Session, table, logger.Named("guard")),
		Routes:         table,
	}
	SetupRouter(engine, logger, handlers)

	return &Server{stack: stack, engine: engine, logger: logger}
}

// Handler exposes the gin engine, mainly for tests.
func (s *Server) Handler() http.Handler { return s.engine }

// Run restores the session, starts realtime, and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	status := s.stack.Session.Bootstrap(ctx)
	s.logger.Info("session bootstrapped", zap.String("status", string(status)))

	if err := s.stack.StartRealtime(ctx); err != nil {
		return fmt.Errorf("failed to start realtime: %w", err)
	}

	srv := &http.Server{
		Addr:              s.stack.Config.HTTPAddr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("console listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}
