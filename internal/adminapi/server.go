package adminapi

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/keelfs/keeld/internal/config"
	"github.com/keelfs/keeld/internal/logger"
	"github.com/keelfs/keeld/internal/session"
	"github.com/keelfs/keeld/internal/store/controlstore"
)

// Server is the admin HTTP API: login, user/ban administration, and a
// recent-activity feed over the same session manager and control store the
// wire protocol server uses. Grounded on the teacher's
// pkg/controlplane/api.Server (a wrapped *http.Server with a sync.Once
// guarding Stop).
type Server struct {
	httpServer   *http.Server
	sessions     *session.Manager
	store        *controlstore.Store
	jwt          *jwtService
	shutdownOnce sync.Once
}

// New builds a Server bound to sessions/store, or an error if cfg carries
// no usable JWT secret.
func New(cfg config.ControlPlaneConfig, sessions *session.Manager, store *controlstore.Store) (*Server, error) {
	jwt, err := newJWTService(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		return nil, err
	}

	s := &Server{sessions: sessions, store: store, jwt: jwt}
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      newRouter(s),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("admin api listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("adminapi: server failed: %w", err)
	}
}

// Stop is safe to call more than once and concurrently with Start.
func (s *Server) Stop(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		if shutdownErr := s.httpServer.Shutdown(ctx); shutdownErr != nil {
			err = fmt.Errorf("adminapi: shutdown: %w", shutdownErr)
		}
	})
	return err
}
