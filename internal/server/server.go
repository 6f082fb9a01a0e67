// Package server implements the TLS accept loop and per-connection request
// pipeline of spec.md §4.10: bind a listener, accept connections, frame
// requests and responses through internal/wire, and route each request
// through internal/dispatch.Registry. Grounded on the teacher's
// pkg/adapter.BaseAdapter (ServeWithFactory's accept loop, connection
// tracking, and graceful shutdown sequencing), trimmed to a single
// connection type since this protocol has no NFS/SMB split.
package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/keelfs/keeld/internal/config"
	"github.com/keelfs/keeld/internal/dispatch"
	"github.com/keelfs/keeld/internal/logger"
)

// Server owns the TLS listener and the registry every accepted connection
// dispatches requests against.
type Server struct {
	bindAddr     string
	port         int
	headerWidth  int
	readTimeout  time.Duration
	tlsConfig    *tls.Config
	registry     *dispatch.Registry
	cleanupWait  time.Duration
	pollInterval time.Duration

	listenerMu sync.RWMutex
	listener   net.Listener

	activeConns sync.WaitGroup
	connCount   atomic.Int32
	conns       sync.Map // remote addr -> net.Conn

	shutdownOnce sync.Once
	shutdownCh   chan struct{}

	ready chan struct{}
}

// New builds a Server bound to reg, serving TLS connections per tlsConfig.
// cfg supplies the listen address, header width, read timeout, and the
// shutdown-grace timings CLEANUP_WAITING_PERIOD/SHUTDOWN_POLL_INTERVAL set.
func New(cfg *config.Config, tlsConfig *tls.Config, reg *dispatch.Registry) *Server {
	cleanupWait, pollInterval := cfg.ShutdownDurations()
	if cleanupWait <= 0 {
		cleanupWait = 30 * time.Second
	}
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &Server{
		bindAddr:     cfg.Network.Host,
		port:         cfg.Network.Port,
		headerWidth:  cfg.Network.HeaderWidth,
		readTimeout:  cfg.Network.ReadTimeout,
		tlsConfig:    tlsConfig,
		registry:     reg,
		cleanupWait:  cleanupWait,
		pollInterval: pollInterval,
		shutdownCh:   make(chan struct{}),
		ready:        make(chan struct{}),
	}
}

// ListenAndServe binds the TLS listener and accepts connections until ctx
// is cancelled, then waits out graceful shutdown. It returns nil once every
// connection has drained, or an error if the shutdown grace period expired
// first.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.bindAddr, s.port)
	ln, err := tls.Listen("tcp", addr, s.tlsConfig)
	if err != nil {
		return fmt.Errorf("server: listen on %s: %w", addr, err)
	}

	s.listenerMu.Lock()
	s.listener = ln
	s.listenerMu.Unlock()
	close(s.ready)

	logger.Info("keeld server listening", "addr", addr)

	go func() {
		<-ctx.Done()
		logger.Info("server shutdown signal received", "reason", ctx.Err())
		s.initiateShutdown()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.shutdownCh:
				return s.awaitDrain()
			default:
				logger.Warn("accept failed", logger.Err(err))
				continue
			}
		}

		s.activeConns.Add(1)
		s.connCount.Add(1)
		remote := conn.RemoteAddr().String()
		s.conns.Store(remote, conn)
		logger.Debug("connection accepted", "addr", remote, "active", s.connCount.Load())

		go func() {
			defer func() {
				s.conns.Delete(remote)
				s.activeConns.Done()
				s.connCount.Add(-1)
				logger.Debug("connection closed", "addr", remote, "active", s.connCount.Load())
			}()
			s.serveConn(conn, remote)
		}()
	}
}

// Addr blocks until the listener is bound, then returns its address. Tests
// use this to discover the ephemeral port when Port is configured as 0.
func (s *Server) Addr() net.Addr {
	<-s.ready
	s.listenerMu.RLock()
	defer s.listenerMu.RUnlock()
	return s.listener.Addr()
}

func (s *Server) initiateShutdown() {
	s.shutdownOnce.Do(func() {
		close(s.shutdownCh)
		s.listenerMu.Lock()
		if s.listener != nil {
			_ = s.listener.Close()
		}
		s.listenerMu.Unlock()

		deadline := time.Now().Add(100 * time.Millisecond)
		s.conns.Range(func(_, v any) bool {
			_ = v.(net.Conn).SetReadDeadline(deadline)
			return true
		})
	})
}

// Stop triggers shutdown and blocks until every connection drains or ctx
// is cancelled, whichever comes first.
func (s *Server) Stop(ctx context.Context) error {
	s.initiateShutdown()
	return s.awaitDrainCtx(ctx)
}

// awaitDrain waits out cleanupWait, logging active-connection counts every
// pollInterval, mirroring the teacher's periodic shutdown logging.
func (s *Server) awaitDrain() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.cleanupWait)
	defer cancel()
	return s.awaitDrainCtx(ctx)
}

func (s *Server) awaitDrainCtx(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.activeConns.Wait()
		close(done)
	}()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			logger.Info("server shutdown complete: all connections drained")
			return nil
		case <-ticker.C:
			logger.Info("server shutdown waiting on active connections", "active", s.connCount.Load())
		case <-ctx.Done():
			remaining := s.connCount.Load()
			logger.Warn("server shutdown grace period expired, forcing closure", "active", remaining)
			s.forceCloseAll()
			return fmt.Errorf("server: shutdown grace expired with %d connections force-closed", remaining)
		}
	}
}

func (s *Server) forceCloseAll() {
	s.conns.Range(func(_, v any) bool {
		_ = v.(net.Conn).Close()
		return true
	})
}
