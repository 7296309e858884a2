// Package server provides the TLS endpoint that fronts the SNI routing
// engine: it terminates handshakes with the identity the manager resolves
// for each ClientHello and hands established connections to the caller.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vyrodovalexey/snigate/internal/observability"
	"github.com/vyrodovalexey/snigate/internal/sni"
)

// Default configuration values.
const (
	// DefaultAcceptDeadline bounds each accept so the loop can observe
	// context cancellation.
	DefaultAcceptDeadline = 500 * time.Millisecond

	// DefaultHandshakeTimeout bounds the TLS handshake of one connection.
	DefaultHandshakeTimeout = 10 * time.Second

	// DefaultShutdownTimeout bounds graceful shutdown.
	DefaultShutdownTimeout = 30 * time.Second
)

// Handler consumes one established TLS connection. The server closes the
// connection when the handler returns.
type Handler func(ctx context.Context, conn *tls.Conn)

// Config holds the endpoint configuration.
type Config struct {
	// Address is the listen address, host:port.
	Address string

	// HandshakeTimeout bounds each TLS handshake.
	HandshakeTimeout time.Duration

	// AcceptDeadline bounds each accept call.
	AcceptDeadline time.Duration

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration
}

// withDefaults fills unset options.
func (c Config) withDefaults() Config {
	if c.Address == "" {
		c.Address = ":8443"
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.AcceptDeadline <= 0 {
		c.AcceptDeadline = DefaultAcceptDeadline
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
	return c
}

// Server is the TLS endpoint. Every handshake is routed through the SNI
// manager; the listener itself carries no certificate.
type Server struct {
	cfg     Config
	manager *sni.Manager
	handler Handler
	logger  observability.Logger

	mu       sync.Mutex
	listener net.Listener
	running  bool
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// New creates a server in front of the given manager. handler may be nil; the
// server then completes the handshake, logs the negotiated parameters and
// closes the connection, which is enough for routing verification.
func New(cfg Config, manager *sni.Manager, handler Handler, logger observability.Logger) *Server {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Server{
		cfg:     cfg.withDefaults(),
		manager: manager,
		handler: handler,
		logger:  logger,
		stopCh:  make(chan struct{}),
	}
}

// baseTLSConfig returns the listener config that defers every handshake to
// the manager.
func (s *Server) baseTLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion:         tls.VersionTLS10,
		GetConfigForClient: s.manager.GetConfigForClient,
	}
}

// Start runs the accept loop until the context is cancelled or Stop is
// called.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}

	lc := &net.ListenConfig{}
	listener, err := lc.Listen(ctx, "tcp", s.cfg.Address)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Address, err)
	}
	s.listener = listener
	s.running = true
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	s.logger.Info("starting TLS endpoint",
		observability.String("address", s.cfg.Address),
		observability.Duration("handshakeTimeout", s.cfg.HandshakeTimeout),
	)

	return s.acceptLoop(ctx)
}

// acceptLoop accepts connections until shutdown.
func (s *Server) acceptLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stopCh:
			return nil
		default:
		}

		if tl, ok := s.listener.(*net.TCPListener); ok {
			if err := tl.SetDeadline(time.Now().Add(s.cfg.AcceptDeadline)); err != nil {
				s.logger.Warn("failed to set accept deadline", observability.Error(err))
			}
		}

		conn, err := s.listener.Accept()
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-s.stopCh:
				return nil
			default:
				s.logger.Error("accept error", observability.Error(err))
				continue
			}
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(ctx, conn)
		}()
	}
}

// handleConnection performs the routed handshake and hands the connection to
// the handler.
func (s *Server) handleConnection(ctx context.Context, raw net.Conn) {
	connID := uuid.NewString()
	tlsConn := tls.Server(raw, s.baseTLSConfig())

	hsCtx, cancel := context.WithTimeout(ctx, s.cfg.HandshakeTimeout)
	err := tlsConn.HandshakeContext(hsCtx)
	cancel()
	if err != nil {
		s.logger.Debug("handshake failed",
			observability.String("conn", connID),
			observability.String("remoteAddr", raw.RemoteAddr().String()),
			observability.Error(err),
		)
		_ = raw.Close()
		return
	}

	state := tlsConn.ConnectionState()
	s.logger.Debug("handshake complete",
		observability.String("conn", connID),
		observability.String("remoteAddr", raw.RemoteAddr().String()),
		observability.String("serverName", state.ServerName),
		observability.String("version", sni.TLSVersionName(state.Version)),
		observability.String("cipherSuite", sni.CipherSuiteName(state.CipherSuite)),
		observability.String("alpn", state.NegotiatedProtocol),
		observability.Bool("resumed", state.DidResume),
	)

	if s.handler != nil {
		s.handler(ctx, tlsConn)
	}
	_ = tlsConn.Close()
}

// Stop stops accepting and waits for in-flight connections up to the
// shutdown timeout.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	listener := s.listener
	s.mu.Unlock()

	if listener != nil {
		_ = listener.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	timeout := s.cfg.ShutdownTimeout
	select {
	case <-done:
		s.logger.Info("TLS endpoint stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(timeout):
		return fmt.Errorf("shutdown timed out after %s", timeout)
	}
}

// Addr returns the bound listener address, nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}
