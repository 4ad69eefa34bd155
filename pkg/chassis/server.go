// Package chassis runs the HTTP/3 listener that serves the same handler as the
// TCP server on a UDP port.
//
// In development mode, a self-signed ECDSA P-256 cert is generated automatically.
// In production, supply cert/key files via config.
package chassis

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/http3"
)

const (
	DefaultIdleTimeout = 60 * time.Second
	DefaultKeepAlive   = 15 * time.Second
)

// Server is the QUIC chassis.
type Server struct {
	addr     string
	logger   *slog.Logger
	tlsCfg   *tls.Config
	handler  http.Handler
	h3Server *http3.Server
	mu       sync.Mutex
}

// Config holds configuration for the chassis server.
type Config struct {
	Addr     string       // UDP listen address (e.g. ":8443")
	TLS      *tls.Config  // nil = load CertFile/KeyFile or auto-generate
	CertFile string       // production cert path
	KeyFile  string       // production key path
	Handler  http.Handler // HTTP/3 handler
	Logger   *slog.Logger
}

func New(cfg Config) (*Server, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Handler == nil {
		return nil, errors.New("chassis: nil handler")
	}

	tlsCfg := cfg.TLS
	if tlsCfg == nil {
		var err error
		if cfg.CertFile != "" && cfg.KeyFile != "" {
			tlsCfg, err = ProductionTLSConfig(cfg.CertFile, cfg.KeyFile)
			if err != nil {
				return nil, fmt.Errorf("load TLS cert: %w", err)
			}
			cfg.Logger.Info("TLS: production certs loaded")
		} else {
			tlsCfg, err = DevelopmentTLSConfig()
			if err != nil {
				return nil, fmt.Errorf("generate dev TLS: %w", err)
			}
			cfg.Logger.Info("TLS: self-signed dev cert generated")
		}
	}

	return &Server{
		addr:    cfg.Addr,
		logger:  cfg.Logger,
		tlsCfg:  tlsCfg,
		handler: cfg.Handler,
	}, nil
}

// Start blocks serving HTTP/3 until Stop is called.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	s.h3Server = &http3.Server{
		Addr:      s.addr,
		Handler:   s.handler,
		TLSConfig: http3.ConfigureTLSConfig(s.tlsCfg),
		QUICConfig: &quic.Config{
			MaxStreamReceiveWindow:     10 * 1024 * 1024,
			MaxConnectionReceiveWindow: 50 * 1024 * 1024,
			MaxIdleTimeout:             DefaultIdleTimeout,
			KeepAlivePeriod:            DefaultKeepAlive,
		},
	}
	srv := s.h3Server
	s.mu.Unlock()

	s.logger.Info("chassis started", "addr", s.addr, "http3", true)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) && ctx.Err() == nil {
		return fmt.Errorf("HTTP/3: %w", err)
	}
	return nil
}

// Stop closes the listener.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Info("chassis stopping")
	if s.h3Server == nil {
		return nil
	}
	err := s.h3Server.Close()
	s.logger.Info("chassis stopped")
	return err
}
