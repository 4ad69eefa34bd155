package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/hazyhaar/veritrack/internal/api"
	"github.com/hazyhaar/veritrack/internal/auth"
	vmcp "github.com/hazyhaar/veritrack/internal/mcp"
	"github.com/hazyhaar/veritrack/internal/protocol"
	"github.com/hazyhaar/veritrack/pkg/chassis"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup(os.Stderr)
		if err != nil {
			return err
		}
		if serveAddr != "" {
			cfg.Server.Addr = serveAddr
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		st, err := openStack(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer st.Close()

		a := auth.New(cfg.Auth.JWTSecret, cfg.Auth.TokenExpiryMin)
		handler := api.New(st.svc, st.db, a, st.metrics, api.Options{
			RateLimitRPS:   cfg.Server.RateLimitRPS,
			RateLimitBurst: cfg.Server.RateLimitBurst,
			IdempotencyTTL: cfg.Server.IdempotencyTTL,
			Audit:          st.audit,
		}).Handler()

		srv := &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}
		errCh := make(chan error, 2)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("http server: %w", err)
			}
		}()

		var h3 *chassis.Server
		if cfg.Server.H3Addr != "" {
			h3, err = chassis.New(chassis.Config{
				Addr:     cfg.Server.H3Addr,
				CertFile: cfg.Server.TLSCert,
				KeyFile:  cfg.Server.TLSKey,
				Handler:  api.WithTransport("h3", handler),
				Logger:   logger,
			})
			if err != nil {
				return err
			}
			go func() {
				if err := h3.Start(ctx); err != nil {
					errCh <- err
				}
			}()
		}

		logger.Info("veritrack listening",
			"version", version,
			"addr", cfg.Server.Addr,
			"h3_addr", cfg.Server.H3Addr,
			"database", cfg.Database.Path,
			"binary", api.BinaryHash(),
		)

		select {
		case <-ctx.Done():
		case err = <-errCh:
			logger.Error("listener failed", "error", err)
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if h3 != nil {
			if serr := h3.Stop(shutdownCtx); serr != nil {
				logger.Warn("http3 shutdown", "error", serr)
			}
		}
		if serr := srv.Shutdown(shutdownCtx); serr != nil {
			logger.Warn("http shutdown", "error", serr)
		}
		logger.Info("veritrack stopped")
		return err
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the read-only MCP tools over stdio",
	Long: `mcp replays the journal once and serves the query tools over stdio.
State is a snapshot taken at start-up; restart to observe later operations.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup(os.Stderr)
		if err != nil {
			return err
		}
		st, err := openStack(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer st.Close()

		return server.ServeStdio(vmcp.NewServer(st.svc, st.db, version))
	},
}

var (
	tokenAddress string
	tokenHandle  string
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a bearer token for an address (defaults to the configured owner)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := setup(cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		raw := tokenAddress
		if raw == "" {
			raw = cfg.Protocol.Owner
		}
		addr, err := protocol.ParseAddress(raw)
		if err != nil {
			return fmt.Errorf("--address: %w", err)
		}
		a := auth.New(cfg.Auth.JWTSecret, cfg.Auth.TokenExpiryMin)
		tok, err := a.GenerateToken("operator", tokenHandle, addr)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides config)")
	tokenCmd.Flags().StringVar(&tokenAddress, "address", "", "address the token authenticates as")
	tokenCmd.Flags().StringVar(&tokenHandle, "handle", "operator", "handle recorded in the token")
}
