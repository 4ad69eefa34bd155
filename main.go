package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/veritrack/internal/config"
	"github.com/hazyhaar/veritrack/internal/db"
	"github.com/hazyhaar/veritrack/internal/metrics"
	"github.com/hazyhaar/veritrack/internal/service"
	"github.com/hazyhaar/veritrack/pkg/audit"
	"github.com/hazyhaar/veritrack/pkg/trace"
)

var version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "veritrack",
	Short: "veritrack: staked claims, sampled resolution, disputes and settlement",
	Long: `veritrack runs a staking protocol for claims. Participants stake on agree
or disagree, a resolver samples positions to vote, losing claims can be
disputed, and settlement pays out in batches.

Every admitted operation is journaled to SQLite and replayed at start-up.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "veritrack %s\n", version)
	},
}

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay the journal and print the resulting status",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup(cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		st, err := openStack(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer st.Close()

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"status":        st.svc.Status(),
			"params":        st.svc.Params(),
			"denominations": st.svc.Denominations(),
		})
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.toml")
	rootCmd.AddCommand(serveCmd, mcpCmd, replayCmd, tokenCmd, versionCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "veritrack: %v\n", err)
		os.Exit(1)
	}
}

// setup loads the configuration and builds the process logger. Logs go to w so
// stdout stays free for command output.
func setup(w io.Writer) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	lvl, err := cfg.Log.SlogLevel()
	if err != nil {
		return nil, nil, err
	}
	opts := &slog.HandlerOptions{Level: lvl}
	var h slog.Handler
	if cfg.Log.Format == "json" {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	logger := slog.New(h)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

// stack is the storage and engine side shared by every command.
type stack struct {
	db      *db.DB
	traces  *trace.Store
	audit   *audit.SQLiteLogger
	metrics *metrics.Metrics
	svc     *service.Service
}

func openStack(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*stack, error) {
	params, err := cfg.ProtocolParams()
	if err != nil {
		return nil, err
	}

	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	st := &stack{db: database, metrics: metrics.New()}

	st.traces = trace.NewStore(database.DB, cfg.Database.TraceSlow)
	if err := st.traces.Init(); err != nil {
		st.Close()
		return nil, fmt.Errorf("trace store: %w", err)
	}
	database.SetTracer(st.traces)

	st.audit = audit.NewSQLiteLogger(database.DB)
	if err := st.audit.Init(); err != nil {
		st.Close()
		return nil, fmt.Errorf("audit log: %w", err)
	}

	st.svc, err = service.New(ctx, database, service.Config{
		Params: params,
		Escrow: cfg.EscrowAddress(),
		Rates:  cfg.Protocol.Denominations,
	},
		service.WithLogger(logger),
		service.WithMetrics(st.metrics),
		service.WithAudit(st.audit),
	)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("starting service: %w", err)
	}
	return st, nil
}

// Close flushes the async writers before closing the database.
func (s *stack) Close() {
	if s.audit != nil {
		s.audit.Close()
	}
	if s.traces != nil {
		s.db.SetTracer(nil)
		s.traces.Close()
	}
	s.db.Close()
}
