// Package service is the serialized facade over the protocol engine.
//
// One mutex admits operations in total order. Each mutation is appended to the
// SQLite journal inside a transaction, applied to the engine, and committed only
// if the engine accepted it. At start-up the journal is replayed in seq order to
// rebuild the in-memory state.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/veritrack/internal/auth"
	"github.com/hazyhaar/veritrack/internal/db"
	"github.com/hazyhaar/veritrack/internal/metrics"
	"github.com/hazyhaar/veritrack/internal/protocol"
	"github.com/hazyhaar/veritrack/internal/token"
	"github.com/hazyhaar/veritrack/pkg/audit"
	"github.com/hazyhaar/veritrack/pkg/kit"
)

// ErrHalted is returned once a journal commit failed after the engine applied
// the operation. The process must restart and replay.
var ErrHalted = errors.New("service halted: engine ahead of journal")

// Config is what the service needs to build its engine.
type Config struct {
	Params protocol.Params
	Escrow protocol.Address
	Rates  []token.Rate
}

type Option func(*Service)

func WithMetrics(m *metrics.Metrics) Option { return func(s *Service) { s.metrics = m } }

func WithAudit(l audit.Logger) Option { return func(s *Service) { s.audit = l } }

func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.logger = l } }

// WithClock replaces time.Now as the source of confirmed operation time.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

type Service struct {
	mu     sync.Mutex
	db     *db.DB
	engine *protocol.Engine
	ledger *token.Ledger
	roles  *auth.Roles
	conv   *token.RateConverter
	base   string
	denoms []string

	metrics *metrics.Metrics
	audit   audit.Logger
	logger  *slog.Logger
	now     func() time.Time

	last     time.Time
	head     int64
	replayed int
	broken   error
}

// New builds the engine and replays the journal. Any replay failure is fatal.
func New(ctx context.Context, database *db.DB, cfg Config, opts ...Option) (*Service, error) {
	s := &Service{
		db:     database,
		roles:  auth.NewRoles(),
		ledger: token.NewLedger(cfg.Escrow),
		base:   cfg.Params.BaseDenomination,
		audit:  audit.Nop{},
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.New()
	}
	if cfg.Escrow.IsZero() {
		return nil, fmt.Errorf("service: escrow address is required")
	}

	s.denoms = []string{s.base}
	engineOpts := []protocol.Option{protocol.WithLogger(s.logger)}
	if len(cfg.Rates) > 0 {
		conv, err := token.NewRateConverter(s.ledger, s.base, cfg.Rates)
		if err != nil {
			return nil, fmt.Errorf("service: %w", err)
		}
		s.conv = conv
		engineOpts = append(engineOpts, protocol.WithConverter(conv))
		for _, r := range cfg.Rates {
			s.denoms = append(s.denoms, r.Denom)
		}
	}

	eng, err := protocol.New(cfg.Params, s.ledger, s.roles, engineOpts...)
	if err != nil {
		return nil, fmt.Errorf("service: %w", err)
	}
	s.engine = eng

	if err := s.replay(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Service) replay(ctx context.Context) error {
	start := time.Now()
	err := s.db.EachJournal(ctx, func(e db.JournalEntry) error {
		cmd, err := decode(e.Kind, e.Payload)
		if err != nil {
			return err
		}
		c := protocol.Call{Caller: protocol.Address(e.Caller), Now: e.At}
		if _, err := cmd.apply(ctx, s, c); err != nil {
			return fmt.Errorf("replaying %s: %w", e.Kind, err)
		}
		s.head = e.Seq
		s.last = e.At
		s.replayed++
		s.metrics.JournalReplayed.Inc()
		return nil
	})
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}
	s.metrics.JournalHead.Set(float64(s.head))
	s.logger.Info("journal replayed", "entries", s.replayed, "head", s.head, "duration", time.Since(start))
	return nil
}

// clock returns the confirmed time for the next operation. It never runs
// backwards past the last journaled entry.
func (s *Service) clock() time.Time {
	t := s.now().UTC().Round(0)
	if t.Before(s.last) {
		return s.last
	}
	return t
}

// execute journals and applies cmd under the service lock.
func (s *Service) execute(ctx context.Context, caller protocol.Address, cmd command) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.broken != nil {
		return nil, fmt.Errorf("%w: %v", ErrHalted, s.broken)
	}

	kind := cmd.kind()
	payload, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", kind, err)
	}
	c := protocol.Call{Caller: caller, Now: s.clock()}

	// The journal write must not be abandoned halfway by a cancelled request.
	txCtx := context.WithoutCancel(ctx)
	start := time.Now()
	tx, err := s.db.BeginTx(txCtx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin %s: %w", kind, err)
	}
	seq, err := s.db.AppendJournal(txCtx, tx, db.JournalEntry{
		Kind:    kind,
		Caller:  string(caller),
		At:      c.Now,
		Payload: payload,
	})
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}

	ep := kit.Chain(s.instrument(kind), audit.Middleware(s.audit, kind, classify))(
		func(ctx context.Context, _ any) (any, error) { return cmd.apply(ctx, s, c) },
	)
	res, err := ep(kit.WithUserID(ctx, string(caller)), cmd)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		s.broken = err
		s.logger.Error("journal commit failed after apply", "kind", kind, "seq", seq, "error", err)
		return nil, fmt.Errorf("committing %s: %w", kind, err)
	}
	s.head = seq
	s.last = c.Now
	s.metrics.JournalHead.Set(float64(seq))
	s.metrics.OperationTime.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	return res, nil
}

func (s *Service) instrument(kind string) kit.Middleware {
	return func(next kit.Endpoint) kit.Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			res, err := next(ctx, req)
			result := "ok"
			if err != nil {
				result = classify(err)
			}
			s.metrics.Operations.WithLabelValues(kind, result).Inc()
			return res, err
		}
	}
}

func classify(err error) string {
	return protocol.KindOf(err).String()
}

// run executes cmd and asserts its result type.
func run[T any](ctx context.Context, s *Service, caller protocol.Address, cmd command) (T, error) {
	var zero T
	res, err := s.execute(ctx, caller, cmd)
	if err != nil {
		return zero, err
	}
	v, ok := res.(T)
	if !ok {
		return zero, fmt.Errorf("%s returned %T", cmd.kind(), res)
	}
	return v, nil
}

// Status summarizes the journal position of the service.
type Status struct {
	Head     int64  `json:"head"`
	Replayed int    `json:"replayed"`
	Claims   int    `json:"claims"`
	Halted   bool   `json:"halted"`
	Error    string `json:"error,omitempty"`
}

func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		Head:     s.head,
		Replayed: s.replayed,
		Claims:   len(s.engine.ClaimIDs()),
		Halted:   s.broken != nil,
	}
	if s.broken != nil {
		st.Error = s.broken.Error()
	}
	return st
}

// Denominations lists the base denomination followed by the convertible ones.
func (s *Service) Denominations() []string {
	return append([]string(nil), s.denoms...)
}
