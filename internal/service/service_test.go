package service_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hazyhaar/veritrack/internal/db"
	"github.com/hazyhaar/veritrack/internal/metrics"
	"github.com/hazyhaar/veritrack/internal/protocol"
	"github.com/hazyhaar/veritrack/internal/service"
	"github.com/hazyhaar/veritrack/internal/token"
	"github.com/hazyhaar/veritrack/pkg/audit"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func addr(n int) protocol.Address { return protocol.Address(fmt.Sprintf("0x%040x", n)) }

var (
	owner    = addr(0xa11)
	treasury = addr(1)
	escrow   = addr(0xe5)
	bot      = addr(0xb07)
	alice    = addr(0xa1)
	bob      = addr(0xb0)
	carol    = addr(0xc0)
)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time          { return c.now }
func (c *clock) Set(d time.Duration)     { c.now = t0.Add(d) }
func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type harness struct {
	t     *testing.T
	ctx   context.Context
	path  string
	db    *db.DB
	clk   *clock
	svc   *service.Service
	m     *metrics.Metrics
	rates []token.Rate
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{t: t, ctx: context.Background(), path: filepath.Join(t.TempDir(), "veritrack.db"), clk: &clock{now: t0}}
	h.reopen()
	return h
}

// reopen builds a fresh service over the same database file.
func (h *harness) reopen(opts ...service.Option) {
	h.t.Helper()
	if h.db != nil {
		require.NoError(h.t, h.db.Close())
	}
	d, err := db.Open(h.path)
	require.NoError(h.t, err)
	h.t.Cleanup(func() { d.Close() })
	h.db = d
	h.m = metrics.New()
	svc, err := service.New(h.ctx, d, h.config(), append([]service.Option{
		service.WithClock(h.clk.Now),
		service.WithLogger(quiet()),
		service.WithMetrics(h.m),
	}, opts...)...)
	require.NoError(h.t, err)
	h.svc = svc
}

func (h *harness) config() service.Config {
	return service.Config{
		Params: protocol.DefaultParams(owner, treasury),
		Escrow: escrow,
		Rates:  h.rates,
	}
}

func (h *harness) fund(who protocol.Address, amount protocol.Amount) {
	h.t.Helper()
	_, err := h.svc.Mint(h.ctx, owner, who, amount, "STAKE")
	require.NoError(h.t, err)
	_, err = h.svc.Approve(h.ctx, who, amount, "STAKE")
	require.NoError(h.t, err)
}

func assertKind(t *testing.T, err error, want protocol.Kind) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, want, protocol.KindOf(err), "error: %v", err)
}

// lifecycle runs one claim from creation through settlement and a withdrawal.
func (h *harness) lifecycle() {
	t := h.t
	ctx := h.ctx
	require.NoError(t, h.svc.GrantRole(ctx, owner, bot, protocol.RoleResolver))
	for _, a := range []protocol.Address{alice, bob, carol} {
		h.fund(a, 1000)
	}

	view, err := h.svc.CreateClaim(ctx, alice, protocol.CreateClaimInput{
		ID: 1, Amount: 10, Side: protocol.SideAgree, Expiry: t0.Add(24 * time.Hour), Content: "the bridge opens in March",
	})
	require.NoError(t, err)
	assert.Equal(t, alice, view.Proposer)
	assert.Equal(t, protocol.Amount(10), view.MinimumStake)

	h.clk.Set(time.Hour)
	_, err = h.svc.UpdateClaim(ctx, bob, protocol.UpdateClaimInput{ID: 1, Amount: 10, Side: protocol.SideDisagree})
	require.NoError(t, err)
	h.clk.Set(2 * time.Hour)
	_, err = h.svc.UpdateClaim(ctx, carol, protocol.UpdateClaimInput{ID: 1, Amount: 10, Side: protocol.SideAgree})
	require.NoError(t, err)

	h.clk.Set(25 * time.Hour)
	sample := []protocol.PositionIndex{protocol.IndexAt(protocol.SideAgree, 0), protocol.IndexAt(protocol.SideAgree, 1), protocol.IndexAt(protocol.SideDisagree, 0)}
	_, err = h.svc.CreateResolve(ctx, bot, 1, sample, t0.Add(27*time.Hour))
	require.NoError(t, err)

	h.clk.Set(26 * time.Hour)
	idx, err := h.svc.SubmitVote(ctx, alice, 1, protocol.VoteAgree)
	require.NoError(t, err)
	assert.Equal(t, protocol.IndexAt(protocol.SideAgree, 0), idx)

	h.clk.Set(52 * time.Hour)
	res, err := h.svc.UpdateBalance(ctx, dave(), 1, 2)
	require.NoError(t, err)
	assert.Equal(t, protocol.OutcomeAgree, res.Outcome)
	assert.False(t, res.Done)
	res, err = h.svc.UpdateBalance(ctx, dave(), 1, 2)
	require.NoError(t, err)
	assert.True(t, res.Done)

	bal, err := h.svc.Withdraw(ctx, alice, 14)
	require.NoError(t, err)
	assert.Equal(t, protocol.Balance{}, bal)
}

func dave() protocol.Address { return addr(0xd0) }

func TestService_Lifecycle(t *testing.T) {
	h := newHarness(t)
	h.lifecycle()

	assert.Equal(t, protocol.Balance{Available: 14}, h.svc.Balance(carol))
	assert.Equal(t, protocol.Balance{}, h.svc.Balance(bob))
	assert.Equal(t, protocol.Balance{Available: 2}, h.svc.Balance(treasury))
	assert.Equal(t, protocol.Amount(1004), h.svc.TokenAccount(alice).Holdings["STAKE"].Balance)

	flags, err := h.svc.Flags(1)
	require.NoError(t, err)
	assert.True(t, flags.Settled)
	assert.True(t, flags.Final)

	st := h.svc.Status()
	assert.Equal(t, 0, st.Replayed)
	assert.Equal(t, 1, st.Claims)
	assert.False(t, st.Halted)
	head, err := h.db.JournalHead(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, head, st.Head)
}

func TestService_ReplayRebuildsState(t *testing.T) {
	h := newHarness(t)
	h.lifecycle()

	before := struct {
		claim   protocol.ClaimView
		flags   protocol.OutcomeFlags
		balance map[protocol.Address]protocol.Balance
		tokens  map[protocol.Address]service.TokenAccount
		params  protocol.Params
	}{balance: map[protocol.Address]protocol.Balance{}, tokens: map[protocol.Address]service.TokenAccount{}}
	var err error
	before.claim, err = h.svc.Claim(1)
	require.NoError(t, err)
	before.flags, err = h.svc.Flags(1)
	require.NoError(t, err)
	before.params = h.svc.Params()
	addrs := []protocol.Address{alice, bob, carol, treasury, escrow}
	for _, a := range addrs {
		before.balance[a] = h.svc.Balance(a)
		before.tokens[a] = h.svc.TokenAccount(a)
	}
	head := h.svc.Status().Head

	h.reopen()

	st := h.svc.Status()
	assert.Equal(t, head, st.Head)
	assert.Equal(t, int(head), st.Replayed)

	claim, err := h.svc.Claim(1)
	require.NoError(t, err)
	assert.Equal(t, before.claim, claim)
	flags, err := h.svc.Flags(1)
	require.NoError(t, err)
	assert.Equal(t, before.flags, flags)
	assert.Equal(t, before.params, h.svc.Params())
	for _, a := range addrs {
		assert.Equal(t, before.balance[a], h.svc.Balance(a), "protocol balance of %s", a)
		assert.Equal(t, before.tokens[a], h.svc.TokenAccount(a), "token account of %s", a)
	}
	assert.Equal(t, []protocol.Address{bot}, h.svc.RoleHolders(protocol.RoleResolver))

	// The rebuilt engine keeps working.
	_, err = h.svc.Withdraw(h.ctx, carol, 4)
	require.NoError(t, err)
	assert.Equal(t, protocol.Balance{Available: 10}, h.svc.Balance(carol))
}

func TestService_RejectedOperationsAreNotJournaled(t *testing.T) {
	h := newHarness(t)
	h.fund(alice, 5)
	head := h.svc.Status().Head

	_, err := h.svc.CreateClaim(h.ctx, alice, protocol.CreateClaimInput{
		ID: 1, Amount: 50, Side: protocol.SideAgree, Expiry: t0.Add(24 * time.Hour),
	})
	assertKind(t, err, protocol.KindInsufficientBalance)

	err = h.svc.GrantRole(h.ctx, alice, alice, protocol.RoleResolver)
	assertKind(t, err, protocol.KindUnauthorized)

	_, err = h.svc.Mint(h.ctx, alice, alice, 100, "STAKE")
	assertKind(t, err, protocol.KindUnauthorized)

	_, err = h.svc.Mint(h.ctx, owner, alice, 100, "DOGE")
	assertKind(t, err, protocol.KindInvalidProcessState)

	_, err = h.svc.Withdraw(h.ctx, alice, 1)
	assertKind(t, err, protocol.KindInsufficientBalance)

	assert.Equal(t, head, h.svc.Status().Head)
	journaled, err := h.db.JournalHead(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, head, journaled)
	assert.Empty(t, h.svc.ClaimIDs())

	body := scrape(t, h.m)
	assert.Contains(t, body, `veritrack_operations_total{kind="create_claim",result="insufficient_balance"} 1`)
	assert.Contains(t, body, `veritrack_operations_total{kind="mint",result="ok"} 1`)
}

func TestService_Roles(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.svc.GrantRole(h.ctx, owner, bot, protocol.RoleMinter))
	assertKind(t, h.svc.GrantRole(h.ctx, owner, bot, protocol.RoleMinter), protocol.KindInvalidProcessState)
	assertKind(t, h.svc.GrantRole(h.ctx, owner, bot, "janitor"), protocol.KindInvalidProcessState)

	acct, err := h.svc.Mint(h.ctx, bot, alice, 7, "STAKE")
	require.NoError(t, err)
	assert.Equal(t, protocol.Amount(7), acct.Holdings["STAKE"].Balance)

	require.NoError(t, h.svc.RevokeRole(h.ctx, owner, bot, protocol.RoleMinter))
	assertKind(t, h.svc.RevokeRole(h.ctx, owner, bot, protocol.RoleMinter), protocol.KindInvalidProcessState)
	_, err = h.svc.Mint(h.ctx, bot, alice, 7, "STAKE")
	assertKind(t, err, protocol.KindUnauthorized)
}

func TestService_AdminChangesSurviveReplay(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.UpdateFeeBasis(h.ctx, owner, protocol.FeeBasis{Total: 8000, Proposer: 1000, Protocol: 1000})
	require.NoError(t, err)
	_, err = h.svc.UpdateDurationBounds(h.ctx, owner, protocol.DurationBounds{Basis: 500, Max: 48 * time.Hour, Min: time.Hour})
	require.NoError(t, err)
	p, err := h.svc.UpdateOwner(h.ctx, owner, alice)
	require.NoError(t, err)
	assert.Equal(t, alice, p.Owner)

	_, err = h.svc.UpdateOwner(h.ctx, owner, bob)
	assertKind(t, err, protocol.KindUnauthorized)

	h.reopen()
	p = h.svc.Params()
	assert.Equal(t, alice, p.Owner)
	assert.Equal(t, uint64(8000), p.Fee.Total)
	assert.Equal(t, 48*time.Hour, p.Duration.Max)
}

func TestService_AlternateDenominationReplays(t *testing.T) {
	h := &harness{t: t, ctx: context.Background(), path: filepath.Join(t.TempDir(), "veritrack.db"), clk: &clock{now: t0},
		rates: []token.Rate{{Denom: "GOLD", Num: 5, Den: 2}}}
	h.reopen()
	assert.Equal(t, []string{"STAKE", "GOLD"}, h.svc.Denominations())

	h.fund(alice, 100)
	_, err := h.svc.Mint(h.ctx, owner, bob, 8, "GOLD")
	require.NoError(t, err)
	_, err = h.svc.Approve(h.ctx, bob, 8, "GOLD")
	require.NoError(t, err)

	_, err = h.svc.CreateClaim(h.ctx, alice, protocol.CreateClaimInput{
		ID: 3, Amount: 10, Side: protocol.SideAgree, Expiry: t0.Add(24 * time.Hour), Denominations: []string{"GOLD"},
	})
	require.NoError(t, err)
	view, err := h.svc.UpdateClaim(h.ctx, bob, protocol.UpdateClaimInput{ID: 3, Amount: 8, Side: protocol.SideDisagree, Denomination: "GOLD"})
	require.NoError(t, err)
	assert.Equal(t, protocol.Amount(20), view.DisagreeStaked)

	h.reopen()
	view, err = h.svc.Claim(3)
	require.NoError(t, err)
	assert.Equal(t, protocol.Amount(20), view.DisagreeStaked)
	assert.Equal(t, protocol.Amount(0), h.svc.TokenAccount(bob).Holdings["GOLD"].Balance)
}

func TestService_ReplayAbortsOnBadEntry(t *testing.T) {
	h := newHarness(t)
	h.fund(alice, 10)

	tx, err := h.db.BeginTx(h.ctx, nil)
	require.NoError(t, err)
	_, err = h.db.AppendJournal(h.ctx, tx, db.JournalEntry{
		Kind: db.KindWithdraw, Caller: string(alice), At: t0, Payload: []byte(`{"amount":99}`),
	})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	_, err = service.New(h.ctx, h.db, h.config(), service.WithLogger(quiet()))
	require.Error(t, err)
	assert.True(t, errors.Is(err, protocol.ErrInsufficientBalance), "error: %v", err)
}

func TestService_AuditsOperations(t *testing.T) {
	h := newHarness(t)
	logger := audit.NewSQLiteLogger(h.db.DB)
	require.NoError(t, logger.Init())
	svc, err := service.New(h.ctx, h.db, h.config(),
		service.WithClock(h.clk.Now), service.WithLogger(quiet()), service.WithAudit(logger))
	require.NoError(t, err)
	h.svc = svc

	h.fund(alice, 3)
	_, err = h.svc.Withdraw(h.ctx, alice, 1)
	require.Error(t, err)
	require.NoError(t, logger.Close())

	entries, err := logger.Recent(h.ctx, audit.Filter{Caller: string(alice)})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	kinds := map[string]audit.Entry{}
	for _, e := range entries {
		kinds[e.Action] = e
	}
	assert.Equal(t, "success", kinds[db.KindApprove].Status)
	assert.Equal(t, "error", kinds[db.KindWithdraw].Status)
	assert.Equal(t, "insufficient_balance", kinds[db.KindWithdraw].ErrorKind)
}

func scrape(t *testing.T, m *metrics.Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	return rec.Body.String()
}
