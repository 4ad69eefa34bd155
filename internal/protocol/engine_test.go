package protocol_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hazyhaar/veritrack/internal/protocol"
	"github.com/hazyhaar/veritrack/internal/token"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func addr(n int) protocol.Address { return protocol.Address(fmt.Sprintf("0x%040x", n)) }

var (
	owner    = addr(0xa0)
	treasury = addr(0x7e)
	bot      = addr(0xb07)
	escrow   = addr(0xe5)
	alice    = addr(1)
	bob      = addr(2)
	carol    = addr(3)
	dave     = addr(4)
	erin     = addr(5)
)

type roleSet map[protocol.Address]protocol.Role

func (r roleSet) HasRole(a protocol.Address, role protocol.Role) bool { return r[a] == role }

type fixture struct {
	t      *testing.T
	ctx    context.Context
	eng    *protocol.Engine
	ledger *token.Ledger
}

func newFixture(t *testing.T, mutate func(*protocol.Params)) *fixture {
	return newFixtureWithLedger(t, token.NewLedger(escrow), mutate)
}

func newFixtureWithLedger(t *testing.T, l *token.Ledger, mutate func(*protocol.Params), opts ...protocol.Option) *fixture {
	t.Helper()
	p := protocol.DefaultParams(owner, treasury)
	if mutate != nil {
		mutate(&p)
	}
	opts = append([]protocol.Option{protocol.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	eng, err := protocol.New(p, l, roleSet{bot: protocol.RoleResolver}, opts...)
	require.NoError(t, err)
	return &fixture{t: t, ctx: context.Background(), eng: eng, ledger: l}
}

func at(who protocol.Address, d time.Duration) protocol.Call {
	return protocol.Call{Caller: who, Now: t0.Add(d)}
}

func agreeAt(n uint64) protocol.PositionIndex    { return protocol.IndexAt(protocol.SideAgree, n) }
func disagreeAt(n uint64) protocol.PositionIndex { return protocol.IndexAt(protocol.SideDisagree, n) }

// fund mints base tokens to who and lets the escrow pull them.
func (f *fixture) fund(who protocol.Address, amount protocol.Amount) {
	f.t.Helper()
	require.NoError(f.t, f.ledger.Mint(f.ctx, who, amount, "STAKE"))
	allowed := f.ledger.AllowanceOf(who, "STAKE")
	require.NoError(f.t, f.ledger.Approve(f.ctx, who, allowed+amount, "STAKE"))
}

// open creates a claim at created that closes at expiry, both offsets from t0.
func (f *fixture) open(id protocol.ClaimID, who protocol.Address, side protocol.Side, amount protocol.Amount, created, expiry time.Duration) {
	f.t.Helper()
	err := f.eng.CreateClaim(f.ctx, at(who, created), protocol.CreateClaimInput{
		ID: id, Amount: amount, Side: side, Expiry: t0.Add(expiry),
	})
	require.NoError(f.t, err)
}

func (f *fixture) stake(id protocol.ClaimID, who protocol.Address, side protocol.Side, amount protocol.Amount, when time.Duration) {
	f.t.Helper()
	err := f.eng.UpdateClaim(f.ctx, at(who, when), protocol.UpdateClaimInput{ID: id, Amount: amount, Side: side})
	require.NoError(f.t, err)
}

func (f *fixture) resolve(id protocol.ClaimID, when, until time.Duration, sample ...protocol.PositionIndex) {
	f.t.Helper()
	require.NoError(f.t, f.eng.CreateResolve(f.ctx, at(bot, when), id, sample, t0.Add(until)))
}

func (f *fixture) vote(id protocol.ClaimID, who protocol.Address, v protocol.Vote, when time.Duration) protocol.PositionIndex {
	f.t.Helper()
	i, err := f.eng.SubmitVote(f.ctx, at(who, when), id, v)
	require.NoError(f.t, err)
	return i
}

// settleAll runs UpdateBalance in small batches until the claim is done.
func (f *fixture) settleAll(id protocol.ClaimID, when time.Duration) protocol.Outcome {
	f.t.Helper()
	for {
		res, err := f.eng.UpdateBalance(f.ctx, at(carol, when), id, 2)
		require.NoError(f.t, err)
		if res.Done {
			return res.Outcome
		}
	}
}

// assertConserved checks that protocol balances account for every escrowed base unit.
// Sums are taken in 256 bits so a wrapped balance cannot cancel out.
func (f *fixture) assertConserved(addrs ...protocol.Address) {
	f.t.Helper()
	escrowed := uint256.NewInt(uint64(f.ledger.BalanceOf(escrow, "STAKE")))
	sum := new(uint256.Int)
	for _, a := range addrs {
		b := f.eng.Balance(a)
		held := new(uint256.Int).Add(uint256.NewInt(uint64(b.Allocated)), uint256.NewInt(uint64(b.Available)))
		assert.False(f.t, held.Gt(escrowed), "%s holds %s, more than the %s escrowed", a, held.Dec(), escrowed.Dec())
		sum.Add(sum, held)
	}
	assert.True(f.t, sum.Eq(escrowed), "escrow %s vs protocol balances %s", escrowed.Dec(), sum.Dec())
}

func assertKind(t *testing.T, err error, want protocol.Kind) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, want, protocol.KindOf(err), "error = %v", err)
}

func TestNew_RejectsBadParams(t *testing.T) {
	l := token.NewLedger(escrow)
	cases := map[string]func(*protocol.Params){
		"no owner":       func(p *protocol.Params) { p.Owner = protocol.ZeroAddress },
		"no treasury":    func(p *protocol.Params) { p.Treasury = protocol.ZeroAddress },
		"fee sum":        func(p *protocol.Params) { p.Fee.Protocol = 400 },
		"duration basis": func(p *protocol.Params) { p.Duration.Basis = 10_000 },
		"min above max":  func(p *protocol.Params) { p.Duration.Min = p.Duration.Max },
		"zero batch":     func(p *protocol.Params) { p.MaxBatch = 0 },
		"no window":      func(p *protocol.Params) { p.ChallengeWindow = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			p := protocol.DefaultParams(owner, treasury)
			mutate(&p)
			_, err := protocol.New(p, l, roleSet{})
			assert.Error(t, err)
		})
	}
}

func TestErrors_MatchSentinels(t *testing.T) {
	f := newFixture(t, nil)
	err := f.eng.UpdateClaim(f.ctx, at(alice, 0), protocol.UpdateClaimInput{ID: 9, Amount: 1, Side: protocol.SideAgree})
	assert.ErrorIs(t, err, protocol.ErrInvalidMapping)
	assert.NotErrorIs(t, err, protocol.ErrExpired)
	assert.Equal(t, "invalid_mapping", protocol.KindOf(err).String())
	assert.Equal(t, protocol.KindUnknown, protocol.KindOf(fmt.Errorf("plain")))
}

// reentrantConverter calls back into the engine from inside a conversion.
type reentrantConverter struct {
	eng   *protocol.Engine
	inner error
}

func (c *reentrantConverter) Supports(string) bool { return true }

func (c *reentrantConverter) Quote(_ string, a protocol.Amount) (protocol.Amount, error) { return a, nil }

func (c *reentrantConverter) Convert(ctx context.Context, _ string, a protocol.Amount) (protocol.Amount, error) {
	c.inner = c.eng.UpdateClaim(ctx, at(carol, time.Hour), protocol.UpdateClaimInput{
		ID: 1, Amount: 10, Side: protocol.SideAgree,
	})
	return a, nil
}

func TestEngine_RejectsReentrantCalls(t *testing.T) {
	l := token.NewLedger(escrow)
	conv := &reentrantConverter{}
	f := newFixtureWithLedger(t, l, nil, protocol.WithConverter(conv))
	conv.eng = f.eng

	f.fund(alice, 10)
	f.fund(carol, 10)
	require.NoError(t, l.Mint(f.ctx, bob, 10, "GOLD"))
	require.NoError(t, l.Approve(f.ctx, bob, 10, "GOLD"))

	require.NoError(t, f.eng.CreateClaim(f.ctx, at(alice, 0), protocol.CreateClaimInput{
		ID: 1, Amount: 10, Side: protocol.SideAgree, Expiry: t0.Add(24 * time.Hour), Denominations: []string{"GOLD"},
	}))
	err := f.eng.UpdateClaim(f.ctx, at(bob, time.Hour), protocol.UpdateClaimInput{
		ID: 1, Amount: 10, Side: protocol.SideDisagree, Denomination: "GOLD",
	})
	require.NoError(t, err)

	assertKind(t, conv.inner, protocol.KindInvalidProcessState)
	v, err := f.eng.Claim(1, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, protocol.Amount(10), v.AgreeStaked, "nested stake must not apply")
	assert.Equal(t, protocol.Amount(10), v.DisagreeStaked)

	// The guard is released once the outer operation returns.
	f.stake(1, carol, protocol.SideAgree, 10, 2*time.Hour)
}
