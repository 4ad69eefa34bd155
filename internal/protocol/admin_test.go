package protocol_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hazyhaar/veritrack/internal/protocol"
)

func TestUpdateFeeBasis(t *testing.T) {
	f := newFixture(t, nil)
	next := protocol.FeeBasis{Total: 8000, Proposer: 1000, Protocol: 1000}

	assertKind(t, f.eng.UpdateFeeBasis(f.ctx, at(alice, 0), next), protocol.KindUnauthorized)
	assertKind(t, f.eng.UpdateFeeBasis(f.ctx, at(protocol.ZeroAddress, 0), next), protocol.KindInvalidAddress)
	assertKind(t, f.eng.UpdateFeeBasis(f.ctx, at(owner, 0), protocol.FeeBasis{Total: 9000, Proposer: 500}), protocol.KindInvalidProcessState)

	require.NoError(t, f.eng.UpdateFeeBasis(f.ctx, at(owner, 0), next))
	assert.Equal(t, next, f.eng.Params().Fee)
}

func TestUpdateDurationBounds(t *testing.T) {
	f := newFixture(t, nil)
	f.fund(alice, 100)
	short := protocol.CreateClaimInput{ID: 1, Amount: 10, Side: protocol.SideAgree, Expiry: t0.Add(2 * time.Hour)}

	assertKind(t, f.eng.CreateClaim(f.ctx, at(alice, 0), short), protocol.KindExpired)

	for name, bad := range map[string]protocol.DurationBounds{
		"zero basis": {Basis: 0, Max: 48 * time.Hour, Min: time.Hour},
		"full basis": {Basis: 10_000, Max: 48 * time.Hour, Min: time.Hour},
		"zero min":   {Basis: 500, Max: 48 * time.Hour, Min: 0},
		"inverted":   {Basis: 500, Max: time.Hour, Min: 48 * time.Hour},
	} {
		t.Run(name, func(t *testing.T) {
			assertKind(t, f.eng.UpdateDurationBounds(f.ctx, at(owner, 0), bad), protocol.KindInvalidProcessState)
		})
	}

	next := protocol.DurationBounds{Basis: 500, Max: 48 * time.Hour, Min: time.Hour}
	assertKind(t, f.eng.UpdateDurationBounds(f.ctx, at(bob, 0), next), protocol.KindUnauthorized)
	require.NoError(t, f.eng.UpdateDurationBounds(f.ctx, at(owner, 0), next))
	require.NoError(t, f.eng.CreateClaim(f.ctx, at(alice, 0), short))
	assert.Equal(t, next, f.eng.Params().Duration)
}

func TestUpdateOwner(t *testing.T) {
	f := newFixture(t, nil)

	assertKind(t, f.eng.UpdateOwner(f.ctx, at(owner, 0), protocol.ZeroAddress), protocol.KindInvalidAddress)
	assertKind(t, f.eng.UpdateOwner(f.ctx, at(alice, 0), alice), protocol.KindUnauthorized)

	require.NoError(t, f.eng.UpdateOwner(f.ctx, at(owner, 0), alice))
	assert.Equal(t, alice, f.eng.Params().Owner)
	assertKind(t, f.eng.UpdateOwner(f.ctx, at(owner, 0), owner), protocol.KindUnauthorized)
	require.NoError(t, f.eng.RequireOwner(at(alice, 0)))
}

func TestWithdraw(t *testing.T) {
	f := resolvedClaim(t, nil)
	f.settleAll(1, 52*time.Hour)
	before := f.ledger.BalanceOf(carol, "STAKE")

	assertKind(t, f.eng.Withdraw(f.ctx, at(carol, 53*time.Hour), 0), protocol.KindInvalidProcessState)
	assertKind(t, f.eng.Withdraw(f.ctx, at(carol, 53*time.Hour), 15), protocol.KindInsufficientBalance)
	assertKind(t, f.eng.Withdraw(f.ctx, at(dave, 53*time.Hour), 1), protocol.KindInsufficientBalance)
	assertKind(t, f.eng.Withdraw(f.ctx, at(protocol.ZeroAddress, 53*time.Hour), 1), protocol.KindInvalidAddress)

	require.NoError(t, f.eng.Withdraw(f.ctx, at(carol, 53*time.Hour), 9))
	assert.Equal(t, protocol.Balance{Available: 5}, f.eng.Balance(carol))
	assert.Equal(t, before+9, f.ledger.BalanceOf(carol, "STAKE"))
	f.assertConserved(alice, bob, carol, treasury)
}
