package protocol_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hazyhaar/veritrack/internal/protocol"
)

// resolvedClaim is opposedClaim after a round where alice alone voted Agree.
// The local outcome is Agree, known at t0+27h.
func resolvedClaim(t *testing.T, mutate func(*protocol.Params)) *fixture {
	f := opposedClaim(t, mutate)
	f.resolve(1, 25*time.Hour, 27*time.Hour, agreeAt(0), disagreeAt(0))
	f.vote(1, alice, protocol.VoteAgree, 26*time.Hour)
	return f
}

func dispute(id protocol.ClaimID, amount protocol.Amount, side protocol.Side, expiry time.Duration) protocol.CreateClaimInput {
	return protocol.CreateClaimInput{ID: id, Amount: amount, Side: side, Expiry: t0.Add(expiry)}
}

func TestCreateDispute_Preconditions(t *testing.T) {
	f := resolvedClaim(t, nil)

	err := f.eng.CreateDispute(f.ctx, at(dave, 26*time.Hour), 1, dispute(2, 30, protocol.SideDisagree, 50*time.Hour))
	assertKind(t, err, protocol.KindExpired)

	err = f.eng.CreateDispute(f.ctx, at(dave, 51*time.Hour+time.Second), 1, dispute(2, 30, protocol.SideDisagree, 75*time.Hour))
	assertKind(t, err, protocol.KindExpired)

	err = f.eng.CreateDispute(f.ctx, at(dave, 28*time.Hour), 1, dispute(2, 29, protocol.SideDisagree, 52*time.Hour))
	assertKind(t, err, protocol.KindInsufficientBalance)

	err = f.eng.CreateDispute(f.ctx, at(dave, 28*time.Hour), 9, dispute(2, 30, protocol.SideDisagree, 52*time.Hour))
	assertKind(t, err, protocol.KindInvalidMapping)

	err = f.eng.CreateDispute(f.ctx, at(dave, 28*time.Hour), 1, dispute(1, 30, protocol.SideDisagree, 52*time.Hour))
	assertKind(t, err, protocol.KindInvalidMapping)

	require.NoError(t, f.eng.CreateDispute(f.ctx, at(dave, 51*time.Hour), 1, dispute(2, 30, protocol.SideDisagree, 75*time.Hour)))

	err = f.eng.CreateDispute(f.ctx, at(erin, 51*time.Hour), 1, dispute(3, 30, protocol.SideAgree, 75*time.Hour))
	assertKind(t, err, protocol.KindInvalidProcessState)

	root, err := f.eng.Claim(1, t0.Add(52*time.Hour))
	require.NoError(t, err)
	child, err := f.eng.Claim(2, t0.Add(52*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, protocol.ClaimID(2), root.DisputeID)
	assert.Equal(t, protocol.ClaimID(1), child.ParentID)
	assert.Equal(t, 1, child.Depth)
	assert.Equal(t, dave, child.Proposer)
	assert.Equal(t, protocol.Amount(30), child.DisagreeStaked)

	flags, err := f.eng.Flags(1, t0.Add(52*time.Hour))
	require.NoError(t, err)
	assert.True(t, flags.Disputed)
	assert.False(t, flags.Final)

	for _, id := range []protocol.ClaimID{1, 2} {
		lineage, err := f.eng.Lineage(id)
		require.NoError(t, err)
		assert.Equal(t, []protocol.ClaimID{1, 2}, lineage)
	}
}

func TestCreateDispute_MaxDepth(t *testing.T) {
	f := resolvedClaim(t, func(p *protocol.Params) { p.MaxDepth = 1 })
	f.fund(erin, 100)
	require.NoError(t, f.eng.CreateDispute(f.ctx, at(dave, 28*time.Hour), 1, dispute(2, 30, protocol.SideDisagree, 52*time.Hour)))

	// Claim 2 is unopposed, so its local outcome is known at its expiry.
	err := f.eng.CreateDispute(f.ctx, at(erin, 53*time.Hour), 2, dispute(3, 30, protocol.SideAgree, 77*time.Hour))
	assertKind(t, err, protocol.KindInvalidProcessState)
}

func TestDispute_DeepestOutcomeGoverns(t *testing.T) {
	f := resolvedClaim(t, nil)
	require.NoError(t, f.eng.CreateDispute(f.ctx, at(dave, 28*time.Hour), 1, dispute(2, 30, protocol.SideDisagree, 52*time.Hour)))

	_, ok, err := f.eng.FinalOutcome(1, t0.Add(60*time.Hour))
	require.NoError(t, err)
	assert.False(t, ok, "root verdict is suspended by the open dispute")

	for _, id := range []protocol.ClaimID{1, 2} {
		o, ok, err := f.eng.FinalOutcome(id, t0.Add(76*time.Hour+time.Second))
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, protocol.OutcomeDisagree, o, "claim %d", id)
	}

	// Once the root settles under the overturned verdict, alice and carol lose their stakes.
	// alice still collects the proposer share of the losing pool.
	assert.Equal(t, protocol.OutcomeDisagree, f.settleAll(1, 77*time.Hour))
	assert.Equal(t, protocol.Balance{Available: 1}, f.eng.Balance(alice))
	assert.Equal(t, protocol.Balance{}, f.eng.Balance(carol))
	assert.Equal(t, protocol.Balance{Available: 28}, f.eng.Balance(bob))
	assert.Equal(t, protocol.Balance{Available: 1}, f.eng.Balance(treasury))
}
