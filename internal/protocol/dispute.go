// CLAUDE:SUMMARY Dispute tree: higher-stake child claims re-litigating a resolved parent; deepest undisputed verdict governs the lineage
package protocol

import (
	"context"
	"time"
)

// CreateDispute opens in.ID as a dispute of parentID's resolution.
func (e *Engine) CreateDispute(ctx context.Context, c Call, parentID ClaimID, in CreateClaimInput) error {
	const op = "create dispute"
	done, err := e.enter(op)
	if err != nil {
		return err
	}
	defer done()

	if err := e.createDispute(ctx, op, c, parentID, in); err != nil {
		return e.rejected(op, err)
	}
	e.log.Info("dispute opened", "claim", in.ID, "parent", parentID, "amount", in.Amount, "side", in.Side.String())
	return nil
}

func (e *Engine) createDispute(ctx context.Context, op string, c Call, parentID ClaimID, in CreateClaimInput) error {
	parent, err := e.node(op, parentID)
	if err != nil {
		return err
	}
	_, anchor, ok := parent.localOutcome(c.Now)
	if !ok {
		return fail(KindExpired, op, "claim %d has no resolved outcome yet", parentID)
	}
	if c.Now.After(anchor.Add(e.params.ChallengeWindow)) {
		return fail(KindExpired, op, "challenge window of claim %d closed at %s",
			parentID, anchor.Add(e.params.ChallengeWindow).UTC().Format(time.RFC3339))
	}
	if parent.child != noNode {
		return fail(KindInvalidProcessState, op, "claim %d is already disputed by %d", parentID, e.nodes[parent.child].id)
	}
	if e.lineageSettling(parent) {
		return fail(KindExpired, op, "claim %d belongs to a lineage under settlement", parentID)
	}
	if parent.depth+1 > e.params.MaxDepth {
		return fail(KindInvalidProcessState, op, "dispute depth %d exceeds %d", parent.depth+1, e.params.MaxDepth)
	}
	if in.Amount < parent.total() {
		return fail(KindInsufficientBalance, op, "dispute stake %d below disputed total %d", in.Amount, parent.total())
	}
	return e.createClaim(ctx, op, c, in, parent)
}

func (e *Engine) rootOf(n *claimNode) int {
	i := e.byID[n.id]
	for e.nodes[i].parent != noNode {
		i = e.nodes[i].parent
	}
	return i
}

func (e *Engine) deepest(n *claimNode) *claimNode {
	for n.child != noNode {
		n = e.nodes[n.child]
	}
	return n
}

// finalOutcome is the verdict applied to every claim in n's lineage below and including n:
// the local outcome of the deepest descendant, once its own challenge window has passed.
func (e *Engine) finalOutcome(n *claimNode, now time.Time) (Outcome, bool) {
	leaf := e.deepest(n)
	o, anchor, ok := leaf.localOutcome(now)
	if !ok || !now.After(anchor.Add(e.params.ChallengeWindow)) {
		return OutcomePending, false
	}
	return o, true
}

// Lineage lists the claim IDs from the root of id's dispute chain to its deepest dispute.
func (e *Engine) Lineage(id ClaimID) ([]ClaimID, error) {
	n, err := e.node("search lineage", id)
	if err != nil {
		return nil, err
	}
	var ids []ClaimID
	for i := e.rootOf(n); i != noNode; i = e.nodes[i].child {
		ids = append(ids, e.nodes[i].id)
	}
	return ids, nil
}
