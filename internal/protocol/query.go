package protocol

import "time"

// ClaimView is the read-only projection of a claim.
type ClaimView struct {
	ID             ClaimID    `json:"id"`
	Proposer       Address    `json:"proposer"`
	AgreeStaked    Amount     `json:"agree_staked"`
	DisagreeStaked Amount     `json:"disagree_staked"`
	MinimumStake   Amount     `json:"minimum_stake"`
	AgreeCount     uint64     `json:"agree_count"`
	DisagreeCount  uint64     `json:"disagree_count"`
	CreatedAt      time.Time  `json:"created_at"`
	Expiry         time.Time  `json:"expiry"`
	Content        string     `json:"content,omitempty"`
	Denominations  []string   `json:"denominations"`
	ParentID       ClaimID    `json:"parent_id,omitempty"`
	DisputeID      ClaimID    `json:"dispute_id,omitempty"`
	Depth          int        `json:"depth"`
	State          State      `json:"state"`
	ResolveExpiry  *time.Time `json:"resolve_expiry,omitempty"`
}

// OutcomeFlags summarizes where a claim stands.
type OutcomeFlags struct {
	Resolved     bool    `json:"resolved"`
	Disputed     bool    `json:"disputed"`
	Final        bool    `json:"final"`
	Punished     bool    `json:"punished"`
	Settling     bool    `json:"settling"`
	Settled      bool    `json:"settled"`
	LocalOutcome Outcome `json:"local_outcome"`
	FinalOutcome Outcome `json:"final_outcome"`
	Processed    int     `json:"processed"`
	Positions    int     `json:"positions"`
}

// Claim returns the claim as seen at now.
func (e *Engine) Claim(id ClaimID, now time.Time) (ClaimView, error) {
	n, err := e.node("search claim", id)
	if err != nil {
		return ClaimView{}, err
	}
	v := ClaimView{
		ID:             n.id,
		Proposer:       n.proposer,
		AgreeStaked:    n.agreeStaked,
		DisagreeStaked: n.disagreeStaked,
		MinimumStake:   n.minimumStake,
		AgreeCount:     n.book.count(SideAgree),
		DisagreeCount:  n.book.count(SideDisagree),
		CreatedAt:      n.createdAt,
		Expiry:         n.expiry,
		Content:        n.content,
		Denominations:  e.denominations(n),
		Depth:          n.depth,
		State:          n.state(now),
	}
	if n.parent != noNode {
		v.ParentID = e.nodes[n.parent].id
	}
	if n.child != noNode {
		v.DisputeID = e.nodes[n.child].id
	}
	if n.resolve != nil {
		t := n.resolve.expiry
		v.ResolveExpiry = &t
	}
	return v, nil
}

// ClaimIDs lists every claim in creation order.
func (e *Engine) ClaimIDs() []ClaimID {
	ids := make([]ClaimID, len(e.nodes))
	for i, n := range e.nodes {
		ids[i] = n.id
	}
	return ids
}

// Positions lists the owners of an inclusive index window.
func (e *Engine) Positions(id ClaimID, from, to PositionIndex) ([]Address, error) {
	n, err := e.node("search positions", id)
	if err != nil {
		return nil, err
	}
	return n.book.readRange(from, to)
}

// Position returns a single recorded position.
func (e *Engine) Position(id ClaimID, i PositionIndex) (Position, error) {
	const op = "search position"
	n, err := e.node(op, id)
	if err != nil {
		return Position{}, err
	}
	s, ok := n.book.at(i)
	if !ok {
		return Position{}, fail(KindInvalidMapping, op, "position %d does not exist in claim %d", i, id)
	}
	return Position{ClaimID: id, Index: i, Side: i.Side(), Owner: s.owner, Amount: s.amount}, nil
}

// AcceptedDenominations lists the alternate denominations the claim takes.
func (e *Engine) AcceptedDenominations(id ClaimID) ([]string, error) {
	n, err := e.node("search accepted denominations", id)
	if err != nil {
		return nil, err
	}
	return e.denominations(n), nil
}

func (e *Engine) denominations(n *claimNode) []string {
	return append([]string{}, n.denominations...)
}

// SampleVotes lists votes over an index window. Unsampled and unfilled slots read NotVoted.
func (e *Engine) SampleVotes(id ClaimID, from, to PositionIndex) ([]Vote, error) {
	const op = "search sample votes"
	n, err := e.node(op, id)
	if err != nil {
		return nil, err
	}
	if n.resolve == nil {
		return nil, fail(KindInvalidMapping, op, "claim %d has no resolve record", id)
	}
	side, lo, count, err := window(from, to)
	if err != nil {
		return nil, err
	}
	out := make([]Vote, count)
	for k := uint64(0); k < count; k++ {
		out[k] = n.resolve.votes[IndexAt(side, lo+k)]
	}
	return out, nil
}

// Sample returns the sampled indices of a claim's resolve record.
func (e *Engine) Sample(id ClaimID) ([]PositionIndex, error) {
	const op = "search sample"
	n, err := e.node(op, id)
	if err != nil {
		return nil, err
	}
	if n.resolve == nil {
		return nil, fail(KindInvalidMapping, op, "claim %d has no resolve record", id)
	}
	return append([]PositionIndex(nil), n.resolve.sample...), nil
}

// VoteTally counts the sampled votes cast so far.
func (e *Engine) VoteTally(id ClaimID) (Tally, error) {
	const op = "search vote tally"
	n, err := e.node(op, id)
	if err != nil {
		return Tally{}, err
	}
	if n.resolve == nil {
		return Tally{}, fail(KindInvalidMapping, op, "claim %d has no resolve record", id)
	}
	return n.resolve.tally(), nil
}

// FinalOutcome returns the lineage verdict for id, or OutcomePending with ok false.
func (e *Engine) FinalOutcome(id ClaimID, now time.Time) (Outcome, bool, error) {
	n, err := e.node("search final outcome", id)
	if err != nil {
		return OutcomePending, false, err
	}
	if n.settle.started {
		return n.settle.outcome, true, nil
	}
	o, ok := e.finalOutcome(n, now)
	return o, ok, nil
}

// Flags reports the status bits of a claim at now.
func (e *Engine) Flags(id ClaimID, now time.Time) (OutcomeFlags, error) {
	n, err := e.node("search outcome flags", id)
	if err != nil {
		return OutcomeFlags{}, err
	}
	local, _, resolved := n.localOutcome(now)
	final, isFinal := n.settle.outcome, n.settle.started
	if !isFinal {
		final, isFinal = e.finalOutcome(n, now)
	}
	return OutcomeFlags{
		Resolved:     resolved,
		Disputed:     n.child != noNode,
		Final:        isFinal,
		Punished:     isFinal && final == OutcomePunish,
		Settling:     n.settle.started && !n.settle.done,
		Settled:      n.settle.done,
		LocalOutcome: local,
		FinalOutcome: final,
		Processed:    n.settle.cursor,
		Positions:    n.book.total(),
	}, nil
}

// Balance returns the protocol balance of an address.
func (e *Engine) Balance(a Address) Balance {
	if b, ok := e.balances[a]; ok {
		return *b
	}
	return Balance{}
}

// Params returns a copy of the current configuration.
func (e *Engine) Params() Params { return e.params }
