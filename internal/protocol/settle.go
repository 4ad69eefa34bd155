// CLAUDE:SUMMARY Settlement engine: batched, idempotent payout of a claim's positions under its lineage's final outcome
package protocol

import "context"

// settlement tracks one claim's payout. The plan is fixed by the first batch.
type settlement struct {
	started bool
	done    bool
	outcome Outcome
	plan    payoutPlan
	cursor  int
	paid    Amount
}

// SettleResult reports the progress of one UpdateBalance call.
type SettleResult struct {
	Outcome   Outcome `json:"outcome"`
	Processed int     `json:"processed"`
	Remaining int     `json:"remaining"`
	Done      bool    `json:"done"`
}

// UpdateBalance settles up to batch positions of claim id. Anyone may call it
// until the claim is fully processed.
//
// The fee basis in force at the first batch applies to the whole claim; later
// UpdateFeeBasis calls only affect claims whose settlement has not begun.
func (e *Engine) UpdateBalance(_ context.Context, c Call, id ClaimID, batch int) (SettleResult, error) {
	const op = "update balance"
	done, err := e.enter(op)
	if err != nil {
		return SettleResult{}, err
	}
	defer done()

	res, err := e.updateBalance(op, c, id, batch)
	if err != nil {
		return SettleResult{}, e.rejected(op, err)
	}
	return res, nil
}

func (e *Engine) updateBalance(op string, c Call, id ClaimID, batch int) (SettleResult, error) {
	n, err := e.node(op, id)
	if err != nil {
		return SettleResult{}, err
	}
	if n.settle.done {
		return SettleResult{}, fail(KindInvalidProcessState, op, "claim %d is fully processed", id)
	}
	if batch < 1 || batch > e.params.MaxBatch {
		return SettleResult{}, fail(KindInvalidProcessState, op, "batch size %d outside [1, %d]", batch, e.params.MaxBatch)
	}
	if !n.expired(c.Now) {
		return SettleResult{}, fail(KindExpired, op, "claim %d is still staking", id)
	}
	p := n.settle.plan
	if !n.settle.started {
		o, ok := e.finalOutcome(n, c.Now)
		if !ok {
			return SettleResult{}, fail(KindExpired, op, "claim %d has no final outcome yet", id)
		}
		p = e.plan(n, o)
	}

	total := n.book.total()
	end := min(n.settle.cursor+batch, total)
	pays, sweep, err := e.checkPayouts(op, n, p, end)
	if err != nil {
		return SettleResult{}, err
	}

	n.settle.started = true
	n.settle.outcome = p.outcome
	n.settle.plan = p
	for j, pay := range pays {
		s, _ := n.book.at(n.book.ordinal(n.settle.cursor + j))
		b := e.balance(s.owner)
		b.Allocated -= s.amount
		b.Available += pay
		n.settle.paid += pay
	}
	processed := len(pays)
	n.settle.cursor = end

	if end == total {
		e.finalize(n, p, sweep)
	}
	return SettleResult{
		Outcome:   p.outcome,
		Processed: processed,
		Remaining: total - end,
		Done:      n.settle.done,
	}, nil
}

// payoutPlan holds the per-claim constants of a settlement.
type payoutPlan struct {
	outcome     Outcome
	winSide     Side
	winTotal    Amount
	split       FeeSplit
	passthrough FeeBasis
}

func (e *Engine) plan(n *claimNode, o Outcome) payoutPlan {
	p := payoutPlan{outcome: o, passthrough: e.params.Fee}
	if side, ok := o.winner(); ok {
		p.winSide = side
		p.winTotal = n.staked(side)
		p.split = e.params.Fee.Split(n.total() - p.winTotal)
	}
	return p
}

func (p payoutPlan) payout(n *claimNode, i PositionIndex, s stake) Amount {
	if p.outcome == OutcomePunish {
		if n.resolve != nil && n.resolve.sampled[i] && n.resolve.votes[i] == NotVoted {
			return 0
		}
		return p.passthrough.Passthrough(s.amount)
	}
	if i.Side() != p.winSide {
		return 0
	}
	return s.amount + mulDiv(s.amount, p.split.Net, p.winTotal)
}

// sweepShares is what finalize hands out once every position is paid.
type sweepShares struct {
	proposer Amount
	treasury Amount
}

// checkPayouts computes the payouts of positions cursor..end, and the final
// sweep when end closes the book, without touching any balance. It fails if
// the claim would pay out more than its pool or a balance would overflow.
func (e *Engine) checkPayouts(op string, n *claimNode, p payoutPlan, end int) ([]Amount, sweepShares, error) {
	pool := n.total()
	paid := n.settle.paid
	credited := make(map[Address]Amount)
	credit := func(who Address, pay Amount) error {
		have, seen := credited[who]
		if !seen {
			have = e.Balance(who).Available
		}
		if have+pay < have {
			return fail(KindInvalidProcessState, op, "payout of %d overflows the balance of %s", pay, who)
		}
		credited[who] = have + pay
		return nil
	}

	pays := make([]Amount, 0, end-n.settle.cursor)
	for k := n.settle.cursor; k < end; k++ {
		i := n.book.ordinal(k)
		s, _ := n.book.at(i)
		pay := p.payout(n, i, s)
		if pay > pool-paid {
			return nil, sweepShares{}, fail(KindInvalidProcessState, op, "claim %d would pay %d past its pool of %d", n.id, paid+pay, pool)
		}
		if err := credit(s.owner, pay); err != nil {
			return nil, sweepShares{}, err
		}
		paid += pay
		pays = append(pays, pay)
	}
	if end < n.book.total() {
		return pays, sweepShares{}, nil
	}

	sw := sweepShares{proposer: p.split.Proposer}
	if sw.proposer > pool-paid {
		return nil, sweepShares{}, fail(KindInvalidProcessState, op, "claim %d proposer share %d exceeds the remaining %d", n.id, sw.proposer, pool-paid)
	}
	sw.treasury = pool - paid - sw.proposer
	if err := credit(n.proposer, sw.proposer); err != nil {
		return nil, sweepShares{}, err
	}
	if err := credit(e.params.Treasury, sw.treasury); err != nil {
		return nil, sweepShares{}, err
	}
	return pays, sw, nil
}

// finalize sweeps the proposer share and every undistributed unit to their recipients.
func (e *Engine) finalize(n *claimNode, p payoutPlan, sw sweepShares) {
	if sw.proposer > 0 {
		e.balance(n.proposer).Available += sw.proposer
	}
	if sw.treasury > 0 {
		e.balance(e.params.Treasury).Available += sw.treasury
	}
	n.settle.done = true
	e.log.Info("claim settled",
		"claim", n.id,
		"outcome", p.outcome.String(),
		"pool", n.total(),
		"paid", n.settle.paid,
		"proposer", sw.proposer,
		"treasury", sw.treasury,
	)
}
