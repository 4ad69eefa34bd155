// CLAUDE:SUMMARY Claim ledger: create/update stakes, expiry bounds, anti-snipe rule, funding from balance then external ledger
package protocol

import (
	"context"
	"time"
)

// CreateClaimInput opens a claim with its first stake. The opening stake is
// always funded in the base denomination; Denominations only lists what later
// UpdateClaim stakes may pay in.
type CreateClaimInput struct {
	ID            ClaimID   `json:"id"`
	Amount        Amount    `json:"amount"`
	Side          Side      `json:"side"`
	Expiry        time.Time `json:"expiry"`
	Content       string    `json:"content,omitempty"`
	Denominations []string  `json:"denominations,omitempty"`
}

// UpdateClaimInput adds a stake to an open claim. An empty Denomination means the base denomination.
type UpdateClaimInput struct {
	ID           ClaimID `json:"id"`
	Amount       Amount  `json:"amount"`
	Side         Side    `json:"side"`
	Denomination string  `json:"denomination,omitempty"`
}

// CreateClaim proposes a new root claim.
func (e *Engine) CreateClaim(ctx context.Context, c Call, in CreateClaimInput) error {
	const op = "create claim"
	done, err := e.enter(op)
	if err != nil {
		return err
	}
	defer done()

	if err := e.createClaim(ctx, op, c, in, nil); err != nil {
		return e.rejected(op, err)
	}
	return nil
}

func (e *Engine) createClaim(ctx context.Context, op string, c Call, in CreateClaimInput, parent *claimNode) error {
	if c.Caller.IsZero() {
		return fail(KindInvalidAddress, op, "caller is the zero address")
	}
	if in.ID == 0 {
		return fail(KindInvalidMapping, op, "claim id must be non-zero")
	}
	if _, used := e.byID[in.ID]; used {
		return fail(KindInvalidMapping, op, "claim %d already exists", in.ID)
	}
	if in.Amount == 0 {
		return fail(KindInsufficientBalance, op, "stake must be positive")
	}
	if !in.Side.Valid() {
		return fail(KindInvalidProcessState, op, "invalid side %d", in.Side)
	}
	if d := in.Expiry.Sub(c.Now); d <= e.params.Duration.Min || d >= e.params.Duration.Max {
		return fail(KindExpired, op, "expiry %s from now is outside (%s, %s)", d, e.params.Duration.Min, e.params.Duration.Max)
	}
	denoms, err := e.checkDenominations(op, in.Denominations)
	if err != nil {
		return err
	}
	if err := e.checkAllocation(op, c.Caller, in.Amount); err != nil {
		return err
	}

	fromAvailable, err := e.fund(ctx, op, c.Caller, in.Amount)
	if err != nil {
		return err
	}

	n := &claimNode{
		id:            in.ID,
		proposer:      c.Caller,
		minimumStake:  in.Amount,
		createdAt:     c.Now,
		expiry:        in.Expiry,
		content:       in.Content,
		denominations: denoms,
		parent:        noNode,
		child:         noNode,
	}
	idx := len(e.nodes)
	if parent != nil {
		n.parent = e.byID[parent.id]
		n.depth = parent.depth + 1
		parent.child = idx
	}
	e.nodes = append(e.nodes, n)
	e.byID[in.ID] = idx
	e.credit(n, c.Caller, in.Side, in.Amount, fromAvailable)
	return nil
}

func (e *Engine) checkDenominations(op string, denoms []string) ([]string, error) {
	if len(denoms) == 0 {
		return nil, nil
	}
	if len(denoms) > e.params.MaxDenominations {
		return nil, fail(KindInvalidProcessState, op, "%d denominations exceed the limit of %d", len(denoms), e.params.MaxDenominations)
	}
	seen := make(map[string]bool, len(denoms))
	out := make([]string, 0, len(denoms))
	for _, d := range denoms {
		switch {
		case d == "":
			return nil, fail(KindInvalidProcessState, op, "empty denomination")
		case d == e.params.BaseDenomination:
			return nil, fail(KindInvalidProcessState, op, "%s is the base denomination", d)
		case seen[d]:
			return nil, fail(KindInvalidProcessState, op, "duplicate denomination %s", d)
		case e.converter != nil && !e.converter.Supports(d):
			return nil, fail(KindInvalidProcessState, op, "denomination %s cannot be converted", d)
		}
		seen[d] = true
		out = append(out, d)
	}
	return out, nil
}

// UpdateClaim stakes on an existing, still-open claim.
func (e *Engine) UpdateClaim(ctx context.Context, c Call, in UpdateClaimInput) error {
	const op = "update claim"
	done, err := e.enter(op)
	if err != nil {
		return err
	}
	defer done()

	if err := e.updateClaim(ctx, op, c, in); err != nil {
		return e.rejected(op, err)
	}
	return nil
}

func (e *Engine) updateClaim(ctx context.Context, op string, c Call, in UpdateClaimInput) error {
	if c.Caller.IsZero() {
		return fail(KindInvalidAddress, op, "caller is the zero address")
	}
	n, err := e.node(op, in.ID)
	if err != nil {
		return err
	}
	if n.expired(c.Now) {
		return fail(KindExpired, op, "claim %d closed at %s", n.id, n.expiry.UTC().Format(time.RFC3339))
	}
	if !c.Now.Before(e.params.Duration.snipeThreshold(n.createdAt, n.expiry)) {
		return fail(KindExpired, op, "claim %d is inside its closing window", n.id)
	}
	if e.lineageSettling(n) {
		return fail(KindExpired, op, "claim %d belongs to a lineage under settlement", n.id)
	}
	if !in.Side.Valid() {
		return fail(KindInvalidProcessState, op, "invalid side %d", in.Side)
	}
	if in.Amount == 0 {
		return fail(KindInsufficientBalance, op, "stake must be positive")
	}

	if in.Denomination == "" || in.Denomination == e.params.BaseDenomination {
		if err := e.checkStake(op, n, c.Caller, in.Amount); err != nil {
			return err
		}
		fromAvailable, err := e.fund(ctx, op, c.Caller, in.Amount)
		if err != nil {
			return err
		}
		e.credit(n, c.Caller, in.Side, in.Amount, fromAvailable)
		return nil
	}

	if !n.accepts(in.Denomination) {
		return fail(KindInvalidMapping, op, "claim %d does not accept %s", n.id, in.Denomination)
	}
	value, err := e.fundAlternate(ctx, op, n, c.Caller, in.Amount, in.Denomination)
	if err != nil {
		return err
	}
	e.credit(n, c.Caller, in.Side, value, 0)
	return nil
}

func (n *claimNode) accepts(denom string) bool {
	for _, d := range n.denominations {
		if d == denom {
			return true
		}
	}
	return false
}

func (e *Engine) checkStake(op string, n *claimNode, who Address, amount Amount) error {
	if amount < n.minimumStake {
		return fail(KindInsufficientBalance, op, "stake %d below claim minimum %d", amount, n.minimumStake)
	}
	if n.total()+amount < n.total() {
		return fail(KindInvalidProcessState, op, "stake overflows claim %d", n.id)
	}
	return e.checkAllocation(op, who, amount)
}

// checkAllocation refuses a stake that would overflow who's allocated balance.
func (e *Engine) checkAllocation(op string, who Address, amount Amount) error {
	if have := e.Balance(who).Allocated; have+amount < have {
		return fail(KindInvalidProcessState, op, "stake of %d overflows the allocation of %s", amount, who)
	}
	return nil
}

// lineageSettling reports whether settlement has begun on n or any claim linked to it.
func (e *Engine) lineageSettling(n *claimNode) bool {
	for i := e.rootOf(n); i != noNode; i = e.nodes[i].child {
		if e.nodes[i].settle.started {
			return true
		}
	}
	return false
}

// fund draws amount for who: available balance first, the remainder through the value ledger.
// It returns the part taken from the available balance. Nothing is mutated on failure.
func (e *Engine) fund(ctx context.Context, op string, who Address, amount Amount) (Amount, error) {
	var fromAvailable Amount
	if b, ok := e.balances[who]; ok {
		fromAvailable = min(b.Available, amount)
	}
	rest := amount - fromAvailable
	if rest == 0 {
		return fromAvailable, nil
	}
	denom := e.params.BaseDenomination
	if have := e.ledger.BalanceOf(who, denom); have < rest {
		return 0, fail(KindInsufficientBalance, op, "%s holds %d %s, needs %d", who, have, denom, rest)
	}
	if allowed := e.ledger.AllowanceOf(who, denom); allowed < rest {
		return 0, fail(KindInsufficientBalance, op, "%s allows %d %s, needs %d", who, allowed, denom, rest)
	}
	if err := e.ledger.TransferIn(ctx, who, rest, denom); err != nil {
		return 0, wrapFail(KindInsufficientBalance, op, err, "transfer in")
	}
	return fromAvailable, nil
}

// fundAlternate escrows amount of denom and converts it, returning the base value credited.
func (e *Engine) fundAlternate(ctx context.Context, op string, n *claimNode, who Address, amount Amount, denom string) (Amount, error) {
	if e.converter == nil {
		return 0, fail(KindInvalidMapping, op, "no converter for %s", denom)
	}
	value, err := e.converter.Quote(denom, amount)
	if err != nil {
		return 0, wrapFail(KindInvalidProcessState, op, err, "quote %s", denom)
	}
	if err := e.checkStake(op, n, who, value); err != nil {
		return 0, err
	}
	if have := e.ledger.BalanceOf(who, denom); have < amount {
		return 0, fail(KindInsufficientBalance, op, "%s holds %d %s, needs %d", who, have, denom, amount)
	}
	if allowed := e.ledger.AllowanceOf(who, denom); allowed < amount {
		return 0, fail(KindInsufficientBalance, op, "%s allows %d %s, needs %d", who, allowed, denom, amount)
	}
	if err := e.ledger.TransferIn(ctx, who, amount, denom); err != nil {
		return 0, wrapFail(KindInsufficientBalance, op, err, "transfer in")
	}
	got, err := e.converter.Convert(ctx, denom, amount)
	if err != nil {
		if rerr := e.ledger.TransferOut(ctx, who, amount, denom); rerr != nil {
			e.log.Error("refund after failed conversion", "address", who, "denom", denom, "amount", amount, "error", rerr)
		}
		return 0, wrapFail(KindInvalidProcessState, op, err, "convert %s", denom)
	}
	if got != value {
		// The swap settled at a different rate than quoted; hand the base proceeds back.
		if rerr := e.ledger.TransferOut(ctx, who, got, e.params.BaseDenomination); rerr != nil {
			e.log.Error("refund after conversion drift", "address", who, "amount", got, "error", rerr)
		}
		return 0, fail(KindInvalidProcessState, op, "conversion of %s returned %d, quoted %d", denom, got, value)
	}
	return value, nil
}

// credit records a funded stake. It cannot fail; checkAllocation has already run.
func (e *Engine) credit(n *claimNode, who Address, side Side, amount, fromAvailable Amount) {
	n.book.append(side, who, amount)
	if side == SideAgree {
		n.agreeStaked += amount
	} else {
		n.disagreeStaked += amount
	}
	b := e.balance(who)
	b.Available -= fromAvailable
	b.Allocated += amount
}
