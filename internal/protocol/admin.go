package protocol

import "context"

// UpdateFeeBasis replaces the fee split. Owner only.
func (e *Engine) UpdateFeeBasis(_ context.Context, c Call, f FeeBasis) error {
	const op = "update fee basis"
	done, err := e.enter(op)
	if err != nil {
		return err
	}
	defer done()

	if err := e.RequireOwner(c); err != nil {
		return e.rejected(op, err)
	}
	if err := f.validate(); err != nil {
		return e.rejected(op, err)
	}
	e.params.Fee = f
	e.log.Info("fee basis updated", "total", f.Total, "proposer", f.Proposer, "protocol", f.Protocol)
	return nil
}

// UpdateDurationBounds replaces the staking window bounds. Owner only.
// Claims already open keep the expiry they were created with.
func (e *Engine) UpdateDurationBounds(_ context.Context, c Call, d DurationBounds) error {
	const op = "update duration bounds"
	done, err := e.enter(op)
	if err != nil {
		return err
	}
	defer done()

	if err := e.RequireOwner(c); err != nil {
		return e.rejected(op, err)
	}
	if err := d.validate(); err != nil {
		return e.rejected(op, err)
	}
	e.params.Duration = d
	e.log.Info("duration bounds updated", "basis", d.Basis, "max", d.Max, "min", d.Min)
	return nil
}

// UpdateOwner hands ownership to next. Owner only.
func (e *Engine) UpdateOwner(_ context.Context, c Call, next Address) error {
	const op = "update owner"
	done, err := e.enter(op)
	if err != nil {
		return err
	}
	defer done()

	if err := e.RequireOwner(c); err != nil {
		return e.rejected(op, err)
	}
	if next.IsZero() {
		return e.rejected(op, fail(KindInvalidAddress, op, "new owner is the zero address"))
	}
	e.log.Info("owner updated", "from", e.params.Owner, "to", next)
	e.params.Owner = next
	return nil
}

// Withdraw pays amount of the caller's available balance out through the value ledger.
func (e *Engine) Withdraw(ctx context.Context, c Call, amount Amount) error {
	const op = "withdraw"
	done, err := e.enter(op)
	if err != nil {
		return err
	}
	defer done()

	if err := e.withdraw(ctx, op, c, amount); err != nil {
		return e.rejected(op, err)
	}
	return nil
}

func (e *Engine) withdraw(ctx context.Context, op string, c Call, amount Amount) error {
	if c.Caller.IsZero() {
		return fail(KindInvalidAddress, op, "caller is the zero address")
	}
	if amount == 0 {
		return fail(KindInvalidProcessState, op, "amount must be positive")
	}
	b, ok := e.balances[c.Caller]
	if !ok || b.Available < amount {
		var have Amount
		if ok {
			have = b.Available
		}
		return fail(KindInsufficientBalance, op, "%s has %d available, requested %d", c.Caller, have, amount)
	}
	if err := e.ledger.TransferOut(ctx, c.Caller, amount, e.params.BaseDenomination); err != nil {
		return wrapFail(KindInsufficientBalance, op, err, "transfer out")
	}
	b.Available -= amount
	return nil
}
