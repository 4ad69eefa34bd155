// CLAUDE:SUMMARY Multi-denomination token ledger with an escrow account: the value ledger the engine stakes through
package token

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hazyhaar/veritrack/internal/protocol"
)

var (
	ErrInsufficientFunds     = errors.New("token: insufficient funds")
	ErrInsufficientAllowance = errors.New("token: insufficient allowance")
	ErrZeroAddress           = errors.New("token: zero address")
)

// Ledger keeps balances and escrow allowances per denomination.
// Escrow is the account the engine pulls stakes into and pays withdrawals from.
type Ledger struct {
	mu         sync.Mutex
	escrow     protocol.Address
	balances   map[string]map[protocol.Address]protocol.Amount
	allowances map[string]map[protocol.Address]protocol.Amount
	supply     map[string]protocol.Amount
}

// NewLedger creates an empty ledger whose escrow account is escrow.
func NewLedger(escrow protocol.Address) *Ledger {
	return &Ledger{
		escrow:     escrow,
		balances:   make(map[string]map[protocol.Address]protocol.Amount),
		allowances: make(map[string]map[protocol.Address]protocol.Amount),
		supply:     make(map[string]protocol.Amount),
	}
}

// Escrow returns the escrow account address.
func (l *Ledger) Escrow() protocol.Address { return l.escrow }

func bucket(m map[string]map[protocol.Address]protocol.Amount, denom string) map[protocol.Address]protocol.Amount {
	b, ok := m[denom]
	if !ok {
		b = make(map[protocol.Address]protocol.Amount)
		m[denom] = b
	}
	return b
}

// Mint creates amount of denom in to's account.
func (l *Ledger) Mint(_ context.Context, to protocol.Address, amount protocol.Amount, denom string) error {
	if to.IsZero() {
		return ErrZeroAddress
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.mint(to, amount, denom)
	return nil
}

func (l *Ledger) mint(to protocol.Address, amount protocol.Amount, denom string) {
	bucket(l.balances, denom)[to] += amount
	l.supply[denom] += amount
}

func (l *Ledger) burn(from protocol.Address, amount protocol.Amount, denom string) error {
	b := bucket(l.balances, denom)
	if b[from] < amount {
		return fmt.Errorf("burn %d %s from %s: %w", amount, denom, from, ErrInsufficientFunds)
	}
	b[from] -= amount
	l.supply[denom] -= amount
	return nil
}

// Approve sets how much of denom the escrow may pull from owner.
func (l *Ledger) Approve(_ context.Context, owner protocol.Address, amount protocol.Amount, denom string) error {
	if owner.IsZero() {
		return ErrZeroAddress
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	bucket(l.allowances, denom)[owner] = amount
	return nil
}

// TransferIn pulls amount of denom from the staker into escrow, consuming allowance.
func (l *Ledger) TransferIn(_ context.Context, from protocol.Address, amount protocol.Amount, denom string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	bal := bucket(l.balances, denom)
	allow := bucket(l.allowances, denom)
	if bal[from] < amount {
		return fmt.Errorf("transfer %d %s from %s: %w", amount, denom, from, ErrInsufficientFunds)
	}
	if allow[from] < amount {
		return fmt.Errorf("transfer %d %s from %s: %w", amount, denom, from, ErrInsufficientAllowance)
	}
	bal[from] -= amount
	allow[from] -= amount
	bal[l.escrow] += amount
	return nil
}

// TransferOut pays amount of denom from escrow to the recipient.
func (l *Ledger) TransferOut(_ context.Context, to protocol.Address, amount protocol.Amount, denom string) error {
	if to.IsZero() {
		return ErrZeroAddress
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	bal := bucket(l.balances, denom)
	if bal[l.escrow] < amount {
		return fmt.Errorf("pay %d %s to %s: %w", amount, denom, to, ErrInsufficientFunds)
	}
	bal[l.escrow] -= amount
	bal[to] += amount
	return nil
}

func (l *Ledger) BalanceOf(addr protocol.Address, denom string) protocol.Amount {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[denom][addr]
}

func (l *Ledger) AllowanceOf(addr protocol.Address, denom string) protocol.Amount {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.allowances[denom][addr]
}

// Supply returns the total minted and not burned amount of denom.
func (l *Ledger) Supply(denom string) protocol.Amount {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.supply[denom]
}
