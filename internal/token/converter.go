package token

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/hazyhaar/veritrack/internal/protocol"
)

// Rate prices one denomination in base units: value = amount * Num / Den.
type Rate struct {
	Denom string `toml:"denom" json:"denom"`
	Num   uint64 `toml:"num" json:"num"`
	Den   uint64 `toml:"den" json:"den"`
}

// RateConverter swaps escrowed alternate tokens for base tokens at fixed rates.
// The alternate tokens are burned and the base proceeds minted into escrow.
type RateConverter struct {
	ledger *Ledger
	base   string
	rates  map[string]Rate
}

// NewRateConverter validates the rate table. Zero numerators or denominators are rejected.
func NewRateConverter(l *Ledger, base string, rates []Rate) (*RateConverter, error) {
	c := &RateConverter{ledger: l, base: base, rates: make(map[string]Rate, len(rates))}
	for _, r := range rates {
		if r.Denom == "" || r.Denom == base {
			return nil, fmt.Errorf("token: invalid rate denomination %q", r.Denom)
		}
		if r.Num == 0 || r.Den == 0 {
			return nil, fmt.Errorf("token: rate for %s must have non-zero num and den", r.Denom)
		}
		if _, dup := c.rates[r.Denom]; dup {
			return nil, fmt.Errorf("token: duplicate rate for %s", r.Denom)
		}
		c.rates[r.Denom] = r
	}
	return c, nil
}

func (c *RateConverter) Supports(denom string) bool {
	_, ok := c.rates[denom]
	return ok
}

func (c *RateConverter) Quote(denom string, amount protocol.Amount) (protocol.Amount, error) {
	r, ok := c.rates[denom]
	if !ok {
		return 0, fmt.Errorf("token: no rate for %s", denom)
	}
	x := uint256.NewInt(uint64(amount))
	x.Mul(x, uint256.NewInt(r.Num))
	x.Div(x, uint256.NewInt(r.Den))
	if !x.IsUint64() {
		return 0, fmt.Errorf("token: %d %s overflows the base denomination", amount, denom)
	}
	return protocol.Amount(x.Uint64()), nil
}

func (c *RateConverter) Convert(_ context.Context, denom string, amount protocol.Amount) (protocol.Amount, error) {
	value, err := c.Quote(denom, amount)
	if err != nil {
		return 0, err
	}
	c.ledger.mu.Lock()
	defer c.ledger.mu.Unlock()
	escrow := c.ledger.escrow
	if err := c.ledger.burn(escrow, amount, denom); err != nil {
		return 0, fmt.Errorf("convert %s: %w", denom, err)
	}
	c.ledger.mint(escrow, value, c.base)
	return value, nil
}
