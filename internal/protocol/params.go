package protocol

import (
	"time"

	"github.com/holiman/uint256"
)

// BasisPoints is the denominator of every ratio in Params.
const BasisPoints = 10_000

// MaxRangeWindow caps the number of slots a single range read may return.
const MaxRangeWindow = 1000

// FeeBasis splits a losing pool between winners, the proposer and the treasury.
type FeeBasis struct {
	Total    uint64 `json:"total" toml:"total"`
	Proposer uint64 `json:"proposer" toml:"proposer"`
	Protocol uint64 `json:"protocol" toml:"protocol"`
}

// FeeSplit is the result of applying a FeeBasis to an amount.
type FeeSplit struct {
	Net      Amount `json:"net"`
	Proposer Amount `json:"proposer"`
	Protocol Amount `json:"protocol"`
}

func (f FeeBasis) validate() error {
	if f.Total+f.Proposer+f.Protocol != BasisPoints {
		return fail(KindInvalidProcessState, "fee basis", "total %d + proposer %d + protocol %d must equal %d",
			f.Total, f.Proposer, f.Protocol, BasisPoints)
	}
	return nil
}

// Split divides amount. Rounding dust lands in Protocol so the parts always sum to amount.
func (f FeeBasis) Split(amount Amount) FeeSplit {
	net := mulDiv(amount, Amount(f.Total), BasisPoints)
	proposer := mulDiv(amount, Amount(f.Proposer), BasisPoints)
	return FeeSplit{Net: net, Proposer: proposer, Protocol: amount - net - proposer}
}

// Passthrough returns the share of amount that survives the total fee basis.
func (f FeeBasis) Passthrough(amount Amount) Amount {
	return mulDiv(amount, Amount(f.Total), BasisPoints)
}

// DurationBounds limits how long a claim stays open and where the anti-snipe threshold sits.
type DurationBounds struct {
	Basis uint64        `json:"basis" toml:"basis"`
	Max   time.Duration `json:"max" toml:"max"`
	Min   time.Duration `json:"min" toml:"min"`
}

func (d DurationBounds) validate() error {
	if d.Basis == 0 || d.Basis >= BasisPoints {
		return fail(KindInvalidProcessState, "duration bounds", "basis %d outside (0, %d)", d.Basis, BasisPoints)
	}
	if d.Min <= 0 || d.Min >= d.Max {
		return fail(KindInvalidProcessState, "duration bounds", "require 0 < min (%s) < max (%s)", d.Min, d.Max)
	}
	return nil
}

// ResolveBounds limits how long a voting round may run.
type ResolveBounds struct {
	Min time.Duration `json:"min" toml:"min"`
	Max time.Duration `json:"max" toml:"max"`
}

// Params is the process-wide configuration of the engine.
type Params struct {
	Owner            Address        `json:"owner"`
	Treasury         Address        `json:"treasury"`
	BaseDenomination string         `json:"base_denomination"`
	Fee              FeeBasis       `json:"fee"`
	Duration         DurationBounds `json:"duration"`
	Resolve          ResolveBounds  `json:"resolve"`
	ChallengeWindow  time.Duration  `json:"challenge_window"`
	MaxDepth         int            `json:"max_depth"`
	MaxBatch         int            `json:"max_batch"`
	MaxDenominations int            `json:"max_denominations"`
}

// DefaultParams returns the stock configuration with the given owner and treasury.
func DefaultParams(owner, treasury Address) Params {
	return Params{
		Owner:            owner,
		Treasury:         treasury,
		BaseDenomination: "STAKE",
		Fee:              FeeBasis{Total: 9000, Proposer: 500, Protocol: 500},
		Duration:         DurationBounds{Basis: 1000, Max: 7 * 24 * time.Hour, Min: 3 * time.Hour},
		Resolve:          ResolveBounds{Min: time.Hour, Max: 7 * 24 * time.Hour},
		ChallengeWindow:  24 * time.Hour,
		MaxDepth:         5,
		MaxBatch:         500,
		MaxDenominations: 8,
	}
}

// Validate checks every bound the engine relies on.
func (p Params) Validate() error {
	if p.Owner.IsZero() {
		return fail(KindInvalidAddress, "params", "owner is required")
	}
	if p.Treasury.IsZero() {
		return fail(KindInvalidAddress, "params", "treasury is required")
	}
	if p.BaseDenomination == "" {
		return fail(KindInvalidProcessState, "params", "base denomination is required")
	}
	if err := p.Fee.validate(); err != nil {
		return err
	}
	if err := p.Duration.validate(); err != nil {
		return err
	}
	if p.Resolve.Min <= 0 || p.Resolve.Min >= p.Resolve.Max {
		return fail(KindInvalidProcessState, "params", "require 0 < resolve min (%s) < resolve max (%s)", p.Resolve.Min, p.Resolve.Max)
	}
	if p.ChallengeWindow <= 0 {
		return fail(KindInvalidProcessState, "params", "challenge window must be positive")
	}
	if p.MaxDepth < 1 || p.MaxBatch < 1 || p.MaxDenominations < 0 {
		return fail(KindInvalidProcessState, "params", "max depth and max batch must be at least 1")
	}
	return nil
}

// snipeThreshold is the instant after which a claim stops taking stakes.
func (d DurationBounds) snipeThreshold(created, expiry time.Time) time.Time {
	window := expiry.Sub(created)
	cut := time.Duration(mulDiv(Amount(window), Amount(d.Basis), BasisPoints))
	return expiry.Add(-cut)
}

// mulDiv computes a*b/d without intermediate overflow. The result must fit in 64 bits.
func mulDiv(a, b, d Amount) Amount {
	if d == 0 {
		return 0
	}
	x := uint256.NewInt(uint64(a))
	x.Mul(x, uint256.NewInt(uint64(b)))
	x.Div(x, uint256.NewInt(uint64(d)))
	return Amount(x.Uint64())
}
