// Package protocol implements the staking-backed truth-resolution engine:
// two-sided position books per claim, sampled voting, dispute escalation and
// batched settlement into a shared balance ledger.
//
// The Engine is not safe for concurrent use. Callers serialize operations
// (see internal/service); each operation either applies fully or leaves the
// state untouched.
package protocol

import (
	"context"
	"log/slog"
	"time"
)

// ValueLedger is the external fungible-token ledger the engine escrows through.
type ValueLedger interface {
	// TransferIn moves amount of denom from the staker into escrow.
	TransferIn(ctx context.Context, from Address, amount Amount, denom string) error
	// TransferOut moves amount of denom from escrow to the recipient.
	TransferOut(ctx context.Context, to Address, amount Amount, denom string) error
	BalanceOf(addr Address, denom string) Amount
	// AllowanceOf is how much of denom the escrow may still pull from addr.
	AllowanceOf(addr Address, denom string) Amount
}

// RoleChecker answers capability questions. Granting lives outside the engine.
type RoleChecker interface {
	HasRole(addr Address, role Role) bool
}

// Converter turns an escrowed amount of an alternate denomination into base units.
type Converter interface {
	Supports(denom string) bool
	// Quote prices amount of denom in base units without moving anything.
	Quote(denom string, amount Amount) (Amount, error)
	// Convert swaps amount of denom already in escrow and returns the base units it produced.
	Convert(ctx context.Context, denom string, amount Amount) (Amount, error)
}

// Balance is an address's standing in the protocol.
type Balance struct {
	Allocated Amount `json:"allocated"`
	Available Amount `json:"available"`
}

const noNode = -1

type claimNode struct {
	id             ClaimID
	proposer       Address
	agreeStaked    Amount
	disagreeStaked Amount
	minimumStake   Amount
	createdAt      time.Time
	expiry         time.Time
	content        string
	denominations  []string

	// Arena indices into Engine.nodes.
	parent int
	child  int
	depth  int

	book    positionBook
	resolve *resolveRecord
	settle  settlement
}

func (n *claimNode) total() Amount { return n.agreeStaked + n.disagreeStaked }

func (n *claimNode) staked(s Side) Amount {
	if s == SideAgree {
		return n.agreeStaked
	}
	return n.disagreeStaked
}

func (n *claimNode) expired(now time.Time) bool { return !now.Before(n.expiry) }

// unopposed reports a claim that closed with stake on one side only.
func (n *claimNode) unopposed() bool { return n.agreeStaked == 0 || n.disagreeStaked == 0 }

// Option configures an Engine.
type Option func(*Engine)

// WithConverter enables staking in alternate denominations.
func WithConverter(c Converter) Option {
	return func(e *Engine) { e.converter = c }
}

// WithLogger replaces slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// Engine holds all protocol state.
type Engine struct {
	params    Params
	ledger    ValueLedger
	roles     RoleChecker
	converter Converter
	log       *slog.Logger

	nodes    []*claimNode
	byID     map[ClaimID]int
	balances map[Address]*Balance

	busy bool
}

// New builds an engine over the given collaborators.
func New(params Params, ledger ValueLedger, roles RoleChecker, opts ...Option) (*Engine, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		params:   params,
		ledger:   ledger,
		roles:    roles,
		log:      slog.Default(),
		byID:     make(map[ClaimID]int),
		balances: make(map[Address]*Balance),
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// enter marks an operation in progress. Nested entry from a collaborator callback is rejected.
func (e *Engine) enter(op string) (func(), error) {
	if e.busy {
		return nil, fail(KindInvalidProcessState, op, "operation in progress")
	}
	e.busy = true
	return func() { e.busy = false }, nil
}

func (e *Engine) node(op string, id ClaimID) (*claimNode, error) {
	i, ok := e.byID[id]
	if !ok {
		return nil, fail(KindInvalidMapping, op, "claim %d does not exist", id)
	}
	return e.nodes[i], nil
}

func (e *Engine) balance(a Address) *Balance {
	b, ok := e.balances[a]
	if !ok {
		b = &Balance{}
		e.balances[a] = b
	}
	return b
}

// RequireOwner fails with Unauthorized unless the caller is the current owner.
func (e *Engine) RequireOwner(c Call) error {
	if c.Caller.IsZero() {
		return fail(KindInvalidAddress, "require owner", "caller is the zero address")
	}
	if c.Caller != e.params.Owner {
		return fail(KindUnauthorized, "require owner", "%s is not the owner", c.Caller)
	}
	return nil
}

func (e *Engine) rejected(op string, err error) error {
	e.log.Debug("operation rejected", "op", op, "kind", KindOf(err).String(), "error", err)
	return err
}
