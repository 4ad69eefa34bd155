// CLAUDE:SUMMARY Core value types: addresses, amounts, claim IDs, sides, votes, outcomes, states, and the per-call context
package protocol

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Address identifies a staker, the owner or the treasury. The empty string is the zero address.
type Address string

// ZeroAddress is the unset address.
const ZeroAddress Address = ""

var addressRe = regexp.MustCompile(`^0x[0-9a-f]{40}$`)

// ParseAddress normalizes s to lower case and checks the 0x + 40 hex digit form.
func ParseAddress(s string) (Address, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if !addressRe.MatchString(s) {
		return ZeroAddress, fail(KindInvalidAddress, "parse address", "%q is not a 0x-prefixed 20-byte hex address", s)
	}
	return Address(s), nil
}

func (a Address) IsZero() bool { return a == ZeroAddress }

// Amount is a quantity of the base staking denomination.
type Amount uint64

// ClaimID is caller-supplied and never zero for an existing claim.
type ClaimID uint64

// Role names a capability checked through the RoleChecker collaborator.
type Role string

const (
	// RoleResolver may open a resolve round (the sampling bot).
	RoleResolver Role = "resolver"
	// RoleMinter may mint tokens on the reference value ledger.
	RoleMinter Role = "minter"
)

// Side is the half of a claim a position backs.
type Side uint8

const (
	SideAgree Side = iota + 1
	SideDisagree
)

func (s Side) Valid() bool { return s == SideAgree || s == SideDisagree }

func (s Side) String() string {
	switch s {
	case SideAgree:
		return "agree"
	case SideDisagree:
		return "disagree"
	}
	return fmt.Sprintf("side(%d)", s)
}

// ParseSide accepts "agree" or "disagree".
func ParseSide(s string) (Side, error) {
	switch strings.ToLower(s) {
	case "agree":
		return SideAgree, nil
	case "disagree":
		return SideDisagree, nil
	}
	return 0, fail(KindInvalidProcessState, "parse side", "unknown side %q", s)
}

func (s Side) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Side) UnmarshalText(b []byte) error {
	v, err := ParseSide(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Vote is a sampled staker's self-reported verdict.
type Vote uint8

const (
	NotVoted Vote = iota
	VoteAgree
	VoteDisagree
)

func (v Vote) String() string {
	switch v {
	case NotVoted:
		return "not_voted"
	case VoteAgree:
		return "agree"
	case VoteDisagree:
		return "disagree"
	}
	return fmt.Sprintf("vote(%d)", v)
}

func (v Vote) MarshalText() ([]byte, error) { return []byte(v.String()), nil }

func (v *Vote) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "agree":
		*v = VoteAgree
	case "disagree":
		*v = VoteDisagree
	case "not_voted", "":
		*v = NotVoted
	default:
		return fail(KindInvalidProcessState, "parse vote", "unknown vote %q", string(b))
	}
	return nil
}

// Outcome is the derived verdict of a claim or of its whole dispute lineage.
type Outcome uint8

const (
	OutcomePending Outcome = iota
	OutcomeAgree
	OutcomeDisagree
	OutcomePunish
)

func (o Outcome) String() string {
	switch o {
	case OutcomePending:
		return "pending"
	case OutcomeAgree:
		return "agree"
	case OutcomeDisagree:
		return "disagree"
	case OutcomePunish:
		return "punish"
	}
	return fmt.Sprintf("outcome(%d)", o)
}

func (o Outcome) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

// winner returns the side paid by an Agree or Disagree outcome.
func (o Outcome) winner() (Side, bool) {
	switch o {
	case OutcomeAgree:
		return SideAgree, true
	case OutcomeDisagree:
		return SideDisagree, true
	}
	return 0, false
}

func outcomeForSide(s Side) Outcome {
	if s == SideAgree {
		return OutcomeAgree
	}
	return OutcomeDisagree
}

// State is the position of a claim in the resolution state machine.
type State uint8

const (
	StateStaking State = iota
	StateAwaitingResolve
	StateResolving
	StateResolved
)

func (s State) String() string {
	switch s {
	case StateStaking:
		return "staking"
	case StateAwaitingResolve:
		return "awaiting_resolve"
	case StateResolving:
		return "resolving"
	case StateResolved:
		return "resolved"
	}
	return fmt.Sprintf("state(%d)", s)
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Call carries the identity and confirmed time an operation executes under.
type Call struct {
	Caller Address
	Now    time.Time
}
