// CLAUDE:SUMMARY Resolution state machine: bot-sampled voting rounds, one vote per sampled position, majority/tie/empty outcome
package protocol

import (
	"context"
	"time"
)

type resolveRecord struct {
	sample    []PositionIndex
	sampled   map[PositionIndex]bool
	votes     map[PositionIndex]Vote
	createdAt time.Time
	expiry    time.Time
}

// Tally counts the sampled votes of a claim.
type Tally struct {
	Agree    int `json:"agree"`
	Disagree int `json:"disagree"`
	NotVoted int `json:"not_voted"`
}

func (r *resolveRecord) tally() Tally {
	var t Tally
	for _, i := range r.sample {
		switch r.votes[i] {
		case VoteAgree:
			t.Agree++
		case VoteDisagree:
			t.Disagree++
		default:
			t.NotVoted++
		}
	}
	return t
}

// Outcome applies the majority rule: a strict majority of cast votes wins.
// A tie, including no votes at all, punishes.
func (t Tally) Outcome() Outcome {
	switch {
	case t.Agree > t.Disagree:
		return OutcomeAgree
	case t.Disagree > t.Agree:
		return OutcomeDisagree
	}
	return OutcomePunish
}

// CreateResolve opens the voting round of an expired claim over the given sample.
func (e *Engine) CreateResolve(_ context.Context, c Call, id ClaimID, sample []PositionIndex, expiry time.Time) error {
	const op = "create resolve"
	done, err := e.enter(op)
	if err != nil {
		return err
	}
	defer done()

	if err := e.createResolve(op, c, id, sample, expiry); err != nil {
		return e.rejected(op, err)
	}
	return nil
}

func (e *Engine) createResolve(op string, c Call, id ClaimID, sample []PositionIndex, expiry time.Time) error {
	if c.Caller.IsZero() {
		return fail(KindInvalidAddress, op, "caller is the zero address")
	}
	if !e.roles.HasRole(c.Caller, RoleResolver) {
		return fail(KindUnauthorized, op, "%s lacks the %s role", c.Caller, RoleResolver)
	}
	n, err := e.node(op, id)
	if err != nil {
		return err
	}
	if !n.expired(c.Now) {
		return fail(KindExpired, op, "claim %d is still staking", id)
	}
	if n.resolve != nil {
		return fail(KindInvalidProcessState, op, "claim %d already has a resolve record", id)
	}
	if d := expiry.Sub(c.Now); d <= e.params.Resolve.Min || d >= e.params.Resolve.Max {
		return fail(KindExpired, op, "resolve expiry %s from now is outside (%s, %s)", d, e.params.Resolve.Min, e.params.Resolve.Max)
	}
	if len(sample) == 0 {
		return fail(KindInvalidMapping, op, "sample is empty")
	}

	sampled := make(map[PositionIndex]bool, len(sample))
	var agree, disagree int
	for _, i := range sample {
		if _, ok := n.book.at(i); !ok {
			return fail(KindInvalidMapping, op, "position %d does not exist in claim %d", i, id)
		}
		if sampled[i] {
			return fail(KindInvalidMapping, op, "position %d sampled twice", i)
		}
		sampled[i] = true
		if i.Side() == SideAgree {
			agree++
		} else {
			disagree++
		}
	}
	if agree == 0 || disagree == 0 {
		return fail(KindInvalidMapping, op, "sample must include both sides (agree %d, disagree %d)", agree, disagree)
	}

	n.resolve = &resolveRecord{
		sample:    append([]PositionIndex(nil), sample...),
		sampled:   sampled,
		votes:     make(map[PositionIndex]Vote, len(sample)),
		createdAt: c.Now,
		expiry:    expiry,
	}
	e.log.Info("resolve opened", "claim", id, "sample", len(sample), "expiry", expiry)
	return nil
}

// SubmitVote records the caller's vote for their next unvoted sampled position.
// It returns the index that voted.
func (e *Engine) SubmitVote(_ context.Context, c Call, id ClaimID, v Vote) (PositionIndex, error) {
	const op = "submit vote"
	done, err := e.enter(op)
	if err != nil {
		return 0, err
	}
	defer done()

	i, err := e.submitVote(op, c, id, v)
	if err != nil {
		return 0, e.rejected(op, err)
	}
	return i, nil
}

func (e *Engine) submitVote(op string, c Call, id ClaimID, v Vote) (PositionIndex, error) {
	if c.Caller.IsZero() {
		return 0, fail(KindInvalidAddress, op, "caller is the zero address")
	}
	n, err := e.node(op, id)
	if err != nil {
		return 0, err
	}
	r := n.resolve
	if r == nil {
		return 0, fail(KindInvalidMapping, op, "claim %d has no resolve record", id)
	}
	if !c.Now.Before(r.expiry) {
		return 0, fail(KindExpired, op, "voting on claim %d closed at %s", id, r.expiry.UTC().Format(time.RFC3339))
	}
	if v != VoteAgree && v != VoteDisagree {
		return 0, fail(KindInvalidProcessState, op, "vote must be agree or disagree")
	}
	i, ok := e.nextBallot(n, c.Caller)
	if !ok {
		return 0, fail(KindInvalidAddress, op, "%s holds no unvoted sampled position in claim %d", c.Caller, id)
	}
	r.votes[i] = v
	return i, nil
}

// nextBallot finds the caller's first unvoted sampled position in settlement order.
func (e *Engine) nextBallot(n *claimNode, who Address) (PositionIndex, bool) {
	var best PositionIndex
	found := false
	for _, i := range n.resolve.sample {
		if n.resolve.votes[i] != NotVoted {
			continue
		}
		if s, _ := n.book.at(i); s.owner != who {
			continue
		}
		if !found || before(i, best) {
			best, found = i, true
		}
	}
	return best, found
}

// before orders indices agree side ascending, then disagree side ascending.
func before(a, b PositionIndex) bool {
	if a.Side() != b.Side() {
		return a.Side() == SideAgree
	}
	return a.offset() < b.offset()
}

// localOutcome is the claim's own verdict, ignoring disputes. ok is false until it is known.
// anchor is the instant the challenge window opens.
func (n *claimNode) localOutcome(now time.Time) (o Outcome, anchor time.Time, ok bool) {
	if !n.expired(now) {
		return OutcomePending, time.Time{}, false
	}
	if n.resolve == nil {
		if n.unopposed() {
			if n.agreeStaked > 0 {
				return OutcomeAgree, n.expiry, true
			}
			return OutcomeDisagree, n.expiry, true
		}
		return OutcomePending, time.Time{}, false
	}
	if now.Before(n.resolve.expiry) {
		return OutcomePending, time.Time{}, false
	}
	return n.resolve.tally().Outcome(), n.resolve.expiry, true
}

func (n *claimNode) state(now time.Time) State {
	switch {
	case !n.expired(now):
		return StateStaking
	case n.resolve == nil && !n.unopposed():
		return StateAwaitingResolve
	case n.resolve != nil && now.Before(n.resolve.expiry):
		return StateResolving
	}
	return StateResolved
}
