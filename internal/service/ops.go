package service

import (
	"context"
	"time"

	"github.com/hazyhaar/veritrack/internal/protocol"
)

func (s *Service) Mint(ctx context.Context, caller, to protocol.Address, amount protocol.Amount, denom string) (TokenAccount, error) {
	return run[TokenAccount](ctx, s, caller, &mintCmd{To: to, Amount: amount, Denom: denom})
}

// Approve sets the escrow allowance the engine may pull from caller.
func (s *Service) Approve(ctx context.Context, caller protocol.Address, amount protocol.Amount, denom string) (TokenAccount, error) {
	return run[TokenAccount](ctx, s, caller, &approveCmd{Amount: amount, Denom: denom})
}

func (s *Service) GrantRole(ctx context.Context, caller, addr protocol.Address, role protocol.Role) error {
	_, err := s.execute(ctx, caller, &grantRoleCmd{roleChange{Address: addr, Role: role}})
	return err
}

func (s *Service) RevokeRole(ctx context.Context, caller, addr protocol.Address, role protocol.Role) error {
	_, err := s.execute(ctx, caller, &revokeRoleCmd{roleChange{Address: addr, Role: role}})
	return err
}

func (s *Service) CreateClaim(ctx context.Context, caller protocol.Address, in protocol.CreateClaimInput) (protocol.ClaimView, error) {
	return run[protocol.ClaimView](ctx, s, caller, &createClaimCmd{in})
}

func (s *Service) UpdateClaim(ctx context.Context, caller protocol.Address, in protocol.UpdateClaimInput) (protocol.ClaimView, error) {
	return run[protocol.ClaimView](ctx, s, caller, &updateClaimCmd{in})
}

// CreateDispute opens in as the dispute of parentID and returns the new claim.
func (s *Service) CreateDispute(ctx context.Context, caller protocol.Address, parentID protocol.ClaimID, in protocol.CreateClaimInput) (protocol.ClaimView, error) {
	return run[protocol.ClaimView](ctx, s, caller, &createDisputeCmd{ParentID: parentID, Claim: in})
}

func (s *Service) CreateResolve(ctx context.Context, caller protocol.Address, id protocol.ClaimID, sample []protocol.PositionIndex, expiry time.Time) (protocol.ClaimView, error) {
	return run[protocol.ClaimView](ctx, s, caller, &createResolveCmd{ID: id, Sample: sample, Expiry: expiry.UTC()})
}

// SubmitVote returns the sampled position the vote was recorded for.
func (s *Service) SubmitVote(ctx context.Context, caller protocol.Address, id protocol.ClaimID, v protocol.Vote) (protocol.PositionIndex, error) {
	return run[protocol.PositionIndex](ctx, s, caller, &submitVoteCmd{ID: id, Vote: v})
}

func (s *Service) UpdateBalance(ctx context.Context, caller protocol.Address, id protocol.ClaimID, batch int) (protocol.SettleResult, error) {
	return run[protocol.SettleResult](ctx, s, caller, &updateBalanceCmd{ID: id, Batch: batch})
}

// Withdraw returns the caller's protocol balance after the payout.
func (s *Service) Withdraw(ctx context.Context, caller protocol.Address, amount protocol.Amount) (protocol.Balance, error) {
	return run[protocol.Balance](ctx, s, caller, &withdrawCmd{Amount: amount})
}

func (s *Service) UpdateFeeBasis(ctx context.Context, caller protocol.Address, f protocol.FeeBasis) (protocol.Params, error) {
	return run[protocol.Params](ctx, s, caller, &feeBasisCmd{f})
}

func (s *Service) UpdateDurationBounds(ctx context.Context, caller protocol.Address, d protocol.DurationBounds) (protocol.Params, error) {
	return run[protocol.Params](ctx, s, caller, &durationBoundsCmd{d})
}

func (s *Service) UpdateOwner(ctx context.Context, caller, owner protocol.Address) (protocol.Params, error) {
	return run[protocol.Params](ctx, s, caller, &ownerCmd{Owner: owner})
}

// --- queries ---

// TokenAccount is an address's holdings on the value ledger, per denomination.
type TokenAccount struct {
	Address  protocol.Address        `json:"address"`
	Holdings map[string]TokenHolding `json:"holdings"`
}

type TokenHolding struct {
	Balance   protocol.Amount `json:"balance"`
	Allowance protocol.Amount `json:"allowance"`
}

func (s *Service) tokenAccount(a protocol.Address) TokenAccount {
	acct := TokenAccount{Address: a, Holdings: make(map[string]TokenHolding, len(s.denoms))}
	for _, d := range s.denoms {
		acct.Holdings[d] = TokenHolding{Balance: s.ledger.BalanceOf(a, d), Allowance: s.ledger.AllowanceOf(a, d)}
	}
	return acct
}

func (s *Service) TokenAccount(a protocol.Address) TokenAccount {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokenAccount(a)
}

func (s *Service) Claim(id protocol.ClaimID) (protocol.ClaimView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Claim(id, s.clock())
}

func (s *Service) ClaimIDs() []protocol.ClaimID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.ClaimIDs()
}

func (s *Service) Positions(id protocol.ClaimID, from, to protocol.PositionIndex) ([]protocol.Address, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Positions(id, from, to)
}

func (s *Service) Position(id protocol.ClaimID, i protocol.PositionIndex) (protocol.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Position(id, i)
}

func (s *Service) AcceptedDenominations(id protocol.ClaimID) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.AcceptedDenominations(id)
}

func (s *Service) Lineage(id protocol.ClaimID) ([]protocol.ClaimID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Lineage(id)
}

func (s *Service) SampleVotes(id protocol.ClaimID, from, to protocol.PositionIndex) ([]protocol.Vote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.SampleVotes(id, from, to)
}

func (s *Service) Sample(id protocol.ClaimID) ([]protocol.PositionIndex, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Sample(id)
}

func (s *Service) VoteTally(id protocol.ClaimID) (protocol.Tally, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.VoteTally(id)
}

// FinalOutcome reports the lineage outcome and whether it is final yet.
func (s *Service) FinalOutcome(id protocol.ClaimID) (protocol.Outcome, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.FinalOutcome(id, s.clock())
}

func (s *Service) Flags(id protocol.ClaimID) (protocol.OutcomeFlags, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Flags(id, s.clock())
}

func (s *Service) Balance(a protocol.Address) protocol.Balance {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Balance(a)
}

func (s *Service) Params() protocol.Params {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Params()
}

func (s *Service) RoleHolders(role protocol.Role) []protocol.Address {
	return s.roles.Holders(role)
}
