// CLAUDE:SUMMARY Journaled commands: one payload type per journal kind, applied identically live and on replay
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/hazyhaar/veritrack/internal/auth"
	"github.com/hazyhaar/veritrack/internal/db"
	"github.com/hazyhaar/veritrack/internal/protocol"
	"github.com/hazyhaar/veritrack/internal/token"
)

// command is the payload of one journal kind.
type command interface {
	kind() string
	apply(ctx context.Context, s *Service, c protocol.Call) (any, error)
}

func decode(kind string, payload json.RawMessage) (command, error) {
	var cmd command
	switch kind {
	case db.KindMint:
		cmd = &mintCmd{}
	case db.KindApprove:
		cmd = &approveCmd{}
	case db.KindGrantRole:
		cmd = &grantRoleCmd{}
	case db.KindRevokeRole:
		cmd = &revokeRoleCmd{}
	case db.KindCreateClaim:
		cmd = &createClaimCmd{}
	case db.KindUpdateClaim:
		cmd = &updateClaimCmd{}
	case db.KindCreateDispute:
		cmd = &createDisputeCmd{}
	case db.KindCreateResolve:
		cmd = &createResolveCmd{}
	case db.KindSubmitVote:
		cmd = &submitVoteCmd{}
	case db.KindUpdateBalance:
		cmd = &updateBalanceCmd{}
	case db.KindWithdraw:
		cmd = &withdrawCmd{}
	case db.KindUpdateFeeBasis:
		cmd = &feeBasisCmd{}
	case db.KindUpdateDurationBounds:
		cmd = &durationBoundsCmd{}
	case db.KindUpdateOwner:
		cmd = &ownerCmd{}
	default:
		return nil, fmt.Errorf("unknown journal kind %q", kind)
	}
	if err := json.Unmarshal(payload, cmd); err != nil {
		return nil, fmt.Errorf("decoding %s payload: %w", kind, err)
	}
	return cmd, nil
}

func reject(kind protocol.Kind, op, format string, args ...any) error {
	return &protocol.Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// ledgerError maps token ledger failures onto engine kinds.
func ledgerError(op string, err error) error {
	switch {
	case errors.Is(err, token.ErrZeroAddress):
		return &protocol.Error{Kind: protocol.KindInvalidAddress, Op: op, Err: err}
	case errors.Is(err, token.ErrInsufficientFunds), errors.Is(err, token.ErrInsufficientAllowance):
		return &protocol.Error{Kind: protocol.KindInsufficientBalance, Op: op, Err: err}
	}
	return err
}

func (s *Service) knownDenom(op, denom string) error {
	if !slices.Contains(s.denoms, denom) {
		return reject(protocol.KindInvalidProcessState, op, "unknown denomination %q", denom)
	}
	return nil
}

// --- token ledger ---

type mintCmd struct {
	To     protocol.Address `json:"to"`
	Amount protocol.Amount  `json:"amount"`
	Denom  string           `json:"denom"`
}

func (*mintCmd) kind() string { return db.KindMint }

func (m *mintCmd) apply(ctx context.Context, s *Service, c protocol.Call) (any, error) {
	const op = "mint"
	if c.Caller != s.engine.Params().Owner && !s.roles.HasRole(c.Caller, protocol.RoleMinter) {
		return nil, reject(protocol.KindUnauthorized, op, "%s may not mint", c.Caller)
	}
	if m.Amount == 0 {
		return nil, reject(protocol.KindInsufficientBalance, op, "amount must be positive")
	}
	if err := s.knownDenom(op, m.Denom); err != nil {
		return nil, err
	}
	if err := s.ledger.Mint(ctx, m.To, m.Amount, m.Denom); err != nil {
		return nil, ledgerError(op, err)
	}
	return s.tokenAccount(m.To), nil
}

type approveCmd struct {
	Amount protocol.Amount `json:"amount"`
	Denom  string          `json:"denom"`
}

func (*approveCmd) kind() string { return db.KindApprove }

func (a *approveCmd) apply(ctx context.Context, s *Service, c protocol.Call) (any, error) {
	const op = "approve"
	if err := s.knownDenom(op, a.Denom); err != nil {
		return nil, err
	}
	if err := s.ledger.Approve(ctx, c.Caller, a.Amount, a.Denom); err != nil {
		return nil, ledgerError(op, err)
	}
	return s.tokenAccount(c.Caller), nil
}

// --- roles ---

type roleChange struct {
	Address protocol.Address `json:"address"`
	Role    protocol.Role    `json:"role"`
}

func (r roleChange) check(s *Service, op string, c protocol.Call) error {
	if err := s.engine.RequireOwner(c); err != nil {
		return err
	}
	if r.Address.IsZero() {
		return reject(protocol.KindInvalidAddress, op, "address is required")
	}
	if !auth.ValidRole(r.Role) {
		return reject(protocol.KindInvalidProcessState, op, "unknown role %q", r.Role)
	}
	return nil
}

type grantRoleCmd struct{ roleChange }

func (*grantRoleCmd) kind() string { return db.KindGrantRole }

func (g *grantRoleCmd) apply(_ context.Context, s *Service, c protocol.Call) (any, error) {
	const op = "grant role"
	if err := g.check(s, op, c); err != nil {
		return nil, err
	}
	if !s.roles.Grant(g.Address, g.Role) {
		return nil, reject(protocol.KindInvalidProcessState, op, "%s already holds %s", g.Address, g.Role)
	}
	s.logger.Info("role granted", "address", g.Address, "role", g.Role)
	return struct{}{}, nil
}

type revokeRoleCmd struct{ roleChange }

func (*revokeRoleCmd) kind() string { return db.KindRevokeRole }

func (r *revokeRoleCmd) apply(_ context.Context, s *Service, c protocol.Call) (any, error) {
	const op = "revoke role"
	if err := r.check(s, op, c); err != nil {
		return nil, err
	}
	if !s.roles.Revoke(r.Address, r.Role) {
		return nil, reject(protocol.KindInvalidProcessState, op, "%s does not hold %s", r.Address, r.Role)
	}
	s.logger.Info("role revoked", "address", r.Address, "role", r.Role)
	return struct{}{}, nil
}

// --- claims ---

type createClaimCmd struct{ protocol.CreateClaimInput }

func (*createClaimCmd) kind() string { return db.KindCreateClaim }

func (cc *createClaimCmd) apply(ctx context.Context, s *Service, c protocol.Call) (any, error) {
	if err := s.engine.CreateClaim(ctx, c, cc.CreateClaimInput); err != nil {
		return nil, err
	}
	s.metrics.Claims.Inc()
	return s.engine.Claim(cc.ID, c.Now)
}

type updateClaimCmd struct{ protocol.UpdateClaimInput }

func (*updateClaimCmd) kind() string { return db.KindUpdateClaim }

func (u *updateClaimCmd) apply(ctx context.Context, s *Service, c protocol.Call) (any, error) {
	if err := s.engine.UpdateClaim(ctx, c, u.UpdateClaimInput); err != nil {
		return nil, err
	}
	return s.engine.Claim(u.ID, c.Now)
}

type createDisputeCmd struct {
	ParentID protocol.ClaimID          `json:"parent_id"`
	Claim    protocol.CreateClaimInput `json:"claim"`
}

func (*createDisputeCmd) kind() string { return db.KindCreateDispute }

func (d *createDisputeCmd) apply(ctx context.Context, s *Service, c protocol.Call) (any, error) {
	if err := s.engine.CreateDispute(ctx, c, d.ParentID, d.Claim); err != nil {
		return nil, err
	}
	s.metrics.Claims.Inc()
	return s.engine.Claim(d.Claim.ID, c.Now)
}

// --- resolution ---

type createResolveCmd struct {
	ID     protocol.ClaimID         `json:"id"`
	Sample []protocol.PositionIndex `json:"sample"`
	Expiry time.Time                `json:"expiry"`
}

func (*createResolveCmd) kind() string { return db.KindCreateResolve }

func (r *createResolveCmd) apply(ctx context.Context, s *Service, c protocol.Call) (any, error) {
	if err := s.engine.CreateResolve(ctx, c, r.ID, r.Sample, r.Expiry); err != nil {
		return nil, err
	}
	return s.engine.Claim(r.ID, c.Now)
}

type submitVoteCmd struct {
	ID   protocol.ClaimID `json:"id"`
	Vote protocol.Vote    `json:"vote"`
}

func (*submitVoteCmd) kind() string { return db.KindSubmitVote }

func (v *submitVoteCmd) apply(ctx context.Context, s *Service, c protocol.Call) (any, error) {
	return s.engine.SubmitVote(ctx, c, v.ID, v.Vote)
}

// --- settlement ---

type updateBalanceCmd struct {
	ID    protocol.ClaimID `json:"id"`
	Batch int              `json:"batch"`
}

func (*updateBalanceCmd) kind() string { return db.KindUpdateBalance }

func (u *updateBalanceCmd) apply(ctx context.Context, s *Service, c protocol.Call) (any, error) {
	res, err := s.engine.UpdateBalance(ctx, c, u.ID, u.Batch)
	if err != nil {
		return nil, err
	}
	s.metrics.PositionsSettle.Add(float64(res.Processed))
	return res, nil
}

type withdrawCmd struct {
	Amount protocol.Amount `json:"amount"`
}

func (*withdrawCmd) kind() string { return db.KindWithdraw }

func (w *withdrawCmd) apply(ctx context.Context, s *Service, c protocol.Call) (any, error) {
	if err := s.engine.Withdraw(ctx, c, w.Amount); err != nil {
		return nil, err
	}
	return s.engine.Balance(c.Caller), nil
}

// --- administration ---

type feeBasisCmd struct{ protocol.FeeBasis }

func (*feeBasisCmd) kind() string { return db.KindUpdateFeeBasis }

func (f *feeBasisCmd) apply(ctx context.Context, s *Service, c protocol.Call) (any, error) {
	if err := s.engine.UpdateFeeBasis(ctx, c, f.FeeBasis); err != nil {
		return nil, err
	}
	return s.engine.Params(), nil
}

type durationBoundsCmd struct{ protocol.DurationBounds }

func (*durationBoundsCmd) kind() string { return db.KindUpdateDurationBounds }

func (d *durationBoundsCmd) apply(ctx context.Context, s *Service, c protocol.Call) (any, error) {
	if err := s.engine.UpdateDurationBounds(ctx, c, d.DurationBounds); err != nil {
		return nil, err
	}
	return s.engine.Params(), nil
}

type ownerCmd struct {
	Owner protocol.Address `json:"owner"`
}

func (*ownerCmd) kind() string { return db.KindUpdateOwner }

func (o *ownerCmd) apply(ctx context.Context, s *Service, c protocol.Call) (any, error) {
	if err := s.engine.UpdateOwner(ctx, c, o.Owner); err != nil {
		return nil, err
	}
	return s.engine.Params(), nil
}
