// CLAUDE:SUMMARY Balance, token-ledger and owner routes: withdraw, approve, mint, roles, fee and duration parameters
package api

import (
	"net/http"
	"time"

	"github.com/hazyhaar/veritrack/internal/protocol"
)

func (a *API) RegisterLedgerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/balance/{address}", a.handleBalance)
	mux.HandleFunc("POST /api/withdraw", a.mutation(a.handleWithdraw))
	mux.HandleFunc("POST /api/token/approve", a.mutation(a.handleApprove))
	mux.HandleFunc("GET /api/token/{address}", a.handleTokenAccount)
}

func (a *API) RegisterAdminRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/params", a.handleParams)
	mux.HandleFunc("PUT /api/admin/fees", a.mutation(a.handleFees))
	mux.HandleFunc("PUT /api/admin/durations", a.mutation(a.handleDurations))
	mux.HandleFunc("PUT /api/admin/owner", a.mutation(a.handleOwner))
	mux.HandleFunc("GET /api/admin/roles/{role}", a.handleRoleHolders)
	mux.HandleFunc("POST /api/admin/roles", a.mutation(a.handleGrantRole))
	mux.HandleFunc("DELETE /api/admin/roles", a.mutation(a.handleRevokeRole))
	mux.HandleFunc("POST /api/admin/mint", a.mutation(a.handleMint))
}

func (a *API) handleBalance(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r)
	if !ok {
		return
	}
	jsonResp(w, http.StatusOK, map[string]any{"address": addr, "balance": a.svc.Balance(addr)})
}

type amountRequest struct {
	Amount uint64 `json:"amount" validate:"required"`
}

func (a *API) handleWithdraw(w http.ResponseWriter, r *http.Request, caller protocol.Address) {
	var req amountRequest
	if !decodeBody(w, r, &req) {
		return
	}
	bal, err := a.svc.Withdraw(r.Context(), caller, protocol.Amount(req.Amount))
	if err != nil {
		opError(w, err)
		return
	}
	jsonResp(w, http.StatusOK, map[string]any{"address": caller, "balance": bal})
}

type approveRequest struct {
	Amount uint64 `json:"amount"`
	Denom  string `json:"denom" validate:"required,max=32"`
}

func (a *API) handleApprove(w http.ResponseWriter, r *http.Request, caller protocol.Address) {
	var req approveRequest
	if !decodeBody(w, r, &req) {
		return
	}
	acct, err := a.svc.Approve(r.Context(), caller, protocol.Amount(req.Amount), req.Denom)
	if err != nil {
		opError(w, err)
		return
	}
	jsonResp(w, http.StatusOK, acct)
}

func (a *API) handleTokenAccount(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r)
	if !ok {
		return
	}
	jsonResp(w, http.StatusOK, a.svc.TokenAccount(addr))
}

func (a *API) handleParams(w http.ResponseWriter, r *http.Request) {
	jsonResp(w, http.StatusOK, paramsView(a.svc.Params()))
}

// paramsView renders durations as Go duration strings.
func paramsView(p protocol.Params) map[string]any {
	return map[string]any{
		"owner":             p.Owner,
		"treasury":          p.Treasury,
		"base_denomination": p.BaseDenomination,
		"fee":               p.Fee,
		"duration": map[string]any{
			"basis": p.Duration.Basis,
			"max":   p.Duration.Max.String(),
			"min":   p.Duration.Min.String(),
		},
		"resolve": map[string]any{
			"min": p.Resolve.Min.String(),
			"max": p.Resolve.Max.String(),
		},
		"challenge_window":  p.ChallengeWindow.String(),
		"max_depth":         p.MaxDepth,
		"max_batch":         p.MaxBatch,
		"max_denominations": p.MaxDenominations,
	}
}

type feeRequest struct {
	Total    uint64 `json:"total" validate:"lte=10000"`
	Proposer uint64 `json:"proposer" validate:"lte=10000"`
	Protocol uint64 `json:"protocol" validate:"lte=10000"`
}

func (a *API) handleFees(w http.ResponseWriter, r *http.Request, caller protocol.Address) {
	var req feeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	p, err := a.svc.UpdateFeeBasis(r.Context(), caller, protocol.FeeBasis{Total: req.Total, Proposer: req.Proposer, Protocol: req.Protocol})
	if err != nil {
		opError(w, err)
		return
	}
	jsonResp(w, http.StatusOK, paramsView(p))
}

type durationRequest struct {
	Basis uint64 `json:"basis" validate:"required"`
	Max   string `json:"max" validate:"required"`
	Min   string `json:"min" validate:"required"`
}

func (a *API) handleDurations(w http.ResponseWriter, r *http.Request, caller protocol.Address) {
	var req durationRequest
	if !decodeBody(w, r, &req) {
		return
	}
	maxD, err1 := time.ParseDuration(req.Max)
	minD, err2 := time.ParseDuration(req.Min)
	if err1 != nil || err2 != nil {
		jsonError(w, "max and min must be durations such as \"168h\"", http.StatusBadRequest)
		return
	}
	p, err := a.svc.UpdateDurationBounds(r.Context(), caller, protocol.DurationBounds{Basis: req.Basis, Max: maxD, Min: minD})
	if err != nil {
		opError(w, err)
		return
	}
	jsonResp(w, http.StatusOK, paramsView(p))
}

type ownerRequest struct {
	Owner string `json:"owner" validate:"required,eth_addr"`
}

func (a *API) handleOwner(w http.ResponseWriter, r *http.Request, caller protocol.Address) {
	var req ownerRequest
	if !decodeBody(w, r, &req) {
		return
	}
	owner, err := protocol.ParseAddress(req.Owner)
	if err != nil {
		opError(w, err)
		return
	}
	p, err := a.svc.UpdateOwner(r.Context(), caller, owner)
	if err != nil {
		opError(w, err)
		return
	}
	jsonResp(w, http.StatusOK, paramsView(p))
}

type roleRequest struct {
	Address string `json:"address" validate:"required,eth_addr"`
	Role    string `json:"role" validate:"required,oneof=resolver minter"`
}

func (a *API) handleRoleHolders(w http.ResponseWriter, r *http.Request) {
	role := protocol.Role(r.PathValue("role"))
	jsonResp(w, http.StatusOK, map[string]any{"role": role, "holders": a.svc.RoleHolders(role)})
}

func (a *API) handleGrantRole(w http.ResponseWriter, r *http.Request, caller protocol.Address) {
	a.changeRole(w, r, caller, true)
}

func (a *API) handleRevokeRole(w http.ResponseWriter, r *http.Request, caller protocol.Address) {
	a.changeRole(w, r, caller, false)
}

func (a *API) changeRole(w http.ResponseWriter, r *http.Request, caller protocol.Address, grant bool) {
	var req roleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	addr, err := protocol.ParseAddress(req.Address)
	if err != nil {
		opError(w, err)
		return
	}
	role := protocol.Role(req.Role)
	if grant {
		err = a.svc.GrantRole(r.Context(), caller, addr, role)
	} else {
		err = a.svc.RevokeRole(r.Context(), caller, addr, role)
	}
	if err != nil {
		opError(w, err)
		return
	}
	jsonResp(w, http.StatusOK, map[string]any{"role": role, "holders": a.svc.RoleHolders(role)})
}

type mintRequest struct {
	To     string `json:"to" validate:"required,eth_addr"`
	Amount uint64 `json:"amount" validate:"required"`
	Denom  string `json:"denom" validate:"required,max=32"`
}

func (a *API) handleMint(w http.ResponseWriter, r *http.Request, caller protocol.Address) {
	var req mintRequest
	if !decodeBody(w, r, &req) {
		return
	}
	to, err := protocol.ParseAddress(req.To)
	if err != nil {
		opError(w, err)
		return
	}
	acct, err := a.svc.Mint(r.Context(), caller, to, protocol.Amount(req.Amount), req.Denom)
	if err != nil {
		opError(w, err)
		return
	}
	jsonResp(w, http.StatusOK, acct)
}
