// CLAUDE:SUMMARY Claim routes: create/stake, range reads, resolve and vote, dispute, settlement and outcome flags
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/hazyhaar/veritrack/internal/protocol"
)

func (a *API) RegisterClaimRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/claims", a.handleListClaims)
	mux.HandleFunc("POST /api/claims", a.mutation(a.handleCreateClaim))
	mux.HandleFunc("GET /api/claims/{id}", a.handleGetClaim)
	mux.HandleFunc("POST /api/claims/{id}/stake", a.mutation(a.handleStake))
	mux.HandleFunc("GET /api/claims/{id}/positions", a.handlePositions)
	mux.HandleFunc("GET /api/claims/{id}/positions/{index}", a.handlePosition)
	mux.HandleFunc("GET /api/claims/{id}/denominations", a.handleDenominations)
	mux.HandleFunc("GET /api/claims/{id}/lineage", a.handleLineage)

	// Resolution
	mux.HandleFunc("POST /api/claims/{id}/resolve", a.mutation(a.handleResolve))
	mux.HandleFunc("POST /api/claims/{id}/vote", a.mutation(a.handleVote))
	mux.HandleFunc("GET /api/claims/{id}/votes", a.handleVotes)
	mux.HandleFunc("GET /api/claims/{id}/tally", a.handleTally)

	// Disputes and settlement
	mux.HandleFunc("POST /api/claims/{id}/dispute", a.mutation(a.handleDispute))
	mux.HandleFunc("POST /api/claims/{id}/settle", a.mutation(a.handleSettle))
	mux.HandleFunc("GET /api/claims/{id}/flags", a.handleFlags)
}

type claimRequest struct {
	ID            uint64        `json:"id" validate:"required"`
	Amount        uint64        `json:"amount" validate:"required"`
	Side          protocol.Side `json:"side" validate:"required"`
	Expiry        time.Time     `json:"expiry" validate:"required"`
	Content       string        `json:"content" validate:"max=4096"`
	Denominations []string      `json:"denominations" validate:"max=32,dive,required,max=32"`
}

func (c claimRequest) input() protocol.CreateClaimInput {
	return protocol.CreateClaimInput{
		ID:            protocol.ClaimID(c.ID),
		Amount:        protocol.Amount(c.Amount),
		Side:          c.Side,
		Expiry:        c.Expiry,
		Content:       c.Content,
		Denominations: c.Denominations,
	}
}

func (a *API) handleListClaims(w http.ResponseWriter, r *http.Request) {
	jsonResp(w, http.StatusOK, map[string]any{"ids": a.svc.ClaimIDs()})
}

func (a *API) handleCreateClaim(w http.ResponseWriter, r *http.Request, caller protocol.Address) {
	var req claimRequest
	if !decodeBody(w, r, &req) {
		return
	}
	view, err := a.svc.CreateClaim(r.Context(), caller, req.input())
	if err != nil {
		opError(w, err)
		return
	}
	jsonResp(w, http.StatusCreated, view)
}

func (a *API) handleGetClaim(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	view, err := a.svc.Claim(id)
	if err != nil {
		opError(w, err)
		return
	}
	jsonResp(w, http.StatusOK, view)
}

type stakeRequest struct {
	Amount       uint64        `json:"amount" validate:"required"`
	Side         protocol.Side `json:"side" validate:"required"`
	Denomination string        `json:"denomination" validate:"max=32"`
}

func (a *API) handleStake(w http.ResponseWriter, r *http.Request, caller protocol.Address) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req stakeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	view, err := a.svc.UpdateClaim(r.Context(), caller, protocol.UpdateClaimInput{
		ID:           id,
		Amount:       protocol.Amount(req.Amount),
		Side:         req.Side,
		Denomination: req.Denomination,
	})
	if err != nil {
		opError(w, err)
		return
	}
	jsonResp(w, http.StatusOK, view)
}

func (a *API) handlePositions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	from, to, ok := rangeQuery(w, r)
	if !ok {
		return
	}
	owners, err := a.svc.Positions(id, from, to)
	if err != nil {
		opError(w, err)
		return
	}
	jsonResp(w, http.StatusOK, map[string]any{"from": from, "to": to, "owners": owners})
}

func (a *API) handlePosition(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	idx, err := strconv.ParseUint(r.PathValue("index"), 10, 64)
	if err != nil {
		jsonError(w, "invalid position index", http.StatusBadRequest)
		return
	}
	pos, err := a.svc.Position(id, protocol.PositionIndex(idx))
	if err != nil {
		opError(w, err)
		return
	}
	jsonResp(w, http.StatusOK, pos)
}

func (a *API) handleDenominations(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	denoms, err := a.svc.AcceptedDenominations(id)
	if err != nil {
		opError(w, err)
		return
	}
	jsonResp(w, http.StatusOK, map[string]any{"denominations": denoms})
}

func (a *API) handleLineage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	ids, err := a.svc.Lineage(id)
	if err != nil {
		opError(w, err)
		return
	}
	jsonResp(w, http.StatusOK, map[string]any{"lineage": ids})
}

type resolveRequest struct {
	Sample []uint64  `json:"sample" validate:"required,min=2,max=1000"`
	Expiry time.Time `json:"expiry" validate:"required"`
}

func (a *API) handleResolve(w http.ResponseWriter, r *http.Request, caller protocol.Address) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req resolveRequest
	if !decodeBody(w, r, &req) {
		return
	}
	sample := make([]protocol.PositionIndex, len(req.Sample))
	for i, v := range req.Sample {
		sample[i] = protocol.PositionIndex(v)
	}
	view, err := a.svc.CreateResolve(r.Context(), caller, id, sample, req.Expiry)
	if err != nil {
		opError(w, err)
		return
	}
	jsonResp(w, http.StatusCreated, view)
}

type voteRequest struct {
	Vote protocol.Vote `json:"vote" validate:"required"`
}

func (a *API) handleVote(w http.ResponseWriter, r *http.Request, caller protocol.Address) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req voteRequest
	if !decodeBody(w, r, &req) {
		return
	}
	idx, err := a.svc.SubmitVote(r.Context(), caller, id, req.Vote)
	if err != nil {
		opError(w, err)
		return
	}
	jsonResp(w, http.StatusOK, map[string]any{"claim_id": id, "index": idx, "vote": req.Vote})
}

func (a *API) handleVotes(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	from, to, ok := rangeQuery(w, r)
	if !ok {
		return
	}
	votes, err := a.svc.SampleVotes(id, from, to)
	if err != nil {
		opError(w, err)
		return
	}
	jsonResp(w, http.StatusOK, map[string]any{"from": from, "to": to, "votes": votes})
}

func (a *API) handleTally(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	tally, err := a.svc.VoteTally(id)
	if err != nil {
		opError(w, err)
		return
	}
	sample, err := a.svc.Sample(id)
	if err != nil {
		opError(w, err)
		return
	}
	jsonResp(w, http.StatusOK, map[string]any{"tally": tally, "outcome": tally.Outcome(), "sample": sample})
}

func (a *API) handleDispute(w http.ResponseWriter, r *http.Request, caller protocol.Address) {
	parent, ok := pathID(w, r)
	if !ok {
		return
	}
	var req claimRequest
	if !decodeBody(w, r, &req) {
		return
	}
	view, err := a.svc.CreateDispute(r.Context(), caller, parent, req.input())
	if err != nil {
		opError(w, err)
		return
	}
	jsonResp(w, http.StatusCreated, view)
}

type settleRequest struct {
	Batch int `json:"batch" validate:"required"`
}

func (a *API) handleSettle(w http.ResponseWriter, r *http.Request, caller protocol.Address) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req settleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := a.svc.UpdateBalance(r.Context(), caller, id, req.Batch)
	if err != nil {
		opError(w, err)
		return
	}
	jsonResp(w, http.StatusOK, res)
}

func (a *API) handleFlags(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	flags, err := a.svc.Flags(id)
	if err != nil {
		opError(w, err)
		return
	}
	jsonResp(w, http.StatusOK, flags)
}
