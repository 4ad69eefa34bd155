// Package mcp registers read-only veritrack tools on an MCP server.
// Mutations stay on the HTTP surface where callers authenticate.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hazyhaar/veritrack/internal/db"
	"github.com/hazyhaar/veritrack/internal/protocol"
	"github.com/hazyhaar/veritrack/internal/service"
	"github.com/hazyhaar/veritrack/pkg/kit"
)

const maxJournalPage = 500

// NewServer creates an MCPServer exposing the query surface of svc.
func NewServer(svc *service.Service, database *db.DB, version string) *server.MCPServer {
	srv := server.NewMCPServer(
		"veritrack",
		version,
		server.WithToolCapabilities(true),
	)

	registerListClaims(srv, svc)
	registerGetClaim(srv, svc)
	registerGetPositions(srv, svc)
	registerGetTally(srv, svc)
	registerGetLineage(srv, svc)
	registerGetFlags(srv, svc)
	registerGetBalance(srv, svc)
	registerGetParams(srv, svc)
	registerGetStatus(srv, svc)
	registerListJournal(srv, database)

	return srv
}

// --- claims ---

func registerListClaims(srv *server.MCPServer, svc *service.Service) {
	tool := mcp.NewToolWithRawSchema("list_claims", "List the ids of every claim in creation order", objectSchema(nil))
	kit.RegisterMCPTool(srv, tool, func(ctx context.Context, _ any) (any, error) {
		return map[string]any{"ids": svc.ClaimIDs()}, nil
	}, noArgs)
}

func registerGetClaim(srv *server.MCPServer, svc *service.Service) {
	tool := mcp.NewToolWithRawSchema("get_claim", "Get a claim with its pools, state and outcome", objectSchema(claimIDProp, "id"))
	kit.RegisterMCPTool(srv, tool, func(ctx context.Context, request any) (any, error) {
		return svc.Claim(request.(*claimReq).ID)
	}, decodeClaim)
}

type positionsReq struct {
	ID   protocol.ClaimID
	From protocol.PositionIndex
	To   protocol.PositionIndex
}

func registerGetPositions(srv *server.MCPServer, svc *service.Service) {
	props := map[string]any{
		"id":   claimIDProp["id"],
		"from": map[string]string{"type": "integer", "description": "First position index"},
		"to":   map[string]string{"type": "integer", "description": "Last position index, inclusive"},
	}
	tool := mcp.NewToolWithRawSchema("get_positions", "List position owners in an index range of one claim", objectSchema(props, "id", "from", "to"))
	kit.RegisterMCPTool(srv, tool, func(ctx context.Context, request any) (any, error) {
		r := request.(*positionsReq)
		owners, err := svc.Positions(r.ID, r.From, r.To)
		if err != nil {
			return nil, err
		}
		return map[string]any{"from": r.From, "to": r.To, "owners": owners}, nil
	}, func(req mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		args := req.GetArguments()
		id, err := claimArg(args)
		if err != nil {
			return nil, err
		}
		from, ok1 := uintArg(args, "from")
		to, ok2 := uintArg(args, "to")
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("from and to must be position indices")
		}
		return &kit.MCPDecodeResult{Request: &positionsReq{ID: id, From: protocol.PositionIndex(from), To: protocol.PositionIndex(to)}}, nil
	})
}

func registerGetTally(srv *server.MCPServer, svc *service.Service) {
	tool := mcp.NewToolWithRawSchema("get_tally", "Get the vote tally, current outcome and sample of a claim", objectSchema(claimIDProp, "id"))
	kit.RegisterMCPTool(srv, tool, func(ctx context.Context, request any) (any, error) {
		id := request.(*claimReq).ID
		tally, err := svc.VoteTally(id)
		if err != nil {
			return nil, err
		}
		sample, err := svc.Sample(id)
		if err != nil {
			return nil, err
		}
		return map[string]any{"tally": tally, "outcome": tally.Outcome(), "sample": sample}, nil
	}, decodeClaim)
}

func registerGetLineage(srv *server.MCPServer, svc *service.Service) {
	tool := mcp.NewToolWithRawSchema("get_lineage", "Get the dispute chain containing a claim, root first", objectSchema(claimIDProp, "id"))
	kit.RegisterMCPTool(srv, tool, func(ctx context.Context, request any) (any, error) {
		ids, err := svc.Lineage(request.(*claimReq).ID)
		if err != nil {
			return nil, err
		}
		return map[string]any{"lineage": ids}, nil
	}, decodeClaim)
}

func registerGetFlags(srv *server.MCPServer, svc *service.Service) {
	tool := mcp.NewToolWithRawSchema("get_flags", "Get the settlement flags of a claim", objectSchema(claimIDProp, "id"))
	kit.RegisterMCPTool(srv, tool, func(ctx context.Context, request any) (any, error) {
		return svc.Flags(request.(*claimReq).ID)
	}, decodeClaim)
}

// --- accounts ---

type addressReq struct {
	Address protocol.Address
}

func registerGetBalance(srv *server.MCPServer, svc *service.Service) {
	props := map[string]any{
		"address": map[string]string{"type": "string", "description": "0x-prefixed 20-byte address"},
	}
	tool := mcp.NewToolWithRawSchema("get_balance", "Get the protocol balance and token holdings of an address", objectSchema(props, "address"))
	kit.RegisterMCPTool(srv, tool, func(ctx context.Context, request any) (any, error) {
		a := request.(*addressReq).Address
		return map[string]any{"address": a, "balance": svc.Balance(a), "token": svc.TokenAccount(a)}, nil
	}, func(req mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		a, err := protocol.ParseAddress(stringArg(req.GetArguments(), "address"))
		if err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &addressReq{Address: a}}, nil
	})
}

// --- protocol ---

func registerGetParams(srv *server.MCPServer, svc *service.Service) {
	tool := mcp.NewToolWithRawSchema("get_params", "Get the protocol parameters", objectSchema(nil))
	kit.RegisterMCPTool(srv, tool, func(ctx context.Context, _ any) (any, error) {
		return svc.Params(), nil
	}, noArgs)
}

func registerGetStatus(srv *server.MCPServer, svc *service.Service) {
	tool := mcp.NewToolWithRawSchema("get_status", "Get the journal head, replay count and halt state", objectSchema(nil))
	kit.RegisterMCPTool(srv, tool, func(ctx context.Context, _ any) (any, error) {
		return svc.Status(), nil
	}, noArgs)
}

type journalReq struct {
	After int64
	Limit int
}

func registerListJournal(srv *server.MCPServer, database *db.DB) {
	props := map[string]any{
		"after": map[string]string{"type": "integer", "description": "Return entries with seq greater than this"},
		"limit": map[string]any{"type": "integer", "description": "Max entries", "default": 100},
	}
	tool := mcp.NewToolWithRawSchema("list_journal", "Page through admitted operations in sequence order", objectSchema(props))
	kit.RegisterMCPTool(srv, tool, func(ctx context.Context, request any) (any, error) {
		r := request.(*journalReq)
		return database.ListJournal(ctx, r.After, r.Limit)
	}, func(req mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		args := req.GetArguments()
		after, _ := uintArg(args, "after")
		limit := intArg(args, "limit", 100)
		if limit <= 0 || limit > maxJournalPage {
			limit = maxJournalPage
		}
		return &kit.MCPDecodeResult{Request: &journalReq{After: int64(after), Limit: limit}}, nil
	})
}

// --- helpers ---

var claimIDProp = map[string]any{
	"id": map[string]string{"type": "integer", "description": "Claim id"},
}

type claimReq struct {
	ID protocol.ClaimID
}

func decodeClaim(req mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
	id, err := claimArg(req.GetArguments())
	if err != nil {
		return nil, err
	}
	return &kit.MCPDecodeResult{Request: &claimReq{ID: id}}, nil
}

func noArgs(mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
	return &kit.MCPDecodeResult{}, nil
}

func objectSchema(props map[string]any, required ...string) json.RawMessage {
	if props == nil {
		props = map[string]any{}
	}
	s := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		s["required"] = required
	}
	b, _ := json.Marshal(s)
	return b
}

func claimArg(args map[string]any) (protocol.ClaimID, error) {
	id, ok := uintArg(args, "id")
	if !ok || id == 0 {
		return 0, fmt.Errorf("id must be a positive claim id")
	}
	return protocol.ClaimID(id), nil
}

func stringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

func uintArg(args map[string]any, key string) (uint64, bool) {
	switch v := args[key].(type) {
	case float64:
		if v < 0 {
			return 0, false
		}
		return uint64(v), true
	case int:
		if v < 0 {
			return 0, false
		}
		return uint64(v), true
	case json.Number:
		n, err := v.Int64()
		if err != nil || n < 0 {
			return 0, false
		}
		return uint64(n), true
	default:
		return 0, false
	}
}

func intArg(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	default:
		return def
	}
}
