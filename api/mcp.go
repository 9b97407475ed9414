package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type endpoint func(ctx context.Context, req any) (any, error)

// registerTool exposes an endpoint as an MCP tool. Decode and endpoint
// failures are returned as tool errors, not protocol errors.
func registerTool(srv *mcp.Server, tool *mcp.Tool, ep endpoint, decode func(*mcp.CallToolRequest) (any, error)) {
	srv.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		in, err := decode(req)
		if err != nil {
			var res mcp.CallToolResult
			res.SetError(fmt.Errorf("invalid arguments: %w", err))
			return &res, nil
		}
		out, err := ep(ctx, in)
		if err != nil {
			var res mcp.CallToolResult
			res.SetError(err)
			return &res, nil
		}
		data, err := json.Marshal(out)
		if err != nil {
			var res mcp.CallToolResult
			res.SetError(fmt.Errorf("marshal: %w", err))
			return &res, nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
		}, nil
	})
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// decodeArgs unmarshals tool arguments into a fresh T. Missing arguments
// decode to the zero value.
func decodeArgs[T any](req *mcp.CallToolRequest) (any, error) {
	var v T
	if len(req.Params.Arguments) == 0 {
		return &v, nil
	}
	if err := json.Unmarshal(req.Params.Arguments, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

type recordRequest struct {
	ID string `json:"id"`
}

type attemptsRequest struct {
	ID    string `json:"id"`
	Limit int    `json:"limit,omitempty"`
}

// RegisterMCP registers the read-only tools on srv.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	registerTool(srv, &mcp.Tool{
		Name:        "pairwatch_latest",
		Description: "Return the most recently discovered identifier.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}, func(ctx context.Context, _ any) (any, error) {
		return s.Latest(ctx)
	}, decodeArgs[struct{}])

	registerTool(srv, &mcp.Tool{
		Name:        "pairwatch_record",
		Description: "Return the stored metrics record for an identifier.",
		InputSchema: inputSchema(map[string]any{
			"id": map[string]any{"type": "string", "description": "Identifier"},
		}, []string{"id"}),
	}, func(ctx context.Context, req any) (any, error) {
		return s.Record(ctx, req.(*recordRequest).ID)
	}, decodeArgs[recordRequest])

	registerTool(srv, &mcp.Tool{
		Name:        "pairwatch_attempts",
		Description: "Return the processing attempts recorded for an identifier, newest first.",
		InputSchema: inputSchema(map[string]any{
			"id":    map[string]any{"type": "string", "description": "Identifier"},
			"limit": map[string]any{"type": "integer", "description": "Max results (default 20)"},
		}, []string{"id"}),
	}, func(ctx context.Context, req any) (any, error) {
		r := req.(*attemptsRequest)
		return s.Attempts(ctx, r.ID, r.Limit)
	}, decodeArgs[attemptsRequest])
}
