package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// handlerFor returns the one handler every tool registration shares: pull
// the call's arguments (already a map[string]any), forward them to
// ActionDispatcher.Execute under the bound action name, and render the
// Response as formatted JSON. A dispatcher-level failure (Response.Success
// == false) surfaces as an MCP tool error so a calling model sees it as
// such rather than parsing a success envelope for an embedded error field.
func (s *Server) handlerFor(action string) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		resp := s.d.Execute(ctx, action, request.GetArguments())
		if !resp.Success {
			return mcp.NewToolResultError(resp.Error), nil
		}
		return mcp.NewToolResultText(formatJSON(resp.Data)), nil
	}
}

func formatJSON(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf(`{"error":"failed to marshal response: %s"}`, err)
	}
	return string(b)
}
