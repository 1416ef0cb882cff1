// Package mcp exposes ActionDispatcher as an MCP tool server over stdio,
// mirroring the teacher's pkg/mcp wiring but collapsed to one generic
// handler: MCP's request.GetArguments() already returns a map[string]any,
// the exact shape ActionDispatcher.Execute expects, so every action gets a
// tool registration from a single table instead of a hand-written
// handler function per tool.
package mcp

import (
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/netwatch-hq/netwatch/pkg/dispatcher"
)

// Server wraps the MCP server with netwatch's action-dispatch tools.
type Server struct {
	mcpServer *server.MCPServer
	log       zerolog.Logger
	d         *dispatcher.Dispatcher
}

// NewServer builds an MCP server that dispatches every registered tool
// call through d.
func NewServer(log zerolog.Logger, d *dispatcher.Dispatcher) *Server {
	s := &Server{
		log: log.With().Str("component", "mcp").Logger(),
		d:   d,
	}

	s.mcpServer = server.NewMCPServer(
		"netwatch",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	s.registerTools()

	return s
}

// ServeStdio starts the MCP server using the stdio transport.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}
