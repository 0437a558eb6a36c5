// Package mcp exposes kiosk administration as MCP tools over streamable HTTP.
package mcp

import (
	"github.com/mark3labs/mcp-go/server"

	"github.com/btouchard/infotafel/internal/mcp/handlers"
)

// Deps holds shared dependencies injected into MCP handlers.
type Deps struct {
	Gallery  handlers.Gallery
	Displays handlers.Displays
	Version  string
}

// NewServer creates and configures the MCP server with all tools registered.
func NewServer(deps *Deps) *server.MCPServer {
	s := server.NewMCPServer(
		"Infotafel",
		deps.Version,
		server.WithToolCapabilities(true),
		server.WithLogging(),
	)

	registerTools(s, deps)

	return s
}

// NewHTTPHandler wraps the MCP server in the streamable HTTP transport.
func NewHTTPHandler(deps *Deps) *server.StreamableHTTPServer {
	return server.NewStreamableHTTPServer(NewServer(deps))
}
