package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"
)

// Version is reported to MCP clients.
const Version = "1.0.0"

// NewMCPServer creates a configured MCP server with all directory tools registered.
func NewMCPServer(cfg Config) *server.MCPServer {
	s := server.NewMCPServer("agentdex", Version, server.WithToolCapabilities(false))
	h := NewHandlers(NewDirectoryClient(cfg))

	s.AddTool(ToolListAgents, h.HandleListAgents)
	s.AddTool(ToolSearchAgents, h.HandleSearchAgents)
	s.AddTool(ToolGetAgent, h.HandleGetAgent)
	s.AddTool(ToolCompareAgents, h.HandleCompareAgents)
	s.AddTool(ToolListChains, h.HandleListChains)

	return s
}
