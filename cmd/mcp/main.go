// agentdex MCP server - exposes the agent directory as MCP tools for LLMs
package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/mbd888/agentdex/internal/chain"
	"github.com/mbd888/agentdex/internal/mcpserver"
)

func main() {
	cfg := mcpserver.Config{
		APIURL: envOrDefault("AGENTDEX_API_URL", "http://localhost:8080"),
		Chain:  os.Getenv("AGENTDEX_CHAIN"),
	}

	if cfg.Chain != "" {
		if _, err := chain.Parse(cfg.Chain); err != nil {
			fmt.Fprintf(os.Stderr, "AGENTDEX_CHAIN: %v\n", err)
			os.Exit(1)
		}
	}

	s := mcpserver.NewMCPServer(cfg)
	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "MCP server error: %v\n", err)
		os.Exit(1)
	}
}

func envOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
