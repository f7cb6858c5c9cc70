package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mbd888/agentdex/internal/agent"
	"github.com/mbd888/agentdex/internal/listing"
)

// Handlers holds the handler functions for each MCP tool.
type Handlers struct {
	client *DirectoryClient
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(client *DirectoryClient) *Handlers {
	return &Handlers{client: client}
}

// HandleListAgents returns the listing for a chain.
func (h *Handlers) HandleListAgents(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	chain := req.GetString("chain", "")
	refresh := req.GetBool("refresh", false)

	res, err := h.client.ListAgents(ctx, chain, refresh)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list agents: %v", err)), nil
	}

	return mcp.NewToolResultText(formatAgentList(res.Agents, res.Source, res.Error)), nil
}

// HandleSearchAgents runs a filtered search.
func (h *Handlers) HandleSearchAgents(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	params := url.Values{}
	if v := req.GetString("query", ""); v != "" {
		params.Set("q", v)
	}
	if v := req.GetString("capabilities", ""); v != "" {
		params.Set("capabilities", v)
	}
	if v := req.GetString("network", ""); v != "" {
		params.Set("network", v)
	}
	if v := req.GetString("sort", ""); v != "" {
		params.Set("sort", v)
	}
	if v := req.GetString("cursor", ""); v != "" {
		params.Set("cursor", v)
	}
	args := req.GetArguments()
	if _, ok := args["limit"]; ok {
		params.Set("limit", strconv.Itoa(req.GetInt("limit", 0)))
	}
	if _, ok := args["min_trust"]; ok {
		params.Set("minTrust", strconv.Itoa(req.GetInt("min_trust", 0)))
	}
	if _, ok := args["max_trust"]; ok {
		params.Set("maxTrust", strconv.Itoa(req.GetInt("max_trust", 100)))
	}
	for arg, name := range map[string]string{"elite_only": "elite", "featured_only": "featured", "x402_only": "x402"} {
		if req.GetBool(arg, false) {
			params.Set(name, "true")
		}
	}

	res, err := h.client.SearchAgents(ctx, req.GetString("chain", ""), params)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Search failed: %v", err)), nil
	}

	text := formatAgentList(res.Agents, res.Source, res.Error)
	if res.HasMore {
		text += fmt.Sprintf("\nShowing %d of %d matches. Pass cursor=%q for the next page.\n", res.Count, res.Total, res.NextCursor)
	}
	return mcp.NewToolResultText(text), nil
}

// HandleGetAgent returns one agent's full record.
func (h *Handlers) HandleGetAgent(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := strings.TrimSpace(req.GetString("agent_id", ""))
	if id == "" {
		return mcp.NewToolResultError("agent_id is required"), nil
	}

	rec, err := h.client.GetAgent(ctx, req.GetString("chain", ""), id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get agent %s: %v", id, err)), nil
	}

	return mcp.NewToolResultText(formatAgent(*rec)), nil
}

// HandleCompareAgents looks up several agents side by side.
func (h *Handlers) HandleCompareAgents(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var ids []string
	for _, id := range strings.Split(req.GetString("agent_ids", ""), ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return mcp.NewToolResultError("agent_ids is required"), nil
	}
	if len(ids) > listing.MaxCompare {
		return mcp.NewToolResultError(fmt.Sprintf("at most %d agents can be compared", listing.MaxCompare)), nil
	}

	res, err := h.client.CompareAgents(ctx, req.GetString("chain", ""), ids)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Comparison failed: %v", err)), nil
	}

	return mcp.NewToolResultText(formatComparison(res)), nil
}

// HandleListChains returns the supported chains as JSON.
func (h *Handlers) HandleListChains(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	chains, err := h.client.ListChains(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list chains: %v", err)), nil
	}
	return mcp.NewToolResultText(formatJSON(chains)), nil
}

// --- Formatting helpers ---

func formatAgentList(agents []agent.Record, source listing.Source, errMsg string) string {
	var sb strings.Builder
	switch source {
	case listing.SourceSample:
		sb.WriteString("Note: the registry has too few agents; showing sample data.\n\n")
	case listing.SourceFallback:
		sb.WriteString(fmt.Sprintf("Note: the registry could not be read (%s); showing sample data.\n\n", errMsg))
	}

	if len(agents) == 0 {
		sb.WriteString("No agents found.")
		return sb.String()
	}

	sb.WriteString(fmt.Sprintf("Found %d agent(s):\n\n", len(agents)))
	for i, a := range agents {
		sb.WriteString(fmt.Sprintf("%d. %s (#%s) trust %d (%s), %d feedback\n",
			i+1, a.Name, a.AgentID, a.TrustScore, a.TrustLevel(), a.FeedbackCount))
		if a.Description != "" {
			sb.WriteString(fmt.Sprintf("   %s\n", a.Description))
		}
		if len(a.Capabilities) > 0 {
			sb.WriteString(fmt.Sprintf("   Capabilities: %s\n", strings.Join(a.Capabilities, ", ")))
		}
	}
	return sb.String()
}

func formatAgent(a agent.Record) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Agent #%s: %s\n", a.AgentID, a.Name))
	if a.Description != "" {
		sb.WriteString(fmt.Sprintf("  Description: %s\n", a.Description))
	}
	sb.WriteString(fmt.Sprintf("  Trust: %d (%s), %d feedback\n", a.TrustScore, a.TrustLevel(), a.FeedbackCount))
	sb.WriteString(fmt.Sprintf("  Chain: %s\n", a.Chain))
	if len(a.Capabilities) > 0 {
		sb.WriteString(fmt.Sprintf("  Capabilities: %s\n", strings.Join(a.Capabilities, ", ")))
	}
	if len(a.Networks) > 0 {
		sb.WriteString(fmt.Sprintf("  Networks: %s\n", strings.Join(a.Networks, ", ")))
	}
	if a.Endpoint != nil {
		sb.WriteString(fmt.Sprintf("  Endpoint: %s\n", *a.Endpoint))
	}
	if a.Wallet != nil {
		sb.WriteString(fmt.Sprintf("  Wallet: %s\n", *a.Wallet))
	}
	sb.WriteString(fmt.Sprintf("  x402: %t, featured: %t\n", a.X402Support, a.Featured))
	if a.LastActive != nil {
		sb.WriteString(fmt.Sprintf("  Last active: %s\n", a.LastActive))
	}
	return sb.String()
}

func formatComparison(res *listing.CompareResult) string {
	var sb strings.Builder
	for i, a := range res.Agents {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(formatAgent(a))
	}
	if len(res.Agents) == 0 {
		sb.WriteString("None of the requested agents were found.\n")
	}
	if len(res.Missing) > 0 {
		sb.WriteString(fmt.Sprintf("\nNot found: %s\n", strings.Join(res.Missing, ", ")))
	}
	return sb.String()
}

func formatJSON(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
