package mcpserver

import "github.com/mark3labs/mcp-go/mcp"

// Tool definitions for the agentdex MCP server.
// Descriptions are what the LLM reads to decide which tool to use.

var chainParam = mcp.WithString("chain",
	mcp.Description("Chain to read: 'base', 'base-sepolia', 'ethereum' or 'sepolia'. Defaults to the server's configured chain."),
	mcp.Enum("base", "base-sepolia", "ethereum", "sepolia"))

var ToolListAgents = mcp.NewTool("list_agents",
	mcp.WithDescription(
		"List ERC-8004 agents registered on a chain, sorted by trust score. "+
			"Each agent has a trust score (0-100), a trust level (standard/verified/elite), "+
			"capabilities, endpoint and supported networks. The result says whether data is live "+
			"('on-chain'), cached, or built-in sample data."),
	chainParam,
	mcp.WithBoolean("refresh",
		mcp.Description("Bypass the cache and read the registries live. Rate limited; only use when fresh data is required.")),
)

var ToolSearchAgents = mcp.NewTool("search_agents",
	mcp.WithDescription(
		"Search the agent directory by text, capability, trust range and flags. "+
			"Use this to find agents able to do a specific task."),
	chainParam,
	mcp.WithString("query",
		mcp.Description("Free text matched against agent name, description and capabilities")),
	mcp.WithString("capabilities",
		mcp.Description("Comma-separated capabilities; agents with any of them match (e.g. 'price-feeds,analytics')")),
	mcp.WithNumber("min_trust",
		mcp.Description("Minimum trust score, 0-100")),
	mcp.WithNumber("max_trust",
		mcp.Description("Maximum trust score, 0-100")),
	mcp.WithBoolean("elite_only",
		mcp.Description("Only agents with trust score 90 or above")),
	mcp.WithBoolean("featured_only",
		mcp.Description("Only featured agents")),
	mcp.WithBoolean("x402_only",
		mcp.Description("Only agents that accept x402 payments")),
	mcp.WithString("network",
		mcp.Description("Only agents supporting this network (e.g. 'base')")),
	mcp.WithString("sort",
		mcp.Description("Result order"),
		mcp.Enum("trust-desc", "trust-asc", "name-asc", "name-desc", "feedback-desc")),
	mcp.WithNumber("limit",
		mcp.Description("Maximum agents to return, 1-100. Omit for all matches.")),
	mcp.WithString("cursor",
		mcp.Description("Cursor from a previous search_agents result, to fetch the next page")),
)

var ToolGetAgent = mcp.NewTool("get_agent",
	mcp.WithDescription(
		"Get the full directory record of one agent by its on-chain token id."),
	mcp.WithString("agent_id",
		mcp.Required(),
		mcp.Description("The agent's decimal token id (e.g. '17899')")),
	chainParam,
)

var ToolCompareAgents = mcp.NewTool("compare_agents",
	mcp.WithDescription(
		"Compare up to three agents side by side: trust, feedback, capabilities, networks and payment support."),
	mcp.WithString("agent_ids",
		mcp.Required(),
		mcp.Description("Comma-separated token ids, at most three (e.g. '17899,17908')")),
	chainParam,
)

var ToolListChains = mcp.NewTool("list_chains",
	mcp.WithDescription(
		"List the chains the directory can read, with their registry contract addresses."),
)
