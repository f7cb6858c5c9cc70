package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mbd888/agentdex/internal/agent"
	"github.com/mbd888/agentdex/internal/listing"
)

// maxResponseBytes bounds API responses read by the client.
const maxResponseBytes = 4 << 20

// Config holds the configuration for connecting to the directory API.
type Config struct {
	APIURL  string        // Base URL, e.g. "http://localhost:8080"
	Chain   string        // Chain used when a tool call names none; empty lets the API decide
	Timeout time.Duration // Per-request timeout, 30s when zero
}

// DirectoryClient is a pure HTTP client for the directory API.
type DirectoryClient struct {
	cfg        Config
	httpClient *http.Client
}

// NewDirectoryClient creates a new client for the directory API.
func NewDirectoryClient(cfg Config) *DirectoryClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	return &DirectoryClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// APIError is an error response from the directory API.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"error"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("API error (%d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("API error (%d): %s", e.Status, e.Code)
}

// ChainInfo is one entry of the chain list.
type ChainInfo struct {
	Slug               string `json:"slug"`
	Name               string `json:"name"`
	ChainID            int64  `json:"chainId"`
	IdentityRegistry   string `json:"identityRegistry"`
	ReputationRegistry string `json:"reputationRegistry"`
	Default            bool   `json:"default"`
}

// getJSON performs a GET and decodes the response into out.
func (c *DirectoryClient) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	u, err := url.Parse(c.cfg.APIURL + path)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode}
		if json.Unmarshal(body, apiErr) != nil || (apiErr.Code == "" && apiErr.Message == "") {
			apiErr.Message = strings.TrimSpace(string(body))
		}
		return apiErr
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *DirectoryClient) withChain(q url.Values, chain string) url.Values {
	if q == nil {
		q = url.Values{}
	}
	if chain == "" {
		chain = c.cfg.Chain
	}
	if chain != "" {
		q.Set("chain", chain)
	}
	return q
}

// ListAgents returns a chain's listing.
func (c *DirectoryClient) ListAgents(ctx context.Context, chain string, refresh bool) (*listing.Result, error) {
	q := c.withChain(nil, chain)
	if refresh {
		q.Set("refresh", "true")
	}
	var res listing.Result
	if err := c.getJSON(ctx, "/v1/agents", q, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// SearchAgents runs a directory search. params uses the API's query names.
func (c *DirectoryClient) SearchAgents(ctx context.Context, chain string, params url.Values) (*listing.SearchResult, error) {
	var res listing.SearchResult
	if err := c.getJSON(ctx, "/v1/agents/search", c.withChain(params, chain), &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// GetAgent returns one agent record.
func (c *DirectoryClient) GetAgent(ctx context.Context, chain, agentID string) (*agent.Record, error) {
	var rec agent.Record
	path := "/v1/agents/" + url.PathEscape(agentID)
	if err := c.getJSON(ctx, path, c.withChain(nil, chain), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// CompareAgents looks up several agents at once.
func (c *DirectoryClient) CompareAgents(ctx context.Context, chain string, agentIDs []string) (*listing.CompareResult, error) {
	q := c.withChain(url.Values{"ids": {strings.Join(agentIDs, ",")}}, chain)
	var res listing.CompareResult
	if err := c.getJSON(ctx, "/v1/agents/compare", q, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ListChains returns the supported chains.
func (c *DirectoryClient) ListChains(ctx context.Context) ([]ChainInfo, error) {
	var res struct {
		Chains []ChainInfo `json:"chains"`
	}
	if err := c.getJSON(ctx, "/v1/chains", nil, &res); err != nil {
		return nil, err
	}
	return res.Chains, nil
}
