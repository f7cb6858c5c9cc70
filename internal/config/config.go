// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/mbd888/agentdex/internal/chain"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port      string
	Env       string // "development", "staging", "production"
	LogLevel  string
	LogFormat string // "text" or "json"

	// Database (optional, metadata cache stays in-memory if not set)
	DatabaseURL string

	// Chain settings
	DefaultChain chain.ID
	RPCURLs      map[chain.ID]string // per-chain override of the public RPC endpoint
	RPCTimeout   time.Duration

	// Metadata resolution
	IPFSGateways   []string
	GatewayTimeout time.Duration

	// Listing pipeline
	ListingCacheTTL    time.Duration
	MaxAgents          int
	LowSupplyThreshold int
	FetchWorkers       int

	// Security
	RateLimitRPM    int
	RefreshLimitRPM int
	CORSOrigins     []string
	AdminSecret     string

	// Tracing
	OTLPEndpoint string
}

const (
	DefaultPort               = "8080"
	DefaultEnv                = "development"
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "json"
	DefaultChainSlug          = "base-sepolia"
	DefaultRPCTimeout         = 10 * time.Second
	DefaultGatewayTimeout     = 5 * time.Second
	DefaultListingCacheTTL    = 5 * time.Minute
	DefaultMaxAgents          = 100
	DefaultLowSupplyThreshold = 3
	DefaultFetchWorkers       = 8
	DefaultRateLimitRPM       = 120
	DefaultRefreshLimitRPM    = 6
)

// DefaultIPFSGateways are tried in order for ipfs:// token URIs.
var DefaultIPFSGateways = []string{
	"https://cloudflare-ipfs.com/ipfs/",
	"https://w3s.link/ipfs/",
	"https://ipfs.io/ipfs/",
}

// rpcEnvKeys maps each chain to the env var that overrides its RPC endpoint.
var rpcEnvKeys = map[chain.ID]string{
	chain.Base:        "BASE_RPC_URL",
	chain.BaseSepolia: "BASE_SEPOLIA_RPC_URL",
	chain.Ethereum:    "ETHEREUM_RPC_URL",
	chain.Sepolia:     "SEPOLIA_RPC_URL",
}

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:               getEnv("PORT", DefaultPort),
		Env:                getEnv("ENV", DefaultEnv),
		LogLevel:           getEnv("LOG_LEVEL", DefaultLogLevel),
		LogFormat:          getEnv("LOG_FORMAT", DefaultLogFormat),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		RPCURLs:            make(map[chain.ID]string),
		RPCTimeout:         getEnvDuration("RPC_TIMEOUT", DefaultRPCTimeout),
		IPFSGateways:       getEnvList("IPFS_GATEWAYS", DefaultIPFSGateways),
		GatewayTimeout:     getEnvDuration("GATEWAY_TIMEOUT", DefaultGatewayTimeout),
		ListingCacheTTL:    getEnvDuration("LISTING_CACHE_TTL", DefaultListingCacheTTL),
		MaxAgents:          int(getEnvInt64("MAX_AGENTS", DefaultMaxAgents)),
		LowSupplyThreshold: int(getEnvInt64("LOW_SUPPLY_THRESHOLD", DefaultLowSupplyThreshold)),
		FetchWorkers:       int(getEnvInt64("FETCH_WORKERS", DefaultFetchWorkers)),
		RateLimitRPM:       int(getEnvInt64("RATE_LIMIT_RPM", DefaultRateLimitRPM)),
		RefreshLimitRPM:    int(getEnvInt64("REFRESH_LIMIT_RPM", DefaultRefreshLimitRPM)),
		CORSOrigins:        getEnvList("CORS_ORIGINS", []string{"*"}),
		AdminSecret:        os.Getenv("ADMIN_SECRET"),
		OTLPEndpoint:       os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	id, err := chain.Parse(getEnv("DEFAULT_CHAIN", DefaultChainSlug))
	if err != nil {
		return nil, fmt.Errorf("DEFAULT_CHAIN: %w", err)
	}
	cfg.DefaultChain = id

	for id, key := range rpcEnvKeys {
		if v := os.Getenv(key); v != "" {
			cfg.RPCURLs[id] = v
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the numeric settings are usable
func (c *Config) Validate() error {
	if c.MaxAgents <= 0 {
		return fmt.Errorf("MAX_AGENTS must be positive")
	}
	if c.FetchWorkers <= 0 {
		return fmt.Errorf("FETCH_WORKERS must be positive")
	}
	if c.LowSupplyThreshold < 0 {
		return fmt.Errorf("LOW_SUPPLY_THRESHOLD must not be negative")
	}
	if c.ListingCacheTTL <= 0 {
		return fmt.Errorf("LISTING_CACHE_TTL must be positive")
	}
	if c.RPCTimeout <= 0 || c.GatewayTimeout <= 0 {
		return fmt.Errorf("RPC_TIMEOUT and GATEWAY_TIMEOUT must be positive")
	}
	if len(c.IPFSGateways) == 0 {
		return fmt.Errorf("IPFS_GATEWAYS must list at least one gateway")
	}
	for _, g := range c.IPFSGateways {
		if !strings.HasPrefix(g, "https://") && !strings.HasPrefix(g, "http://") {
			return fmt.Errorf("IPFS gateway %q must be an http(s) URL", g)
		}
	}
	return nil
}

// RPCURL returns the configured endpoint for a chain, falling back to its public RPC
func (c *Config) RPCURL(id chain.ID) string {
	if u, ok := c.RPCURLs[id]; ok {
		return u
	}
	return id.Spec().DefaultRPC
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return append([]string(nil), defaultValue...)
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
