// agentdex - ERC-8004 agent directory API
package main

import (
	"context"
	"os"

	"github.com/mbd888/agentdex/internal/config"
	"github.com/mbd888/agentdex/internal/logging"
	"github.com/mbd888/agentdex/internal/server"
)

// Build info - set by ldflags
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	// Bootstrap logger until the configured one exists
	logger := logging.New("info", "text")

	logger.Info("starting agentdex",
		"version", Version,
		"commit", Commit,
		"build_time", BuildTime,
	)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = logging.New(cfg.LogLevel, cfg.LogFormat)
	logger.Info("configuration loaded",
		"env", cfg.Env,
		"default_chain", cfg.DefaultChain.String(),
		"rpc_url", cfg.RPCURL(cfg.DefaultChain),
		"gateways", len(cfg.IPFSGateways),
		"listing_ttl", cfg.ListingCacheTTL.String(),
		"postgres", cfg.DatabaseURL != "",
	)

	// Create and run server
	srv, err := server.New(cfg, server.WithLogger(logger), server.WithVersion(Version))
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
