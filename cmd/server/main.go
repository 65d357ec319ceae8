// Package main provides the entry point for the hypernars MCP server.
//
// The server is designed to be spawned as a child process by an MCP host and
// communicates via stdio. Configuration comes from HN_* environment
// variables; set DEBUG=true for verbose logging.
package main

import (
	"context"
	"os"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"

	"hypernars/internal/config"
	"hypernars/internal/events"
	"hypernars/internal/knowledge"
	"hypernars/internal/nar"
	"hypernars/internal/semantic"
	"hypernars/internal/server"
)

func main() {
	level := zerolog.InfoLevel
	if os.Getenv("DEBUG") == "true" {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}

	opts := []nar.Option{nar.WithLogger(logger)}

	if cfg.Features.SemanticIndex {
		ix, err := semantic.NewIndex(semantic.IndexConfig{
			PersistPath: os.Getenv("HN_SEMANTIC_INDEX_PATH"),
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize semantic index")
		}
		opts = append(opts, nar.WithSemanticIndex(ix))
		logger.Info().Msg("semantic index enabled")
	}

	if cfg.Features.Neo4jMirror {
		mirror, err := knowledge.NewMirror(knowledge.ConfigFromEnv())
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect Neo4j mirror")
		}
		defer func() { _ = mirror.Close(context.Background()) }()
		opts = append(opts, nar.WithMirror(mirror))
		logger.Info().Msg("neo4j mirror enabled")
	}

	reasoner, err := nar.New(cfg, opts...)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize reasoner")
	}
	reasoner.Bus().SubscribeAll(events.LoggingObserver(logger))
	logger.Info().Str("rule_set", cfg.RuleSet).Msg("reasoner initialized")

	srv := server.NewServer(reasoner)
	mcpServer := mcp.NewServer(&mcp.Implementation{
		Name:    "hypernars-server",
		Version: "1.0.0",
	}, nil)
	srv.RegisterTools(mcpServer)
	logger.Info().Msg("registered tools: nal, ask, query, beliefs, explain, contradictions, analyze-contradiction, resolve-contradiction, run, clear-state, save-state, load-state, get-metrics")

	transport := &mcp.StdioTransport{}
	if err := mcpServer.Run(context.Background(), transport); err != nil {
		logger.Fatal().Err(err).Msg("server error")
	}
}
