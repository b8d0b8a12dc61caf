// Command ingest crawls the configured Confluence spaces, rebuilds the vector
// index in a fresh collection and atomically re-points the read alias. Safe
// to run while the server is answering questions.
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"askhub.app/askhub/common/id"
	"askhub.app/askhub/common/logger"
	"askhub.app/askhub/core/config"
	"askhub.app/askhub/internal/index"
	"askhub.app/askhub/internal/ingest/confluence"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load(config.ServiceTypeIngest)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Setup(cfg)

	if err := id.Init(2); err != nil {
		slog.ErrorContext(ctx, "failed to initialize snowflake id generator", "error", err)
		os.Exit(1)
	}

	slog.InfoContext(ctx, "ingest starting",
		"confluence", cfg.Confluence.BaseURL,
		"spaces", cfg.Confluence.Spaces)

	client := confluence.NewClient(confluence.Config{
		BaseURL:           cfg.Confluence.BaseURL,
		Username:          cfg.Confluence.Username,
		APIToken:          cfg.Confluence.APIToken,
		Spaces:            cfg.Confluence.Spaces,
		RequestsPerSecond: cfg.Confluence.RequestsPerSecond,
	})

	start := time.Now()
	docs, err := client.LoadAll(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "confluence load failed", "error", err)
		os.Exit(1)
	}
	if len(docs) == 0 {
		slog.ErrorContext(ctx, "no documents loaded, leaving index untouched")
		os.Exit(1)
	}

	idx := index.FromConfig(cfg)
	if err := idx.Rebuild(ctx, docs); err != nil {
		slog.ErrorContext(ctx, "index rebuild failed", "error", err)
		os.Exit(1)
	}

	slog.InfoContext(ctx, "ingest complete",
		"documents", len(docs),
		"duration", time.Since(start).Round(time.Second).String())
}
