package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nadzzz/supportline/internal/config"
	"github.com/nadzzz/supportline/internal/ingest"
)

func newIngestCommand(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest [files...]",
		Short: "Build the vector index from the knowledge base",
		Long: "Loads .txt, .md and .pdf files, splits them into overlapping chunks, embeds them\n" +
			"and replaces the contents of the configured index. Files default to ingest.files,\n" +
			"or every supported file under ingest.knowledge_dir.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configFile)
			if err != nil {
				return fmt.Errorf("loading configuration: %w", err)
			}
			config.SetupLogging(cfg.Logging)

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return runIngest(ctx, cfg, args, cmd)
		},
	}
}

func runIngest(ctx context.Context, cfg *config.Config, args []string, cmd *cobra.Command) error {
	files := cfg.Ingest.Files
	if len(args) > 0 {
		files = args
	}
	paths, err := ingest.ResolvePaths(cfg.Ingest.KnowledgeDir, files)
	if err != nil {
		return err
	}

	models, err := newModelClient(cfg.LLM)
	if err != nil {
		return err
	}
	defer models.Close()

	embedder, closeCache, err := embedderWithCache(ctx, models, cfg)
	if err != nil {
		return err
	}
	defer closeCache()

	idx, err := openIndex(cfg.Index)
	if err != nil {
		return err
	}
	defer idx.Close()

	_, err = ingest.New(embedder, idx, cfg.Ingest, cmd.OutOrStdout()).Run(ctx, paths)
	return err
}
