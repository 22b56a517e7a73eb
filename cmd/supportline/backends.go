package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nadzzz/supportline/internal/cache"
	"github.com/nadzzz/supportline/internal/config"
	"github.com/nadzzz/supportline/internal/index"
	"github.com/nadzzz/supportline/internal/index/qdrant"
	"github.com/nadzzz/supportline/internal/index/sqlite"
	"github.com/nadzzz/supportline/internal/llm"
	"github.com/nadzzz/supportline/internal/llm/ollama"
	"github.com/nadzzz/supportline/internal/llm/openai"
	"github.com/nadzzz/supportline/internal/tts"
	"github.com/nadzzz/supportline/internal/tts/gtts"
	"github.com/nadzzz/supportline/internal/tts/piper"
)

func newModelClient(cfg config.LLMConfig) (llm.Client, error) {
	switch cfg.Backend {
	case "openai":
		slog.Info("using OpenAI-compatible models",
			"base_url", cfg.OpenAI.BaseURL,
			"text_model", cfg.TextModel,
			"vision_model", cfg.VisionModel,
			"embedding_model", cfg.EmbeddingModel)
		return openai.New(cfg), nil
	case "ollama":
		slog.Info("using Ollama models",
			"host", cfg.Ollama.Host,
			"text_model", cfg.TextModel,
			"vision_model", cfg.VisionModel,
			"embedding_model", cfg.EmbeddingModel)
		return ollama.New(cfg)
	default:
		return nil, fmt.Errorf("unknown llm backend %q", cfg.Backend)
	}
}

func openIndex(cfg config.IndexConfig) (index.Index, error) {
	switch cfg.Backend {
	case "qdrant":
		slog.Info("using qdrant index", "host", cfg.Qdrant.Host, "port", cfg.Qdrant.Port, "collection", cfg.Qdrant.Collection)
		return qdrant.New(cfg.Qdrant)
	case "sqlite":
		slog.Info("using sqlite index", "path", cfg.SQLite.Path)
		return sqlite.Open(cfg.SQLite.Path)
	default:
		return nil, fmt.Errorf("unknown index backend %q", cfg.Backend)
	}
}

// embedderWithCache wraps client in the redis embedding cache when enabled.
// The returned closer releases the cache connection.
func embedderWithCache(ctx context.Context, client llm.Embedder, cfg *config.Config) (llm.Embedder, func() error, error) {
	if !cfg.Cache.Redis.Enabled {
		return client, func() error { return nil }, nil
	}
	store, err := cache.NewRedisStore(ctx, cfg.Cache.Redis)
	if err != nil {
		return nil, nil, err
	}
	slog.Info("embedding cache enabled", "addr", cfg.Cache.Redis.Addr, "ttl", cfg.Cache.Redis.TTL)
	return cache.NewEmbedder(client, store, cfg.LLM.EmbeddingModel, cfg.Cache.Redis.TTL), store.Close, nil
}

func newSynthesizer(cfg config.TTSConfig) (tts.Synthesizer, tts.SynthesizeOpts, error) {
	opts := tts.SynthesizeOpts{Language: cfg.Language}
	switch cfg.Backend {
	case "gtts":
		opts.Accent = cfg.GTTS.TLD
		slog.Info("using gTTS speech", "language", cfg.Language, "tld", cfg.GTTS.TLD)
		return gtts.New(cfg.GTTS), opts, nil
	case "piper":
		slog.Info("using piper speech", "endpoint", cfg.Piper.Endpoint, "language", cfg.Language)
		return piper.New(cfg.Piper), opts, nil
	default:
		return nil, opts, fmt.Errorf("unknown tts backend %q", cfg.Backend)
	}
}
