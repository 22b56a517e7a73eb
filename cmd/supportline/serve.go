package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nadzzz/supportline/internal/answer"
	"github.com/nadzzz/supportline/internal/config"
	"github.com/nadzzz/supportline/internal/health"
	"github.com/nadzzz/supportline/internal/pipeline"
	"github.com/nadzzz/supportline/internal/retrieval"
	"github.com/nadzzz/supportline/internal/scratch"
	"github.com/nadzzz/supportline/internal/speech"
	"github.com/nadzzz/supportline/internal/transcribe"
	"github.com/nadzzz/supportline/internal/transport"
	httptransport "github.com/nadzzz/supportline/internal/transport/http"
	"github.com/nadzzz/supportline/internal/vision"
)

func newServeCommand(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the support HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configFile)
			if err != nil {
				return fmt.Errorf("loading configuration: %w", err)
			}
			config.SetupLogging(cfg.Logging)
			return serve(cfg)
		},
	}
}

func serve(cfg *config.Config) error {
	slog.Info("supportline starting", "version", version)

	// Create root context with signal handling for graceful shutdown.
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Health probes come up first so orchestrators see NOT_SERVING while models load.
	healthServer := health.New(cfg.Server.HealthPort, cfg.Server.GRPCHealthPort)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := healthServer.ListenAndServe(ctx); err != nil {
			slog.Error("health server failed", "error", err)
		}
	}()
	go func() {
		defer wg.Done()
		if err := healthServer.ServeGRPC(ctx); err != nil {
			slog.Error("grpc health server failed", "error", err)
		}
	}()

	p, cleanup, err := buildPipeline(ctx, cfg)
	if err != nil {
		cancel()
		wg.Wait()
		return err
	}
	defer cleanup()

	var transports []transport.Transport
	transports = append(transports, httptransport.New(cfg.Server, cfg.Storage.StaticDir))

	for _, t := range transports {
		wg.Add(1)
		go func(t transport.Transport) {
			defer wg.Done()
			slog.Info("starting transport", "name", t.Name())
			if err := t.Listen(ctx, p.Handle); err != nil {
				slog.Error("transport failed", "name", t.Name(), "error", err)
				cancel()
			}
		}(t)
	}

	healthServer.SetReady(true)
	slog.Info("supportline ready",
		"port", cfg.Server.Port,
		"health_port", cfg.Server.HealthPort,
		"grpc_health_port", cfg.Server.GRPCHealthPort)

	// Block until shutdown signal.
	<-ctx.Done()
	slog.Info("shutdown signal received, draining...")
	healthServer.SetReady(false)

	for _, t := range transports {
		if err := t.Close(); err != nil {
			slog.Error("transport close error", "name", t.Name(), "error", err)
		}
	}

	wg.Wait()
	slog.Info("supportline stopped")
	return nil
}

// buildPipeline constructs every model client and adapter once. The returned
// cleanup closes them in reverse order.
func buildPipeline(ctx context.Context, cfg *config.Config) (*pipeline.Pipeline, func(), error) {
	var closers []func() error
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				slog.Warn("close failed", "error", err)
			}
		}
	}
	fail := func(err error) (*pipeline.Pipeline, func(), error) {
		cleanup()
		return nil, func() {}, err
	}

	store, err := scratch.NewStore(cfg.Storage.TempDir)
	if err != nil {
		return fail(err)
	}

	models, err := newModelClient(cfg.LLM)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, models.Close)

	embedder, closeCache, err := embedderWithCache(ctx, models, cfg)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, closeCache)

	idx, err := openIndex(cfg.Index)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, idx.Close)

	synth, opts, err := newSynthesizer(cfg.TTS)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, synth.Close)

	speaker, err := speech.New(synth, opts, cfg.Storage.StaticDir, cfg.Storage.AudioSubdir)
	if err != nil {
		return fail(err)
	}

	composer := answer.New(
		retrieval.New(embedder, idx),
		vision.New(models, cfg.LLM.VisionModel, cfg.LLM.VisionTemperature),
		models,
		cfg.LLM.TextModel,
		cfg.LLM.TextTemperature,
	)

	slog.Info("pipeline ready",
		"transcription", cfg.Transcription.Endpoint,
		"temp_dir", store.Dir(),
		"audio_dir", speaker.Dir())

	return pipeline.New(store, transcribe.New(cfg.Transcription), composer, speaker), cleanup, nil
}
