// Package ollama implements the llm.Client interface against a local Ollama server.
package ollama

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"

	"github.com/nadzzz/supportline/internal/config"
	"github.com/nadzzz/supportline/internal/llm"
)

var stream = false

// Client talks to Ollama's /api/chat and /api/embed endpoints.
type Client struct {
	api            *api.Client
	embeddingModel string
}

// New creates a new Ollama client from config.
func New(cfg config.LLMConfig) (*Client, error) {
	host := cfg.Ollama.Host
	if !strings.Contains(host, "://") {
		host = "http://" + host
	}
	base, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("parsing ollama host %q: %w", cfg.Ollama.Host, err)
	}
	return &Client{
		api:            api.NewClient(base, &http.Client{Timeout: cfg.Ollama.Timeout}),
		embeddingModel: cfg.EmbeddingModel,
	}, nil
}

// Name returns the backend identifier.
func (c *Client) Name() string { return "ollama" }

// Generate sends a single user message and returns the complete reply.
func (c *Client) Generate(ctx context.Context, prompt llm.Prompt, opts llm.Options) (string, error) {
	msg := api.Message{Role: "user", Content: prompt.Text}
	for _, img := range prompt.Images {
		msg.Images = append(msg.Images, api.ImageData(img))
	}

	req := &api.ChatRequest{
		Model:    opts.Model,
		Messages: []api.Message{msg},
		Stream:   &stream,
		Options: map[string]any{
			"temperature": opts.Temperature,
		},
	}

	var out strings.Builder
	err := c.api.Chat(ctx, req, func(resp api.ChatResponse) error {
		out.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama chat (%s): %w", opts.Model, err)
	}

	slog.Debug("ollama generate complete", "model", opts.Model, "images", len(prompt.Images), "response_length", out.Len())
	return out.String(), nil
}

// Embed returns one embedding per input text.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := c.api.Embed(ctx, &api.EmbedRequest{
		Model: c.embeddingModel,
		Input: texts,
	})
	if err != nil {
		return nil, fmt.Errorf("ollama embed (%s): %w", c.embeddingModel, err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama embed: got %d embeddings for %d inputs", len(resp.Embeddings), len(texts))
	}
	return resp.Embeddings, nil
}

// Close is a no-op; the underlying HTTP client holds no dedicated resources.
func (c *Client) Close() error { return nil }
