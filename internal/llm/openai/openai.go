// Package openai implements the llm.Client interface using the OpenAI API
// or any OpenAI-compatible server (vLLM, llama.cpp server, LM Studio).
package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/nadzzz/supportline/internal/config"
	"github.com/nadzzz/supportline/internal/llm"
)

// Client uses the chat completions and embeddings endpoints.
type Client struct {
	client         *openai.Client
	embeddingModel string
}

// New creates a new OpenAI-compatible client from config.
func New(cfg config.LLMConfig) *Client {
	reqOpts := []option.RequestOption{
		option.WithBaseURL(strings.TrimRight(cfg.OpenAI.BaseURL, "/")),
		option.WithHTTPClient(&http.Client{Timeout: cfg.OpenAI.Timeout}),
		option.WithMaxRetries(0),
	}
	if cfg.OpenAI.APIKey != "" {
		reqOpts = append(reqOpts, option.WithAPIKey(cfg.OpenAI.APIKey))
	}
	client := openai.NewClient(reqOpts...)
	return &Client{
		client:         &client,
		embeddingModel: cfg.EmbeddingModel,
	}
}

// Name returns the backend identifier.
func (c *Client) Name() string { return "openai" }

// Generate sends a single user message and returns the first choice's content.
// Images are attached as JPEG data URIs.
func (c *Client) Generate(ctx context.Context, prompt llm.Prompt, opts llm.Options) (string, error) {
	var user openai.ChatCompletionMessageParamUnion
	if len(prompt.Images) == 0 {
		user = openai.UserMessage(prompt.Text)
	} else {
		parts := []openai.ChatCompletionContentPartUnionParam{openai.TextContentPart(prompt.Text)}
		for _, img := range prompt.Images {
			parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
				URL: "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(img),
			}))
		}
		user = openai.UserMessage(parts)
	}

	params := openai.ChatCompletionNewParams{
		Model:       opts.Model,
		Messages:    []openai.ChatCompletionMessageParamUnion{user},
		Temperature: openai.Opt(opts.Temperature),
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", apiError("chat completion", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", errors.New("OpenAI API returned no choices")
	}

	content := resp.Choices[0].Message.Content
	slog.Debug("openai generate complete", "model", opts.Model, "images", len(prompt.Images), "response_length", len(content))
	return content, nil
}

// Embed returns one embedding per input text, ordered by input index.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := c.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input:          openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model:          c.embeddingModel,
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	})
	if err != nil {
		return nil, apiError("embeddings", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embeddings: got %d vectors for %d inputs", len(resp.Data), len(texts))
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || int(d.Index) >= len(out) {
			return nil, fmt.Errorf("embeddings: index %d out of range", d.Index)
		}
		vec := make([]float32, len(d.Embedding))
		for i, v := range d.Embedding {
			vec[i] = float32(v)
		}
		out[d.Index] = vec
	}
	return out, nil
}

// Close is a no-op for the OpenAI client.
func (c *Client) Close() error { return nil }

func apiError(op string, err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return fmt.Errorf("OpenAI %s request failed (status=%d): %s", op, apiErr.StatusCode, strings.TrimSpace(apiErr.Message))
	}
	return fmt.Errorf("OpenAI %s request failed: %w", op, err)
}
