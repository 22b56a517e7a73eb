// Package llm defines the interface to the generative models used by supportline.
//
// One backend serves three roles: the text model that writes answers, the
// vision model that describes screenshots, and the embedding model used by
// retrieval and ingestion. Supportline ships two backends: Ollama (local)
// and OpenAI-compatible (hosted or self-hosted via vLLM, llama.cpp server).
package llm

import "context"

// Prompt is a single-turn user message, optionally with images attached.
type Prompt struct {
	Text string

	// Images holds encoded image bytes (JPEG) to send alongside Text.
	Images [][]byte
}

// Options controls a single generation call.
type Options struct {
	// Model selects the model to use for this call.
	Model string

	Temperature float64
}

// Generator produces text from a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt Prompt, opts Options) (string, error)
}

// Embedder turns texts into vectors, one per input, in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Client is a full model backend.
type Client interface {
	Generator
	Embedder

	// Name returns the backend identifier (e.g., "ollama", "openai").
	Name() string

	// Close releases any resources held by the backend.
	Close() error
}
