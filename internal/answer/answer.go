// Package answer composes the final support answer from the user's query,
// retrieved knowledge-base passages, and an optional screenshot description.
package answer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nadzzz/supportline/internal/llm"
	"github.com/nadzzz/supportline/internal/retrieval"
	"github.com/nadzzz/supportline/internal/vision"
)

// ImageStatus records what happened to the request's image.
type ImageStatus string

const (
	ImageNone      ImageStatus = "none"
	ImageDescribed ImageStatus = "described"
	ImageFailed    ImageStatus = "failed"
)

// Answer is the composer's result.
type Answer struct {
	Text        string
	ImageStatus ImageStatus
	Passages    int
}

// Retriever is the retrieval dependency.
type Retriever interface {
	Retrieve(ctx context.Context, query string) ([]retrieval.Passage, error)
}

// ImageDescriber is the vision dependency.
type ImageDescriber interface {
	Attempt(ctx context.Context, imagePath string) vision.Outcome
}

// Composer turns a query into an answer.
type Composer struct {
	retriever   Retriever
	describer   ImageDescriber
	generator   llm.Generator
	model       string
	temperature float64
}

// New creates a Composer that generates with the given text model.
func New(retriever Retriever, describer ImageDescriber, generator llm.Generator, model string, temperature float64) *Composer {
	return &Composer{
		retriever:   retriever,
		describer:   describer,
		generator:   generator,
		model:       model,
		temperature: temperature,
	}
}

// Compose describes the image (if any), retrieves context for a non-empty
// query, and generates the answer. Image failures degrade to an empty
// description; retrieval and generation failures are returned.
func (c *Composer) Compose(ctx context.Context, query string, imagePath string) (*Answer, error) {
	ans := &Answer{ImageStatus: ImageNone}

	var imageContext string
	if imagePath != "" {
		start := time.Now()
		out := c.describer.Attempt(ctx, imagePath)
		imageContext = out.Description(imagePath)
		if out.OK() {
			ans.ImageStatus = ImageDescribed
			slog.Info("image described", "description_length", len(out.Text), "duration", time.Since(start))
		} else {
			ans.ImageStatus = ImageFailed
		}
	}

	var ragContext string
	if query != "" {
		passages, err := c.retriever.Retrieve(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("retrieval: %w", err)
		}
		ragContext = JoinPassages(passages)
		ans.Passages = len(passages)
	}

	prompt := BuildPrompt(query, ragContext, imageContext)
	slog.Debug("generation prompt", "prompt", prompt)

	start := time.Now()
	text, err := c.generator.Generate(ctx, llm.Prompt{Text: prompt}, llm.Options{
		Model:       c.model,
		Temperature: c.temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("generation: %w", err)
	}
	slog.Info("answer generated", "model", c.model, "answer_length", len(text), "passages", ans.Passages, "duration", time.Since(start))

	ans.Text = text
	return ans, nil
}
