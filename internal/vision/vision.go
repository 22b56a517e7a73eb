// Package vision describes user screenshots with a vision-capable model.
//
// Description is a degraded stage: a failure never fails the request. The
// explicit Outcome lets callers tell "described" from "failed", and
// Outcome.Description collapses it to the empty string. Describe does both
// for callers that only want text.
package vision

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"os"

	// Decoders for the formats users upload.
	_ "image/gif"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/nadzzz/supportline/internal/llm"
)

// Instruction is sent with every image.
const Instruction = "Describe de forma concisa y técnica el contenido de esta captura de pantalla, extrayendo cualquier texto de error visible."

// Outcome is the result of one description attempt.
type Outcome struct {
	Text string
	Err  error
}

// OK reports whether the model produced a description.
func (o Outcome) OK() bool { return o.Err == nil }

// Describer produces a textual description of a local image.
type Describer struct {
	model       llm.Generator
	modelName   string
	temperature float64
}

// New creates a Describer using the given vision model.
func New(model llm.Generator, modelName string, temperature float64) *Describer {
	return &Describer{model: model, modelName: modelName, temperature: temperature}
}

// Attempt runs the vision model on the image and reports the outcome.
func (d *Describer) Attempt(ctx context.Context, imagePath string) Outcome {
	img, err := loadJPEG(imagePath)
	if err != nil {
		return Outcome{Err: err}
	}
	text, err := d.model.Generate(ctx, llm.Prompt{Text: Instruction, Images: [][]byte{img}}, llm.Options{
		Model:       d.modelName,
		Temperature: d.temperature,
	})
	if err != nil {
		return Outcome{Err: fmt.Errorf("vision model: %w", err)}
	}
	return Outcome{Text: text}
}

// Description collapses the outcome to the text the prompt receives: the
// model's description, or "" after logging the failure.
func (o Outcome) Description(imagePath string) string {
	if !o.OK() {
		slog.Warn("image description failed, continuing without it", "path", imagePath, "error", o.Err)
		return ""
	}
	return o.Text
}

// Describe returns the model's description, or "" when anything goes wrong.
func (d *Describer) Describe(ctx context.Context, imagePath string) string {
	return d.Attempt(ctx, imagePath).Description(imagePath)
}

// loadJPEG decodes the image in any registered format and re-encodes it as JPEG.
func loadJPEG(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening image: %w", err)
	}
	defer f.Close()

	img, format, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("encoding %s as jpeg: %w", format, err)
	}
	return buf.Bytes(), nil
}
