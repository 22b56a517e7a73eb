// Package pipeline implements the support-request orchestrator.
//
// The pipeline receives a request from a transport, persists uploads as
// request-scoped temporary files, runs them through transcription, answer
// composition and speech synthesis, and returns the text answer with an
// audio URL. Temporary files are always removed before Handle returns.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nadzzz/supportline/internal/answer"
	"github.com/nadzzz/supportline/internal/message"
	"github.com/nadzzz/supportline/internal/scratch"
)

// Client-facing errors. Anything else returned by Handle is a server fault.
var (
	ErrEmptyTranscription = errors.New("El audio está vacío o no se pudo transcribir.")
	ErrNoInput            = errors.New("Se requiere una pregunta de texto o un archivo de audio.")
	ErrConflictingInput   = errors.New("Envíe una pregunta de texto o un archivo de audio, no ambos.")
)

// IsClientError reports whether err was caused by the request itself.
func IsClientError(err error) bool {
	return errors.Is(err, ErrEmptyTranscription) ||
		errors.Is(err, ErrNoInput) ||
		errors.Is(err, ErrConflictingInput)
}

// Transcriber turns a local audio file into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

// Composer produces the answer for a query and optional image.
type Composer interface {
	Compose(ctx context.Context, query, imagePath string) (*answer.Answer, error)
}

// Speaker turns the answer into an audio URL or fallback message.
type Speaker interface {
	Synthesize(ctx context.Context, text, baseAddress string) string
}

// Pipeline wires the stages together. All dependencies are read-only after construction.
type Pipeline struct {
	scratch     *scratch.Store
	transcriber Transcriber
	composer    Composer
	speaker     Speaker
}

// New creates a Pipeline.
func New(store *scratch.Store, transcriber Transcriber, composer Composer, speaker Speaker) *Pipeline {
	return &Pipeline{
		scratch:     store,
		transcriber: transcriber,
		composer:    composer,
		speaker:     speaker,
	}
}

// SupportFromText answers a typed question with an optional screenshot.
func (p *Pipeline) SupportFromText(ctx context.Context, text string, image *message.Blob, baseAddress string) (*message.SupportResponse, error) {
	return p.Handle(ctx, &message.SupportRequest{QueryText: &text, Image: image}, baseAddress)
}

// SupportFromAudio answers a recorded question with an optional screenshot.
func (p *Pipeline) SupportFromAudio(ctx context.Context, audio *message.Blob, image *message.Blob, baseAddress string) (*message.SupportResponse, error) {
	if audio == nil {
		return nil, ErrNoInput
	}
	return p.Handle(ctx, &message.SupportRequest{Audio: audio, Image: image}, baseAddress)
}

// Handle processes a single request through the full pipeline.
// This function is what the HTTP transport calls per request.
func (p *Pipeline) Handle(ctx context.Context, req *message.SupportRequest, baseAddress string) (*message.SupportResponse, error) {
	start := time.Now()
	logger := slog.With("request_id", uuid.NewString())

	switch {
	case req.HasAudio() && req.QueryText != nil:
		return nil, ErrConflictingInput
	case !req.HasAudio() && req.QueryText == nil:
		return nil, ErrNoInput
	}

	scope := p.scratch.NewScope()
	defer func() {
		if err := scope.ReleaseAll(); err != nil {
			logger.Warn("temporary file cleanup incomplete", "error", err)
		}
	}()

	logger.Info("support request started", "audio", req.HasAudio(), "image", req.HasImage())

	// Step 1: Resolve the query text.
	var query string
	if req.HasAudio() {
		res, err := scope.Persist(req.Audio, scratch.KindAudio)
		if err != nil {
			return nil, err
		}
		t := time.Now()
		text, err := p.transcriber.Transcribe(ctx, res.Path)
		if err != nil {
			logger.Error("transcription failed", "error", err)
			return nil, fmt.Errorf("transcription: %w", err)
		}
		query = strings.TrimSpace(text)
		if query == "" {
			logger.Info("empty transcription")
			return nil, ErrEmptyTranscription
		}
		logger.Info("transcription complete", "text_length", len(query), "duration", time.Since(t))
	} else {
		query = *req.QueryText
	}

	// Step 2: Persist the screenshot, if any.
	var imagePath string
	if req.HasImage() {
		res, err := scope.Persist(req.Image, scratch.KindImage)
		if err != nil {
			return nil, err
		}
		imagePath = res.Path
	}

	// Step 3: Compose the answer.
	ans, err := p.composer.Compose(ctx, query, imagePath)
	if err != nil {
		logger.Error("answer composition failed", "error", err)
		return nil, err
	}

	// Step 4: Speak it.
	t := time.Now()
	audioURL := p.speaker.Synthesize(ctx, ans.Text, baseAddress)
	logger.Debug("speech stage complete", "duration", time.Since(t))

	logger.Info("support request complete",
		"duration", time.Since(start),
		"image_status", ans.ImageStatus,
		"passages", ans.Passages,
	)

	return &message.SupportResponse{
		TextResponse: ans.Text,
		AudioURL:     audioURL,
	}, nil
}
