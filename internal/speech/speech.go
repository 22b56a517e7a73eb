// Package speech turns a generated answer into a publicly reachable audio file.
//
// Synthesis is a degraded stage: Synthesize always returns a string, either
// the public URL of the new file or one of two fixed Spanish messages.
package speech

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/nadzzz/supportline/internal/tts"
)

// Fallback messages returned in place of an audio URL.
const (
	MsgEmptyText = "No se generó audio porque la respuesta de texto estaba vacía."
	MsgFailed    = "Error al generar el archivo de audio."
)

// PersistedAudio is a synthesized answer written to the public audio directory.
type PersistedAudio struct {
	ID          uuid.UUID
	StoragePath string
	PublicURL   string
}

// Speaker synthesizes answers and stores them under the static directory.
type Speaker struct {
	synth     tts.Synthesizer
	opts      tts.SynthesizeOpts
	dir       string // filesystem directory for audio files
	urlPrefix string // URL path under which dir is served, e.g. "static/audio_responses"
}

// New creates a Speaker writing into staticDir/audioSubdir, which the HTTP
// layer serves under /static.
func New(synth tts.Synthesizer, opts tts.SynthesizeOpts, staticDir, audioSubdir string) (*Speaker, error) {
	dir := filepath.Join(staticDir, audioSubdir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating audio dir: %w", err)
	}
	return &Speaker{
		synth:     synth,
		opts:      opts,
		dir:       dir,
		urlPrefix: "static/" + strings.Trim(filepath.ToSlash(audioSubdir), "/"),
	}, nil
}

// Dir returns the directory synthesized files are written to.
func (s *Speaker) Dir() string { return s.dir }

// Persist synthesizes text and writes it as <uuid><ext>.
func (s *Speaker) Persist(ctx context.Context, text, baseAddress string) (*PersistedAudio, error) {
	res, err := s.synth.Synthesize(ctx, text, s.opts)
	if err != nil {
		return nil, fmt.Errorf("synthesizing: %w", err)
	}

	id := uuid.New()
	name := id.String() + res.Extension()
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, res.Audio, 0o644); err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("writing audio: %w", err)
	}

	return &PersistedAudio{
		ID:          id,
		StoragePath: path,
		PublicURL:   strings.TrimRight(baseAddress, "/") + "/" + s.urlPrefix + "/" + name,
	}, nil
}

// Synthesize returns the public URL of the spoken answer, or a fallback
// message. It never fails.
func (s *Speaker) Synthesize(ctx context.Context, text, baseAddress string) string {
	if strings.TrimSpace(text) == "" {
		slog.Warn("skipping speech synthesis for empty answer")
		return MsgEmptyText
	}
	audio, err := s.Persist(ctx, text, baseAddress)
	if err != nil {
		slog.Error("speech synthesis failed", "error", err)
		return MsgFailed
	}
	slog.Info("speech synthesized", "path", audio.StoragePath)
	return audio.PublicURL
}
