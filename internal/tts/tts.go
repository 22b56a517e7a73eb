// Package tts defines the interface for text-to-speech synthesis.
//
// Supportline speaks every generated answer back to the user. Backends return
// a complete audio file (MP3 for gtts, WAV for piper) that the speech package
// publishes under the static audio directory.
package tts

import (
	"context"
	"strings"
)

// SynthesizeOpts controls synthesis behavior.
type SynthesizeOpts struct {
	// Language is the ISO-639-1 code (e.g., "es") to select the voice.
	Language string

	// Voice overrides automatic language-based voice selection.
	Voice string

	// Accent selects a regional variant where the backend supports one
	// (for gtts, the Google domain suffix such as "com.mx").
	Accent string
}

// Synthesizer converts text to audio.
type Synthesizer interface {
	// Synthesize generates a complete audio file from the given text.
	Synthesize(ctx context.Context, text string, opts SynthesizeOpts) (*SynthesizeResult, error)

	// Close releases any resources held by the synthesizer.
	Close() error
}

// SynthesizeResult holds the output of TTS synthesis.
type SynthesizeResult struct {
	// Audio is the synthesized audio file.
	Audio []byte

	// ContentType is the MIME type of the audio (e.g., "audio/mpeg", "audio/wav").
	ContentType string

	// SampleRate is the audio sample rate in Hz, when known.
	SampleRate int

	// Channels is the number of audio channels, when known.
	Channels int
}

// Extension returns the file extension matching the result's content type.
func (r *SynthesizeResult) Extension() string {
	ct := strings.ToLower(r.ContentType)
	switch {
	case strings.Contains(ct, "wav"):
		return ".wav"
	case strings.Contains(ct, "ogg"):
		return ".ogg"
	case strings.Contains(ct, "mpeg"), strings.Contains(ct, "mp3"):
		return ".mp3"
	default:
		return ".mp3"
	}
}
