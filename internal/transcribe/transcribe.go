// Package transcribe turns a recorded voice question into text using a
// Whisper-compatible HTTP server.
//
// Two server flavors are supported:
//   - "openai": OpenAI-compatible API (whisper.cpp server, faster-whisper, speaches)
//   - "asr":    ahmetoner/whisper-asr-webservice (POST /asr with query params)
package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	"github.com/nadzzz/supportline/internal/config"
)

// Transcriber converts a local audio file to text.
type Transcriber interface {
	// Transcribe returns the raw transcript. It may be empty or whitespace;
	// deciding what that means is up to the caller.
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

// Whisper is a client for a Whisper-compatible transcription endpoint.
type Whisper struct {
	endpoint string
	flavor   string
	model    string
	language string
	apiKey   string
	client   *http.Client
}

// New creates a Whisper client from config.
func New(cfg config.TranscriptionConfig) *Whisper {
	flavor := cfg.Type
	if flavor == "" {
		flavor = "openai"
	}
	lang := cfg.Language
	if lang == "" {
		lang = "es"
	}
	return &Whisper{
		endpoint: cfg.Endpoint,
		flavor:   flavor,
		model:    cfg.Model,
		language: lang,
		apiKey:   cfg.APIKey,
		client:   &http.Client{Timeout: cfg.Timeout},
	}
}

// Transcribe uploads the file at audioPath and returns the transcript text.
func (w *Whisper) Transcribe(ctx context.Context, audioPath string) (string, error) {
	audio, err := os.ReadFile(audioPath)
	if err != nil {
		return "", fmt.Errorf("reading audio: %w", err)
	}

	var req *http.Request
	switch w.flavor {
	case "asr":
		req, err = w.asrRequest(ctx, audio, filepath.Base(audioPath))
	default:
		req, err = w.openAIRequest(ctx, audio, filepath.Base(audioPath))
	}
	if err != nil {
		return "", err
	}
	if w.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+w.apiKey)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcription request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("transcription failed (status %d): %s", resp.StatusCode, respBody)
	}

	// Both flavors return {"text": "...", "language": "..."} for verbose_json.
	var result struct {
		Text     string `json:"text"`
		Language string `json:"language"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decoding transcription: %w", err)
	}

	slog.Debug("transcription complete", "flavor", w.flavor, "text_length", len(result.Text), "language", result.Language)
	return result.Text, nil
}

// asrRequest builds a whisper-asr-webservice request.
// API: POST /asr?task=transcribe&language=es&output=json
// Body: multipart/form-data with field "audio_file"
func (w *Whisper) asrRequest(ctx context.Context, audio []byte, filename string) (*http.Request, error) {
	body, contentType, err := multipartAudio("audio_file", filename, audio, nil)
	if err != nil {
		return nil, err
	}

	q := make(url.Values)
	q.Set("task", "transcribe")
	q.Set("output", "json")
	q.Set("encode", "true")
	q.Set("language", w.language)

	reqURL := w.endpoint + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	return req, nil
}

// openAIRequest builds an OpenAI-compatible /v1/audio/transcriptions request.
func (w *Whisper) openAIRequest(ctx context.Context, audio []byte, filename string) (*http.Request, error) {
	fields := map[string]string{
		"language":        w.language,
		"response_format": "verbose_json",
	}
	if w.model != "" {
		fields["model"] = w.model
	}
	body, contentType, err := multipartAudio("file", filename, audio, fields)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	return req, nil
}

func multipartAudio(field, filename string, audio []byte, fields map[string]string) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile(field, filename)
	if err != nil {
		return nil, "", fmt.Errorf("creating form file: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return nil, "", fmt.Errorf("writing audio: %w", err)
	}
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			return nil, "", fmt.Errorf("writing field %s: %w", k, err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("closing multipart body: %w", err)
	}
	return body, writer.FormDataContentType(), nil
}
