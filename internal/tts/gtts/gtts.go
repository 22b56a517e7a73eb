// Package gtts implements the TTS Synthesizer using the Google Translate
// text-to-speech endpoint, the same service the gTTS tool uses.
//
// The endpoint only accepts short inputs, so text is split into segments of
// at most 100 characters at punctuation or whitespace, each segment is fetched
// as MP3, and the MP3 streams are concatenated.
package gtts

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/nadzzz/supportline/internal/config"
	"github.com/nadzzz/supportline/internal/tts"
)

// maxSegment is the longest input the endpoint reliably accepts.
const maxSegment = 100

// Synthesizer implements tts.Synthesizer against translate_tts.
type Synthesizer struct {
	tld     string
	baseURL string
	slow    bool
	client  *http.Client
}

// New creates a gtts synthesizer from config.
func New(cfg config.GTTSConfig) *Synthesizer {
	tld := cfg.TLD
	if tld == "" {
		tld = "com"
	}
	return &Synthesizer{
		tld:     tld,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		slow:    cfg.Slow,
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

// Synthesize fetches MP3 audio for text in opts.Language.
func (s *Synthesizer) Synthesize(ctx context.Context, text string, opts tts.SynthesizeOpts) (*tts.SynthesizeResult, error) {
	parts := Segments(text, maxSegment)
	if len(parts) == 0 {
		return nil, fmt.Errorf("empty text for synthesis")
	}

	lang := opts.Language
	if lang == "" {
		lang = "es"
	}
	tld := opts.Accent
	if tld == "" {
		tld = s.tld
	}
	base := s.baseURL
	if base == "" {
		base = "https://translate.google." + tld
	}

	var audio []byte
	for i, part := range parts {
		chunk, err := s.fetch(ctx, base, part, lang, i, len(parts))
		if err != nil {
			return nil, fmt.Errorf("segment %d/%d: %w", i+1, len(parts), err)
		}
		audio = append(audio, chunk...)
	}

	slog.Debug("gtts synthesize complete", "segments", len(parts), "audio_bytes", len(audio), "language", lang, "tld", tld)
	return &tts.SynthesizeResult{
		Audio:       audio,
		ContentType: "audio/mpeg",
		SampleRate:  24000,
		Channels:    1,
	}, nil
}

func (s *Synthesizer) fetch(ctx context.Context, base, text, lang string, idx, total int) ([]byte, error) {
	speed := "1"
	if s.slow {
		speed = "0.3"
	}
	q := url.Values{}
	q.Set("ie", "UTF-8")
	q.Set("client", "tw-ob")
	q.Set("tl", lang)
	q.Set("q", text)
	q.Set("ttsspeed", speed)
	q.Set("total", fmt.Sprint(total))
	q.Set("idx", fmt.Sprint(idx))
	q.Set("textlen", fmt.Sprint(utf8.RuneCountInString(text)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/translate_tts?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")
	req.Header.Set("Referer", base+"/")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tts request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("tts failed (status %d): %s", resp.StatusCode, body)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading audio: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty audio response")
	}
	return data, nil
}

// Close is a no-op.
func (s *Synthesizer) Close() error { return nil }

// Segments splits text into pieces of at most max runes, preferring to cut
// after punctuation, then at whitespace, and only mid-word as a last resort.
// Whitespace-only pieces are dropped.
func Segments(text string, max int) []string {
	var out []string
	for _, sentence := range splitAfterPunct(text) {
		for _, piece := range fit(sentence, max) {
			if p := strings.TrimSpace(piece); p != "" {
				out = append(out, p)
			}
		}
	}
	return mergeShort(out, max)
}

func splitAfterPunct(text string) []string {
	var (
		out   []string
		start int
	)
	for i, r := range text {
		if strings.ContainsRune(".,;:!?\n", r) {
			end := i + utf8.RuneLen(r)
			out = append(out, text[start:end])
			start = end
		}
	}
	if start < len(text) {
		out = append(out, text[start:])
	}
	return out
}

// fit cuts s at whitespace so no piece exceeds max runes.
func fit(s string, max int) []string {
	if utf8.RuneCountInString(s) <= max {
		return []string{s}
	}
	var (
		out []string
		cur strings.Builder
		n   int
	)
	flush := func() {
		if cur.Len() > 0 {
			out = append(out, cur.String())
			cur.Reset()
			n = 0
		}
	}
	for _, word := range strings.FieldsFunc(s, unicode.IsSpace) {
		wl := utf8.RuneCountInString(word)
		if wl > max {
			flush()
			runes := []rune(word)
			for len(runes) > max {
				out = append(out, string(runes[:max]))
				runes = runes[max:]
			}
			cur.WriteString(string(runes))
			n = len(runes)
			continue
		}
		extra := wl
		if n > 0 {
			extra++
		}
		if n+extra > max {
			flush()
			extra = wl
		}
		if n > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(word)
		n += extra
	}
	flush()
	return out
}

// mergeShort joins neighbouring pieces while they still fit, to keep the
// number of requests down.
func mergeShort(pieces []string, max int) []string {
	var out []string
	for _, p := range pieces {
		if last := len(out) - 1; last >= 0 &&
			utf8.RuneCountInString(out[last])+1+utf8.RuneCountInString(p) <= max {
			out[last] += " " + p
			continue
		}
		out = append(out, p)
	}
	return out
}
