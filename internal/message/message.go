// Package message defines the core data types flowing through the supportline pipeline.
package message

import (
	"path/filepath"
	"strings"
)

// Blob is an uploaded file as received from a transport.
type Blob struct {
	// Filename is the client-supplied name. Only its base name is ever used on disk.
	Filename string `json:"filename"`

	// ContentType is the MIME type reported by the client, if any.
	ContentType string `json:"content_type,omitempty"`

	// Data is the raw file content.
	Data []byte `json:"-"`
}

// BaseName returns the file name without any directory components supplied by the client.
func (b *Blob) BaseName() string {
	name := filepath.Base(strings.ReplaceAll(b.Filename, `\`, "/"))
	if name == "." || name == "/" || name == "" {
		return "upload"
	}
	return name
}

// SupportRequest is a user's support query as received from any transport.
// Exactly one of QueryText and Audio is set. Image is optional.
type SupportRequest struct {
	// QueryText is the typed question. Nil for voice requests.
	QueryText *string `json:"query_text,omitempty"`

	// Audio is a recorded voice question. Nil for text requests.
	Audio *Blob `json:"audio,omitempty"`

	// Image is an optional screenshot accompanying the question.
	Image *Blob `json:"image,omitempty"`
}

// HasAudio returns true if the request carries a voice recording.
func (r *SupportRequest) HasAudio() bool {
	return r.Audio != nil
}

// HasImage returns true if the request carries a screenshot.
func (r *SupportRequest) HasImage() bool {
	return r.Image != nil
}

// SupportResponse is what the caller receives for a successful request.
type SupportResponse struct {
	// TextResponse is the generated answer, verbatim.
	TextResponse string `json:"text_response"`

	// AudioURL is the public URL of the spoken answer, or a Spanish fallback
	// message when synthesis did not produce a file.
	AudioURL string `json:"audio_url"`
}
