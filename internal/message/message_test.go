package message

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlobBaseName(t *testing.T) {
	tests := []struct {
		filename string
		want     string
	}{
		{"captura.png", "captura.png"},
		{"../../etc/passwd", "passwd"},
		{`C:\Users\ana\Desktop\error.jpg`, "error.jpg"},
		{"", "upload"},
		{"/", "upload"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, (&Blob{Filename: tt.filename}).BaseName(), tt.filename)
	}
}

func TestSupportResponseJSON(t *testing.T) {
	b, err := json.Marshal(SupportResponse{TextResponse: "Hola", AudioURL: "http://h/static/audio_responses/x.mp3"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"text_response":"Hola","audio_url":"http://h/static/audio_responses/x.mp3"}`, string(b))
}
