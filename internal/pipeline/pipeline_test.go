package pipeline

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nadzzz/supportline/internal/answer"
	"github.com/nadzzz/supportline/internal/message"
	"github.com/nadzzz/supportline/internal/scratch"
)

type fakeTranscriber struct {
	text string
	err  error
	path string
	seen bool // file existed while transcribing
}

func (f *fakeTranscriber) Transcribe(_ context.Context, path string) (string, error) {
	f.path = path
	_, err := os.Stat(path)
	f.seen = err == nil
	return f.text, f.err
}

type fakeComposer struct {
	text      string
	err       error
	calls     int
	query     string
	imagePath string
	imageSeen bool
}

func (f *fakeComposer) Compose(_ context.Context, query, imagePath string) (*answer.Answer, error) {
	f.calls++
	f.query, f.imagePath = query, imagePath
	if imagePath != "" {
		_, err := os.Stat(imagePath)
		f.imageSeen = err == nil
	}
	if f.err != nil {
		return nil, f.err
	}
	status := answer.ImageNone
	if imagePath != "" {
		status = answer.ImageDescribed
	}
	return &answer.Answer{Text: f.text, ImageStatus: status}, nil
}

type fakeSpeaker struct {
	calls int
	text  string
}

func (f *fakeSpeaker) Synthesize(_ context.Context, text, base string) string {
	f.calls++
	f.text = text
	if strings.TrimSpace(text) == "" {
		return "No se generó audio porque la respuesta de texto estaba vacía."
	}
	return strings.TrimRight(base, "/") + "/static/audio_responses/abc.mp3"
}

type fixture struct {
	dir     string
	trans   *fakeTranscriber
	comp    *fakeComposer
	speaker *fakeSpeaker
	p       *Pipeline
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	store, err := scratch.NewStore(dir)
	require.NoError(t, err)
	f := &fixture{
		dir:     dir,
		trans:   &fakeTranscriber{text: "¿Cómo reinicio la aplicación?"},
		comp:    &fakeComposer{text: "Cierre la aplicación y vuelva a abrirla."},
		speaker: &fakeSpeaker{},
	}
	f.p = New(store, f.trans, f.comp, f.speaker)
	return f
}

func (f *fixture) assertTempEmpty(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(f.dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "temporary files left behind")
}

func TestSupportFromText(t *testing.T) {
	f := newFixture(t)

	resp, err := f.p.SupportFromText(context.Background(), "¿Cómo reinicio la aplicación?", nil, "http://localhost:8000/")
	require.NoError(t, err)
	assert.Equal(t, "Cierre la aplicación y vuelva a abrirla.", resp.TextResponse)
	assert.True(t, strings.HasPrefix(resp.AudioURL, "http://localhost:8000/"))
	assert.Equal(t, "¿Cómo reinicio la aplicación?", f.comp.query)
	assert.Empty(t, f.comp.imagePath)
	assert.Empty(t, f.trans.path, "text requests must not be transcribed")
	f.assertTempEmpty(t)
}

func TestSupportFromTextWithImage(t *testing.T) {
	f := newFixture(t)

	img := &message.Blob{Filename: "error.png", Data: []byte("png")}
	_, err := f.p.SupportFromText(context.Background(), "¿Qué es este error?", img, "http://h/")
	require.NoError(t, err)
	assert.True(t, f.comp.imageSeen, "image must exist while composing")
	assert.True(t, strings.HasSuffix(f.comp.imagePath, "_error.png"))
	f.assertTempEmpty(t)
}

func TestSupportFromAudio(t *testing.T) {
	f := newFixture(t)
	f.trans.text = "  ¿Cómo reinicio la aplicación?  "

	audio := &message.Blob{Filename: "voz.ogg", Data: []byte("ogg")}
	resp, err := f.p.SupportFromAudio(context.Background(), audio, nil, "http://h/")
	require.NoError(t, err)
	assert.True(t, f.trans.seen)
	assert.True(t, strings.HasSuffix(f.trans.path, "_voz.ogg"))
	assert.Equal(t, "¿Cómo reinicio la aplicación?", f.comp.query)
	assert.NotEmpty(t, resp.TextResponse)
	f.assertTempEmpty(t)
}

func TestSupportFromAudioEmptyTranscription(t *testing.T) {
	for _, text := range []string{"", "   ", "\n\t"} {
		f := newFixture(t)
		f.trans.text = text

		audio := &message.Blob{Filename: "silencio.wav", Data: []byte("wav")}
		img := &message.Blob{Filename: "x.png", Data: []byte("png")}
		resp, err := f.p.SupportFromAudio(context.Background(), audio, img, "http://h/")

		assert.Nil(t, resp)
		require.ErrorIs(t, err, ErrEmptyTranscription)
		assert.True(t, IsClientError(err))
		assert.Equal(t, "El audio está vacío o no se pudo transcribir.", err.Error())
		assert.Zero(t, f.comp.calls, "no generation after empty transcription")
		assert.Zero(t, f.speaker.calls)
		f.assertTempEmpty(t)
	}
}

func TestTranscriptionFailureIsFatalAndCleansUp(t *testing.T) {
	f := newFixture(t)
	f.trans.err = errors.New("whisper unavailable")

	_, err := f.p.SupportFromAudio(context.Background(), &message.Blob{Filename: "a.wav", Data: []byte("x")}, nil, "http://h/")
	require.Error(t, err)
	assert.False(t, IsClientError(err))
	assert.ErrorContains(t, err, "whisper unavailable")
	f.assertTempEmpty(t)
}

func TestComposeFailureIsFatalAndCleansUp(t *testing.T) {
	f := newFixture(t)
	f.comp.err = errors.New("generation model crashed")

	img := &message.Blob{Filename: "x.jpg", Data: []byte("jpg")}
	_, err := f.p.SupportFromAudio(context.Background(), &message.Blob{Filename: "a.wav", Data: []byte("x")}, img, "http://h/")
	require.Error(t, err)
	assert.False(t, IsClientError(err))
	assert.Zero(t, f.speaker.calls)
	f.assertTempEmpty(t)
}

func TestEmptyAnswerGetsFallbackAudioMessage(t *testing.T) {
	f := newFixture(t)
	f.comp.text = ""

	resp, err := f.p.SupportFromText(context.Background(), "hola", nil, "http://h/")
	require.NoError(t, err)
	assert.Equal(t, "", resp.TextResponse)
	assert.Equal(t, "No se generó audio porque la respuesta de texto estaba vacía.", resp.AudioURL)
}

func TestHandleValidatesInput(t *testing.T) {
	f := newFixture(t)
	q := "texto"

	_, err := f.p.Handle(context.Background(), &message.SupportRequest{}, "http://h/")
	assert.ErrorIs(t, err, ErrNoInput)

	_, err = f.p.Handle(context.Background(), &message.SupportRequest{
		QueryText: &q,
		Audio:     &message.Blob{Filename: "a.wav", Data: []byte("x")},
	}, "http://h/")
	assert.ErrorIs(t, err, ErrConflictingInput)
	assert.True(t, IsClientError(err))

	_, err = f.p.SupportFromAudio(context.Background(), nil, nil, "http://h/")
	assert.ErrorIs(t, err, ErrNoInput)
	f.assertTempEmpty(t)
}
