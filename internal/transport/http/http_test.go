package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nadzzz/supportline/internal/config"
	"github.com/nadzzz/supportline/internal/message"
	"github.com/nadzzz/supportline/internal/pipeline"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type recordingHandler struct {
	calls int
	req   *message.SupportRequest
	base  string
	resp  *message.SupportResponse
	err   error
}

func (h *recordingHandler) handle(_ context.Context, req *message.SupportRequest, base string) (*message.SupportResponse, error) {
	h.calls++
	h.req, h.base = req, base
	if h.err != nil {
		return nil, h.err
	}
	if h.resp != nil {
		return h.resp, nil
	}
	return &message.SupportResponse{TextResponse: "respuesta", AudioURL: base + "static/audio_responses/a.mp3"}, nil
}

func newRouter(t *testing.T, cfg config.ServerConfig) (*gin.Engine, *recordingHandler, string) {
	t.Helper()
	static := t.TempDir()
	h := &recordingHandler{}
	return New(cfg, static).Router(h.handle), h, static
}

type part struct {
	field, filename string
	data            []byte
}

func multipartBody(t *testing.T, fields map[string]string, files ...part) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	for _, f := range files {
		fw, err := w.CreateFormFile(f.field, f.filename)
		require.NoError(t, err)
		_, err = fw.Write(f.data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func post(router *gin.Engine, path string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeDetail(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Detail
}

func TestWelcome(t *testing.T) {
	router, _, _ := newRouter(t, config.ServerConfig{})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"Bienvenido a la API de Soporte Inteligente de Etau Inc."}`, rec.Body.String())
}

func TestSupportTextWithImage(t *testing.T) {
	router, h, _ := newRouter(t, config.ServerConfig{})
	body, ct := multipartBody(t, map[string]string{"text_query": "¿Cómo exporto un reporte?"},
		part{field: "image", filename: "captura.png", data: []byte("png-bytes")})

	rec := post(router, "/support", body, ct)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp message.SupportResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "respuesta", resp.TextResponse)
	assert.Equal(t, "http://example.com/static/audio_responses/a.mp3", resp.AudioURL)

	require.NotNil(t, h.req.QueryText)
	assert.Equal(t, "¿Cómo exporto un reporte?", *h.req.QueryText)
	require.NotNil(t, h.req.Image)
	assert.Equal(t, "captura.png", h.req.Image.Filename)
	assert.Equal(t, []byte("png-bytes"), h.req.Image.Data)
	assert.Nil(t, h.req.Audio)
}

func TestSupportTextURLEncoded(t *testing.T) {
	router, h, _ := newRouter(t, config.ServerConfig{})
	form := url.Values{"text_query": {"hola"}}

	rec := post(router, "/support", bytes.NewBufferString(form.Encode()), "application/x-www-form-urlencoded")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "hola", *h.req.QueryText)
	assert.Nil(t, h.req.Image)
}

func TestSupportTextMissingQuery(t *testing.T) {
	router, h, _ := newRouter(t, config.ServerConfig{})
	body, ct := multipartBody(t, nil, part{field: "image", filename: "a.png", data: []byte("x")})

	rec := post(router, "/support", body, ct)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, pipeline.ErrNoInput.Error(), decodeDetail(t, rec))
	assert.Zero(t, h.calls)
}

func TestSupportAudio(t *testing.T) {
	router, h, _ := newRouter(t, config.ServerConfig{PublicBaseURL: "https://soporte.etau.example"})
	body, ct := multipartBody(t, nil, part{field: "audio", filename: "pregunta.ogg", data: []byte("ogg")})

	rec := post(router, "/support/audio", body, ct)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "https://soporte.etau.example/", h.base)
	require.NotNil(t, h.req.Audio)
	assert.Equal(t, "pregunta.ogg", h.req.Audio.Filename)
	assert.Nil(t, h.req.QueryText)
	assert.Nil(t, h.req.Image)
}

func TestSupportAudioMissingFile(t *testing.T) {
	router, h, _ := newRouter(t, config.ServerConfig{})
	body, ct := multipartBody(t, map[string]string{"text_query": "hola"})

	rec := post(router, "/support/audio", body, ct)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, h.calls)
}

func TestSupportAudioEmptyTranscription(t *testing.T) {
	router, h, _ := newRouter(t, config.ServerConfig{})
	h.err = pipeline.ErrEmptyTranscription
	body, ct := multipartBody(t, nil, part{field: "audio", filename: "silencio.wav", data: []byte("wav")})

	rec := post(router, "/support/audio", body, ct)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "El audio está vacío o no se pudo transcribir.", decodeDetail(t, rec))
}

func TestSupportFatalErrorHidesDetail(t *testing.T) {
	router, h, _ := newRouter(t, config.ServerConfig{})
	h.err = errors.New("generation: connection refused to 10.0.0.5:11434")
	body, ct := multipartBody(t, map[string]string{"text_query": "hola"})

	rec := post(router, "/support", body, ct)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"detail":"Internal Server Error"}`, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "11434")
}

func TestUploadTooLarge(t *testing.T) {
	router, h, _ := newRouter(t, config.ServerConfig{MaxUploadMB: 1})
	body, ct := multipartBody(t, nil, part{field: "audio", filename: "big.wav", data: bytes.Repeat([]byte("a"), 2<<20)})

	rec := post(router, "/support/audio", body, ct)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Zero(t, h.calls)
}

func TestStaticServesGeneratedAudio(t *testing.T) {
	router, _, static := newRouter(t, config.ServerConfig{})
	dir := filepath.Join(static, "audio_responses")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "abc.mp3"), []byte("ID3"), 0o644))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/static/audio_responses/abc.mp3", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ID3", rec.Body.String())
}

func TestCORSPreflight(t *testing.T) {
	router, _, _ := newRouter(t, config.ServerConfig{CORSOrigins: []string{"https://app.etau.example"}})

	req := httptest.NewRequest(http.MethodOptions, "/support", nil)
	req.Header.Set("Origin", "https://app.etau.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "content-type")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.etau.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "content-type", rec.Header().Get("Access-Control-Allow-Headers"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestBaseAddressFromRequest(t *testing.T) {
	tr := New(config.ServerConfig{}, "")
	req := httptest.NewRequest(http.MethodPost, "http://10.1.2.3:8000/support", nil)
	assert.Equal(t, "http://10.1.2.3:8000/", tr.baseAddress(req))

	req.Header.Set("X-Forwarded-Proto", "https")
	assert.True(t, strings.HasPrefix(tr.baseAddress(req), "https://"))

	tr = New(config.ServerConfig{PublicBaseURL: "https://api.example/"}, "")
	assert.Equal(t, "https://api.example/", tr.baseAddress(req))
}

func TestSwaggerDocRegistered(t *testing.T) {
	router, _, _ := newRouter(t, config.ServerConfig{})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/swagger/doc.json", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/support/audio")
}

func TestCloseBeforeListen(t *testing.T) {
	tr := New(config.ServerConfig{}, "")
	assert.Equal(t, "http", tr.Name())
	assert.NoError(t, tr.Close())
}

func TestCloseStopsListen(t *testing.T) {
	tr := New(config.ServerConfig{Port: 0}, t.TempDir())
	tr.server = &http.Server{Handler: tr.Router((&recordingHandler{}).handle)}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	done := make(chan error, 1)
	go func() { done <- tr.server.Serve(ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, tr.Close())
	assert.ErrorIs(t, <-done, http.ErrServerClosed)
}
