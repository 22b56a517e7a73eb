// Package http implements the HTTP transport for supportline.
//
// It exposes the two multipart support endpoints, serves synthesized audio
// from the static directory and hosts the swagger UI.
package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	_ "github.com/nadzzz/supportline/docs"
	"github.com/nadzzz/supportline/internal/config"
	"github.com/nadzzz/supportline/internal/message"
	"github.com/nadzzz/supportline/internal/pipeline"
	"github.com/nadzzz/supportline/internal/transport"
)

// WelcomeMessage is returned by GET /.
const WelcomeMessage = "Bienvenido a la API de Soporte Inteligente de Etau Inc."

const internalErrorDetail = "Internal Server Error"

// multipartMemory is how much of an upload is held in memory before spilling to disk.
const multipartMemory = 32 << 20

type errorResponse struct {
	Detail string `json:"detail"`
}

type welcomeResponse struct {
	Message string `json:"message"`
}

var _ transport.Transport = (*Transport)(nil)

// Transport implements transport.Transport over HTTP.
type Transport struct {
	cfg       config.ServerConfig
	staticDir string
	server    *http.Server
}

// New creates a new HTTP transport serving generated files from staticDir.
func New(cfg config.ServerConfig, staticDir string) *Transport {
	return &Transport{cfg: cfg, staticDir: staticDir}
}

// Name returns the transport identifier.
func (t *Transport) Name() string { return "http" }

func (t *Transport) maxUploadBytes() int64 {
	if t.cfg.MaxUploadMB <= 0 {
		return 0
	}
	return int64(t.cfg.MaxUploadMB) << 20
}

// Router builds the gin engine with every route bound to handler.
func (t *Transport) Router(handler transport.Handler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(), cors(t.cfg.CORSOrigins))

	router.GET("/", t.welcome)
	router.POST("/support", func(c *gin.Context) { t.supportText(c, handler) })
	router.POST("/support/audio", func(c *gin.Context) { t.supportAudio(c, handler) })
	router.Static("/static", t.staticDir)
	router.GET("/swagger/*any", gin.WrapH(httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	)))
	return router
}

// Listen starts the HTTP server and routes incoming requests to the handler.
func (t *Transport) Listen(ctx context.Context, handler transport.Handler) error {
	t.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", t.cfg.Port),
		Handler:           t.Router(handler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("http transport listening", "port", t.cfg.Port)

	go func() {
		<-ctx.Done()
		slog.Info("http transport shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = t.server.Shutdown(shutdownCtx)
	}()

	if err := t.server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("http listen: %w", err)
	}
	return nil
}

// Close gracefully shuts down the HTTP server.
func (t *Transport) Close() error {
	if t.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return t.server.Shutdown(ctx)
}

// welcome handles GET /.
//
// @Summary  Welcome message
// @Tags     meta
// @Produce  json
// @Success  200  {object}  welcomeResponse
// @Router   / [get]
func (t *Transport) welcome(c *gin.Context) {
	c.JSON(http.StatusOK, welcomeResponse{Message: WelcomeMessage})
}

// supportText handles POST /support.
//
// @Summary     Support from a text question
// @Description Answers a typed question, optionally with a screenshot, using the knowledge base.
// @Tags        support
// @Accept      multipart/form-data
// @Produce     json
// @Param       text_query  formData  string  true   "User question"
// @Param       image       formData  file    false  "Optional screenshot"
// @Success     200  {object}  message.SupportResponse
// @Failure     400  {object}  errorResponse
// @Failure     500  {object}  errorResponse
// @Router      /support [post]
func (t *Transport) supportText(c *gin.Context, handler transport.Handler) {
	if !t.parseForm(c) {
		return
	}
	query, ok := c.GetPostForm("text_query")
	if !ok {
		c.JSON(http.StatusBadRequest, errorResponse{Detail: pipeline.ErrNoInput.Error()})
		return
	}
	image, ok := t.formBlob(c, "image")
	if !ok {
		return
	}
	t.dispatch(c, handler, &message.SupportRequest{QueryText: &query, Image: image})
}

// supportAudio handles POST /support/audio.
//
// @Summary     Support from a recorded question
// @Description Transcribes a recorded question and answers it, optionally using a screenshot.
// @Tags        support
// @Accept      multipart/form-data
// @Produce     json
// @Param       audio  formData  file  true   "Recorded question"
// @Param       image  formData  file  false  "Optional screenshot"
// @Success     200  {object}  message.SupportResponse
// @Failure     400  {object}  errorResponse  "Empty transcription or invalid request"
// @Failure     500  {object}  errorResponse
// @Router      /support/audio [post]
func (t *Transport) supportAudio(c *gin.Context, handler transport.Handler) {
	if !t.parseForm(c) {
		return
	}
	audio, ok := t.formBlob(c, "audio")
	if !ok {
		return
	}
	if audio == nil {
		c.JSON(http.StatusBadRequest, errorResponse{Detail: pipeline.ErrNoInput.Error()})
		return
	}
	image, ok := t.formBlob(c, "image")
	if !ok {
		return
	}
	t.dispatch(c, handler, &message.SupportRequest{Audio: audio, Image: image})
}

func (t *Transport) dispatch(c *gin.Context, handler transport.Handler, req *message.SupportRequest) {
	resp, err := handler(c.Request.Context(), req, t.baseAddress(c.Request))
	if err != nil {
		if pipeline.IsClientError(err) {
			c.JSON(http.StatusBadRequest, errorResponse{Detail: err.Error()})
			return
		}
		slog.Error("support request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Detail: internalErrorDetail})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// parseForm reads the request body once so oversized or malformed uploads
// are rejected before any field is looked at. Url-encoded bodies are accepted.
func (t *Transport) parseForm(c *gin.Context) bool {
	if limit := t.maxUploadBytes(); limit > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
	}
	err := c.Request.ParseMultipartForm(multipartMemory)
	if err == nil || errors.Is(err, http.ErrNotMultipart) {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
		c.JSON(http.StatusRequestEntityTooLarge, errorResponse{Detail: "El archivo excede el tamaño máximo permitido."})
		return false
	}
	c.JSON(http.StatusBadRequest, errorResponse{Detail: "Formulario multipart inválido."})
	return false
}

// formBlob returns the uploaded file in field, or nil when it was not sent.
func (t *Transport) formBlob(c *gin.Context, field string) (*message.Blob, bool) {
	if c.Request.MultipartForm == nil {
		return nil, true
	}
	files := c.Request.MultipartForm.File[field]
	if len(files) == 0 {
		return nil, true
	}
	blob, err := readFileHeader(files[0])
	if err != nil {
		slog.Error("reading upload failed", "field", field, "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Detail: internalErrorDetail})
		return nil, false
	}
	return blob, true
}

func readFileHeader(fh *multipart.FileHeader) (*message.Blob, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	return &message.Blob{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

// baseAddress is the configured public URL, or scheme://host/ of the request.
func (t *Transport) baseAddress(r *http.Request) string {
	if t.cfg.PublicBaseURL != "" {
		return strings.TrimRight(t.cfg.PublicBaseURL, "/") + "/"
	}
	scheme := "http"
	if r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		scheme = "https"
	}
	return scheme + "://" + r.Host + "/"
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

// cors allows the configured origins ("*" for any) with every method and header.
func cors(origins []string) gin.HandlerFunc {
	anyOrigin := len(origins) == 0 || slices.Contains(origins, "*")
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && (anyOrigin || slices.Contains(origins, origin)) {
			h := c.Writer.Header()
			if anyOrigin {
				h.Set("Access-Control-Allow-Origin", "*")
			} else {
				h.Set("Access-Control-Allow-Origin", origin)
				h.Add("Vary", "Origin")
			}
			h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			if reqHeaders := c.GetHeader("Access-Control-Request-Headers"); reqHeaders != "" {
				h.Set("Access-Control-Allow-Headers", reqHeaders)
			} else {
				h.Set("Access-Control-Allow-Headers", "*")
			}
		}
		if c.Request.Method == http.MethodOptions && c.GetHeader("Access-Control-Request-Method") != "" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
