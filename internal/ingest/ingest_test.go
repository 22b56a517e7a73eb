package ingest

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nadzzz/supportline/internal/config"
	"github.com/nadzzz/supportline/internal/index"
)

type fakeEmbedder struct {
	calls int
	err   error
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1, 0}
	}
	return out, nil
}

type fakeIndex struct {
	dim     int
	resets  int
	upserts int
	chunks  []index.Chunk
}

func (f *fakeIndex) Search(context.Context, []float32, int) ([]index.Hit, error) { return nil, nil }

func (f *fakeIndex) Reset(_ context.Context, dim int) error {
	f.resets++
	f.dim = dim
	f.chunks = nil
	return nil
}

func (f *fakeIndex) Upsert(_ context.Context, chunks []index.Chunk) error {
	f.upserts++
	f.chunks = append(f.chunks, chunks...)
	return nil
}

func (f *fakeIndex) Close() error { return nil }

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func ingestCfg() config.IngestConfig {
	return config.IngestConfig{ChunkSize: 100, ChunkOverlap: 20, BatchSize: 4}
}

func TestResolvePaths(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "faq.txt", "x")
	writeFile(t, dir, "sub/errores.md", "x")
	writeFile(t, dir, "manual.PDF", "x")
	writeFile(t, dir, "logo.png", "x")

	paths, err := ResolvePaths(dir, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "faq.txt"),
		filepath.Join(dir, "manual.PDF"),
		filepath.Join(dir, "sub", "errores.md"),
	}, paths)

	paths, err = ResolvePaths(dir, []string{"faq.txt", "/abs/manual.pdf"})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "faq.txt"), "/abs/manual.pdf"}, paths)

	_, err = ResolvePaths(filepath.Join(dir, "missing"), nil)
	assert.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	docs, err := LoadFile(writeFile(t, dir, "Preguntas Frecuentes (FAQ).txt", "¿Cómo cambio mi contraseña?"))
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "Preguntas Frecuentes (FAQ).txt", docs[0].Source)
	assert.Equal(t, "¿Cómo cambio mi contraseña?", docs[0].Text)

	_, err = LoadFile(writeFile(t, dir, "x.docx", "x"))
	assert.Error(t, err)

	_, err = LoadFile(filepath.Join(dir, "nope.txt"))
	assert.Error(t, err)
}

func TestLoadFileRejectsCorruptPDF(t *testing.T) {
	_, err := LoadFile(writeFile(t, t.TempDir(), "manual.pdf", "not a pdf"))
	assert.Error(t, err)
}

func TestRunIndexesAllChunks(t *testing.T) {
	dir := t.TempDir()
	faq := writeFile(t, dir, "faq.txt", words(60))
	errs := writeFile(t, dir, "errores.md", "Error 42: reinicie el servicio.")
	missing := filepath.Join(dir, "ManualDeUsuario.pdf")

	emb := &fakeEmbedder{}
	idx := &fakeIndex{}
	var out bytes.Buffer
	sum, err := New(emb, idx, ingestCfg(), &out).Run(context.Background(), []string{faq, missing, errs})
	require.NoError(t, err)

	assert.Equal(t, 3, sum.Files)
	assert.Equal(t, 1, sum.Skipped)
	assert.Equal(t, 2, sum.Documents)
	assert.Equal(t, 3, sum.Dimension)
	assert.Equal(t, sum.Chunks, len(idx.chunks))
	assert.Equal(t, 1, idx.resets)
	assert.Equal(t, 3, idx.dim)

	// ceil(chunks / batch) calls for both embedding and upsert
	batches := (sum.Chunks + 3) / 4
	assert.Equal(t, batches, emb.calls)
	assert.Equal(t, batches, idx.upserts)

	last := idx.chunks[len(idx.chunks)-1]
	assert.Equal(t, "errores.md", last.Source)
	assert.Equal(t, "Error 42: reinicie el servicio.", last.Text)
	for _, c := range idx.chunks {
		assert.Len(t, c.Vector, 3)
	}

	assert.Contains(t, out.String(), "skipped")
	assert.Contains(t, out.String(), "Total searchable chunks")
}

func TestRunNoDocuments(t *testing.T) {
	idx := &fakeIndex{}
	var out bytes.Buffer
	_, err := New(&fakeEmbedder{}, idx, ingestCfg(), &out).Run(context.Background(), []string{"/does/not/exist.txt"})
	require.ErrorIs(t, err, ErrNoDocuments)
	assert.Equal(t, "no documents loaded", err.Error())
	assert.Zero(t, idx.resets, "index must not be reset when nothing was loaded")
}

func TestRunEmbeddingFailureLeavesIndexUntouched(t *testing.T) {
	dir := t.TempDir()
	idx := &fakeIndex{}
	emb := &fakeEmbedder{err: errors.New("model not found")}
	_, err := New(emb, idx, ingestCfg(), &bytes.Buffer{}).Run(context.Background(), []string{writeFile(t, dir, "a.txt", "hola")})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "model not found"))
	assert.Zero(t, idx.resets)
}
