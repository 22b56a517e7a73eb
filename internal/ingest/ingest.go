// Package ingest builds the vector index from the knowledge-base files.
//
// Ingestion runs offline: files are loaded, split into overlapping chunks,
// embedded in batches and written to a freshly reset index. The HTTP service
// only ever reads the result.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/fatih/color"

	"github.com/nadzzz/supportline/internal/config"
	"github.com/nadzzz/supportline/internal/index"
	"github.com/nadzzz/supportline/internal/llm"
)

// ErrNoDocuments is returned when none of the requested files could be loaded.
var ErrNoDocuments = errors.New("no documents loaded")

// Summary describes a completed ingestion run.
type Summary struct {
	Files     int
	Skipped   int
	Documents int
	Chunks    int
	Dimension int
	Duration  time.Duration
}

// Ingester loads, splits, embeds and indexes knowledge-base files.
type Ingester struct {
	embedder  llm.Embedder
	index     index.Index
	splitter  *Splitter
	batchSize int
	out       io.Writer
}

// New creates an Ingester. Progress is printed to out.
func New(embedder llm.Embedder, idx index.Index, cfg config.IngestConfig, out io.Writer) *Ingester {
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 32
	}
	return &Ingester{
		embedder:  embedder,
		index:     idx,
		splitter:  NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap),
		batchSize: batch,
		out:       out,
	}
}

// Run ingests paths, replacing the index contents. Missing or unreadable
// files are reported and skipped.
func (in *Ingester) Run(ctx context.Context, paths []string) (*Summary, error) {
	start := time.Now()
	ok := color.New(color.FgGreen).SprintFunc()
	warn := color.New(color.FgYellow).SprintFunc()
	bold := color.New(color.Bold).SprintFunc()

	fmt.Fprintln(in.out, bold("Starting knowledge-base ingestion..."))

	sum := &Summary{Files: len(paths)}
	var docs []Document
	for _, path := range paths {
		loaded, err := LoadFile(path)
		if err != nil {
			sum.Skipped++
			slog.Warn("skipping knowledge-base file", "path", path, "error", err)
			fmt.Fprintf(in.out, "%s %s: %v\n", warn("skipped"), path, err)
			continue
		}
		docs = append(docs, loaded...)
		fmt.Fprintf(in.out, "%s %s\n", ok("loaded"), path)
	}
	if len(docs) == 0 {
		fmt.Fprintln(in.out, color.RedString("No documents loaded. Aborting."))
		return nil, ErrNoDocuments
	}
	sum.Documents = len(docs)

	var chunks []index.Chunk
	for _, d := range docs {
		for _, text := range in.splitter.Split(d.Text) {
			chunks = append(chunks, index.Chunk{Text: text, Source: d.Source})
		}
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: all files were empty", ErrNoDocuments)
	}
	fmt.Fprintf(in.out, "Split %d documents into %d chunks\n", len(docs), len(chunks))

	for i := 0; i < len(chunks); i += in.batchSize {
		end := min(i+in.batchSize, len(chunks))
		texts := make([]string, end-i)
		for j := range texts {
			texts[j] = chunks[i+j].Text
		}
		vecs, err := in.embedder.Embed(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embedding chunks %d-%d: %w", i, end, err)
		}
		if len(vecs) != len(texts) {
			return nil, fmt.Errorf("embedding chunks %d-%d: got %d vectors", i, end, len(vecs))
		}
		for j, v := range vecs {
			chunks[i+j].Vector = v
		}
		slog.Debug("embedded batch", "from", i, "to", end)
	}

	sum.Dimension = len(chunks[0].Vector)
	if err := in.index.Reset(ctx, sum.Dimension); err != nil {
		return nil, fmt.Errorf("resetting index: %w", err)
	}
	for i := 0; i < len(chunks); i += in.batchSize {
		end := min(i+in.batchSize, len(chunks))
		if err := in.index.Upsert(ctx, chunks[i:end]); err != nil {
			return nil, fmt.Errorf("writing index: %w", err)
		}
	}

	sum.Chunks = len(chunks)
	sum.Duration = time.Since(start)

	fmt.Fprintln(in.out)
	fmt.Fprintln(in.out, ok(bold("Ingestion complete.")))
	fmt.Fprintf(in.out, "Total searchable chunks: %s\n", bold(sum.Chunks))
	if sum.Skipped > 0 {
		fmt.Fprintf(in.out, "Skipped files: %s\n", warn(sum.Skipped))
	}
	slog.Info("ingestion complete",
		"files", sum.Files,
		"skipped", sum.Skipped,
		"documents", sum.Documents,
		"chunks", sum.Chunks,
		"dimension", sum.Dimension,
		"duration", sum.Duration,
	)
	return sum, nil
}
