// Package sqlite implements index.Index over a single SQLite file.
//
// Search is a brute-force cosine scan, which is fine for the few thousand
// chunks a support knowledge base produces.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	_ "modernc.org/sqlite"

	"github.com/nadzzz/supportline/internal/index"
)

const schema = `CREATE TABLE IF NOT EXISTS chunks (
	id        TEXT PRIMARY KEY,
	text      TEXT NOT NULL,
	source    TEXT NOT NULL,
	embedding BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);`

// Index is a SQLite-backed vector index.
type Index struct {
	db *sql.DB
}

// Open opens (creating if needed) the index file at path.
func Open(path string) (*Index, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating index dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening index %s: %w", path, err)
	}
	// modernc's driver serialises writes per connection anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating index schema: %w", err)
	}
	return &Index{db: db}, nil
}

// Search scans every stored chunk and returns the k most similar to vec.
// Ties keep insertion order.
func (s *Index) Search(ctx context.Context, vec []float32, k int) ([]index.Hit, error) {
	if k <= 0 {
		return nil, nil
	}
	dim, err := s.dimension(ctx)
	if err != nil {
		return nil, err
	}
	if dim > 0 && len(vec) != dim {
		return nil, fmt.Errorf("query vector has %d dimensions, index has %d", len(vec), dim)
	}

	rows, err := s.db.QueryContext(ctx, "SELECT text, source, embedding FROM chunks ORDER BY rowid")
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var hits []index.Hit
	for rows.Next() {
		var (
			h    index.Hit
			blob []byte
		)
		if err := rows.Scan(&h.Text, &h.Source, &blob); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		emb, err := decodeVector(blob)
		if err != nil {
			return nil, err
		}
		if len(emb) != len(vec) {
			return nil, fmt.Errorf("query vector has %d dimensions, chunk from %s has %d", len(vec), h.Source, len(emb))
		}
		h.Score = index.Cosine(vec, emb)
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})
	if k > len(hits) {
		k = len(hits)
	}
	return hits[:k], nil
}

// dimension returns the vector size recorded by Reset, or 0 if none was.
func (s *Index) dimension(ctx context.Context) (int, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM meta WHERE key = 'dim'").Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading index dimension: %w", err)
	}
	dim, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("corrupt index dimension %q: %w", value, err)
	}
	return dim, nil
}

// Reset deletes every chunk and records the vector size.
func (s *Index) Reset(ctx context.Context, dim int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks"); err != nil {
		return fmt.Errorf("clearing chunks: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT OR REPLACE INTO meta (key, value) VALUES ('dim', ?)", fmt.Sprint(dim)); err != nil {
		return fmt.Errorf("recording dimension: %w", err)
	}
	return tx.Commit()
}

// Upsert writes chunks in one transaction, keyed by their text.
func (s *Index) Upsert(ctx context.Context, chunks []index.Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, "INSERT OR REPLACE INTO chunks (id, text, source, embedding) VALUES (?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("preparing upsert: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		if _, err := stmt.ExecContext(ctx, index.ChunkID(c.Text), c.Text, c.Source, encodeVector(c.Vector)); err != nil {
			return fmt.Errorf("upserting chunk from %s: %w", c.Source, err)
		}
	}
	return tx.Commit()
}

// Count returns the number of stored chunks.
func (s *Index) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&n)
	return n, err
}

// Close closes the database.
func (s *Index) Close() error { return s.db.Close() }

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, errors.New("corrupt embedding blob")
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, nil
}
