// Package cache memoizes query embeddings in redis.
//
// Vectors are keyed by embedding model and a hash of the text. The cache is
// best effort: any redis failure falls through to the embedding model.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/nadzzz/supportline/internal/config"
	"github.com/nadzzz/supportline/internal/llm"
)

// ErrCacheMiss mirrors redis.Nil for callers.
var ErrCacheMiss = redis.Nil

// Store is the key/value surface the cache needs.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Close() error
}

// RedisStore wraps a go-redis client.
type RedisStore struct {
	inner *redis.Client
}

// NewRedisStore connects to redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg config.RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Addr, err)
	}
	return &RedisStore{inner: client}, nil
}

// Get fetches the raw value for key.
func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	return r.inner.Get(ctx, key).Bytes()
}

// Set stores value under key with a TTL.
func (r *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.inner.Set(ctx, key, value, ttl).Err()
}

// Close closes the client.
func (r *RedisStore) Close() error { return r.inner.Close() }

// Embedder wraps an llm.Embedder with a read-through cache.
type Embedder struct {
	next  llm.Embedder
	store Store
	model string
	ttl   time.Duration
}

// NewEmbedder returns an llm.Embedder that consults store before next.
// model namespaces the keys so switching embedding models never serves stale vectors.
func NewEmbedder(next llm.Embedder, store Store, model string, ttl time.Duration) *Embedder {
	return &Embedder{next: next, store: store, model: model, ttl: ttl}
}

// Embed serves cached vectors and embeds only the misses, preserving input order.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var (
		missIdx   []int
		missTexts []string
	)
	for i, t := range texts {
		raw, err := e.store.Get(ctx, e.key(t))
		if err == nil {
			if vec, ok := decode(raw); ok {
				out[i] = vec
				continue
			}
		} else if !errors.Is(err, ErrCacheMiss) {
			slog.Warn("embedding cache read failed", "error", err)
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, t)
	}

	if len(missTexts) == 0 {
		slog.Debug("embedding cache hit", "count", len(texts))
		return out, nil
	}

	vecs, err := e.next.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missTexts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d inputs", len(vecs), len(missTexts))
	}
	for j, i := range missIdx {
		out[i] = vecs[j]
		if err := e.store.Set(ctx, e.key(missTexts[j]), encode(vecs[j]), e.ttl); err != nil {
			slog.Warn("embedding cache write failed", "error", err)
		}
	}
	return out, nil
}

func (e *Embedder) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return "supportline:emb:" + e.model + ":" + hex.EncodeToString(sum[:])
}

func encode(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decode(b []byte) ([]float32, bool) {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil, false
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, true
}
