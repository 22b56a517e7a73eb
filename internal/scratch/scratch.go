// Package scratch manages request-scoped temporary files.
//
// Uploaded audio and images are written to the temp directory as
// <uuid>_<basename> so concurrent requests never collide, and every file a
// request creates is removed when its Scope is released.
package scratch

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/nadzzz/supportline/internal/message"
)

// Kind tells what a temporary resource holds.
type Kind string

const (
	KindAudio Kind = "audio"
	KindImage Kind = "image"
)

// Resource is an uploaded file persisted to local storage for the duration of one request.
type Resource struct {
	ID   uuid.UUID
	Path string
	Kind Kind
}

// Store owns the temp directory.
type Store struct {
	dir string
}

// NewStore creates the temp directory if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating temp dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the temp directory.
func (s *Store) Dir() string { return s.dir }

// Persist writes the blob to <dir>/<uuid>_<basename> and returns the resource.
// The caller owns the file; see Release.
func (s *Store) Persist(blob *message.Blob, kind Kind) (*Resource, error) {
	if blob == nil {
		return nil, errors.New("persist: nil blob")
	}
	id := uuid.New()
	path := filepath.Join(s.dir, id.String()+"_"+blob.BaseName())
	if err := os.WriteFile(path, blob.Data, 0o600); err != nil {
		// A partial write may have left a file behind.
		_ = os.Remove(path)
		return nil, fmt.Errorf("persisting %s upload: %w", kind, err)
	}
	return &Resource{ID: id, Path: path, Kind: kind}, nil
}

// Release deletes the resource's file. A file that is already gone is not an error.
func Release(r *Resource) error {
	if r == nil {
		return nil
	}
	if err := os.Remove(r.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing %s: %w", r.Path, err)
	}
	return nil
}

// Scope tracks the resources created for a single request.
type Scope struct {
	store *Store

	mu        sync.Mutex
	resources []*Resource
}

// NewScope opens a request scope. Callers must defer ReleaseAll.
func (s *Store) NewScope() *Scope {
	return &Scope{store: s}
}

// Persist writes the blob through the store and registers it for release.
func (sc *Scope) Persist(blob *message.Blob, kind Kind) (*Resource, error) {
	r, err := sc.store.Persist(blob, kind)
	if err != nil {
		return nil, err
	}
	sc.mu.Lock()
	sc.resources = append(sc.resources, r)
	sc.mu.Unlock()
	return r, nil
}

// Len returns how many resources are still registered.
func (sc *Scope) Len() int {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return len(sc.resources)
}

// ReleaseAll removes every file created in this scope. Removal failures are
// logged and the remaining files are still attempted. Safe to call more than once.
func (sc *Scope) ReleaseAll() error {
	sc.mu.Lock()
	resources := sc.resources
	sc.resources = nil
	sc.mu.Unlock()

	var errs []error
	for _, r := range resources {
		if err := Release(r); err != nil {
			slog.Warn("failed to remove temporary file", "path", r.Path, "kind", r.Kind, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
