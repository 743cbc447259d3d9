package biometric

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Reference is one gallery entry: a user identity, the storage key of the
// reference image behind it, and its embedding. The identity comes from the
// gallery layout itself, so matching never reverse-engineers a user from a
// filename.
type Reference struct {
	UserID    string
	Key       string
	Embedding []float64
}

// Source provides the reference gallery. Implementations may cache
// embeddings; recomputation per call is correct, just slow.
type Source interface {
	References(ctx context.Context) ([]Reference, error)
}

// DirSource reads a local gallery laid out as <root>/<userID>/<image>.
// Embeddings are cached per file and invalidated on modification.
type DirSource struct {
	root     string
	embedder Embedder

	mu    sync.Mutex
	cache map[string]dirCacheEntry
}

type dirCacheEntry struct {
	modTime   int64
	size      int64
	embedding []float64
}

func NewDirSource(root string, embedder Embedder) *DirSource {
	return &DirSource{
		root:     root,
		embedder: embedder,
		cache:    make(map[string]dirCacheEntry),
	}
}

func (s *DirSource) References(ctx context.Context) ([]Reference, error) {
	userDirs, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading gallery root: %w", err)
	}

	var refs []Reference
	for _, userDir := range userDirs {
		if !userDir.IsDir() {
			continue
		}
		userID := userDir.Name()

		files, err := os.ReadDir(filepath.Join(s.root, userID))
		if err != nil {
			return nil, fmt.Errorf("reading gallery dir for %s: %w", userID, err)
		}

		for _, file := range files {
			if file.IsDir() {
				continue
			}
			path := filepath.Join(s.root, userID, file.Name())

			embedding, err := s.embed(ctx, path)
			if err != nil {
				return nil, err
			}
			refs = append(refs, Reference{UserID: userID, Key: path, Embedding: embedding})
		}
	}

	return refs, nil
}

func (s *DirSource) embed(ctx context.Context, path string) ([]float64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat gallery image: %w", err)
	}

	s.mu.Lock()
	entry, ok := s.cache[path]
	s.mu.Unlock()
	if ok && entry.modTime == info.ModTime().UnixNano() && entry.size == info.Size() {
		return entry.embedding, nil
	}

	embedding, err := s.embedder.EmbedFile(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("embedding gallery image %s: %w", path, err)
	}

	s.mu.Lock()
	s.cache[path] = dirCacheEntry{
		modTime:   info.ModTime().UnixNano(),
		size:      info.Size(),
		embedding: embedding,
	}
	s.mu.Unlock()

	return embedding, nil
}
