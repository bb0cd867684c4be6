// Package cache implements the change-detection cache that lets asset tasks
// skip files whose content digest is unchanged since the last successful
// transform.
package cache

import (
	"log/slog"

	"git.home.luguber.info/inful/siteforge/internal/fingerprint"
)

// Store persists digest entries. The in-memory implementation gives the
// per-run semantics the pipeline defaults to; the SQLite implementation
// survives process restarts for true incremental builds.
type Store interface {
	// Get returns the recorded digest for path, or "" when absent.
	Get(path string) (string, error)

	// Put records the digest for path, replacing any prior entry.
	Put(path, digest string) error

	// Paths returns every path with a recorded entry.
	Paths() ([]string, error)

	// Delete removes the entry for path, if any.
	Delete(path string) error

	// Close releases any resources held by the store.
	Close() error
}

// ChangeCache decides whether an input file needs reprocessing. It has a
// single writer (the style-processing task) and is not shared across
// concurrent unrelated tasks, so it carries no lock.
type ChangeCache struct {
	store  Store
	logger *slog.Logger
}

// New creates a ChangeCache backed by the given store.
func New(store Store) *ChangeCache {
	return &ChangeCache{store: store, logger: slog.Default()}
}

// WithLogger sets a custom logger.
func (c *ChangeCache) WithLogger(logger *slog.Logger) *ChangeCache {
	c.logger = logger
	return c
}

// ShouldProcess reports whether path must be (re)processed. It returns false
// only when a prior entry exists with a digest equal to currentDigest.
// Store errors are treated as "must process": failing open costs speed,
// never correctness.
func (c *ChangeCache) ShouldProcess(path, currentDigest string) bool {
	prior, err := c.store.Get(path)
	if err != nil {
		c.logger.Warn("Change cache lookup failed, reprocessing", "path", path, "error", err)
		return true
	}
	if prior == "" || prior != currentDigest {
		return true
	}
	c.logger.Debug("Unchanged input, skipping", "path", path)
	return false
}

// ShouldProcessFile digests path and applies ShouldProcess. An unreadable
// file counts as requiring processing; the transform itself will surface the
// read error.
func (c *ChangeCache) ShouldProcessFile(path string) (bool, string) {
	digest, err := fingerprint.File(path)
	if err != nil {
		c.logger.Warn("Digest computation failed, reprocessing", "path", path, "error", err)
		return true, ""
	}
	return c.ShouldProcess(path, digest), digest
}

// Record stores the digest for path after a successful transform.
func (c *ChangeCache) Record(path, digest string) error {
	return c.store.Put(path, digest)
}

// Prune removes entries for files that no longer exist in the input tree.
// exists reports membership in the current input set.
func (c *ChangeCache) Prune(exists func(path string) bool) error {
	paths, err := c.store.Paths()
	if err != nil {
		return err
	}
	for _, p := range paths {
		if exists(p) {
			continue
		}
		if err := c.store.Delete(p); err != nil {
			return err
		}
		c.logger.Debug("Pruned stale cache entry", "path", p)
	}
	return nil
}

// Close closes the underlying store.
func (c *ChangeCache) Close() error { return c.store.Close() }

// MemoryStore is the default per-run store.
type MemoryStore struct {
	entries map[string]string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]string)}
}

func (s *MemoryStore) Get(path string) (string, error) { return s.entries[path], nil }

func (s *MemoryStore) Put(path, digest string) error {
	s.entries[path] = digest
	return nil
}

func (s *MemoryStore) Paths() ([]string, error) {
	paths := make([]string, 0, len(s.entries))
	for p := range s.entries {
		paths = append(paths, p)
	}
	return paths, nil
}

func (s *MemoryStore) Delete(path string) error {
	delete(s.entries, path)
	return nil
}

func (s *MemoryStore) Close() error { return nil }
