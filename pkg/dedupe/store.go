// Package dedupe holds the set of fingerprints already retained on disk.
//
// The set only grows. CheckAndInsert returns true at most once for any
// fingerprint over the lifetime of a Store, which is what keeps a visually
// identical image from being written twice within a run or across runs.
package dedupe

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"imgharvest/pkg/fingerprint"
	"imgharvest/pkg/logger"
)

// Hasher is the part of fingerprint.Hasher the store needs for seeding
type Hasher interface {
	Hash(data []byte) (fingerprint.Fingerprint, error)
}

// Store is a grow-only fingerprint set safe for concurrent use
type Store struct {
	mu  sync.Mutex
	set map[fingerprint.Fingerprint]struct{}
}

// LoadStats summarises a seeding scan
type LoadStats struct {
	Files   int
	Loaded  int
	Skipped int
}

// New creates an empty store
func New() *Store {
	return &Store{set: make(map[fingerprint.Fingerprint]struct{})}
}

// LoadExisting builds a store from every image file in dir.
// A missing directory yields an empty store. Files that cannot be read or
// decoded are skipped with a warning. Only failing to list dir is an error.
func LoadExisting(ctx context.Context, dir string, hasher Hasher, log logger.Logger) (*Store, LoadStats, error) {
	s := New()
	stats, err := s.Seed(ctx, dir, hasher, log)
	return s, stats, err
}

// Seed adds the fingerprint of every image file in dir to the store
func (s *Store) Seed(ctx context.Context, dir string, hasher Hasher, log logger.Logger) (LoadStats, error) {
	var stats LoadStats
	if log == nil {
		log = logger.NewNopLogger()
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			log.WithField("dir", dir).Debug("Image directory does not exist yet, starting empty")
			return stats, nil
		}
		return stats, fmt.Errorf("failed to list image directory: %w", err)
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if !entry.Type().IsRegular() || strings.HasSuffix(entry.Name(), ".tmp") {
			continue
		}
		stats.Files++

		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			stats.Skipped++
			log.WithError(err).WithField("file", path).Warn("Skipping unreadable image")
			continue
		}

		fp, err := hasher.Hash(data)
		if err != nil {
			stats.Skipped++
			log.WithError(err).WithField("file", path).Warn("Skipping undecodable image")
			continue
		}

		s.CheckAndInsert(fp)
		stats.Loaded++
	}

	log.InfoWithFields("Seeded dedupe store", map[string]interface{}{
		"dir":     dir,
		"files":   stats.Files,
		"loaded":  stats.Loaded,
		"skipped": stats.Skipped,
		"unique":  s.Len(),
	})
	return stats, nil
}

// CheckAndInsert adds fp and reports true if it was not present.
// A present fingerprint leaves the store unchanged and reports false.
func (s *Store) CheckAndInsert(fp fingerprint.Fingerprint) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.set[fp]; ok {
		return false
	}
	s.set[fp] = struct{}{}
	return true
}

// Contains reports whether fp has been retained
func (s *Store) Contains(fp fingerprint.Fingerprint) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.set[fp]
	return ok
}

// Len returns the number of distinct fingerprints
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.set)
}

// Fingerprints returns a sorted snapshot of the set
func (s *Store) Fingerprints() []fingerprint.Fingerprint {
	s.mu.Lock()
	out := make([]fingerprint.Fingerprint, 0, len(s.set))
	for fp := range s.set {
		out = append(out, fp)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
