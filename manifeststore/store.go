// Package manifeststore loads, validates, promotes, and caches provider
// manifests. A compiled dist/<id>.json always takes precedence over the
// corresponding v1/providers/<id>.yaml source when both are present, mirroring
// the distilled-vs-authored precedence the original tooling enforces between
// its build step and its source tree.
package manifeststore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/aiproto/runtime/protocol"
)

// Store loads manifests from a base directory and caches the promoted,
// validated result. Safe for concurrent use; in-flight requests keep
// whichever *protocol.Manifest snapshot they were handed even if a reload
// replaces the cache entry underneath them.
type Store struct {
	baseDir string
	cache   sync.Map // provider ID -> *protocol.Manifest
}

// New returns a Store rooted at baseDir, which should contain a dist/ and/or
// v1/providers/ subdirectory.
func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

// Load returns the manifest for providerID, reading and promoting it on
// first access and serving the cached snapshot on subsequent calls.
func (s *Store) Load(providerID string) (*protocol.Manifest, error) {
	if cached, ok := s.cache.Load(providerID); ok {
		return cached.(*protocol.Manifest), nil
	}

	manifest, err := s.readAndPrepare(providerID)
	if err != nil {
		return nil, err
	}

	s.cache.Store(providerID, manifest)
	return manifest, nil
}

// Reload re-reads providerID from disk unconditionally and replaces the
// cached snapshot, returning the fresh manifest. Existing holders of the
// previous snapshot are unaffected.
func (s *Store) Reload(providerID string) (*protocol.Manifest, error) {
	manifest, err := s.readAndPrepare(providerID)
	if err != nil {
		return nil, err
	}
	s.cache.Store(providerID, manifest)
	return manifest, nil
}

// Invalidate drops the cached entry for providerID, if any, so the next
// Load re-reads it from disk.
func (s *Store) Invalidate(providerID string) {
	s.cache.Delete(providerID)
}

// IDs lists the provider IDs currently discoverable under the store's
// v1/providers directory (dist-only manifests that have no yaml source are
// not enumerated by this scan; Load still finds them by exact ID).
func (s *Store) IDs() ([]string, error) {
	dir := filepath.Join(s.baseDir, "v1", "providers")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("manifeststore: listing %s: %w", dir, err)
	}

	var ids []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if ext := filepath.Ext(name); ext == ".yaml" || ext == ".yml" {
			ids = append(ids, name[:len(name)-len(ext)])
		}
	}
	return ids, nil
}

func (s *Store) readAndPrepare(providerID string) (*protocol.Manifest, error) {
	manifest, err := s.read(providerID)
	if err != nil {
		return nil, err
	}

	promoted := protocol.PromoteCapabilities(manifest.Capabilities)
	manifest.SetCapabilitySet(promoted)

	if err := manifest.Validate(); err != nil {
		return nil, fmt.Errorf("manifeststore: %w", err)
	}
	return manifest, nil
}

func (s *Store) read(providerID string) (*protocol.Manifest, error) {
	distPath := filepath.Join(s.baseDir, "dist", providerID+".json")
	if data, err := os.ReadFile(distPath); err == nil {
		var manifest protocol.Manifest
		if err := json.Unmarshal(data, &manifest); err != nil {
			return nil, fmt.Errorf("manifeststore: parsing %s: %w", distPath, err)
		}
		return &manifest, nil
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("manifeststore: reading %s: %w", distPath, err)
	}

	yamlPath := filepath.Join(s.baseDir, "v1", "providers", providerID+".yaml")
	data, err := os.ReadFile(yamlPath)
	if err != nil {
		return nil, fmt.Errorf("manifeststore: no manifest found for %q under %s (looked for dist/%s.json and v1/providers/%s.yaml): %w",
			providerID, s.baseDir, providerID, providerID, err)
	}

	var manifest protocol.Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("manifeststore: parsing %s: %w", yamlPath, err)
	}
	return &manifest, nil
}
