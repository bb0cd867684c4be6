// Package manifest generates the offline precache manifest for the built
// artifact tree. The manifest is fully regenerated on every build, never
// merged with a previous one.
package manifest

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"git.home.luguber.info/inful/siteforge/internal/fingerprint"
)

// FileName is the fixed location of the manifest inside the artifact tree.
const FileName = "precache-manifest.json"

// PrecacheManifest describes which artifact paths an offline-capable client
// should proactively cache, plus a fingerprint downstream consumers use to
// detect manifest changes.
type PrecacheManifest struct {
	CacheID             string   `json:"cacheId"`
	Disabled            bool     `json:"disabled"`
	Precache            []string `json:"precache"`
	PrecacheFingerprint string   `json:"precacheFingerprint"`
}

// precacheExtensions lists the asset types considered precache-worthy.
// Mirrors the offline-first defaults: markup, styles, scripts, fonts and
// small images. Large media stays network-only.
var precacheExtensions = map[string]bool{
	".html":  true,
	".css":   true,
	".js":    true,
	".json":  false, // generated manifests themselves are not precached
	".svg":   true,
	".png":   true,
	".jpg":   true,
	".jpeg":  true,
	".gif":   true,
	".ico":   true,
	".woff":  true,
	".woff2": true,
	".ttf":   true,
	".eot":   true,
}

// Generate walks the artifact tree rooted at dir and builds a manifest. The
// precache list is sorted so the fingerprint is deterministic across builds
// of an identical tree.
func Generate(dir, cacheID string, disabled bool) (*PrecacheManifest, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !precacheExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		paths = append(paths, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk artifact tree: %w", err)
	}

	sort.Strings(paths)

	return &PrecacheManifest{
		CacheID:             cacheID,
		Disabled:            disabled,
		Precache:            paths,
		PrecacheFingerprint: fingerprint.Sequence(paths),
	}, nil
}

// RecomputeFingerprint resets the precache fingerprint to the digest of the
// current path list. Callers that rewrite precache entries after generation,
// such as filename revisioning, use this to keep the manifest consistent
// with its own contents.
func (m *PrecacheManifest) RecomputeFingerprint() {
	m.PrecacheFingerprint = fingerprint.Sequence(m.Precache)
}

// ToJSON serializes the manifest.
func (m *PrecacheManifest) ToJSON() ([]byte, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal manifest: %w", err)
	}
	return data, nil
}

// FromJSON deserializes a manifest.
func FromJSON(data []byte) (*PrecacheManifest, error) {
	var m PrecacheManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal manifest: %w", err)
	}
	return &m, nil
}

// Write regenerates the manifest file at its fixed path inside dir.
func (m *PrecacheManifest) Write(dir string) error {
	data, err := m.ToJSON()
	if err != nil {
		return err
	}
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// Load reads the manifest from its fixed path inside dir.
func Load(dir string) (*PrecacheManifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return FromJSON(data)
}
