// Package revision renames output files to embed their content fingerprint
// and patches all cross-references to the old names, enabling long-term
// browser caching of the published tree.
package revision

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"git.home.luguber.info/inful/siteforge/internal/fingerprint"
)

// CollisionError reports two distinct original paths mapping to the same
// revisioned path. Practically impossible with a strong digest, but checked
// rather than silently ignored.
type CollisionError struct {
	First      string
	Second     string
	Revisioned string
}

func (e *CollisionError) Error() string {
	return fmt.Sprintf("revision collision: %s and %s both map to %s", e.First, e.Second, e.Revisioned)
}

// UnresolvedReferenceError reports a reference rewrite that could not locate
// or update the referencing files. A missed rewrite yields a broken link in
// the published site, so this is fatal.
type UnresolvedReferenceError struct {
	Path string
	Err  error
}

func (e *UnresolvedReferenceError) Error() string {
	return fmt.Sprintf("unresolved reference in %s: %v", e.Path, e.Err)
}

func (e *UnresolvedReferenceError) Unwrap() error { return e.Err }

// Record maps each original output path to its revisioned path, plus the set
// of artifact files in which references to the original were replaced. It is
// the terminal artifact-tree mutation of a run.
type Record struct {
	Renames     map[string]string   // original relative path -> revisioned relative path
	RewrittenIn map[string][]string // original relative path -> files containing replaced references
}

// revisable lists the output types that receive fingerprint-suffixed names.
// Markup is excluded: entry points must keep stable URLs.
var revisable = map[string]bool{
	".css":   true,
	".js":    true,
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

// textual lists the artifact types scanned for literal path references.
var textual = map[string]bool{
	".html":        true,
	".css":         true,
	".js":          true,
	".json":        true,
	".xml":         true,
	".txt":         true,
	".svg":         true,
	".webmanifest": true,
}

// Revisioner rewrites an artifact tree in place.
type Revisioner struct {
	logger *slog.Logger
}

// New creates a Revisioner.
func New() *Revisioner {
	return &Revisioner{logger: slog.Default()}
}

// WithLogger sets a custom logger.
func (r *Revisioner) WithLogger(logger *slog.Logger) *Revisioner {
	r.logger = logger
	return r
}

// Revise fingerprints every eligible file under dir, renames it to embed the
// fingerprint token before the extension, and replaces literal occurrences
// of the old relative path across all text artifacts. Revise is idempotent:
// on an already-revisioned unchanged tree it reproduces the same mapping
// without double-revisioning any name.
func (r *Revisioner) Revise(dir string) (*Record, error) {
	candidates, err := collect(dir, revisable)
	if err != nil {
		return nil, fmt.Errorf("scan artifact tree: %w", err)
	}

	record := &Record{
		Renames:     make(map[string]string),
		RewrittenIn: make(map[string][]string),
	}
	byRevisioned := make(map[string]string)

	for _, rel := range candidates {
		abs := filepath.Join(dir, filepath.FromSlash(rel))

		original, revisioned, already := plan(rel)
		if !already {
			token, err := fingerprint.FileToken(abs)
			if err != nil {
				return nil, err
			}
			ext := filepath.Ext(rel)
			revisioned = strings.TrimSuffix(rel, ext) + "." + token + ext
		}

		if prior, exists := byRevisioned[revisioned]; exists && prior != original {
			return nil, &CollisionError{First: prior, Second: original, Revisioned: revisioned}
		}
		byRevisioned[revisioned] = original
		record.Renames[original] = revisioned

		if already {
			// Name already carries a revision token; nothing to move. The
			// token is not recomputed because reference rewriting in the
			// prior run may have altered the file's bytes after hashing.
			continue
		}
		dest := filepath.Join(dir, filepath.FromSlash(revisioned))
		if err := os.Rename(abs, dest); err != nil {
			return nil, fmt.Errorf("rename %s: %w", rel, err)
		}
		r.logger.Debug("Revisioned file", "from", original, "to", revisioned)
	}

	if err := r.rewriteReferences(dir, record); err != nil {
		return nil, err
	}

	r.logger.Info("Revisioning complete",
		"files", len(record.Renames),
		"rewritten", len(record.RewrittenIn))
	return record, nil
}

// tokenSuffix matches a revision token segment at the end of a filename stem.
var tokenSuffix = regexp.MustCompile(`\.[0-9a-f]{10}$`)

// plan reports whether rel already carries a revision token and reconstructs
// the original path if so, letting reruns on a revisioned tree reproduce the
// first run's mapping instead of double-revisioning names.
func plan(rel string) (original, revisioned string, already bool) {
	ext := filepath.Ext(rel)
	stem := strings.TrimSuffix(rel, ext)

	if m := tokenSuffix.FindString(stem); m != "" {
		original = strings.TrimSuffix(stem, m) + ext
		return original, rel, true
	}
	return rel, "", false
}

// rewriteReferences replaces literal occurrences of each renamed original
// path across every text artifact. Longer originals are replaced first so an
// original that is a prefix of another cannot corrupt it.
func (r *Revisioner) rewriteReferences(dir string, record *Record) error {
	renamed := make([]string, 0, len(record.Renames))
	for original, revisioned := range record.Renames {
		if original != revisioned {
			renamed = append(renamed, original)
		}
	}
	if len(renamed) == 0 {
		return nil
	}
	sort.Slice(renamed, func(i, j int) bool {
		if len(renamed[i]) != len(renamed[j]) {
			return len(renamed[i]) > len(renamed[j])
		}
		return renamed[i] < renamed[j]
	})

	targets, err := collect(dir, textual)
	if err != nil {
		return &UnresolvedReferenceError{Path: dir, Err: err}
	}

	for _, rel := range targets {
		abs := filepath.Join(dir, filepath.FromSlash(rel))
		data, err := os.ReadFile(abs)
		if err != nil {
			return &UnresolvedReferenceError{Path: rel, Err: err}
		}

		content := string(data)
		changed := false
		for _, original := range renamed {
			if !strings.Contains(content, original) {
				continue
			}
			content = strings.ReplaceAll(content, original, record.Renames[original])
			record.RewrittenIn[original] = append(record.RewrittenIn[original], rel)
			changed = true
		}
		if !changed {
			continue
		}
		if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
			return &UnresolvedReferenceError{Path: rel, Err: err}
		}
	}

	sortRewritten(record)
	return nil
}

func sortRewritten(record *Record) {
	for original := range record.RewrittenIn {
		sort.Strings(record.RewrittenIn[original])
	}
}

// collect walks dir returning sorted slash-relative paths whose extension is
// in allowed. Sorting keeps revisioning order deterministic.
func collect(dir string, allowed map[string]bool) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !allowed[strings.ToLower(filepath.Ext(path))] {
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
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}
