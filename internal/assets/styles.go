package assets

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"regexp"

	"git.home.luguber.info/inful/siteforge/internal/errors"
	"git.home.luguber.info/inful/siteforge/internal/fingerprint"
	"git.home.luguber.info/inful/siteforge/internal/pipeline"
)

var stylesExtensions = map[string]bool{".css": true}

var (
	cssComment    = regexp.MustCompile(`(?s)/\*.*?\*/`)
	cssWhitespace = regexp.MustCompile(`\s+`)
	cssSeparators = regexp.MustCompile(`\s*([{}:;,>])\s*`)
)

// styles minifies stylesheets into the output tree. When a change cache is
// attached, sources whose digest matches the recorded one and whose output
// already exists are skipped; the cache is pruned of sources that no longer
// exist.
func (t *Transforms) styles(ctx context.Context, bs *pipeline.BuildState) error {
	seen := make(map[string]bool)
	processed, skipped := 0, 0

	err := walkSource(ctx, bs.SourceDir, stylesExtensions, func(rel string) error {
		seen[rel] = true
		src, err := os.ReadFile(filepath.Join(bs.SourceDir, rel))
		if err != nil {
			return errors.WorkspaceError("read stylesheet", err)
		}
		digest := fingerprint.Bytes(src)
		dest := filepath.Join(bs.OutputDir, rel)

		if bs.Changes != nil {
			unchanged := !bs.Changes.ShouldProcess(rel, digest)
			t.metrics.IncCacheLookup(unchanged)
			if unchanged {
				if _, statErr := os.Stat(dest); statErr == nil {
					skipped++
					return nil
				}
			}
		}

		if err := writeOutput(dest, minifyCSS(src)); err != nil {
			return errors.WorkspaceError("write stylesheet", err)
		}
		processed++

		if bs.Changes != nil {
			if err := bs.Changes.Record(rel, digest); err != nil {
				t.logger.Warn("Failed to record stylesheet digest", "path", rel, "error", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if bs.Changes != nil {
		if err := bs.Changes.Prune(func(path string) bool { return seen[path] }); err != nil {
			t.logger.Warn("Failed to prune change cache", "error", err)
		}
	}

	t.logger.Debug("Styles processed", "processed", processed, "skipped", skipped)
	return nil
}

// minifyCSS strips comments and collapses whitespace. Already-minified input
// passes through unchanged.
func minifyCSS(src []byte) []byte {
	out := cssComment.ReplaceAll(src, nil)
	out = cssWhitespace.ReplaceAll(out, []byte(" "))
	out = cssSeparators.ReplaceAll(out, []byte("$1"))
	out = bytes.ReplaceAll(out, []byte(";}"), []byte("}"))
	return bytes.TrimSpace(out)
}
