// Package assets provides the concrete asset transforms registered as
// pipeline tasks: cleaning the artifact tree, processing styles, scripts,
// images, fonts and markup, generating the precache manifest, and
// revisioning output filenames.
package assets

import (
	"context"
	goerrors "errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"git.home.luguber.info/inful/siteforge/internal/errors"
	"git.home.luguber.info/inful/siteforge/internal/manifest"
	"git.home.luguber.info/inful/siteforge/internal/metrics"
	"git.home.luguber.info/inful/siteforge/internal/pipeline"
	"git.home.luguber.info/inful/siteforge/internal/revision"
)

// Transforms bundles the built-in asset transforms. Each transform reads
// from the build state's source tree and writes into a disjoint subtree of
// the output tree, which is what makes them safe to run concurrently.
type Transforms struct {
	logger  *slog.Logger
	metrics metrics.Recorder
}

// NewTransforms creates the default transform set.
func NewTransforms() *Transforms {
	return &Transforms{
		logger:  slog.Default(),
		metrics: metrics.NoopRecorder{},
	}
}

// WithLogger sets a custom logger.
func (t *Transforms) WithLogger(logger *slog.Logger) *Transforms {
	t.logger = logger
	return t
}

// WithMetrics sets the metrics recorder.
func (t *Transforms) WithMetrics(rec metrics.Recorder) *Transforms {
	if rec != nil {
		t.metrics = rec
	}
	return t
}

// RegisterDefaults registers the built-in tasks on the registry. The asset
// transforms are concurrency-safe; clean, manifest and revision operate on
// the whole artifact tree and are not.
func RegisterDefaults(reg *pipeline.Registry, t *Transforms) error {
	tasks := []pipeline.Task{
		{Name: "clean", Run: t.clean},
		{Name: "styles", Predecessors: []string{"clean"}, Run: t.styles, ConcurrencySafe: true},
		{Name: "scripts", Predecessors: []string{"clean"}, Run: t.scripts, ConcurrencySafe: true},
		{Name: "images", Predecessors: []string{"clean"}, Run: t.images, ConcurrencySafe: true},
		{Name: "fonts", Predecessors: []string{"clean"}, Run: t.fonts, ConcurrencySafe: true},
		{Name: "markup", Predecessors: []string{"clean"}, Run: t.markup, ConcurrencySafe: true},
		{Name: "manifest", Predecessors: []string{"styles", "scripts", "images", "fonts", "markup"}, Run: t.manifest},
		{Name: "revision", Predecessors: []string{"manifest"}, Run: t.revision},
	}
	for _, task := range tasks {
		if err := reg.Register(task); err != nil {
			return err
		}
	}
	return nil
}

// DefaultPipelines returns the built-in pipeline definitions. The default
// pipeline produces a complete artifact tree; pre-deploy nests it and adds
// filename revisioning as the terminal tree mutation.
func DefaultPipelines() []pipeline.Definition {
	return []pipeline.Definition{
		{
			Name: "default",
			Steps: []pipeline.Step{
				pipeline.Single("clean"),
				pipeline.Concurrent("styles", "scripts", "images", "fonts", "markup"),
				pipeline.Single("manifest"),
			},
		},
		{
			Name: "pre-deploy",
			Steps: []pipeline.Step{
				pipeline.Sub("default"),
				pipeline.Single("revision"),
			},
		},
	}
}

// clean removes the output tree and recreates it empty.
func (t *Transforms) clean(_ context.Context, bs *pipeline.BuildState) error {
	if err := os.RemoveAll(bs.OutputDir); err != nil {
		return errors.WorkspaceError("clean output directory", err)
	}
	if err := os.MkdirAll(bs.OutputDir, 0o755); err != nil {
		return errors.WorkspaceError("create output directory", err)
	}
	t.logger.Debug("Output directory cleaned", "dir", bs.OutputDir)
	return nil
}

var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".webp": true,
	".ico":  true,
	".svg":  true,
}

var fontExtensions = map[string]bool{
	".woff":  true,
	".woff2": true,
	".ttf":   true,
	".otf":   true,
	".eot":   true,
}

func (t *Transforms) images(ctx context.Context, bs *pipeline.BuildState) error {
	return t.copyByExtension(ctx, bs, "images", imageExtensions)
}

func (t *Transforms) fonts(ctx context.Context, bs *pipeline.BuildState) error {
	return t.copyByExtension(ctx, bs, "fonts", fontExtensions)
}

// copyByExtension mirrors matching source files into the output tree
// unmodified. Image optimization and font subsetting happen upstream of the
// source tree.
func (t *Transforms) copyByExtension(ctx context.Context, bs *pipeline.BuildState, kind string, exts map[string]bool) error {
	count := 0
	err := walkSource(ctx, bs.SourceDir, exts, func(rel string) error {
		if err := copyFile(filepath.Join(bs.SourceDir, rel), filepath.Join(bs.OutputDir, rel)); err != nil {
			return errors.WorkspaceError(fmt.Sprintf("copy %s", rel), err)
		}
		count++
		return nil
	})
	if err != nil {
		return err
	}
	t.logger.Debug("Assets copied", "kind", kind, "count", count)
	return nil
}

// manifest generates the precache manifest over the processed artifact tree
// and writes it alongside the artifacts.
func (t *Transforms) manifest(_ context.Context, bs *pipeline.BuildState) error {
	m, err := manifest.Generate(bs.OutputDir, bs.CacheID, bs.ManifestDisabled)
	if err != nil {
		return err
	}
	if err := m.Write(bs.OutputDir); err != nil {
		return err
	}
	t.logger.Info("Precache manifest written",
		"cache_id", m.CacheID,
		"entries", len(m.Precache),
		"fingerprint", m.PrecacheFingerprint)
	return nil
}

// revision renames output files to content-addressed names and rewrites
// references. It runs after the manifest task so the manifest itself is
// never revisioned away from its well-known name.
func (t *Transforms) revision(_ context.Context, bs *pipeline.BuildState) error {
	record, err := revision.New().WithLogger(t.logger).Revise(bs.OutputDir)
	if err != nil {
		return errors.RevisionFailed(err)
	}
	bs.Revisions = record

	// Reference rewriting touched the manifest's precache entries, so its
	// fingerprint no longer matches the path list it carries. Recompute it
	// over the revisioned names.
	m, err := manifest.Load(bs.OutputDir)
	if err != nil {
		if goerrors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return errors.RevisionFailed(err)
	}
	m.RecomputeFingerprint()
	if err := m.Write(bs.OutputDir); err != nil {
		return errors.RevisionFailed(err)
	}
	return nil
}

// walkSource visits every file under root whose extension is in exts,
// calling fn with the slash-separated path relative to root. A missing root
// is treated as an empty tree.
func walkSource(ctx context.Context, root string, exts map[string]bool, fn func(rel string) error) error {
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return nil
	}
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !exts[filepath.Ext(path)] {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		return fn(filepath.ToSlash(rel))
	})
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func writeOutput(dest string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dest, data, 0o644)
}
