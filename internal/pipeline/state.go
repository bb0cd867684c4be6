package pipeline

import (
	"time"

	"git.home.luguber.info/inful/siteforge/internal/cache"
	"git.home.luguber.info/inful/siteforge/internal/revision"
)

// BuildState carries shared state across the tasks of one pipeline run. The
// artifact tree under OutputDir is the single mutable shared resource;
// concurrent tasks write to disjoint subtrees.
type BuildState struct {
	BuildID   string
	SourceDir string
	OutputDir string

	// CacheID and ManifestDisabled feed the precache manifest task.
	CacheID          string
	ManifestDisabled bool

	// Changes is mutated only by the style-processing task (single writer).
	Changes *cache.ChangeCache

	// Revisions is set by the revisioning task; it is the terminal artifact
	// tree mutation and consumed by no further task.
	Revisions *revision.Record

	start time.Time
}

// NewBuildState constructs the state for one run.
func NewBuildState(buildID, sourceDir, outputDir string) *BuildState {
	return &BuildState{
		BuildID:   buildID,
		SourceDir: sourceDir,
		OutputDir: outputDir,
		start:     time.Now(),
	}
}

// Elapsed reports time since the run started.
func (bs *BuildState) Elapsed() time.Duration { return time.Since(bs.start) }
