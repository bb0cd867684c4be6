// Package state persists deploy history per environment: which build was
// published where, when, and with which manifest fingerprint. Promote reads
// this record to verify the source environment before copying.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const fileName = "deploy-state.json"

// Deployment records one successful publish to an environment.
type Deployment struct {
	Environment  string    `json:"environment"`
	BuildID      string    `json:"build_id"`
	Fingerprint  string    `json:"fingerprint,omitempty"`
	Target       string    `json:"target"`
	DeployedAt   time.Time `json:"deployed_at"`
	PromotedFrom string    `json:"promoted_from,omitempty"`
}

type deployState struct {
	Version      string                 `json:"version"`
	LastUpdate   time.Time              `json:"last_update"`
	Environments map[string]*Deployment `json:"environments"`
}

// Store keeps the deploy record on disk, one file per project data dir.
type Store struct {
	dataDir string
	mu      sync.RWMutex
	state   *deployState
}

// NewStore opens (or initializes) the deploy record under dataDir.
func NewStore(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	s := &Store{
		dataDir: dataDir,
		state: &deployState{
			Version:      "1",
			Environments: make(map[string]*Deployment),
		},
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	data, err := os.ReadFile(filepath.Join(s.dataDir, fileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read deploy state: %w", err)
	}
	var st deployState
	if err := json.Unmarshal(data, &st); err != nil {
		return fmt.Errorf("failed to unmarshal deploy state: %w", err)
	}
	if st.Environments != nil {
		s.state.Environments = st.Environments
	}
	return nil
}

// Record stores a deployment and saves immediately.
func (s *Store) Record(d Deployment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d.DeployedAt = d.DeployedAt.UTC()
	s.state.Environments[d.Environment] = &d
	return s.save()
}

// Last returns the most recent recorded deployment for an environment, or
// false when the environment has never been deployed to.
func (s *Store) Last(environment string) (Deployment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.state.Environments[environment]
	if !ok {
		return Deployment{}, false
	}
	return *d, true
}

// save writes through a temp file so a crash never leaves a truncated record.
func (s *Store) save() error {
	s.state.LastUpdate = time.Now().UTC()

	data, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal deploy state: %w", err)
	}

	statePath := filepath.Join(s.dataDir, fileName)
	tempPath := statePath + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write deploy state: %w", err)
	}
	if err := os.Rename(tempPath, statePath); err != nil {
		return fmt.Errorf("failed to replace deploy state: %w", err)
	}
	return nil
}
