package config

import (
	"os"
	"path/filepath"
	"testing"

	"git.home.luguber.info/inful/siteforge/internal/errors"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "siteforge.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
project:
  name: mysite
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Source != "./src" || cfg.Output != "./dist" {
		t.Errorf("tree defaults not applied: source=%s output=%s", cfg.Source, cfg.Output)
	}
	if cfg.Project.CacheID != "mysite" {
		t.Errorf("cache id should default to project name, got %s", cfg.Project.CacheID)
	}
	if cfg.StateDir != ".siteforge" {
		t.Errorf("state dir default not applied: %s", cfg.StateDir)
	}
}

func TestLoadExpandsEnvironmentVariables(t *testing.T) {
	t.Setenv("TEST_SECRET_KEY", "s3cr3t")
	path := writeConfig(t, `
project:
  name: mysite
environments:
  staging:
    type: bucket
    bucket: site-staging
    endpoint: s3.example.com
    secret_key: ${TEST_SECRET_KEY}
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got := cfg.Environments["staging"].SecretKey; got != "s3cr3t" {
		t.Errorf("env reference not expanded, got %q", got)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatal("expected error for missing config")
	}
	if !errors.IsCategory(err, errors.CategoryConfig) {
		t.Errorf("expected config category error, got %v", err)
	}
}

func TestValidateRejectsIncompleteEnvironment(t *testing.T) {
	path := writeConfig(t, `
project:
  name: mysite
environments:
  production:
    type: git-branch
    remote: git@example.com:site.git
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation failure for git-branch environment without branch")
	}
}

func TestValidateRejectsUnknownEnvironmentType(t *testing.T) {
	path := writeConfig(t, `
project:
  name: mysite
environments:
  qa:
    type: ftp
    target: somewhere
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation failure for unsupported environment type")
	}
}

func TestDeployEnvironmentsMapping(t *testing.T) {
	path := writeConfig(t, `
project:
  name: mysite
environments:
  development:
    type: local
    target: ./public
  production:
    type: git-branch
    remote: git@example.com:site.git
    branch: gh-pages
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	envs := cfg.DeployEnvironments()

	if envs["development"].Target != "./public" {
		t.Errorf("local target mismatch: %+v", envs["development"])
	}
	prod := envs["production"]
	if prod.Target != "gh-pages" || prod.Remote != "git@example.com:site.git" {
		t.Errorf("git environment mapping wrong: %+v", prod)
	}
}

func TestInitRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "siteforge.yaml")
	if err := Init(path, false); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if err := Init(path, false); err == nil {
		t.Fatal("expected error when config already exists without force")
	}
	if err := Init(path, true); err != nil {
		t.Fatalf("forced Init failed: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("generated config does not load: %v", err)
	}
	if len(cfg.Environments) != 3 {
		t.Errorf("expected 3 example environments, got %d", len(cfg.Environments))
	}
}

func TestRebuildEvery(t *testing.T) {
	s := ServeConfig{}
	if d, err := s.RebuildEvery(); err != nil || d != 0 {
		t.Errorf("empty interval: got %v, %v", d, err)
	}
	s.RebuildInterval = "5m"
	if d, err := s.RebuildEvery(); err != nil || d.Minutes() != 5 {
		t.Errorf("5m interval: got %v, %v", d, err)
	}
	s.RebuildInterval = "soon"
	if _, err := s.RebuildEvery(); err == nil {
		t.Error("expected parse failure for invalid interval")
	}
}
