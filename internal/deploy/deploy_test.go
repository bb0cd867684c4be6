package deploy

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	sferrors "git.home.luguber.info/inful/siteforge/internal/errors"
	"git.home.luguber.info/inful/siteforge/internal/state"
)

func testEnvs(t *testing.T) map[string]Environment {
	t.Helper()
	root := t.TempDir()
	return map[string]Environment{
		"development": {Name: "development", Type: "local", Target: filepath.Join(root, "dev")},
		"staging":     {Name: "staging", Type: "local", Target: filepath.Join(root, "staging")},
		"production":  {Name: "production", Type: "local", Target: filepath.Join(root, "production")},
	}
}

func testStore(t *testing.T) *state.Store {
	t.Helper()
	s, err := state.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("state store: %v", err)
	}
	return s
}

func writeArtifacts(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", rel, err)
		}
	}
	return dir
}

func TestDeployUnknownEnvironment(t *testing.T) {
	d := New(testEnvs(t), testStore(t))
	_, err := d.Deploy(context.Background(), "qa", t.TempDir(), "b1", "")
	var unknown *UnknownEnvironmentError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownEnvironmentError, got %v", err)
	}
}

func TestDeployPublishesAndRecords(t *testing.T) {
	envs := testEnvs(t)
	store := testStore(t)
	d := New(envs, store)
	artifacts := writeArtifacts(t, map[string]string{
		"index.html":      "<html></html>",
		"styles/main.css": "a{color:red}",
	})

	result, err := d.Deploy(context.Background(), "staging", artifacts, "b9", "fp1")
	if err != nil {
		t.Fatalf("Deploy failed: %v", err)
	}
	if result.Files != 2 {
		t.Errorf("expected 2 files published, got %d", result.Files)
	}

	data, err := os.ReadFile(filepath.Join(envs["staging"].Target, "styles/main.css"))
	if err != nil {
		t.Fatalf("published file missing: %v", err)
	}
	if string(data) != "a{color:red}" {
		t.Errorf("published content mismatch: %q", data)
	}

	last, ok := store.Last("staging")
	if !ok {
		t.Fatal("deploy not recorded")
	}
	if last.BuildID != "b9" || last.Fingerprint != "fp1" {
		t.Errorf("unexpected record: %+v", last)
	}
}

func TestDeployWrapsPublishFailure(t *testing.T) {
	d := New(testEnvs(t), testStore(t)).WithPublisherFactory(func(Environment) (Publisher, error) {
		return failingPublisher{}, nil
	})

	_, err := d.Deploy(context.Background(), "staging", t.TempDir(), "b1", "")
	var pubErr *PublishError
	if !errors.As(err, &pubErr) {
		t.Fatalf("expected PublishError, got %v", err)
	}
	if pubErr.Environment != "staging" {
		t.Errorf("error names environment %s, expected staging", pubErr.Environment)
	}
}

func TestDeployClassifiesTransportFailure(t *testing.T) {
	// A transport-level publish failure stays classified as a retryable
	// network error through the deployer's PublishError wrapping.
	d := New(testEnvs(t), testStore(t)).WithPublisherFactory(func(Environment) (Publisher, error) {
		return networkFailingPublisher{}, nil
	})

	_, err := d.Deploy(context.Background(), "staging", t.TempDir(), "b1", "")
	if err == nil {
		t.Fatal("expected deploy failure")
	}
	if !sferrors.IsRetryable(err) {
		t.Errorf("transport failure must be retryable: %v", err)
	}
	if got := sferrors.GetCategory(err); got != sferrors.CategoryNetwork {
		t.Errorf("expected network category, got %s", got)
	}
}

func TestPromoteWithoutPriorTargetDeploy(t *testing.T) {
	// Promoting staging to production must succeed with no prior production
	// build, by copying staging's published state only.
	envs := testEnvs(t)
	store := testStore(t)
	d := New(envs, store)

	artifacts := writeArtifacts(t, map[string]string{"index.html": "v1"})
	if _, err := d.Deploy(context.Background(), "staging", artifacts, "b1", "fp1"); err != nil {
		t.Fatalf("staging deploy failed: %v", err)
	}

	result, err := d.Promote(context.Background(), "staging", "production")
	if err != nil {
		t.Fatalf("Promote failed: %v", err)
	}
	if result.PromotedFrom != "staging" {
		t.Errorf("expected promotion source staging, got %s", result.PromotedFrom)
	}
	if result.BuildID != "b1" {
		t.Errorf("promoted build id: expected b1, got %s", result.BuildID)
	}

	data, err := os.ReadFile(filepath.Join(envs["production"].Target, "index.html"))
	if err != nil {
		t.Fatalf("promoted file missing: %v", err)
	}
	if string(data) != "v1" {
		t.Errorf("promoted content mismatch: %q", data)
	}

	last, ok := store.Last("production")
	if !ok {
		t.Fatal("promotion not recorded")
	}
	if last.PromotedFrom != "staging" || last.BuildID != "b1" {
		t.Errorf("unexpected record: %+v", last)
	}
}

func TestPromoteRequiresSourceDeploy(t *testing.T) {
	d := New(testEnvs(t), testStore(t))
	if _, err := d.Promote(context.Background(), "staging", "production"); err == nil {
		t.Fatal("expected promote to fail for never-deployed source")
	}
}

func TestPromoteRejectsMixedBackends(t *testing.T) {
	envs := testEnvs(t)
	env := envs["production"]
	env.Type = "bucket"
	envs["production"] = env

	store := testStore(t)
	d := New(envs, store)
	if _, err := d.Deploy(context.Background(), "staging", writeArtifacts(t, map[string]string{"a": "1"}), "b1", ""); err != nil {
		t.Fatalf("staging deploy failed: %v", err)
	}
	if _, err := d.Promote(context.Background(), "staging", "production"); err == nil {
		t.Fatal("expected promote to reject differing backend types")
	}
}

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, string) (int, error) {
	return 0, fmt.Errorf("connection refused")
}

func (failingPublisher) PromoteFrom(context.Context, Environment) (int, error) {
	return 0, fmt.Errorf("connection refused")
}

type networkFailingPublisher struct{}

func (networkFailingPublisher) Publish(context.Context, string) (int, error) {
	return 0, sferrors.PublishNetworkError("bucket-a", fmt.Errorf("connection reset"))
}

func (networkFailingPublisher) PromoteFrom(context.Context, Environment) (int, error) {
	return 0, sferrors.PublishNetworkError("bucket-a", fmt.Errorf("connection reset"))
}
