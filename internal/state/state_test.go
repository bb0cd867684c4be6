package state

import (
	"testing"
	"time"
)

func TestRecordAndLast(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	if _, ok := s.Last("staging"); ok {
		t.Fatal("expected no deployment for fresh store")
	}

	d := Deployment{
		Environment: "staging",
		BuildID:     "b42",
		Fingerprint: "abc123",
		Target:      "/srv/staging",
		DeployedAt:  time.Now(),
	}
	if err := s.Record(d); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	got, ok := s.Last("staging")
	if !ok {
		t.Fatal("expected recorded deployment")
	}
	if got.BuildID != "b42" || got.Fingerprint != "abc123" {
		t.Errorf("unexpected deployment: %+v", got)
	}
}

func TestStateSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	if err := s.Record(Deployment{Environment: "production", BuildID: "b7", Target: "bucket"}); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	reopened, err := NewStore(dir)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	got, ok := reopened.Last("production")
	if !ok {
		t.Fatal("deployment lost across reopen")
	}
	if got.BuildID != "b7" {
		t.Errorf("expected build b7, got %s", got.BuildID)
	}
}

func TestRecordOverwritesEnvironment(t *testing.T) {
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	_ = s.Record(Deployment{Environment: "development", BuildID: "b1"})
	_ = s.Record(Deployment{Environment: "development", BuildID: "b2"})

	got, _ := s.Last("development")
	if got.BuildID != "b2" {
		t.Errorf("expected latest build b2, got %s", got.BuildID)
	}
}
