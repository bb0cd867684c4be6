package cache

import (
	"os"
	"path/filepath"
	"testing"

	"git.home.luguber.info/inful/siteforge/internal/fingerprint"
)

func TestShouldProcessNewEntry(t *testing.T) {
	c := New(NewMemoryStore())
	if !c.ShouldProcess("styles/main.css", "abc") {
		t.Error("unrecorded path must require processing")
	}
}

func TestSkipUnchanged(t *testing.T) {
	c := New(NewMemoryStore())
	if err := c.Record("styles/main.css", "abc"); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if c.ShouldProcess("styles/main.css", "abc") {
		t.Error("unchanged digest must be skipped")
	}
	if !c.ShouldProcess("styles/main.css", "def") {
		t.Error("changed digest must be reprocessed")
	}
}

func TestShouldProcessFileFailOpen(t *testing.T) {
	c := New(NewMemoryStore())
	process, digest := c.ShouldProcessFile(filepath.Join(t.TempDir(), "missing.css"))
	if !process {
		t.Error("unreadable file must require processing")
	}
	if digest != "" {
		t.Errorf("expected empty digest for unreadable file, got %q", digest)
	}
}

func TestShouldProcessFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "main.css")
	if err := os.WriteFile(path, []byte("a{color:red}"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	c := New(NewMemoryStore())
	process, digest := c.ShouldProcessFile(path)
	if !process {
		t.Fatal("first pass must process")
	}
	if digest != fingerprint.Bytes([]byte("a{color:red}")) {
		t.Errorf("unexpected digest %q", digest)
	}
	if err := c.Record(path, digest); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	process, _ = c.ShouldProcessFile(path)
	if process {
		t.Error("second pass with unchanged content must skip")
	}

	if err := os.WriteFile(path, []byte("a{color:blue}"), 0o644); err != nil {
		t.Fatalf("rewrite fixture: %v", err)
	}
	process, _ = c.ShouldProcessFile(path)
	if !process {
		t.Error("changed content must be reprocessed")
	}
}

func TestPrune(t *testing.T) {
	c := New(NewMemoryStore())
	_ = c.Record("styles/kept.css", "abc")
	_ = c.Record("styles/gone.css", "def")

	if err := c.Prune(func(p string) bool { return p == "styles/kept.css" }); err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if !c.ShouldProcess("styles/gone.css", "def") {
		t.Error("pruned entry must require processing")
	}
	if c.ShouldProcess("styles/kept.css", "abc") {
		t.Error("kept entry must still be valid")
	}
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "digests.db")
	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}

	if err := store.Put("styles/main.css", "abc"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := store.Put("styles/main.css", "def"); err != nil {
		t.Fatalf("Put update failed: %v", err)
	}

	got, err := store.Get("styles/main.css")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != "def" {
		t.Errorf("expected updated digest def, got %q", got)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// Reopen: entries survive process restart.
	store, err = NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer store.Close()

	got, err = store.Get("styles/main.css")
	if err != nil {
		t.Fatalf("Get after reopen failed: %v", err)
	}
	if got != "def" {
		t.Errorf("expected persisted digest def, got %q", got)
	}

	paths, err := store.Paths()
	if err != nil {
		t.Fatalf("Paths failed: %v", err)
	}
	if len(paths) != 1 || paths[0] != "styles/main.css" {
		t.Errorf("unexpected paths %v", paths)
	}

	if err := store.Delete("styles/main.css"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	got, _ = store.Get("styles/main.css")
	if got != "" {
		t.Errorf("expected empty digest after delete, got %q", got)
	}
}
