package revision

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"git.home.luguber.info/inful/siteforge/internal/fingerprint"
)

func writeTree(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", rel, err)
		}
	}
}

func readFile(t *testing.T, dir, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(rel)))
	if err != nil {
		t.Fatalf("read %s: %v", rel, err)
	}
	return string(data)
}

func TestReviseRenamesAndRewrites(t *testing.T) {
	dir := t.TempDir()
	css := "a{color:red}"
	writeTree(t, dir, map[string]string{
		"styles/main.css": css,
		"index.html":      `<link rel="stylesheet" href="styles/main.css">`,
	})

	record, err := New().Revise(dir)
	if err != nil {
		t.Fatalf("Revise failed: %v", err)
	}

	token := fingerprint.Token(fingerprint.Bytes([]byte(css)))
	wantPath := "styles/main." + token + ".css"
	if got := record.Renames["styles/main.css"]; got != wantPath {
		t.Fatalf("expected rename to %s, got %s", wantPath, got)
	}

	// Revisioned file content is byte-identical to the original.
	if got := readFile(t, dir, wantPath); got != css {
		t.Errorf("revisioned content changed: %q", got)
	}
	if _, err := os.Stat(filepath.Join(dir, "styles", "main.css")); !os.IsNotExist(err) {
		t.Error("original file must no longer exist under its bare name")
	}

	// No artifact still references the bare path; the reference resolves to
	// the revisioned name.
	html := readFile(t, dir, "index.html")
	if strings.Contains(html, `"styles/main.css"`) {
		t.Errorf("bare reference remains: %s", html)
	}
	if !strings.Contains(html, wantPath) {
		t.Errorf("expected reference to %s, got %s", wantPath, html)
	}
	if got := record.RewrittenIn["styles/main.css"]; len(got) != 1 || got[0] != "index.html" {
		t.Errorf("expected rewrite recorded in index.html, got %v", got)
	}
}

func TestReviseIdempotent(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{
		"styles/main.css": "a{color:red}",
		"scripts/app.js":  `fetch("styles/main.css")`,
		"index.html":      `<link href="styles/main.css"><script src="scripts/app.js"></script>`,
	})

	first, err := New().Revise(dir)
	if err != nil {
		t.Fatalf("first Revise failed: %v", err)
	}
	second, err := New().Revise(dir)
	if err != nil {
		t.Fatalf("second Revise failed: %v", err)
	}

	if len(second.Renames) != len(first.Renames) {
		t.Fatalf("mapping size changed: %d vs %d", len(first.Renames), len(second.Renames))
	}
	for original, revisioned := range first.Renames {
		if second.Renames[original] != revisioned {
			t.Errorf("mapping for %s changed: %s vs %s", original, revisioned, second.Renames[original])
		}
		// Not double-revisioned: exactly one token segment was inserted.
		stem := strings.TrimSuffix(revisioned, filepath.Ext(revisioned))
		stripped := strings.TrimSuffix(stem, tokenSuffix.FindString(stem))
		if tokenSuffix.MatchString(stripped) {
			t.Errorf("double-revisioned name: %s", revisioned)
		}
	}
}

func TestReviseReferenceInsideRevisedFile(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{
		"images/logo.png": "\x89PNGfake",
		"styles/main.css": `body{background:url("images/logo.png")}`,
	})

	record, err := New().Revise(dir)
	if err != nil {
		t.Fatalf("Revise failed: %v", err)
	}

	cssPath := record.Renames["styles/main.css"]
	imgPath := record.Renames["images/logo.png"]
	css := readFile(t, dir, cssPath)
	if !strings.Contains(css, imgPath) {
		t.Errorf("expected css to reference %s, got %s", imgPath, css)
	}
	if strings.Contains(css, `"images/logo.png"`) {
		t.Error("bare image reference remains in revisioned css")
	}
}

func TestReviseEmptyTree(t *testing.T) {
	record, err := New().Revise(t.TempDir())
	if err != nil {
		t.Fatalf("Revise on empty tree failed: %v", err)
	}
	if len(record.Renames) != 0 {
		t.Errorf("expected empty mapping, got %v", record.Renames)
	}
}

func TestPlanDetection(t *testing.T) {
	original, _, already := plan("styles/main.0123456789.css")
	if !already {
		t.Fatal("token-suffixed name must be detected as revisioned")
	}
	if original != "styles/main.css" {
		t.Errorf("expected reconstructed original styles/main.css, got %s", original)
	}

	_, _, already = plan("scripts/app.min.js")
	if already {
		t.Error(".min suffix must not be mistaken for a token")
	}
}
