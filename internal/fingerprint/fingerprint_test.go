package fingerprint

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestSequenceDeterministic(t *testing.T) {
	a := Sequence([]string{"styles/main.css", "scripts/app.js"})
	b := Sequence([]string{"styles/main.css", "scripts/app.js"})
	if a != b {
		t.Errorf("identical sequences produced different digests: %s vs %s", a, b)
	}
}

func TestSequenceOrderSensitive(t *testing.T) {
	a := Sequence([]string{"styles/main.css", "scripts/app.js"})
	b := Sequence([]string{"scripts/app.js", "styles/main.css"})
	if a == b {
		t.Error("reordered sequence produced the same digest")
	}
}

func TestSequenceBoundaries(t *testing.T) {
	// Concatenation must not be ambiguous across item boundaries.
	a := Sequence([]string{"ab", "c"})
	b := Sequence([]string{"a", "bc"})
	if a == b {
		t.Error("boundary-shifted sequences produced the same digest")
	}
}

func TestFileMatchesBytes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "main.css")
	content := []byte("a{color:red}")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	fromFile, err := File(path)
	if err != nil {
		t.Fatalf("File failed: %v", err)
	}
	if fromFile != Bytes(content) {
		t.Errorf("File and Bytes disagree: %s vs %s", fromFile, Bytes(content))
	}
}

func TestFileUnreadable(t *testing.T) {
	_, err := File(filepath.Join(t.TempDir(), "missing.css"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	var ce *ComputationError
	if !errors.As(err, &ce) {
		t.Errorf("expected ComputationError, got %T", err)
	}
}

func TestToken(t *testing.T) {
	digest := Bytes([]byte("a{color:red}"))
	tok := Token(digest)
	if len(tok) != TokenLength {
		t.Errorf("expected token of length %d, got %q", TokenLength, tok)
	}
	if digest[:TokenLength] != tok {
		t.Errorf("token %q is not a prefix of digest %q", tok, digest)
	}
}
