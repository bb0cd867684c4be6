// Package fingerprint computes deterministic content digests used for change
// detection, precache manifest versioning, and filename revisioning.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// TokenLength is the number of hex characters embedded into revisioned
// filenames. Long enough that collisions indicate corrupted input rather
// than bad luck, short enough to stay readable.
const TokenLength = 10

// ComputationError reports a digest that could not be computed, typically
// because the input file was unreadable.
type ComputationError struct {
	Path string
	Err  error
}

func (e *ComputationError) Error() string {
	return fmt.Sprintf("fingerprint %s: %v", e.Path, e.Err)
}

func (e *ComputationError) Unwrap() error { return e.Err }

// Sequence digests an ordered sequence of strings. Identical sequences yield
// identical digests; reordering changes the digest. Callers must canonicalize
// ordering (sort, or a fixed discovery order) before calling.
func Sequence(items []string) string {
	h := sha256.New()
	for _, item := range items {
		// Length-prefix each item so ["ab","c"] and ["a","bc"] differ.
		fmt.Fprintf(h, "%d:", len(item))
		io.WriteString(h, item)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Bytes digests raw content.
func Bytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// File digests a file's content. Returns a ComputationError when the file
// cannot be read.
func File(path string) (string, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return "", &ComputationError{Path: path, Err: err}
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", &ComputationError{Path: path, Err: err}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Token shortens a full hex digest into the filename-safe revision token.
func Token(digest string) string {
	if len(digest) <= TokenLength {
		return digest
	}
	return digest[:TokenLength]
}

// FileToken digests a file and returns its revision token.
func FileToken(path string) (string, error) {
	digest, err := File(path)
	if err != nil {
		return "", err
	}
	return Token(digest), nil
}
