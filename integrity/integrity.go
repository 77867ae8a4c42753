package integrity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
)

// MismatchError reports a content hash that did not match its descriptor.
// It is terminal for the artifact: extraction and commit must not proceed.
type MismatchError struct {
	Path     string
	Expected string
	Actual   string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("checksum mismatch for %s: got %s expect %s", e.Path, e.Actual, e.Expected)
}

// HashFile computes the hex SHA-256 of the file at path, streaming so memory
// stays bounded regardless of artifact size.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// Verify compares the file's SHA-256 against expectedHex, case-insensitively.
// Returns *MismatchError on a mismatch.
func Verify(path, expectedHex string) error {
	actual, err := HashFile(path)
	if err != nil {
		return err
	}
	if !strings.EqualFold(actual, expectedHex) {
		return &MismatchError{Path: path, Expected: expectedHex, Actual: actual}
	}
	return nil
}
