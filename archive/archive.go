package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ExtractionError reports a corrupt archive or an empty extraction result.
// Terminal for the artifact; any previously committed dataset stays untouched.
type ExtractionError struct {
	Archive string
	Reason  string
	Err     error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extract %s: %s: %v", e.Archive, e.Reason, e.Err)
	}
	return fmt.Sprintf("extract %s: %s", e.Archive, e.Reason)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// ProgressFunc receives a monotonically non-decreasing fraction in [0,1].
type ProgressFunc func(fraction float64)

// Extract unpacks the zip at archivePath into destDir. If destDir exists it is
// removed and recreated empty first, so callers hand over a staging directory
// and commit it with a rename afterwards. An archive that yields an empty
// directory is an error: managed artifacts never have empty payloads.
func Extract(archivePath, destDir string, onProgress ProgressFunc) error {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return &ExtractionError{Archive: archivePath, Reason: "open archive", Err: err}
	}
	defer reader.Close()

	if err := os.RemoveAll(destDir); err != nil {
		return fmt.Errorf("clear destination %s: %w", destDir, err)
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("create destination %s: %w", destDir, err)
	}

	var total uint64
	for _, f := range reader.File {
		total += f.UncompressedSize64
	}

	var done uint64
	extracted := 0
	for _, f := range reader.File {
		if err := extractOne(f, destDir); err != nil {
			return &ExtractionError{Archive: archivePath, Reason: "entry " + f.Name, Err: err}
		}
		if !f.FileInfo().IsDir() {
			extracted++
		}
		done += f.UncompressedSize64
		if onProgress != nil && total > 0 {
			onProgress(min(1, float64(done)/float64(total)))
		}
	}

	if extracted == 0 {
		return &ExtractionError{Archive: archivePath, Reason: "archive produced an empty directory"}
	}
	if onProgress != nil {
		onProgress(1)
	}
	return nil
}

func extractOne(f *zip.File, destDir string) error {
	target, err := sanitizePath(destDir, f.Name)
	if err != nil {
		return err
	}
	if f.FileInfo().IsDir() {
		return os.MkdirAll(target, 0o755)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	src, err := f.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}

// sanitizePath rejects entries escaping destDir via ".." or absolute names.
func sanitizePath(destDir, name string) (string, error) {
	if filepath.IsAbs(name) || strings.Contains(name, "..") {
		return "", fmt.Errorf("illegal entry name %q", name)
	}
	target := filepath.Join(destDir, filepath.FromSlash(name))
	if !strings.HasPrefix(target, filepath.Clean(destDir)+string(os.PathSeparator)) {
		return "", fmt.Errorf("entry %q escapes destination", name)
	}
	return target, nil
}
