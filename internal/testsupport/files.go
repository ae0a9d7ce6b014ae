package testsupport

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

// WriteFile creates path, including parent directories, holding size filler
// bytes. Reference voices only need to exist and be readable, so the content
// is not audio.
func WriteFile(t testing.TB, path string, size int) {
	t.Helper()
	if size < 1 {
		size = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, bytes.Repeat([]byte{'V'}, size), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
