package testsupport

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

// fixturePattern stands in for media bytes. Collaborator fakes never decode
// it, so only the size matters.
var fixturePattern = []byte("subburn-fixture\n")

// WriteFile creates a fake media file of exactly size bytes (at least one),
// creating parent directories as needed.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()

	size = max(size, 1)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	repeats := int(size)/len(fixturePattern) + 1
	data := bytes.Repeat(fixturePattern, repeats)[:size]
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
