package fingerprint_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"subburn/internal/fingerprint"
)

func TestReaderKnownDigest(t *testing.T) {
	got, err := fingerprint.Reader(strings.NewReader("abc"))
	if err != nil {
		t.Fatalf("Reader: %v", err)
	}
	const want = "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got != want {
		t.Fatalf("digest = %s, want %s", got, want)
	}
}

func TestEmptyInput(t *testing.T) {
	got, err := fingerprint.Reader(bytes.NewReader(nil))
	if err != nil {
		t.Fatalf("Reader: %v", err)
	}
	if got != "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855" {
		t.Fatalf("unexpected empty digest %s", got)
	}
}

func TestFileMatchesReaderAcrossChunks(t *testing.T) {
	payload := bytes.Repeat([]byte("0123456789abcdef"), fingerprint.ChunkSize/4)
	path := filepath.Join(t.TempDir(), "audio.wav")
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	fromFile, err := fingerprint.File(path)
	if err != nil {
		t.Fatalf("File: %v", err)
	}
	fromReader, err := fingerprint.Reader(bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("Reader: %v", err)
	}
	if fromFile != fromReader {
		t.Fatalf("file digest %s != reader digest %s", fromFile, fromReader)
	}
	if !fingerprint.Valid(fromFile) {
		t.Fatalf("digest %q should be valid", fromFile)
	}
}

func TestDifferentContentDiffers(t *testing.T) {
	a, _ := fingerprint.Reader(strings.NewReader("a"))
	b, _ := fingerprint.Reader(strings.NewReader("b"))
	if a == b {
		t.Fatal("expected different digests")
	}
}

func TestFileMissing(t *testing.T) {
	if _, err := fingerprint.File(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValid(t *testing.T) {
	if fingerprint.Valid("ABC") || fingerprint.Valid(strings.Repeat("g", fingerprint.Length)) {
		t.Fatal("unexpected valid digest")
	}
	if !fingerprint.Valid(strings.Repeat("0", fingerprint.Length)) {
		t.Fatal("expected zero digest valid")
	}
}
