// Package fingerprint computes content digests used as transcription cache
// keys. Digests identify content; they are not a security primitive.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// ChunkSize bounds how much of the input is held in memory at once.
const ChunkSize = 64 * 1024

// Length is the number of hex characters in a digest.
const Length = sha256.Size * 2

// Reader digests r until EOF and returns the lowercase hex encoding.
func Reader(r io.Reader) (string, error) {
	h := sha256.New()
	buf := make([]byte, ChunkSize)
	if _, err := io.CopyBuffer(h, r, buf); err != nil {
		return "", fmt.Errorf("fingerprint: read: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// File digests the file at path.
func File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("fingerprint: open %s: %w", path, err)
	}
	defer f.Close()
	return Reader(f)
}

// Valid reports whether s has the shape of a digest produced by this package.
func Valid(s string) bool {
	if len(s) != Length {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
