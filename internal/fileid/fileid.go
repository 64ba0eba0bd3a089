// Package fileid derives stable identifiers for ingested source files.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
)

const prefix = "src:"

// SourceID returns a stable ID for the source file at path. Relative paths are
// made absolute first, so the same file always yields the same ID regardless of
// how it was named on the command line.
func SourceID(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	hash := sha256.Sum256([]byte(filepath.Clean(path)))
	return prefix + hex.EncodeToString(hash[:16])
}
