package watcher

import (
	"crypto/sha256"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// Classifier is the freshness gate: it decides whether a candidate path
// represents a real content change by comparing a fresh checksum against the
// one storage recorded at last index. No semantic inspection happens here.
type Classifier struct {
	root    string
	storage Storage
	logger  *slog.Logger
}

// NewClassifier creates a classifier rooted at the workspace.
func NewClassifier(root string, st Storage, logger *slog.Logger) *Classifier {
	return &Classifier{root: root, storage: st, logger: logger}
}

// Classify splits candidate paths into real content changes and deletions.
// Paths whose checksum matches storage are dropped (touch-without-modify,
// redundant editor saves). Paths that cannot be read right now are dropped
// with a warning; the next reconciliation pass picks them up.
func (c *Classifier) Classify(paths []string) Classification {
	var result Classification

	for _, path := range paths {
		abs := filepath.Join(c.root, filepath.FromSlash(path))

		if _, err := os.Stat(abs); os.IsNotExist(err) {
			result.Deleted = append(result.Deleted, path)
			continue
		}

		sum, err := ChecksumFile(abs)
		if err != nil {
			c.logger.Warn("failed to checksum file, deferring to reconciliation",
				"path", path, "error", err)
			continue
		}

		stored, err := c.storage.GetFileChecksum(path)
		if err != nil {
			c.logger.Warn("failed to read stored checksum, deferring to reconciliation",
				"path", path, "error", err)
			continue
		}

		if stored != "" && stored == sum {
			c.logger.Debug("dropping no-op change", "path", path)
			continue
		}

		result.Changed = append(result.Changed, path)
	}

	return result
}

// ChecksumFile computes the SHA256 content hash of a file.
func ChecksumFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close() //nolint:errcheck // Best effort cleanup

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}

	return fmt.Sprintf("%x", h.Sum(nil)), nil
}
