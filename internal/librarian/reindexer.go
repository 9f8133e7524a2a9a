// Package librarian implements the reindex entry point the watch engine
// drives: it refreshes stored checksums for changed files, drops tracking
// entries for deleted ones, and optionally shells out to an external indexer
// command that rebuilds the knowledge graph itself.
package librarian

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"librarian/internal/config"
	"librarian/internal/storage"
	"librarian/internal/watcher"
)

// Service performs reindexing for one workspace.
type Service struct {
	root   string
	db     *storage.DB
	cfg    config.IndexerConfig
	logger *slog.Logger
}

// NewService creates a reindex service.
func NewService(root string, db *storage.DB, cfg config.IndexerConfig, logger *slog.Logger) *Service {
	return &Service{root: root, db: db, cfg: cfg, logger: logger}
}

// ReindexFiles reindexes one batch of workspace-relative paths. The external
// indexer command runs first (if configured) so that a command failure leaves
// checksums untouched and the paths stale for the next reconciliation pass.
func (s *Service) ReindexFiles(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return nil
	}

	start := time.Now()

	if s.cfg.Command != "" {
		if err := s.runIndexer(ctx, paths); err != nil {
			return err
		}
	}

	var updated, removed int
	for _, path := range paths {
		abs := filepath.Join(s.root, filepath.FromSlash(path))

		info, err := os.Stat(abs)
		if os.IsNotExist(err) {
			if delErr := s.db.DeleteFile(path); delErr != nil {
				return delErr
			}
			removed++
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to stat %s: %w", path, err)
		}

		sum, err := watcher.ChecksumFile(abs)
		if err != nil {
			return fmt.Errorf("failed to checksum %s: %w", path, err)
		}
		if err := s.db.SaveFileChecksum(path, sum, info.ModTime()); err != nil {
			return err
		}
		updated++
	}

	s.logger.Info("reindex complete",
		"updated", updated,
		"removed", removed,
		"duration", time.Since(start).Round(time.Millisecond))
	return nil
}

// runIndexer invokes the configured external indexer with the batch paths
// appended to its argument list.
func (s *Service) runIndexer(ctx context.Context, paths []string) error {
	parts := strings.Fields(s.cfg.Command)
	if len(parts) == 0 {
		return nil
	}

	if s.cfg.TimeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(s.cfg.TimeoutMs)*time.Millisecond)
		defer cancel()
	}

	args := append(parts[1:], paths...)
	cmd := exec.CommandContext(ctx, parts[0], args...) // #nosec G204 // operator-configured indexer command
	cmd.Dir = s.root
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("indexer command failed: %v (%s)", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}
