package librarian

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"librarian/internal/config"
	"librarian/internal/slogutil"
	"librarian/internal/storage"
	"librarian/internal/watcher"
)

func newTestService(t *testing.T, cfg config.IndexerConfig) (*Service, *storage.DB, string) {
	t.Helper()
	root := t.TempDir()
	db, err := storage.Open(root, slogutil.NewDiscardLogger())
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewService(root, db, cfg, slogutil.NewDiscardLogger()), db, root
}

func writeFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	abs := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		t.Fatalf("Failed to create dir: %v", err)
	}
	if err := os.WriteFile(abs, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}
	return abs
}

func TestReindexFilesUpdatesChecksums(t *testing.T) {
	svc, db, root := newTestService(t, config.IndexerConfig{})
	abs := writeFile(t, root, "src/a.go", "package a")

	if err := svc.ReindexFiles(context.Background(), []string{"src/a.go"}); err != nil {
		t.Fatalf("ReindexFiles failed: %v", err)
	}

	want, err := watcher.ChecksumFile(abs)
	if err != nil {
		t.Fatalf("ChecksumFile failed: %v", err)
	}
	got, err := db.GetFileChecksum("src/a.go")
	if err != nil {
		t.Fatalf("GetFileChecksum failed: %v", err)
	}
	if got != want {
		t.Errorf("Expected checksum %s, got %s", want, got)
	}
}

func TestReindexFilesRemovesDeleted(t *testing.T) {
	svc, db, root := newTestService(t, config.IndexerConfig{})
	writeFile(t, root, "a.go", "package a")

	if err := svc.ReindexFiles(context.Background(), []string{"a.go"}); err != nil {
		t.Fatalf("ReindexFiles failed: %v", err)
	}
	if db.FileCount() != 1 {
		t.Fatalf("Expected 1 tracked file, got %d", db.FileCount())
	}

	if err := os.Remove(filepath.Join(root, "a.go")); err != nil {
		t.Fatalf("Failed to remove file: %v", err)
	}
	if err := svc.ReindexFiles(context.Background(), []string{"a.go"}); err != nil {
		t.Fatalf("ReindexFiles failed: %v", err)
	}
	if db.FileCount() != 0 {
		t.Errorf("Expected tracking entry removed, got %d files", db.FileCount())
	}
}

func TestReindexFilesEmptyBatch(t *testing.T) {
	svc, _, _ := newTestService(t, config.IndexerConfig{})
	if err := svc.ReindexFiles(context.Background(), nil); err != nil {
		t.Errorf("Empty batch should be a no-op, got %v", err)
	}
}

func TestReindexFilesCommandFailureLeavesChecksumsUntouched(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("relies on a POSIX false binary")
	}

	svc, db, root := newTestService(t, config.IndexerConfig{Command: "false"})
	writeFile(t, root, "a.go", "package a")

	err := svc.ReindexFiles(context.Background(), []string{"a.go"})
	if err == nil {
		t.Fatal("Expected indexer command failure to propagate")
	}

	sum, getErr := db.GetFileChecksum("a.go")
	if getErr != nil {
		t.Fatalf("GetFileChecksum failed: %v", getErr)
	}
	if sum != "" {
		t.Errorf("Expected checksum untouched after command failure, got %q", sum)
	}
}

func TestReindexFilesRunsIndexerCommand(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("relies on a POSIX touch binary")
	}

	svc, _, root := newTestService(t, config.IndexerConfig{Command: "touch indexer-ran"})
	writeFile(t, root, "a.go", "package a")

	if err := svc.ReindexFiles(context.Background(), []string{"a.go"}); err != nil {
		t.Fatalf("ReindexFiles failed: %v", err)
	}

	// The command runs in the workspace root with batch paths appended.
	if _, err := os.Stat(filepath.Join(root, "indexer-ran")); err != nil {
		t.Errorf("Expected indexer command to have run in the workspace: %v", err)
	}
}
