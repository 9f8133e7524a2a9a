package slogutil

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLevelFromString(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := LevelFromString(tt.input); got != tt.want {
			t.Errorf("LevelFromString(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestNewLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelWarn)

	logger.Info("hidden")
	logger.Warn("visible")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("Info entry should be filtered at warn level")
	}
	if !strings.Contains(out, "visible") {
		t.Error("Warn entry should be written at warn level")
	}
}

func TestNewFileLoggerCreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "librarian.log")

	logger, closer, err := NewFileLogger(path, slog.LevelInfo)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	defer closer.Close() //nolint:errcheck // Test cleanup

	logger.Info("hello", "key", "value")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Expected log file on disk: %v", err)
	}
	if !strings.Contains(string(data), "hello") {
		t.Errorf("Expected log entry in file, got %q", data)
	}
}

func TestNewDiscardLoggerIsSilent(t *testing.T) {
	logger := NewDiscardLogger()
	logger.Error("should vanish")
}
