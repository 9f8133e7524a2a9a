package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"librarian/internal/config"
	"librarian/internal/slogutil"
	"librarian/internal/version"
)

var (
	workspaceFlag string
	logLevelFlag  string
)

var rootCmd = &cobra.Command{
	Use:   "librarian",
	Short: "Librarian - code knowledge graph freshness daemon",
	Long: `Librarian keeps a per-file code knowledge graph fresh as source files
change on disk: it watches a workspace, detects true content changes,
schedules incremental reindexing with dependency-driven cascade waves, and
reconciles missed changes after downtime.`,
	Version: version.Version,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the librarian version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("librarian version %s\n", version.Version)
	},
}

func init() {
	rootCmd.SetVersionTemplate("librarian version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVarP(&workspaceFlag, "workspace", "w", ".",
		"Workspace root to operate on")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "",
		"Log level: debug, info, warn, error (overrides config)")
	rootCmd.AddCommand(versionCmd)
}

// resolveWorkspace returns the absolute workspace root.
func resolveWorkspace() (string, error) {
	return filepath.Abs(workspaceFlag)
}

// newLogger builds the process logger from config and CLI overrides.
// Precedence: --log-level flag > config logging.level.
func newLogger(cfg *config.Config) (*slog.Logger, io.Closer, error) {
	level := slogutil.LevelFromString(cfg.Logging.Level)
	if logLevelFlag != "" {
		level = slogutil.LevelFromString(logLevelFlag)
	}

	if cfg.Logging.File != "" {
		path := cfg.Logging.File
		if !filepath.IsAbs(path) {
			path = filepath.Join(cfg.WorkspaceRoot, path)
		}
		return slogutil.NewFileLogger(path, level)
	}

	return slogutil.NewLogger(os.Stderr, level), nil, nil
}
