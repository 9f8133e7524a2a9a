package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"librarian/internal/config"
	"librarian/internal/gitx"
	"librarian/internal/librarian"
	"librarian/internal/storage"
	"librarian/internal/watcher"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Run a one-shot catch-up pass without starting a watcher",
	Long: `Reconcile compares actual repository state against the index and
reindexes anything stale: a git diff against the persisted cursor when one
exists, otherwise a full comparison of the stored file listing with on-disk
checksums.`,
	RunE: runReconcile,
}

func init() {
	rootCmd.AddCommand(reconcileCmd)
}

func runReconcile(cmd *cobra.Command, args []string) error {
	root, err := resolveWorkspace()
	if err != nil {
		return err
	}

	cfg, err := config.Load(root)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, logCloser, err := newLogger(cfg)
	if err != nil {
		return err
	}
	if logCloser != nil {
		defer logCloser.Close() //nolint:errcheck // Best effort cleanup
	}

	db, err := storage.Open(root, logger)
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck // Best effort cleanup

	excludes, err := watcher.NewExcludeSet(cfg.Watch.Excludes)
	if err != nil {
		return err
	}

	svc := librarian.NewService(root, db, cfg.Indexer, logger)
	ctx := context.Background()

	var reindexed int
	reconciler := watcher.NewReconciler(
		root, db,
		watcher.DetectCapabilities(db),
		gitx.NewClient(root),
		watcher.NewClassifier(root, db, logger),
		watcher.NewStateStore(db, watcher.RealClock()),
		excludes, logger,
		func(paths []string) {
			if err := svc.ReindexFiles(ctx, paths); err != nil {
				logger.Error("reindex failed", "error", err)
				return
			}
			reindexed += len(paths)
		},
	)

	if err := reconciler.Run(ctx); err != nil {
		return err
	}

	fmt.Printf("Reconciliation complete: %d files reindexed.\n", reindexed)
	return nil
}
