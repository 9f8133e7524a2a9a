package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"librarian/internal/config"
	"librarian/internal/gitx"
	"librarian/internal/librarian"
	"librarian/internal/storage"
	"librarian/internal/watcher"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the workspace and keep the knowledge graph fresh",
	RunE:  runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	root, err := resolveWorkspace()
	if err != nil {
		return err
	}

	cfg, err := config.Load(root)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if !cfg.Watch.Enabled {
		return fmt.Errorf("watching is disabled in config")
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

	svc := librarian.NewService(root, db, cfg.Indexer, logger)

	w, err := watcher.New(watcher.Options{
		Root:      root,
		Config:    cfg.Watch,
		Storage:   db,
		Reindexer: svc,
		Source:    watcher.NewFSEventSource(logger),
		Git:       gitx.NewClient(root),
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	handle, err := w.Start()
	if err != nil {
		return err
	}

	registry := watcher.NewRegistry()
	registry.Add(handle)

	fmt.Printf("Watching %s (instance %s). Press Ctrl+C to stop.\n", root, handle.ID)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	fmt.Println("Stopping watcher...")
	return registry.StopAll()
}
