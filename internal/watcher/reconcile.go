package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"librarian/internal/gitx"
)

// Reconciler aligns the index with actual repository state after the
// watcher was offline or missed events. It prefers an incremental git diff
// against the persisted cursor and falls back to comparing the storage file
// listing with on-disk checksums.
type Reconciler struct {
	root       string
	storage    Storage
	caps       Capabilities
	git        *gitx.Client
	classifier *Classifier
	state      *StateStore
	excludes   *ExcludeSet
	logger     *slog.Logger

	// schedule routes catch-up paths into the batch pipeline. Paths have
	// already passed the classifier.
	schedule func(paths []string)

	mu       sync.Mutex
	disabled bool
	warned   bool
}

// NewReconciler creates a reconciliation engine. schedule must not be nil.
func NewReconciler(root string, st Storage, caps Capabilities, git *gitx.Client, classifier *Classifier, state *StateStore, excludes *ExcludeSet, logger *slog.Logger, schedule func(paths []string)) *Reconciler {
	return &Reconciler{
		root:       root,
		storage:    st,
		caps:       caps,
		git:        git,
		classifier: classifier,
		state:      state,
		excludes:   excludes,
		logger:     logger,
		schedule:   schedule,
	}
}

// Run performs one reconciliation pass. Running it twice with no
// intervening real changes schedules zero additional work the second time,
// because every candidate passes through the classifier first.
func (r *Reconciler) Run(ctx context.Context) error {
	st, err := r.state.Load()
	if err != nil {
		return err
	}

	inGit := r.git != nil && r.git.IsRepository()

	var scheduled int
	if st.Cursor.Kind == CursorKindGit && st.Cursor.LastIndexedCommitSHA != "" && inGit {
		scheduled, err = r.runGitCursor(ctx, st.Cursor.LastIndexedCommitSHA)
	} else {
		scheduled, err = r.runListing(ctx)
	}
	if err != nil {
		return err
	}

	// A degraded listing pass did no real comparison, so catch-up state
	// must survive for a later git-cursor pass.
	caughtUp := !r.Disabled() || inGit

	// Initialize or advance the cursor once catch-up work has been issued.
	var head string
	if inGit {
		if h, headErr := r.git.Head(); headErr == nil {
			head = h
		} else {
			r.logger.Debug("repository has no HEAD yet", "error", headErr)
		}
	}

	if stateErr := r.state.Update(func(ws *WatchState) {
		if head != "" {
			ws.Cursor = Cursor{Kind: CursorKindGit, LastIndexedCommitSHA: head}
		}
		if caughtUp {
			ws.NeedsCatchup = false
		}
	}); stateErr != nil {
		return stateErr
	}

	r.logger.Info("reconciliation complete", "scheduled", scheduled)
	return nil
}

// Disabled reports whether listing-based reconciliation has been
// permanently degraded for this instance.
func (r *Reconciler) Disabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.disabled
}

// runGitCursor computes catch-up paths from a diff between the stored
// cursor and HEAD, plus any uncommitted working-tree changes.
func (r *Reconciler) runGitCursor(ctx context.Context, since string) (int, error) {
	head, err := r.git.Head()
	if err != nil {
		return 0, fmt.Errorf("git cursor reconciliation failed: %w", err)
	}

	var changes []gitx.ChangedFile
	if head != since {
		diff, err := r.git.DiffNames(since, head)
		if err != nil {
			// A rewritten or garbage-collected cursor commit makes the diff
			// impossible; fall back to the full listing.
			r.logger.Warn("git diff against cursor failed, falling back to listing",
				"since", since, "error", err)
			return r.runListing(ctx)
		}
		changes = diff
	}
	changes = append(changes, r.git.UncommittedChanges()...)
	changes = gitx.Deduplicate(changes)

	var candidates []string
	for _, ch := range changes {
		if r.excludes.Matches(ch.Path) {
			continue
		}
		candidates = append(candidates, ch.Path)
		if ch.ChangeType == gitx.ChangeRenamed && ch.OldPath != "" && !r.excludes.Matches(ch.OldPath) {
			candidates = append(candidates, ch.OldPath)
		}
	}

	return r.classifyAndSchedule(candidates), nil
}

// runListing compares the storage file listing against on-disk content and
// walks the workspace for files storage has never seen.
func (r *Reconciler) runListing(ctx context.Context) (int, error) {
	lister, ok := r.storage.(FileLister)
	if !ok || !r.caps.FileListing {
		r.warnDisabledOnce()
		return 0, nil
	}

	records, err := lister.GetFiles()
	if err != nil {
		return 0, fmt.Errorf("failed to list indexed files: %w", err)
	}

	known := make(map[string]struct{}, len(records))
	var candidates []string
	for _, rec := range records {
		known[rec.Path] = struct{}{}
		if r.excludes.Matches(rec.Path) {
			continue
		}
		candidates = append(candidates, rec.Path)
	}

	// Newly-appeared files: on disk but absent from the listing.
	walkErr := filepath.WalkDir(r.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil //nolint:nilerr // Skip inaccessible entries, keep walking
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		rel, relErr := filepath.Rel(r.root, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if r.excludes.Matches(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if r.excludes.Matches(rel) {
			return nil
		}
		if _, ok := known[rel]; !ok {
			candidates = append(candidates, rel)
		}
		return nil
	})
	if walkErr != nil {
		return 0, fmt.Errorf("workspace walk failed: %w", walkErr)
	}

	return r.classifyAndSchedule(candidates), nil
}

// classifyAndSchedule drops no-ops and feeds the remainder into the batch
// pipeline.
func (r *Reconciler) classifyAndSchedule(candidates []string) int {
	if len(candidates) == 0 {
		return 0
	}

	result := r.classifier.Classify(candidates)
	if result.Empty() {
		return 0
	}

	paths := result.All()
	r.schedule(paths)
	return len(paths)
}

// warnDisabledOnce logs the degrade warning exactly once per instance.
func (r *Reconciler) warnDisabledOnce() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.disabled = true
	if !r.warned {
		r.warned = true
		r.logger.Warn("Watch reconcile disabled: storage does not support file listing")
	}
}
