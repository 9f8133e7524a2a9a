package watcher

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"librarian/internal/storage"
)

// CascadeExpander walks the dependency graph after a primary reindex wave
// and schedules secondary waves for modules that depend on what changed.
// Waves are delayed, capped in size, and guarded against import cycles by a
// per-chain visited set.
type CascadeExpander struct {
	storage   Storage
	caps      Capabilities
	reindex   Reindexer
	clock     Clock
	delay     time.Duration
	batchSize int
	logger    *slog.Logger

	mu       sync.Mutex
	stopped  bool
	disabled bool
	warned   bool
	timers   map[*cascadeChain]Timer
}

// cascadeChain tracks one expansion rooted at a primary batch. The visited
// set spans every depth of the chain; a path reindexed anywhere in the chain
// is never re-enqueued, which terminates cycles.
type cascadeChain struct {
	visited map[string]struct{}
	queue   []string
	depth   int
}

// NewCascadeExpander creates an expander. batchSize caps each wave; excess
// paths defer to a subsequent wave rather than being dropped.
func NewCascadeExpander(st Storage, caps Capabilities, reindex Reindexer, clock Clock, delay time.Duration, batchSize int, logger *slog.Logger) *CascadeExpander {
	return &CascadeExpander{
		storage:   st,
		caps:      caps,
		reindex:   reindex,
		clock:     clock,
		delay:     delay,
		batchSize: batchSize,
		logger:    logger,
		timers:    make(map[*cascadeChain]Timer),
	}
}

// Kick starts a cascade chain from the paths of a completed primary wave.
// If storage lacks graph query support, cascade is disabled for the lifetime
// of this expander with a single warning.
func (e *CascadeExpander) Kick(ctx context.Context, primary []string) {
	e.mu.Lock()
	if e.stopped || e.disabled {
		e.mu.Unlock()
		return
	}
	if !e.caps.CascadeSupported() {
		e.disabled = true
		warned := e.warned
		e.warned = true
		e.mu.Unlock()
		if !warned {
			e.logger.Warn("Cascade reindex disabled: storage does not support graph queries")
		}
		return
	}
	e.mu.Unlock()

	chain := &cascadeChain{visited: make(map[string]struct{})}
	for _, p := range primary {
		chain.visited[p] = struct{}{}
	}

	chain.queue = e.dependentsOf(primary, chain)
	e.scheduleNext(ctx, chain)
}

// ActiveChains returns the number of chains with a scheduled wave.
func (e *CascadeExpander) ActiveChains() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.timers)
}

// Disabled reports whether cascade has been permanently degraded.
func (e *CascadeExpander) Disabled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.disabled
}

// Stop cancels every scheduled wave.
func (e *CascadeExpander) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.stopped = true
	for chain, t := range e.timers {
		t.Stop()
		delete(e.timers, chain)
	}
}

// scheduleNext arms a delayed timer for the chain's next wave.
func (e *CascadeExpander) scheduleNext(ctx context.Context, chain *cascadeChain) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopped || len(chain.queue) == 0 {
		delete(e.timers, chain)
		return
	}

	e.timers[chain] = e.clock.AfterFunc(e.delay, func() { e.runWave(ctx, chain) })
}

// runWave reindexes up to batchSize queued paths, expands their dependents
// into the queue, and schedules the next wave.
func (e *CascadeExpander) runWave(ctx context.Context, chain *cascadeChain) {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	delete(e.timers, chain)

	n := len(chain.queue)
	if n > e.batchSize {
		n = e.batchSize
	}
	wave := chain.queue[:n]
	chain.queue = chain.queue[n:]
	chain.depth++
	depth := chain.depth
	e.mu.Unlock()

	e.logger.Debug("running cascade wave", "depth", depth, "paths", len(wave))

	if err := e.reindex.ReindexFiles(ctx, wave); err != nil {
		e.logger.Warn("cascade reindex failed", "depth", depth, "error", err)
	} else {
		chain.queue = append(chain.queue, e.dependentsOf(wave, chain)...)
	}

	e.scheduleNext(ctx, chain)
}

// dependentsOf resolves the file paths of modules that depend on any of the
// given paths, skipping paths already visited in this chain. Storage errors
// are transient; the affected path is skipped and caught up later.
func (e *CascadeExpander) dependentsOf(paths []string, chain *cascadeChain) []string {
	resolver := e.storage.(ModuleResolver)
	querier := e.storage.(EdgeQuerier)

	var dependents []string
	for _, path := range paths {
		mod, err := resolver.GetModuleByPath(path)
		if err != nil {
			e.logger.Warn("failed to resolve module for cascade", "path", path, "error", err)
			continue
		}
		if mod == nil {
			continue
		}

		edges, err := querier.GetGraphEdges(edgeQueryTo(mod.ID))
		if err != nil {
			e.logger.Warn("failed to query dependents", "module", mod.ID, "error", err)
			continue
		}

		for _, edge := range edges {
			dep, err := resolver.GetModule(edge.FromID)
			if err != nil {
				e.logger.Warn("failed to resolve dependent module", "module", edge.FromID, "error", err)
				continue
			}
			if dep == nil || dep.Path == "" {
				continue
			}
			if _, seen := chain.visited[dep.Path]; seen {
				continue
			}
			chain.visited[dep.Path] = struct{}{}
			dependents = append(dependents, dep.Path)
		}
	}

	return dependents
}

func edgeQueryTo(moduleID string) storage.EdgeQuery {
	return storage.EdgeQuery{
		EdgeTypes: []string{EdgeTypeImports},
		ToIDs:     []string{moduleID},
	}
}
