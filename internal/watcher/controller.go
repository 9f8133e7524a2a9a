package watcher

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"librarian/internal/config"
	"librarian/internal/gitx"
	"librarian/internal/slogutil"
)

// Options configures a Watcher.
type Options struct {
	Root      string             // workspace root (absolute)
	Config    config.WatchConfig // debounce/batch/storm/cascade settings
	Storage   Storage            // required collaborator
	Reindexer Reindexer          // external reindex entry point
	Source    EventSource        // OS watch primitive
	Git       *gitx.Client       // optional; nil disables the git cursor strategy
	Clock     Clock              // optional; defaults to the real clock
	Logger    *slog.Logger       // optional; defaults to discard
}

// Watcher is the long-lived controller owning one workspace's watch
// lifecycle. All pipeline mutations are serialized behind its components'
// locks; blocking work (checksums, storage, reindex, git) runs off the raw
// event path.
type Watcher struct {
	root       string
	cfg        config.WatchConfig
	storage    Storage
	reindexer  Reindexer
	source     EventSource
	clock      Clock
	logger     *slog.Logger
	caps       Capabilities
	excludes   *ExcludeSet
	state      *StateStore
	batcher    *DebounceBatcher
	guard      *StormGuard
	classifier *Classifier
	cascade    *CascadeExpander
	reconciler *Reconciler
	instanceID string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu             sync.Mutex
	started        bool
	stopped        bool
	closer         io.Closer
	heartbeat      Timer
	lastEventWrite time.Time

	// processMu serializes batch processing: batch N+1 never overtakes
	// batch N.
	processMu sync.Mutex
}

// New wires a watcher from its collaborators. Capability detection happens
// here, once, so later degrade decisions are plain field reads.
func New(opts Options) (*Watcher, error) {
	if opts.Root == "" {
		return nil, fmt.Errorf("watcher root is required")
	}
	if opts.Storage == nil {
		return nil, fmt.Errorf("storage collaborator is required")
	}
	if opts.Reindexer == nil {
		return nil, fmt.Errorf("reindexer collaborator is required")
	}
	if opts.Source == nil {
		return nil, fmt.Errorf("event source is required")
	}
	if opts.Clock == nil {
		opts.Clock = RealClock()
	}
	if opts.Logger == nil {
		opts.Logger = slogutil.NewDiscardLogger()
	}

	excludes, err := NewExcludeSet(opts.Config.Excludes)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	w := &Watcher{
		root:       opts.Root,
		cfg:        opts.Config,
		storage:    opts.Storage,
		reindexer:  opts.Reindexer,
		source:     opts.Source,
		clock:      opts.Clock,
		logger:     opts.Logger,
		caps:       DetectCapabilities(opts.Storage),
		excludes:   excludes,
		instanceID: uuid.NewString(),
		ctx:        ctx,
		cancel:     cancel,
	}

	w.state = NewStateStore(opts.Storage, opts.Clock)
	w.classifier = NewClassifier(opts.Root, opts.Storage, opts.Logger)
	w.guard = NewStormGuard(opts.Config.StormThreshold, opts.Logger)
	w.batcher = NewDebounceBatcher(
		opts.Clock,
		time.Duration(opts.Config.DebounceMs)*time.Millisecond,
		time.Duration(opts.Config.BatchWindowMs)*time.Millisecond,
		w.processBatch,
	)
	if opts.Config.CascadeReindex {
		w.cascade = NewCascadeExpander(
			opts.Storage, w.caps, opts.Reindexer, opts.Clock,
			time.Duration(opts.Config.CascadeDelayMs)*time.Millisecond,
			opts.Config.CascadeBatchSize,
			opts.Logger,
		)
	}
	w.reconciler = NewReconciler(
		opts.Root, opts.Storage, w.caps, opts.Git, w.classifier,
		w.state, excludes, opts.Logger,
		w.batcher.Inject,
	)

	return w, nil
}

// Start opens the OS watch handle, records the watch start, kicks off the
// initial reconciliation pass, and arms the heartbeat. Only an event source
// failure is fatal.
func (w *Watcher) Start() (*Handle, error) {
	w.mu.Lock()
	if w.started || w.stopped {
		w.mu.Unlock()
		return nil, fmt.Errorf("watcher already started")
	}
	w.started = true
	w.mu.Unlock()

	closer, err := w.source.Watch(w.root, w.excludes, w.onRawEvent)
	if err != nil {
		return nil, fmt.Errorf("failed to open watch handle: %w", err)
	}

	w.mu.Lock()
	w.closer = closer
	w.mu.Unlock()

	now := w.clock.Now().UTC()
	if err := w.state.Update(func(ws *WatchState) {
		ws.WorkspaceRoot = w.root
		ws.InstanceID = w.instanceID
		ws.WatchStartedAt = &now
		ws.WatchLastHeartbeat = &now
		ws.StorageAttached = true
		ws.SuspectedDead = false
		ws.EffectiveConfig = w.cfg
	}); err != nil {
		w.logger.Warn("failed to record watch start", "error", err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if err := w.reconciler.Run(w.ctx); err != nil {
			w.logger.Error("reconciliation failed", "error", err)
			w.recordError(err.Error())
		}
	}()

	w.armHeartbeat()

	w.logger.Info("watcher started",
		"root", w.root,
		"debounceMs", w.cfg.DebounceMs,
		"batchWindowMs", w.cfg.BatchWindowMs,
		"stormThreshold", w.cfg.StormThreshold,
		"cascade", w.cfg.CascadeReindex && w.caps.CascadeSupported())

	return &Handle{ID: w.instanceID, Root: w.root, watcher: w}, nil
}

// Reconcile runs an on-demand reconciliation pass.
func (w *Watcher) Reconcile(ctx context.Context) error {
	return w.reconciler.Run(ctx)
}

// Stop cancels every pending timer and wave, closes the watch handle, and
// waits for in-flight work. Safe to call after a partial start and safe to
// call twice.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	closer := w.closer
	w.closer = nil
	heartbeat := w.heartbeat
	w.heartbeat = nil
	w.mu.Unlock()

	w.cancel()
	w.batcher.Stop()
	if w.cascade != nil {
		w.cascade.Stop()
	}
	if heartbeat != nil {
		heartbeat.Stop()
	}

	var closeErr error
	if closer != nil {
		closeErr = closer.Close()
	}

	w.wg.Wait()
	w.logger.Info("watcher stopped", "root", w.root)
	return closeErr
}

// onRawEvent is the event source callback.
func (w *Watcher) onRawEvent(et EventType, relPath string) {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	now := w.clock.Now()
	recordEvent := now.Sub(w.lastEventWrite) >= time.Second
	if recordEvent {
		w.lastEventWrite = now
	}
	w.mu.Unlock()

	w.logger.Debug("raw event", "type", et.String(), "path", relPath)

	// Throttled so an event burst does not turn into a write burst.
	if recordEvent {
		utc := now.UTC()
		if err := w.state.Update(func(ws *WatchState) {
			ws.WatchLastEventAt = &utc
		}); err != nil {
			w.logger.Debug("failed to record event time", "error", err)
		}
	}

	w.batcher.OnEvent(relPath)
}

// processBatch runs when a batch deadline fires: admission, classification,
// a single reindex call, then cascade expansion.
func (w *Watcher) processBatch(paths []string, rawEvents int) {
	w.processMu.Lock()
	defer w.processMu.Unlock()

	if !w.guard.Admit(rawEvents) {
		if err := w.state.Update(func(ws *WatchState) {
			ws.LastError = ErrStormDiscard
			ws.NeedsCatchup = true
		}); err != nil {
			w.logger.Warn("failed to record storm", "error", err)
		}
		return
	}

	result := w.classifier.Classify(paths)
	if result.Empty() {
		w.logger.Debug("batch contained no real changes", "candidates", len(paths))
		return
	}

	all := result.All()
	w.logger.Info("reindexing batch",
		"changed", len(result.Changed),
		"deleted", len(result.Deleted))

	if err := w.reindexer.ReindexFiles(w.ctx, all); err != nil {
		w.logger.Error("reindex failed, paths remain stale until reconciliation",
			"paths", len(all), "error", err)
		w.recordError(err.Error())
		return
	}

	now := w.clock.Now().UTC()
	if err := w.state.Update(func(ws *WatchState) {
		ws.WatchLastReindexOK = &now
		ws.LastError = ""
	}); err != nil {
		w.logger.Warn("failed to record reindex success", "error", err)
	}

	if w.cascade != nil {
		w.cascade.Kick(w.ctx, all)
	}
}

// armHeartbeat schedules the next heartbeat state write.
func (w *Watcher) armHeartbeat() {
	interval := time.Duration(w.cfg.HeartbeatMs) * time.Millisecond
	if interval <= 0 {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}

	w.heartbeat = w.clock.AfterFunc(interval, func() {
		now := w.clock.Now().UTC()
		if err := w.state.Update(func(ws *WatchState) {
			ws.WatchLastHeartbeat = &now
		}); err != nil {
			w.logger.Debug("heartbeat write failed", "error", err)
		}
		w.armHeartbeat()
	})
}

func (w *Watcher) recordError(msg string) {
	if err := w.state.Update(func(ws *WatchState) {
		ws.LastError = msg
	}); err != nil {
		w.logger.Warn("failed to record error", "error", err)
	}
}

// Handle identifies a started watcher. Callers track handles in a Registry
// they own; there is no module-level registry.
type Handle struct {
	ID   string
	Root string

	watcher *Watcher
}

// Stop stops the underlying watcher.
func (h *Handle) Stop() error {
	return h.watcher.Stop()
}

// State reads the current persisted watch state.
func (h *Handle) State() (*WatchState, error) {
	return h.watcher.state.Load()
}

// Registry tracks started watcher handles. The caller owns its lifetime.
type Registry struct {
	mu      sync.Mutex
	handles map[string]*Handle
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handles: make(map[string]*Handle)}
}

// Add tracks a handle.
func (r *Registry) Add(h *Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handles[h.ID] = h
}

// Remove stops tracking a handle.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handles, id)
}

// Get returns a tracked handle, or nil.
func (r *Registry) Get(id string) *Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.handles[id]
}

// List returns all tracked handles.
func (r *Registry) List() []*Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	handles := make([]*Handle, 0, len(r.handles))
	for _, h := range r.handles {
		handles = append(handles, h)
	}
	return handles
}

// StopAll stops every tracked handle, returning the first error.
func (r *Registry) StopAll() error {
	var first error
	for _, h := range r.List() {
		if err := h.Stop(); err != nil && first == nil {
			first = err
		}
		r.Remove(h.ID)
	}
	return first
}
