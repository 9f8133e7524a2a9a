package watcher

import (
	"sort"
	"sync"
	"time"
)

// DebounceBatcher coalesces raw per-path events over a debounce window and
// groups quiesced paths into execution batches bounded by a batch window.
//
// A path must be quiet for the debounce duration before it joins the open
// batch. The batch window is an upper bound on staleness, not an idle
// timeout: paths joining an already-open batch do not extend its deadline.
// Each batch is emitted exactly once with a deduplicated path set.
type DebounceBatcher struct {
	clock    Clock
	debounce time.Duration
	window   time.Duration

	// emit receives the batch's path set and the raw event count observed
	// during the batch epoch (the storm guard's admission input).
	emit func(paths []string, rawEvents int)

	mu        sync.Mutex
	pending   map[string]*pendingChange
	open      *openBatch
	rawEvents int
	stopped   bool
}

// pendingChange is one path awaiting debounce expiry. At most one exists
// per path; new events refresh lastEventAt and re-arm the timer.
type pendingChange struct {
	timer       Timer
	lastEventAt time.Time
}

// openBatch is the in-flight coalescing window.
type openBatch struct {
	paths    map[string]struct{}
	openedAt time.Time
	deadline Timer
}

// NewDebounceBatcher creates a batcher. emit is invoked from a timer
// goroutine when a batch's deadline fires.
func NewDebounceBatcher(clock Clock, debounce, window time.Duration, emit func(paths []string, rawEvents int)) *DebounceBatcher {
	return &DebounceBatcher{
		clock:    clock,
		debounce: debounce,
		window:   window,
		emit:     emit,
		pending:  make(map[string]*pendingChange),
	}
}

// OnEvent records a raw event for path, creating or refreshing its
// debounce timer.
func (b *DebounceBatcher) OnEvent(path string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stopped {
		return
	}

	b.rawEvents++

	if pc, ok := b.pending[path]; ok {
		pc.lastEventAt = b.clock.Now()
		pc.timer.Reset(b.debounce)
		return
	}

	p := path
	b.pending[path] = &pendingChange{
		timer:       b.clock.AfterFunc(b.debounce, func() { b.promote(p) }),
		lastEventAt: b.clock.Now(),
	}
}

// Inject adds already-classified paths straight into the open batch,
// bypassing debounce and the raw event counter. Reconciliation uses this to
// route catch-up work through the same batch pipeline without tripping the
// storm guard.
func (b *DebounceBatcher) Inject(paths []string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stopped || len(paths) == 0 {
		return
	}

	b.ensureOpenLocked()
	for _, p := range paths {
		b.open.paths[p] = struct{}{}
	}
}

// RawEventCount returns the raw events observed in the current batch epoch.
func (b *DebounceBatcher) RawEventCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rawEvents
}

// PendingCount returns the number of paths awaiting debounce expiry.
func (b *DebounceBatcher) PendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Stop cancels every debounce timer and the open batch deadline. No emit
// occurs after Stop returns.
func (b *DebounceBatcher) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stopped {
		return
	}
	b.stopped = true

	for _, pc := range b.pending {
		pc.timer.Stop()
	}
	b.pending = make(map[string]*pendingChange)

	if b.open != nil {
		b.open.deadline.Stop()
		b.open = nil
	}
}

// promote moves a quiesced path into the open batch.
func (b *DebounceBatcher) promote(path string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stopped {
		return
	}

	delete(b.pending, path)
	b.ensureOpenLocked()
	b.open.paths[path] = struct{}{}
}

// ensureOpenLocked opens a batch with a fresh deadline if none is open.
func (b *DebounceBatcher) ensureOpenLocked() {
	if b.open != nil {
		return
	}
	b.open = &openBatch{
		paths:    make(map[string]struct{}),
		openedAt: b.clock.Now(),
		deadline: b.clock.AfterFunc(b.window, b.flush),
	}
}

// flush emits the open batch once its deadline has fired. The raw event
// counter resets here; batch boundaries are the only reset points.
func (b *DebounceBatcher) flush() {
	b.mu.Lock()

	if b.stopped || b.open == nil {
		b.mu.Unlock()
		return
	}

	paths := make([]string, 0, len(b.open.paths))
	for p := range b.open.paths {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	raw := b.rawEvents
	b.rawEvents = 0
	b.open = nil

	b.mu.Unlock()

	if len(paths) > 0 {
		b.emit(paths, raw)
	}
}
