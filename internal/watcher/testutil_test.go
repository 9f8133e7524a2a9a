package watcher

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"librarian/internal/config"
	"librarian/internal/slogutil"
	"librarian/internal/storage"
)

// testWatchConfig returns a config with short, round intervals suited to
// fake-clock tests.
func testWatchConfig() config.WatchConfig {
	return config.WatchConfig{
		Enabled:          true,
		DebounceMs:       500,
		BatchWindowMs:    2000,
		StormThreshold:   500,
		CascadeReindex:   true,
		CascadeDelayMs:   1000,
		CascadeBatchSize: 50,
		HeartbeatMs:      30000,
	}
}

// fakeStorage implements the full storage contract including every optional
// capability.
type fakeStorage struct {
	mu        sync.Mutex
	checksums map[string]string
	state     map[string]string
	files     []storage.FileRecord
	modules   map[string]*storage.Module // by id
	byPath    map[string]*storage.Module
	edges     []storage.Edge

	checksumErr error
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{
		checksums: make(map[string]string),
		state:     make(map[string]string),
		modules:   make(map[string]*storage.Module),
		byPath:    make(map[string]*storage.Module),
	}
}

func (f *fakeStorage) GetFileChecksum(path string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.checksumErr != nil {
		return "", f.checksumErr
	}
	return f.checksums[path], nil
}

func (f *fakeStorage) setChecksum(path, sum string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checksums[path] = sum
}

func (f *fakeStorage) GetState(key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state[key], nil
}

func (f *fakeStorage) SetState(key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state[key] = value
	return nil
}

func (f *fakeStorage) GetFiles() ([]storage.FileRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]storage.FileRecord(nil), f.files...), nil
}

func (f *fakeStorage) GetModuleByPath(path string) (*storage.Module, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byPath[path], nil
}

func (f *fakeStorage) GetModule(id string) (*storage.Module, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.modules[id], nil
}

func (f *fakeStorage) GetGraphEdges(q storage.EdgeQuery) ([]storage.Edge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []storage.Edge
	for _, e := range f.edges {
		if len(q.EdgeTypes) > 0 && !contains(q.EdgeTypes, e.EdgeType) {
			continue
		}
		if len(q.ToIDs) > 0 && !contains(q.ToIDs, e.ToID) {
			continue
		}
		if len(q.FromIDs) > 0 && !contains(q.FromIDs, e.FromID) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (f *fakeStorage) addModule(id, path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := &storage.Module{ID: id, Path: path}
	f.modules[id] = m
	f.byPath[path] = m
}

func (f *fakeStorage) addEdge(fromID, toID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edges = append(f.edges, storage.Edge{FromID: fromID, ToID: toID, EdgeType: EdgeTypeImports})
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// limitedStorage exposes only the required storage methods, so capability
// detection finds nothing optional.
type limitedStorage struct {
	inner *fakeStorage
}

func newLimitedStorage() *limitedStorage {
	return &limitedStorage{inner: newFakeStorage()}
}

func (l *limitedStorage) GetFileChecksum(path string) (string, error) {
	return l.inner.GetFileChecksum(path)
}

func (l *limitedStorage) GetState(key string) (string, error) {
	return l.inner.GetState(key)
}

func (l *limitedStorage) SetState(key, value string) error {
	return l.inner.SetState(key, value)
}

// fakeReindexer records every ReindexFiles call.
type fakeReindexer struct {
	mu    sync.Mutex
	calls [][]string
	err   error
}

func (f *fakeReindexer) ReindexFiles(ctx context.Context, paths []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.calls = append(f.calls, append([]string(nil), paths...))
	return nil
}

func (f *fakeReindexer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeReindexer) call(i int) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[i]
}

func (f *fakeReindexer) allPaths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		out = append(out, c...)
	}
	return out
}

// fakeSource is an EventSource driven directly by tests.
type fakeSource struct {
	mu     sync.Mutex
	cb     EventCallback
	closed bool
}

func (s *fakeSource) Watch(root string, excludes *ExcludeSet, cb EventCallback) (io.Closer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cb = cb
	return s, nil
}

func (s *fakeSource) emit(et EventType, path string) {
	s.mu.Lock()
	cb := s.cb
	s.mu.Unlock()
	if cb != nil {
		cb(et, path)
	}
}

func (s *fakeSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSource) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// countingHandler counts log records per level for degrade-once assertions.
type countingHandler struct {
	mu      sync.Mutex
	records []slog.Record
}

func (h *countingHandler) Enabled(ctx context.Context, level slog.Level) bool { return true }

func (h *countingHandler) Handle(ctx context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, r)
	return nil
}

func (h *countingHandler) WithAttrs(attrs []slog.Attr) slog.Handler { return h }

func (h *countingHandler) WithGroup(name string) slog.Handler { return h }

func (h *countingHandler) countLevel(level slog.Level) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, r := range h.records {
		if r.Level == level {
			n++
		}
	}
	return n
}

func discardLogger() *slog.Logger {
	return slogutil.NewDiscardLogger()
}
