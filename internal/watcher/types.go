// Package watcher implements the incremental change-detection and
// reindex-scheduling engine: it observes raw filesystem events, decides which
// files truly changed, expands the affected set through the dependency graph,
// guards against event storms, and reconciles missed changes after downtime.
package watcher

import (
	"context"
	"io"
	"time"

	"librarian/internal/storage"
)

// EventType represents the type of file system event
type EventType int

const (
	EventCreate EventType = iota
	EventModify
	EventDelete
	EventRename
)

// String returns a string representation of the event type
func (e EventType) String() string {
	switch e {
	case EventCreate:
		return "create"
	case EventModify:
		return "modify"
	case EventDelete:
		return "delete"
	case EventRename:
		return "rename"
	default:
		return "unknown"
	}
}

// EdgeTypeImports is the dependency edge type traversed by cascade expansion.
const EdgeTypeImports = "imports"

// ErrStormDiscard is recorded in WatchState.last_error when a batch is
// dropped by the storm guard.
const ErrStormDiscard = "watch_event_storm"

// Storage is the required collaborator contract. All paths are relative to
// the workspace root.
type Storage interface {
	GetFileChecksum(path string) (string, error)
	GetState(key string) (string, error)
	SetState(key, value string) error
}

// FileLister is the optional capability backing filesystem-listing
// reconciliation.
type FileLister interface {
	GetFiles() ([]storage.FileRecord, error)
}

// ModuleResolver is the optional capability resolving paths to module
// identities and back.
type ModuleResolver interface {
	GetModuleByPath(path string) (*storage.Module, error)
	GetModule(id string) (*storage.Module, error)
}

// EdgeQuerier is the optional capability backing cascade expansion.
type EdgeQuerier interface {
	GetGraphEdges(q storage.EdgeQuery) ([]storage.Edge, error)
}

// Reindexer is the external entry point that turns changed files back into
// fresh knowledge-graph entries. A single call covers one batch; it may fail
// as a whole, in which case every path in it remains stale.
type Reindexer interface {
	ReindexFiles(ctx context.Context, paths []string) error
}

// EventCallback receives one raw filesystem notification. Paths are relative
// to the watched root.
type EventCallback func(eventType EventType, relPath string)

// EventSource is the OS-level file-watch primitive. Watch returns a handle
// whose Close releases the underlying watch.
type EventSource interface {
	Watch(root string, excludes *ExcludeSet, cb EventCallback) (io.Closer, error)
}

// ReindexerFunc adapts a function to the Reindexer interface.
type ReindexerFunc func(ctx context.Context, paths []string) error

// ReindexFiles implements Reindexer.
func (f ReindexerFunc) ReindexFiles(ctx context.Context, paths []string) error {
	return f(ctx, paths)
}

// Classification is the outcome of running a batch through the classifier.
type Classification struct {
	Changed []string // content differs from the stored checksum (or is new)
	Deleted []string // no longer present on disk
}

// Empty reports whether the classification carries no work.
func (c Classification) Empty() bool {
	return len(c.Changed) == 0 && len(c.Deleted) == 0
}

// All returns changed and deleted paths as a single slice, changed first.
func (c Classification) All() []string {
	all := make([]string, 0, len(c.Changed)+len(c.Deleted))
	all = append(all, c.Changed...)
	all = append(all, c.Deleted...)
	return all
}

// Timer is a cancellable scheduled action.
type Timer interface {
	// Stop prevents the timer from firing. It reports whether the firing
	// was prevented.
	Stop() bool
	// Reset reschedules the timer to fire after d.
	Reset(d time.Duration) bool
}
