package watcher

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"librarian/internal/config"
)

// StateKey is the fixed storage slot holding the watch state document.
const StateKey = "librarian.watch_state.v1"

// stateSchemaVersion is the WatchState document schema version.
const stateSchemaVersion = 1

// CursorKindGit marks a cursor holding a last-indexed commit SHA.
const CursorKindGit = "git"

// CursorKindNone marks the absence of an incremental cursor.
const CursorKindNone = "none"

// Cursor is a persisted marker used to compute incremental diffs instead of
// full comparisons.
type Cursor struct {
	Kind                 string `json:"kind"`
	LastIndexedCommitSHA string `json:"lastIndexedCommitSha,omitempty"`
}

// WatchState is the engine's observable health, persisted as a single JSON
// document per workspace and read by external status tooling.
type WatchState struct {
	SchemaVersion       int                `json:"schema_version"`
	WorkspaceRoot       string             `json:"workspace_root"`
	InstanceID          string             `json:"instance_id,omitempty"`
	WatchStartedAt      *time.Time         `json:"watch_started_at,omitempty"`
	WatchLastHeartbeat  *time.Time         `json:"watch_last_heartbeat_at,omitempty"`
	WatchLastEventAt    *time.Time         `json:"watch_last_event_at,omitempty"`
	WatchLastReindexOK  *time.Time         `json:"watch_last_reindex_ok_at,omitempty"`
	SuspectedDead       bool               `json:"suspected_dead"`
	NeedsCatchup        bool               `json:"needs_catchup"`
	StorageAttached     bool               `json:"storage_attached"`
	LastError           string             `json:"last_error,omitempty"`
	Cursor              Cursor             `json:"cursor"`
	EffectiveConfig     config.WatchConfig `json:"effective_config"`
	UpdatedAt           time.Time          `json:"updated_at"`
}

// ComputeSuspectedDead reports whether the watcher looks dead at the given
// instant: a start was recorded but the last heartbeat is older than three
// heartbeat intervals.
func (s *WatchState) ComputeSuspectedDead(now time.Time) bool {
	if s.WatchStartedAt == nil {
		return false
	}
	interval := time.Duration(s.EffectiveConfig.HeartbeatMs) * time.Millisecond
	if interval <= 0 {
		return false
	}
	last := *s.WatchStartedAt
	if s.WatchLastHeartbeat != nil && s.WatchLastHeartbeat.After(last) {
		last = *s.WatchLastHeartbeat
	}
	return now.Sub(last) > 3*interval
}

// StateStore persists the WatchState document through the storage key/value
// slot. Every update is read-then-merge-then-write so that no stage ever
// drops fields owned by another stage.
type StateStore struct {
	storage Storage
	clock   Clock

	mu sync.Mutex
}

// NewStateStore creates a state store over the given storage collaborator.
func NewStateStore(st Storage, clock Clock) *StateStore {
	return &StateStore{storage: st, clock: clock}
}

// Load reads the current document, returning a fresh one when none has been
// written yet.
func (s *StateStore) Load() (*WatchState, error) {
	raw, err := s.storage.GetState(StateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read watch state: %w", err)
	}
	if raw == "" {
		return &WatchState{
			SchemaVersion: stateSchemaVersion,
			Cursor:        Cursor{Kind: CursorKindNone},
		}, nil
	}

	var st WatchState
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return nil, fmt.Errorf("failed to decode watch state: %w", err)
	}
	return &st, nil
}

// Update applies fn to the current document and writes it back. The
// watcher is single-instance per workspace, so last-writer-wins is
// acceptable; the mutex only serializes this process's own stages.
func (s *StateStore) Update(fn func(*WatchState)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.Load()
	if err != nil {
		return err
	}

	fn(st)
	st.SchemaVersion = stateSchemaVersion
	st.UpdatedAt = s.clock.Now().UTC()

	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to encode watch state: %w", err)
	}

	if err := s.storage.SetState(StateKey, string(data)); err != nil {
		return fmt.Errorf("failed to write watch state: %w", err)
	}
	return nil
}
