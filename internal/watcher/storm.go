package watcher

import (
	"log/slog"
	"sync"
)

// StormGuard rate-limits batch admission. Mass operations (checkout, global
// reformat, generated-file churn) must not translate into proportional
// reindex load; a discarded batch is caught up later by reconciliation or a
// subsequent clean window.
type StormGuard struct {
	threshold int
	logger    *slog.Logger

	mu     sync.Mutex
	storms int
}

// NewStormGuard creates a guard that denies batches whose epoch saw at
// least threshold raw events.
func NewStormGuard(threshold int, logger *slog.Logger) *StormGuard {
	return &StormGuard{threshold: threshold, logger: logger}
}

// Admit decides whether a batch may proceed given the raw event count
// observed during its epoch. A denied batch is discarded whole; admission
// returns to normal for the next batch automatically.
func (g *StormGuard) Admit(rawEvents int) bool {
	if rawEvents < g.threshold {
		return true
	}

	g.mu.Lock()
	g.storms++
	g.mu.Unlock()

	g.logger.Warn("event storm detected, discarding batch",
		"rawEvents", rawEvents,
		"threshold", g.threshold)
	return false
}

// Storms returns the number of batches discarded so far.
func (g *StormGuard) Storms() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.storms
}
