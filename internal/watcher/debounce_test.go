package watcher

import (
	"reflect"
	"sync"
	"testing"
	"time"
)

type emitRecorder struct {
	mu      sync.Mutex
	batches [][]string
	raws    []int
}

func (r *emitRecorder) emit(paths []string, rawEvents int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, paths)
	r.raws = append(r.raws, rawEvents)
}

func (r *emitRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.batches)
}

func (r *emitRecorder) batch(i int) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.batches[i]
}

func (r *emitRecorder) raw(i int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.raws[i]
}

const (
	testDebounce = 500 * time.Millisecond
	testWindow   = 2 * time.Second
)

func newTestBatcher() (*DebounceBatcher, *FakeClock, *emitRecorder) {
	clock := NewFakeClock(fakeStart())
	rec := &emitRecorder{}
	b := NewDebounceBatcher(clock, testDebounce, testWindow, rec.emit)
	return b, clock, rec
}

func TestDebounceCoalescesRepeatedEvents(t *testing.T) {
	b, clock, rec := newTestBatcher()

	b.OnEvent("a.go")
	b.OnEvent("a.go")
	b.OnEvent("a.go")

	clock.Advance(testDebounce)
	if rec.count() != 0 {
		t.Fatal("Batch emitted before its window elapsed")
	}

	clock.Advance(testWindow)
	if rec.count() != 1 {
		t.Fatalf("Expected exactly 1 emission, got %d", rec.count())
	}
	if got := rec.batch(0); !reflect.DeepEqual(got, []string{"a.go"}) {
		t.Errorf("Expected batch [a.go], got %v", got)
	}
	if rec.raw(0) != 3 {
		t.Errorf("Expected 3 raw events in the epoch, got %d", rec.raw(0))
	}
	if b.RawEventCount() != 0 {
		t.Errorf("Raw event counter should reset at the batch boundary, got %d", b.RawEventCount())
	}
}

func TestDebounceRefreshDelaysPromotion(t *testing.T) {
	b, clock, _ := newTestBatcher()

	b.OnEvent("a.go")
	clock.Advance(300 * time.Millisecond)
	b.OnEvent("a.go")

	clock.Advance(400 * time.Millisecond)
	if b.PendingCount() != 1 {
		t.Error("Path promoted before the refreshed debounce elapsed")
	}

	clock.Advance(100 * time.Millisecond)
	if b.PendingCount() != 0 {
		t.Error("Path not promoted after the refreshed debounce elapsed")
	}
}

func TestBatchWindowIsUpperBoundNotIdleTimeout(t *testing.T) {
	b, clock, rec := newTestBatcher()

	// a.go opens the batch when it promotes at +500ms; the deadline is
	// then fixed at +2500ms.
	b.OnEvent("a.go")
	clock.Advance(1500 * time.Millisecond)

	// b.go promotes at +2000ms and joins the open batch without extending
	// its deadline.
	b.OnEvent("b.go")

	clock.Advance(999 * time.Millisecond)
	if rec.count() != 0 {
		t.Fatal("Batch emitted before the original deadline")
	}

	clock.Advance(1 * time.Millisecond)
	if rec.count() != 1 {
		t.Fatalf("Expected emission at the original deadline, got %d emissions", rec.count())
	}
	if got := rec.batch(0); !reflect.DeepEqual(got, []string{"a.go", "b.go"}) {
		t.Errorf("Expected batch [a.go b.go], got %v", got)
	}
}

func TestDebounceSeparateBatchEpochs(t *testing.T) {
	b, clock, rec := newTestBatcher()

	b.OnEvent("a.go")
	clock.Advance(testDebounce + testWindow)

	b.OnEvent("b.go")
	clock.Advance(testDebounce + testWindow)

	if rec.count() != 2 {
		t.Fatalf("Expected 2 emissions, got %d", rec.count())
	}
	if rec.raw(0) != 1 || rec.raw(1) != 1 {
		t.Errorf("Expected each epoch to count its own raw events, got %d and %d",
			rec.raw(0), rec.raw(1))
	}
}

func TestInjectBypassesDebounceAndRawCounter(t *testing.T) {
	b, clock, rec := newTestBatcher()

	b.Inject([]string{"x.go", "y.go"})
	if b.RawEventCount() != 0 {
		t.Errorf("Inject must not count raw events, got %d", b.RawEventCount())
	}

	clock.Advance(testWindow)
	if rec.count() != 1 {
		t.Fatalf("Expected 1 emission, got %d", rec.count())
	}
	if got := rec.batch(0); !reflect.DeepEqual(got, []string{"x.go", "y.go"}) {
		t.Errorf("Expected batch [x.go y.go], got %v", got)
	}
	if rec.raw(0) != 0 {
		t.Errorf("Expected raw count 0 for injected batch, got %d", rec.raw(0))
	}
}

func TestInjectJoinsOpenBatch(t *testing.T) {
	b, clock, rec := newTestBatcher()

	b.OnEvent("a.go")
	clock.Advance(testDebounce)
	b.Inject([]string{"z.go"})

	clock.Advance(testWindow)
	if rec.count() != 1 {
		t.Fatalf("Expected 1 emission, got %d", rec.count())
	}
	if got := rec.batch(0); !reflect.DeepEqual(got, []string{"a.go", "z.go"}) {
		t.Errorf("Expected batch [a.go z.go], got %v", got)
	}
}

func TestInjectEmptyIsNoOp(t *testing.T) {
	b, clock, rec := newTestBatcher()

	b.Inject(nil)
	clock.Advance(testWindow * 2)

	if rec.count() != 0 {
		t.Errorf("Expected no emission, got %d", rec.count())
	}
	if clock.PendingTasks() != 0 {
		t.Errorf("Expected no scheduled tasks, got %d", clock.PendingTasks())
	}
}

func TestDebounceStopCancelsEverything(t *testing.T) {
	b, clock, rec := newTestBatcher()

	b.OnEvent("a.go")
	clock.Advance(testDebounce)
	b.OnEvent("b.go")
	b.Stop()

	clock.Advance(testWindow * 2)
	if rec.count() != 0 {
		t.Errorf("Expected no emission after Stop, got %d", rec.count())
	}
	if clock.PendingTasks() != 0 {
		t.Errorf("Expected no leaked timers after Stop, got %d", clock.PendingTasks())
	}

	b.OnEvent("c.go")
	if b.PendingCount() != 0 {
		t.Error("Events after Stop must be ignored")
	}
}
