package watcher

import (
	"container/heap"
	"sync"
	"time"
)

// Clock abstracts time so that debounce, batch, cascade, and heartbeat
// scheduling is deterministic under test. The real implementation delegates
// to the time package.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) Timer
}

type realClock struct{}

// RealClock returns a Clock backed by the time package.
func RealClock() Clock {
	return realClock{}
}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, fn func()) Timer {
	return realTimer{time.AfterFunc(d, fn)}
}

type realTimer struct{ t *time.Timer }

func (t realTimer) Stop() bool { return t.t.Stop() }

func (t realTimer) Reset(d time.Duration) bool { return t.t.Reset(d) }

// FakeClock is a manually advanced Clock. Scheduled actions sit in a
// priority queue ordered by fire time (FIFO among equal times) and run
// synchronously from Advance, which makes timer-ordering tests exact.
type FakeClock struct {
	mu    sync.Mutex
	now   time.Time
	seq   int
	tasks taskHeap
}

// NewFakeClock creates a FakeClock starting at the given instant.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

// Now returns the fake current time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// AfterFunc schedules fn to run when the clock has advanced by d.
func (c *FakeClock) AfterFunc(d time.Duration, fn func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	task := &fakeTask{
		clock:  c,
		fireAt: c.now.Add(d),
		seq:    c.seq,
		fn:     fn,
	}
	heap.Push(&c.tasks, task)
	return task
}

// Advance moves the clock forward by d, running every due action in fire
// order. Actions scheduled while advancing also run if they fall due.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)

	for {
		if len(c.tasks) == 0 || c.tasks[0].fireAt.After(target) {
			break
		}
		task := heap.Pop(&c.tasks).(*fakeTask)
		if task.stopped {
			continue
		}
		if task.fireAt.After(c.now) {
			c.now = task.fireAt
		}
		task.fired = true
		c.mu.Unlock()
		task.fn()
		c.mu.Lock()
	}

	c.now = target
	c.mu.Unlock()
}

// PendingTasks returns the number of scheduled, unfired, unstopped actions.
func (c *FakeClock) PendingTasks() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, t := range c.tasks {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

type fakeTask struct {
	clock   *FakeClock
	fireAt  time.Time
	seq     int
	index   int
	fn      func()
	stopped bool
	fired   bool
}

func (t *fakeTask) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()

	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

func (t *fakeTask) Reset(d time.Duration) bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()

	active := !t.fired && !t.stopped
	t.fireAt = t.clock.now.Add(d)
	t.stopped = false
	t.fired = false
	if t.index >= 0 && t.index < len(t.clock.tasks) && t.clock.tasks[t.index] == t {
		heap.Fix(&t.clock.tasks, t.index)
	} else {
		t.clock.seq++
		t.seq = t.clock.seq
		heap.Push(&t.clock.tasks, t)
	}
	return active
}

type taskHeap []*fakeTask

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].fireAt.Equal(h[j].fireAt) {
		return h[i].seq < h[j].seq
	}
	return h[i].fireAt.Before(h[j].fireAt)
}

func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *taskHeap) Push(x interface{}) {
	t := x.(*fakeTask)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *taskHeap) Pop() interface{} {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}
