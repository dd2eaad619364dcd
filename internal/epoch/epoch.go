// Package epoch implements a small quiescent-state based reclamation
// primitive: readers bracket accesses with a critical section, and a
// writer can ask to be told once every critical section that was
// already open when it asked has closed. It exists to stand in for the
// RCU-like "GlobalCounter" collaborator that a concurrent hash table
// needs but that does not itself belong to the table.
package epoch

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// Thread is a handle representing one long-lived reader/writer of
// goroutine identity. Go has no public goroutine-id API, so callers
// obtain one Thread per goroutine that will touch the table and reuse
// it for every call that goroutine makes.
type Thread struct {
	// active holds the generation snapshot observed when the current
	// critical section began, or 0 when the thread is outside any
	// section.
	active atomic.Uint64
}

// GlobalCounter is the reclamation primitive itself: a monotonically
// increasing generation counter plus the set of registered threads.
type GlobalCounter struct {
	generation atomic.Uint64

	mu      sync.Mutex
	threads []*Thread
}

// NewGlobalCounter returns a ready-to-use counter. The generation
// starts at 1 so that a Thread's zero-valued "inactive" marker (0) can
// never collide with a real generation snapshot.
func NewGlobalCounter() *GlobalCounter {
	gc := &GlobalCounter{}
	gc.generation.Store(1)
	return gc
}

// NewThread registers and returns a new reader/writer handle.
func (gc *GlobalCounter) NewThread() *Thread {
	t := &Thread{}
	gc.mu.Lock()
	gc.threads = append(gc.threads, t)
	gc.mu.Unlock()
	return t
}

// CriticalSectionBegin marks t as having entered a reader section.
// Pointers obtained after this call remain safe to dereference until
// the matching CriticalSectionEnd.
func (gc *GlobalCounter) CriticalSectionBegin(t *Thread) {
	t.active.Store(gc.generation.Load())
}

// CriticalSectionEnd marks t as having left its reader section.
func (gc *GlobalCounter) CriticalSectionEnd(t *Thread) {
	t.active.Store(0)
}

// WriteSynchronize blocks until every critical section that was open
// at the moment of the call has ended. Sections that begin after the
// call is free to overlap it. Concurrent callers each bump and wait
// for their own generation, so they may overlap each other freely.
func (gc *GlobalCounter) WriteSynchronize() {
	gc.mu.Lock()
	target := gc.generation.Add(1)
	threads := make([]*Thread, len(gc.threads))
	copy(threads, gc.threads)
	gc.mu.Unlock()

	for _, t := range threads {
		for {
			v := t.active.Load()
			if v == 0 || v >= target {
				break
			}
			runtime.Gosched()
		}
	}
}

