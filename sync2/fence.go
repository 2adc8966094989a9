// Package sync2 provides the small set of synchronization primitives the render
// graph needs at its execution boundary (spec §5): a reusable, signal-once,
// wait-many, resettable fence the caller can use to coordinate CPU-side work with
// asynchronous GPU completion, without the core itself blocking on the GPU queue.
package sync2

import "sync"

// Fence is a signal-once, wait-many, reset primitive. It does not itself implement
// a timeout: spec §5 is explicit that the caller layers timeouts above WaitSignaled.
type Fence struct {
	mu       sync.Mutex
	cond     *sync.Cond
	signaled bool
}

// NewFence returns an unsignaled Fence ready for use.
func NewFence() *Fence {
	f := &Fence{}
	f.cond = sync.NewCond(&f.mu)
	return f
}

// Signal marks the fence signaled and wakes every waiter. Safe to call more than
// once; subsequent calls are no-ops until Reset.
func (f *Fence) Signal() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.signaled {
		return
	}
	f.signaled = true
	f.cond.Broadcast()
}

// WaitSignaled blocks until Signal has been called at least once since the last
// Reset. Returns immediately if the fence is already signaled.
func (f *Fence) WaitSignaled() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for !f.signaled {
		f.cond.Wait()
	}
}

// Signaled reports the current state without blocking.
func (f *Fence) Signaled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.signaled
}

// Reset clears the signaled state so the fence can be reused for the next frame.
func (f *Fence) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signaled = false
}

// Semaphore is a debug-named GPU-to-GPU binary semaphore handle. The render graph
// core never waits on it from the CPU, and no RHI submit call in this module
// accepts it.
type Semaphore struct {
	name string
}

// NewSemaphore wraps a debug name for a binary semaphore minted by the RHI backend.
func NewSemaphore(name string) *Semaphore { return &Semaphore{name: name} }

// Name returns the debug label associated with this semaphore.
func (s *Semaphore) Name() string { return s.name }
