package task

import "sync"

// Batch tracks one caller submission's installed/done/error counters
// and serves as the condition its creator sleeps on until the batch
// terminates (installed == done+error) or the caller's stop signal
// closes.
type Batch struct {
	mu sync.Mutex

	installed int
	done      int
	errored   int
	isDead    bool

	waitCh chan struct{}
}

// NewBatch creates an empty batch.
func NewBatch() *Batch {
	return &Batch{waitCh: make(chan struct{})}
}

func (b *Batch) lockedBroadcast() {
	close(b.waitCh)
	b.waitCh = make(chan struct{})
}

// Install records one more task installed under this batch.
func (b *Batch) Install() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.installed++
}

// done/error counters are bumped by the state machine on terminal
// transitions, via MarkDone/MarkError, and immediately wake any
// waiter — termination is "installed == done+error", so every bump is
// a potential termination point.

// MarkDone records one successful completion.
func (b *Batch) MarkDone() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.done++
	b.lockedBroadcast()
}

// MarkError records one terminal failure.
func (b *Batch) MarkError() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.errored++
	b.lockedBroadcast()
}

// MarkDead flags the batch as abandoned by its caller (e.g. the
// caller was interrupted while waiting); this lets orphaned tasks that
// later complete recognize they no longer have a live batch to notify.
func (b *Batch) MarkDead() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.isDead = true
	b.lockedBroadcast()
}

// IsDead reports whether the batch's caller has given up.
func (b *Batch) IsDead() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.isDead
}

// Counts returns installed, done, errored under one lock.
func (b *Batch) Counts() (installed, done, errored int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.installed, b.done, b.errored
}

// Terminated reports whether done+errored has caught up with
// installed — the batch's wake condition.
func (b *Batch) Terminated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.done+b.errored >= b.installed
}

// Wait blocks until the batch terminates or stop is closed, returning
// false in the latter case.
func (b *Batch) Wait(stop <-chan struct{}) bool {
	for {
		b.mu.Lock()
		if b.done+b.errored >= b.installed {
			b.mu.Unlock()
			return true
		}
		ch := b.waitCh
		b.mu.Unlock()

		select {
		case <-ch:
		case <-stop:
			return false
		}
	}
}
