package engine

import "sync"

// barrier is a reusable rendezvous point for a fixed number of goroutines.
// Each completed round advances the phase, so the same barrier can be used
// generation after generation.
type barrier struct {
	mu      sync.Mutex
	cond    *sync.Cond
	total   int
	waiting int
	phase   uint64
}

func newBarrier(n int) *barrier {
	b := &barrier{total: n}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// arriveAndWait blocks until all parties of the current phase arrived.
func (b *barrier) arriveAndWait() {
	b.mu.Lock()
	defer b.mu.Unlock()

	phase := b.phase
	b.waiting++
	if b.waiting == b.total {
		b.waiting = 0
		b.phase++
		b.cond.Broadcast()
		return
	}
	for phase == b.phase {
		b.cond.Wait()
	}
}
