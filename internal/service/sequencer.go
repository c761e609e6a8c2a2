package service

import "sync"

// sequencer hands out tickets at submission time and lets ticket holders
// enter a critical section strictly in ticket order.
type sequencer struct {
	mu   sync.Mutex
	cond *sync.Cond
	next uint64
	turn uint64
}

func newSequencer() *sequencer {
	q := &sequencer{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *sequencer) take() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	t := q.next
	q.next++
	return t
}

// wait blocks until it is t's turn. Every ticket must be passed to wait and
// then done exactly once, or later tickets never run.
func (q *sequencer) wait(t uint64) {
	q.mu.Lock()
	for q.turn != t {
		q.cond.Wait()
	}
	q.mu.Unlock()
}

func (q *sequencer) done(t uint64) {
	q.mu.Lock()
	if q.turn == t {
		q.turn++
	}
	q.mu.Unlock()
	q.cond.Broadcast()
}
