// Package eventloop provides the queue through which background work hands
// results back to its caller. Tasks are posted from any goroutine and run one
// at a time, in posting order, on whichever goroutine drains the loop.
package eventloop

import (
	"context"
	"sync"
)

// Loop is an unbounded FIFO of tasks.
type Loop struct {
	mu     sync.Mutex
	tasks  []func()
	notify chan struct{}
}

// New returns an empty loop.
func New() *Loop {
	return &Loop{notify: make(chan struct{}, 1)}
}

// Post queues fn. It never blocks.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	l.tasks = append(l.tasks, fn)
	l.mu.Unlock()

	select {
	case l.notify <- struct{}{}:
	default:
	}
}

// Len returns the number of queued tasks.
func (l *Loop) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.tasks)
}

// RunPending runs every queued task, including tasks posted by the tasks it
// runs, and returns how many ran.
func (l *Loop) RunPending() int {
	ran := 0
	for {
		fn, ok := l.pop()
		if !ok {
			return ran
		}
		fn()
		ran++
	}
}

// Run drains the loop until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	for {
		l.RunPending()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.notify:
		}
	}
}

// Ready returns a channel that receives after a Post. Callers that multiplex
// the loop with other channels select on it and then call RunPending.
func (l *Loop) Ready() <-chan struct{} {
	return l.notify
}

func (l *Loop) pop() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.tasks) == 0 {
		return nil, false
	}
	fn := l.tasks[0]
	l.tasks[0] = nil
	l.tasks = l.tasks[1:]
	return fn, true
}
