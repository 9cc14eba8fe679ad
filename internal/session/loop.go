package session

import (
	"context"
	"sync"
)

// Loop runs posted closures one at a time on a single goroutine. All
// stroke and session state is touched only from inside the loop.
type Loop struct {
	queue chan func()
	done  chan struct{}
	once  sync.Once
}

// NewLoop returns a loop whose queue holds up to capacity pending closures.
func NewLoop(capacity int) *Loop {
	if capacity < 1 {
		capacity = 1
	}
	return &Loop{
		queue: make(chan func(), capacity),
		done:  make(chan struct{}),
	}
}

// Post queues fn. It blocks while the queue is full and reports false once
// the loop has stopped.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.queue <- fn:
		return true
	case <-l.done:
		return false
	}
}

// Run executes posted closures until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	defer l.once.Do(func() { close(l.done) })
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-l.queue:
			fn()
		}
	}
}

// Call posts fn and waits for it to run. It returns false if the loop
// stopped first.
func (l *Loop) Call(fn func()) bool {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		fn()
	}) {
		return false
	}
	select {
	case <-finished:
		return true
	case <-l.done:
		select {
		case <-finished:
			return true
		default:
			return false
		}
	}
}
