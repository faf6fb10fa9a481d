package bookmarks

import (
	"context"
	"errors"
	"sync"
)

// ErrLoopStopped is returned by Do once the loop has been stopped.
var ErrLoopStopped = errors.New("bookmarks loop stopped")

// Loop is the owning context of a Store: a single goroutine that runs queued
// functions one at a time, in the order they were posted.
//
// HTTP handlers and background jobs reach the store through Do, and save
// callbacks come back through Post.
type Loop struct {
	mu      sync.Mutex
	queue   []func()
	wake    chan struct{}
	stop    chan struct{}
	done    chan struct{}
	stopped bool
}

// NewLoop starts a loop.
func NewLoop() *Loop {
	l := &Loop{
		wake: make(chan struct{}, 1),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *Loop) run() {
	defer close(l.done)
	for {
		l.drain()
		select {
		case <-l.wake:
		case <-l.stop:
			l.drain()
			return
		}
	}
}

// drain runs queued functions until the queue is empty.
func (l *Loop) drain() {
	for {
		l.mu.Lock()
		batch := l.queue
		l.queue = nil
		l.mu.Unlock()

		if len(batch) == 0 {
			return
		}
		for _, fn := range batch {
			fn()
		}
	}
}

// Post queues fn without waiting. It never blocks, even when called from
// the loop itself. Functions posted after Stop are dropped.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Do runs fn on the loop and waits for it to return.
// If ctx ends first, Do returns ctx.Err() and fn may still run later.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return ErrLoopStopped
	}
	l.queue = append(l.queue, func() {
		defer close(finished)
		fn()
	})
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		// The loop may have run fn right before exiting.
		select {
		case <-finished:
			return nil
		default:
			return ErrLoopStopped
		}
	}
}

// Stop ends the loop once queued work has drained and waits for it to exit.
func (l *Loop) Stop() {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		<-l.done
		return
	}
	l.stopped = true
	l.mu.Unlock()

	close(l.stop)
	<-l.done
}
