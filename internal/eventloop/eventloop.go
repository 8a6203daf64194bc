// Package eventloop implements the single-threaded event loop every shell
// runs on. All state changes of a shell happen in callbacks executed by the
// loop, one at a time, so the shell itself needs no locking.
package eventloop

import (
	"context"
	"errors"
	"sync"
)

// ErrStopped is returned by Do when the loop is not running anymore.
var ErrStopped = errors.New("event loop stopped")

// EventLoop runs queued callbacks one after another on a single goroutine.
type EventLoop struct {
	lock    sync.Mutex
	queue   []func() error
	wakeup  chan struct{}
	stopped bool
	done    chan struct{}

	// errHandler receives every error returned by a callback; the loop keeps going.
	errHandler func(error)
}

// New returns a new event loop. Errors returned by callbacks are passed to
// errHandler, which may be nil.
func New(errHandler func(error)) *EventLoop {
	if errHandler == nil {
		errHandler = func(error) {}
	}
	return &EventLoop{
		wakeup:     make(chan struct{}, 1),
		done:       make(chan struct{}),
		errHandler: errHandler,
	}
}

// RegisterCallback returns a function that queues a callback on the event
// loop. It is safe to call from any goroutine, and the returned function is
// meant to be called exactly once. Callbacks queued after the loop stopped
// are silently discarded.
func (e *EventLoop) RegisterCallback() func(func() error) {
	var once sync.Once
	return func(f func() error) {
		once.Do(func() {
			e.Queue(f)
		})
	}
}

// Queue adds f to the end of the queue.
func (e *EventLoop) Queue(f func() error) {
	e.lock.Lock()
	if e.stopped {
		e.lock.Unlock()
		return
	}
	e.queue = append(e.queue, f)
	e.lock.Unlock()

	select {
	case e.wakeup <- struct{}{}:
	default:
	}
}

// Do queues f and waits until it has been executed, returning its error.
// It must not be called from the loop goroutine itself.
func (e *EventLoop) Do(ctx context.Context, f func() error) error {
	result := make(chan error, 1)
	e.Queue(func() error {
		result <- f()
		return nil
	})
	select {
	case err := <-result:
		return err
	case <-e.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run executes queued callbacks until ctx is done. Callbacks still queued at
// that point are dropped.
func (e *EventLoop) Run(ctx context.Context) {
	defer func() {
		e.lock.Lock()
		e.stopped = true
		e.queue = nil
		e.lock.Unlock()
		close(e.done)
	}()

	for {
		e.lock.Lock()
		queue := e.queue
		e.queue = make([]func() error, 0, len(queue))
		e.lock.Unlock()

		for _, f := range queue {
			if ctx.Err() != nil {
				return
			}
			if err := f(); err != nil {
				e.errHandler(err)
			}
		}

		e.lock.Lock()
		pending := len(e.queue)
		e.lock.Unlock()
		if pending > 0 {
			continue
		}

		select {
		case <-e.wakeup:
		case <-ctx.Done():
			return
		}
	}
}

// Done is closed once Run has returned.
func (e *EventLoop) Done() <-chan struct{} {
	return e.done
}
