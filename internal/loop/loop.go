// ABOUTME: Serial task loop that owns all widget DOM and component state
// ABOUTME: Network goroutines and timers post work here instead of mutating state

package loop

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// ErrClosed is returned by Do when the loop has been closed.
var ErrClosed = errors.New("loop closed")

// Loop runs posted tasks one at a time on a dedicated goroutine.
type Loop struct {
	mu      sync.Mutex
	queue   []func()
	wake    chan struct{}
	done    chan struct{}
	stopped chan struct{}
	closed  bool
	logger  *slog.Logger
}

// New starts a loop. Pass nil logger for default.
func New(logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Loop{
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
		logger:  logger.With("component", "loop"),
	}
	go l.run()
	return l
}

// Post queues fn to run on the loop. It never blocks and may be called from
// inside a task. Returns false if the loop is closed.
func (l *Loop) Post(fn func()) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Do runs fn on the loop and waits for it to finish.
// It must not be called from a loop task.
func (l *Loop) Do(fn func()) error {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrClosed
	}
	select {
	case <-finished:
		return nil
	case <-l.stopped:
		// The task may have been the last one drained before exit.
		select {
		case <-finished:
			return nil
		default:
			return ErrClosed
		}
	}
}

// Close stops accepting tasks, runs what is already queued, and waits for
// the loop goroutine to exit. Safe to call multiple times.
func (l *Loop) Close() {
	l.mu.Lock()
	if !l.closed {
		l.closed = true
		close(l.done)
	}
	l.mu.Unlock()
	<-l.stopped
}

func (l *Loop) run() {
	defer close(l.stopped)
	for {
		for {
			task, ok := l.next()
			if !ok {
				break
			}
			l.runTask(task)
		}

		select {
		case <-l.wake:
		case <-l.done:
			// Drain whatever was queued before Close.
			for {
				task, ok := l.next()
				if !ok {
					return
				}
				l.runTask(task)
			}
		}
	}
}

func (l *Loop) next() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return nil, false
	}
	task := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return task, true
}

func (l *Loop) runTask(task func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("task panicked", "panic", fmt.Sprint(r))
		}
	}()
	task()
}

// Timer is a cancellable loop timer.
type Timer struct {
	stopped atomic.Bool
	stop    func()
}

// Stop prevents any further firing. Safe to call more than once and from
// any goroutine.
func (t *Timer) Stop() {
	if t == nil {
		return
	}
	if t.stopped.CompareAndSwap(false, true) && t.stop != nil {
		t.stop()
	}
}

// Stopped reports whether Stop has been called.
func (t *Timer) Stopped() bool {
	return t != nil && t.stopped.Load()
}

// AfterFunc runs fn on the loop once d has elapsed, unless stopped first.
func (l *Loop) AfterFunc(d time.Duration, fn func()) *Timer {
	t := &Timer{}
	tm := time.AfterFunc(d, func() {
		l.Post(func() {
			if t.stopped.Load() {
				return
			}
			t.stopped.Store(true)
			fn()
		})
	})
	t.stop = func() { tm.Stop() }
	return t
}

// Every runs fn on the loop every d until stopped or the loop closes.
func (l *Loop) Every(d time.Duration, fn func()) *Timer {
	t := &Timer{}
	quit := make(chan struct{})
	t.stop = func() { close(quit) }

	go func() {
		ticker := time.NewTicker(d)
		defer ticker.Stop()
		for {
			select {
			case <-quit:
				return
			case <-l.done:
				return
			case <-ticker.C:
				l.Post(func() {
					if !t.stopped.Load() {
						fn()
					}
				})
			}
		}
	}()
	return t
}
