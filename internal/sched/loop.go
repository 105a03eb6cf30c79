// Package sched runs repeating tasks on a host tick clock with explicit
// start/cancel tokens. Stopping a loop guarantees the task never fires again.
package sched

import (
	"sync"
	"time"
)

// Loop invokes a task once per tick until stopped.
type Loop struct {
	mu      sync.Mutex
	stop    chan struct{}
	done    chan struct{}
	stopped bool
}

// Start begins invoking fn once per interval on a new goroutine.
// fn receives the tick time.
func Start(interval time.Duration, fn func(now time.Time)) *Loop {
	l := &Loop{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go l.run(interval, fn)
	return l
}

func (l *Loop) run(interval time.Duration, fn func(now time.Time)) {
	defer close(l.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case now := <-ticker.C:
			// Re-check after a tick raced with Stop.
			select {
			case <-l.stop:
				return
			default:
			}
			fn(now)
		}
	}
}

// Stop cancels the loop and waits for the current tick, if any, to finish.
// After Stop returns the task will not be invoked again. Idempotent.
func (l *Loop) Stop() {
	l.mu.Lock()
	if !l.stopped {
		close(l.stop)
		l.stopped = true
	}
	l.mu.Unlock()
	<-l.done
}
