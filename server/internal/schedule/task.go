// Package schedule runs a function on a fixed period until cancelled.
package schedule

import (
	"context"
	"sync"
	"time"
)

// Task is a handle to a running periodic function.
type Task struct {
	cancel context.CancelFunc
	done   chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

// Every calls fn every interval until ctx is cancelled or Stop is called.
// There is no backoff, jitter or drift correction. Each tick runs fn in its
// own goroutine, so a slow call does not delay or suppress the next one.
// fn receives the task's context, which is cancelled by Stop.
func Every(ctx context.Context, interval time.Duration, fn func(context.Context)) *Task {
	ctx, cancel := context.WithCancel(ctx)
	t := &Task{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(t.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				t.wg.Add(1)
				go func() {
					defer t.wg.Done()
					fn(ctx)
				}()
			}
		}
	}()
	return t
}

// Stop cancels the task, including any in-flight calls, and waits for them
// to return. It is safe to call more than once.
func (t *Task) Stop() {
	t.once.Do(func() {
		t.cancel()
		<-t.done
		t.wg.Wait()
	})
}

// Done is closed once the ticker loop has exited.
func (t *Task) Done() <-chan struct{} {
	return t.done
}
