package task

import (
	"context"
	"log"
	"runtime/debug"
	"sync"
	"time"
)

// Runner executes a function at a fixed interval on its own goroutine.
// A panicking tick is logged and swallowed so one bad tick never kills
// the loop; the next tick runs on schedule.
type Runner struct {
	Name     string
	Interval time.Duration
	Task     func(ctx context.Context)

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// Start launches the loop. Calling Start on a running Runner is a no-op.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return
	}
	if r.Interval <= 0 {
		r.Interval = time.Second
	}
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})
	r.started = true

	go func() {
		defer close(r.done)
		ticker := time.NewTicker(r.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.runOnce(ctx)
			}
		}
	}()
}

func (r *Runner) runOnce(ctx context.Context) {
	defer func() {
		if p := recover(); p != nil {
			log.Printf("[TASK] %s panicked: %v\n%s", r.Name, p, debug.Stack())
		}
	}()
	r.Task(ctx)
}

// Stop cancels the loop and waits for the in-flight tick to return.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return
	}
	cancel, done := r.cancel, r.done
	r.started = false
	r.mu.Unlock()

	cancel()
	<-done
}
