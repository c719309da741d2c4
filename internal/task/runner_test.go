package task

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestRunnerTicksAndStops(t *testing.T) {
	var ticks atomic.Int64
	r := &Runner{
		Name:     "test",
		Interval: 10 * time.Millisecond,
		Task:     func(context.Context) { ticks.Add(1) },
	}
	r.Start(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for ticks.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if ticks.Load() < 3 {
		t.Fatalf("expected at least 3 ticks, got %d", ticks.Load())
	}

	r.Stop()
	after := ticks.Load()
	time.Sleep(50 * time.Millisecond)
	if got := ticks.Load(); got != after {
		t.Fatalf("runner ticked after Stop: %d -> %d", after, got)
	}
}

func TestRunnerSurvivesPanickingTick(t *testing.T) {
	var ticks atomic.Int64
	r := &Runner{
		Name:     "panicky",
		Interval: 5 * time.Millisecond,
		Task: func(context.Context) {
			if ticks.Add(1) == 1 {
				panic("boom")
			}
		},
	}
	r.Start(context.Background())
	defer r.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for ticks.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if ticks.Load() < 3 {
		t.Fatalf("runner died after panic; ticks=%d", ticks.Load())
	}
}

func TestRunnerStartTwiceIsNoop(t *testing.T) {
	var ticks atomic.Int64
	r := &Runner{
		Name:     "dup",
		Interval: time.Hour,
		Task:     func(context.Context) { ticks.Add(1) },
	}
	r.Start(context.Background())
	r.Start(context.Background())
	r.Stop()
	// Stop after a second Start must not hang or double-close.
	r.Stop()
}
