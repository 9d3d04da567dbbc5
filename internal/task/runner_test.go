package task

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	logx "digestbot/pkg/logx"
)

func TestEnqueueSingletonDropsOverlap(t *testing.T) {
	t.Parallel()

	r := NewRunner(Config{Workers: 1}, logx.Nop())
	r.Start(context.Background())
	defer r.Stop(context.Background())

	release := make(chan struct{})
	started := make(chan struct{})
	var runs atomic.Int32

	first := Job{
		Name: "digest-7",
		Key:  "recipient:7",
		Run: func(ctx context.Context) error {
			runs.Add(1)
			close(started)
			<-release
			return nil
		},
	}
	if err := r.Enqueue(first); err != nil {
		t.Fatalf("first enqueue: %v", err)
	}
	<-started

	dup := first
	dup.Run = func(ctx context.Context) error { runs.Add(1); return nil }
	if err := r.Enqueue(dup); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("duplicate enqueue err = %v, want ErrAlreadyRunning", err)
	}

	close(release)
	waitFor(t, func() bool {
		overlap, _ := r.Dropped()
		return overlap == 1
	})
	if got := runs.Load(); got != 1 {
		t.Fatalf("runs = %d, want 1", got)
	}

	// The key frees up once the first run finishes.
	waitFor(t, func() bool { return r.Enqueue(dup) == nil })
}

func TestEnqueueUnkeyedJobsMayOverlap(t *testing.T) {
	t.Parallel()

	r := NewRunner(Config{Workers: 2}, logx.Nop())
	r.Start(context.Background())
	defer r.Stop(context.Background())

	var runs atomic.Int32
	job := Job{Name: "manual", Run: func(ctx context.Context) error {
		runs.Add(1)
		return nil
	}}
	if err := r.Enqueue(job); err != nil {
		t.Fatal(err)
	}
	if err := r.Enqueue(job); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return runs.Load() == 2 })
}

func TestStaleJobsAreDropped(t *testing.T) {
	t.Parallel()

	r := NewRunner(Config{Workers: 1, MaxQueueDelay: 10 * time.Millisecond}, logx.Nop())

	var runs atomic.Int32
	job := Job{Name: "late", Key: "k", Run: func(ctx context.Context) error {
		runs.Add(1)
		return nil
	}}
	if err := r.Enqueue(job); err != nil {
		t.Fatal(err)
	}

	// Workers start only after the job has gone stale in the queue.
	time.Sleep(30 * time.Millisecond)
	r.Start(context.Background())
	defer r.Stop(context.Background())

	waitFor(t, func() bool {
		_, stale := r.Dropped()
		return stale == 1
	})
	if runs.Load() != 0 {
		t.Fatal("stale job ran")
	}
	// The stale drop released the key.
	waitFor(t, func() bool { return r.Enqueue(job) == nil })
}

func TestPanicDoesNotKillWorker(t *testing.T) {
	t.Parallel()

	r := NewRunner(Config{Workers: 1}, logx.Nop())
	r.Start(context.Background())
	defer r.Stop(context.Background())

	if err := r.Enqueue(Job{Name: "boom", Run: func(ctx context.Context) error {
		panic("kaboom")
	}}); err != nil {
		t.Fatal(err)
	}

	var ran atomic.Bool
	if err := r.Enqueue(Job{Name: "after", Run: func(ctx context.Context) error {
		ran.Store(true)
		return nil
	}}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return ran.Load() })
}

func TestEnqueueAfterStop(t *testing.T) {
	t.Parallel()

	r := NewRunner(Config{}, logx.Nop())
	r.Start(context.Background())
	if err := r.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := r.Enqueue(Job{Name: "x", Run: func(ctx context.Context) error { return nil }}); !errors.Is(err, ErrStopped) {
		t.Fatalf("err = %v, want ErrStopped", err)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}
