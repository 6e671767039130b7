package pollrun

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestRunner_ProcessesCandidatesAndTracksCount(t *testing.T) {
	var processed int32
	list := func(ctx context.Context, limit int) ([]string, error) {
		return []string{"p1", "p2"}, nil
	}
	process := func(ctx context.Context, id string) error {
		atomic.AddInt32(&processed, 1)
		return nil
	}

	r := New("test", Config{PollInterval: 20 * time.Millisecond, BatchLimit: 2}, list, process)
	r.Start(context.Background())
	time.Sleep(80 * time.Millisecond)
	r.Stop()

	if atomic.LoadInt32(&processed) == 0 {
		t.Fatal("expected at least one project to be processed")
	}
	if r.IsRunning() {
		t.Fatal("expected runner to be stopped")
	}
}

func TestRunner_SkipsInFlightDuringOverlappingTick(t *testing.T) {
	var wg sync.WaitGroup
	wg.Add(1)
	started := make(chan struct{})
	release := make(chan struct{})

	list := func(ctx context.Context, limit int) ([]string, error) {
		return []string{"slow"}, nil
	}
	var calls int32
	process := func(ctx context.Context, id string) error {
		if atomic.AddInt32(&calls, 1) == 1 {
			close(started)
			<-release
		}
		return nil
	}

	r := New("test", Config{PollInterval: 10 * time.Millisecond, BatchLimit: 1}, list, process)
	r.Start(context.Background())

	<-started
	// A second tick should see "slow" as in-flight and skip it.
	r.tick(context.Background())
	close(release)
	r.Stop()
	wg.Done()

	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected exactly 1 call while the first was in flight, got %d", calls)
	}
}

func TestRunner_StartIsIdempotent(t *testing.T) {
	list := func(ctx context.Context, limit int) ([]string, error) { return nil, nil }
	process := func(ctx context.Context, id string) error { return nil }
	r := New("test", Config{PollInterval: time.Second}, list, process)

	r.Start(context.Background())
	r.Start(context.Background())
	if !r.IsRunning() {
		t.Fatal("expected runner to be running after duplicate Start")
	}
	r.Stop()
	r.Stop()
	if r.IsRunning() {
		t.Fatal("expected runner to be stopped")
	}
}
