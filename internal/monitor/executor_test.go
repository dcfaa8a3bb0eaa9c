package monitor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/fuomag9/targetwatch/internal/models"
	"github.com/fuomag9/targetwatch/internal/storage/memory"
)

func TestExecutor_ConcurrentStartRunsOneTask(t *testing.T) {
	store := memory.New()
	id, _ := store.CreateTarget(context.Background(), "alice", "https://example.com", 1)

	rec := &waitRecorder{}
	prober := &fakeProber{}
	e := newTestExecutor(t, store, prober)
	e.wait = rec.wait

	var wg sync.WaitGroup
	var mu sync.Mutex
	started := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if e.Start(id) {
				mu.Lock()
				started++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if started != 1 {
		t.Fatalf("Start returned true %d times, want 1", started)
	}
	if n := e.RunningCount(); n != 1 {
		t.Fatalf("RunningCount = %d, want 1", n)
	}

	waitFor(t, time.Second, func() bool { return len(rec.snapshot()) == 1 }, "first cycle")
	time.Sleep(20 * time.Millisecond)
	if got := countOutcomes(t, store, id); got != 1 {
		t.Fatalf("outcomes = %d, want 1", got)
	}
}

func TestExecutor_StopPreventsFurtherOutcomes(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	id, _ := store.CreateTarget(ctx, "alice", "https://example.com", 1)

	e := newTestExecutor(t, store, &fakeProber{}, WithIntervalUnit(2*time.Millisecond))
	e.Start(id)
	waitFor(t, time.Second, func() bool { return countOutcomes(t, store, id) >= 3 }, "three outcomes")

	e.mu.Lock()
	done := e.tasks[id].done
	e.mu.Unlock()

	if !e.Stop(id) {
		t.Fatal("Stop returned false for a running task")
	}
	if e.Running(id) {
		t.Fatal("task still registered after Stop")
	}
	<-done

	after := countOutcomes(t, store, id)
	time.Sleep(30 * time.Millisecond)
	if got := countOutcomes(t, store, id); got != after {
		t.Fatalf("outcomes grew after stop: %d -> %d", after, got)
	}
	if e.Stop(id) {
		t.Fatal("second Stop should be a no-op")
	}
}

func TestExecutor_RestartWaitsForPreviousTask(t *testing.T) {
	store := memory.New()
	id, _ := store.CreateTarget(context.Background(), "alice", "https://example.com", 1)

	prober := &fakeProber{delay: 20 * time.Millisecond}
	rec := &waitRecorder{}
	e := newTestExecutor(t, store, prober)
	e.wait = rec.wait

	e.Start(id)
	for i := 0; i < 5; i++ {
		e.Restart(id)
	}

	waitFor(t, 2*time.Second, func() bool { return len(rec.snapshot()) >= 1 }, "a task reached its wait")
	time.Sleep(100 * time.Millisecond)

	if n := e.RunningCount(); n != 1 {
		t.Fatalf("RunningCount = %d, want 1", n)
	}
	if m := prober.maxInflight.Load(); m != 1 {
		t.Fatalf("max concurrent probes = %d, want 1", m)
	}
}

func TestExecutor_InactiveTargetExits(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	id, _ := store.CreateTarget(ctx, "alice", "https://example.com", 1)
	_ = store.SetTargetActive(ctx, id, false)

	prober := &fakeProber{}
	e := newTestExecutor(t, store, prober)
	e.Start(id)

	waitFor(t, time.Second, func() bool { return !e.Running(id) }, "task to unregister")
	if prober.calls.Load() != 0 {
		t.Fatalf("inactive target was probed %d times", prober.calls.Load())
	}
}

func TestExecutor_MissingTargetExits(t *testing.T) {
	e := newTestExecutor(t, memory.New(), &fakeProber{})
	e.Start("does-not-exist")
	waitFor(t, time.Second, func() bool { return !e.Running("does-not-exist") }, "task to unregister")
}

func TestExecutor_RecordFailureKeepsLooping(t *testing.T) {
	store := &failingStore{Store: memory.New()}
	id, _ := store.CreateTarget(context.Background(), "alice", "https://example.com", 1)

	prober := &fakeProber{}
	e := newTestExecutor(t, store, prober, WithIntervalUnit(2*time.Millisecond))
	e.Start(id)

	waitFor(t, time.Second, func() bool { return prober.calls.Load() >= 3 }, "loop to survive write failures")
	if store.appends.Load() < 3 {
		t.Fatalf("expected repeated append attempts, got %d", store.appends.Load())
	}
	if !e.Running(id) {
		t.Fatal("task stopped after a persistence failure")
	}
}

func TestExecutor_Reconcile(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	a, _ := store.CreateTarget(ctx, "alice", "https://a.example", 1)
	b, _ := store.CreateTarget(ctx, "alice", "https://b.example", 1)

	rec := &waitRecorder{}
	e := newTestExecutor(t, store, &fakeProber{})
	e.wait = rec.wait

	started, stopped, err := e.Reconcile(ctx)
	if err != nil || started != 2 || stopped != 0 {
		t.Fatalf("Reconcile = %d started, %d stopped, %v; want 2, 0", started, stopped, err)
	}
	waitFor(t, time.Second, func() bool { return len(rec.snapshot()) == 2 }, "both tasks waiting")

	_ = store.SetTargetActive(ctx, b, false)
	started, stopped, err = e.Reconcile(ctx)
	if err != nil || started != 0 || stopped != 1 {
		t.Fatalf("Reconcile = %d started, %d stopped, %v; want 0, 1", started, stopped, err)
	}
	if !e.Running(a) || e.Running(b) {
		t.Fatalf("unexpected running set: a=%v b=%v", e.Running(a), e.Running(b))
	}
}

func TestExecutor_NotifiesOnTransitions(t *testing.T) {
	store := memory.New()
	id, _ := store.CreateTarget(context.Background(), "alice", "https://example.com", 1)

	notifier := &fakeNotifier{}
	prober := &fakeProber{statuses: []int{200, 200, 503, 503, 200}}
	e := newTestExecutor(t, store, prober, WithIntervalUnit(2*time.Millisecond), WithNotifier(notifier))
	e.Start(id)

	waitFor(t, 2*time.Second, func() bool { return len(notifier.snapshot()) >= 2 }, "two transitions")
	e.Stop(id)

	calls := notifier.snapshot()
	if calls[0].up || !calls[1].up {
		t.Fatalf("unexpected transitions: %+v", calls)
	}
}

func TestExecutor_StopAllWaitsAndRejectsStart(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	id, _ := store.CreateTarget(ctx, "alice", "https://example.com", 1)

	e := NewExecutor(store, &fakeProber{}, NewRecorder(store, nil))
	e.wait = (&waitRecorder{}).wait
	if err := e.StartAll(ctx); err != nil {
		t.Fatalf("StartAll: %v", err)
	}

	e.StopAll()
	if n := e.RunningCount(); n != 0 {
		t.Fatalf("RunningCount after StopAll = %d", n)
	}
	if e.Start(id) {
		t.Fatal("Start succeeded after StopAll")
	}
}

func TestExecutor_Snapshot(t *testing.T) {
	store := memory.New()
	id, _ := store.CreateTarget(context.Background(), "alice", "https://example.com", 7)

	rec := &waitRecorder{}
	e := newTestExecutor(t, store, &fakeProber{})
	e.wait = rec.wait
	e.Start(id)
	waitFor(t, time.Second, func() bool { return len(rec.snapshot()) == 1 }, "first cycle")

	snap := e.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("snapshot len = %d, want 1", len(snap))
	}
	if snap[0].IntervalMinutes != 7 || snap[0].Cycles != 1 || snap[0].Up == nil || !*snap[0].Up {
		t.Fatalf("unexpected snapshot: %+v", snap[0])
	}
}

// gatedStore holds GetTarget until release is closed.
type gatedStore struct {
	*memory.Store
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedStore) GetTarget(ctx context.Context, id string) (*models.Target, error) {
	g.once.Do(func() { close(g.entered) })
	<-g.release
	return g.Store.GetTarget(ctx, id)
}

func TestExecutor_StopDuringTargetLoadSkipsCycle(t *testing.T) {
	store := &gatedStore{
		Store:   memory.New(),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	id, _ := store.CreateTarget(context.Background(), "alice", "https://example.com", 1)

	prober := &fakeProber{}
	e := newTestExecutor(t, store, prober)
	e.Start(id)
	<-store.entered

	e.mu.Lock()
	done := e.tasks[id].done
	e.mu.Unlock()

	if !e.Stop(id) {
		t.Fatal("Stop returned false for a running task")
	}
	close(store.release)
	<-done

	if n := prober.calls.Load(); n != 0 {
		t.Fatalf("probes after Stop = %d, want 0", n)
	}
	if got := countOutcomes(t, store, id); got != 0 {
		t.Fatalf("outcomes after Stop = %d, want 0", got)
	}
}
