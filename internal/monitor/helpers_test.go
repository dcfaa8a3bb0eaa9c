package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fuomag9/targetwatch/internal/models"
	"github.com/fuomag9/targetwatch/internal/storage"
	"github.com/fuomag9/targetwatch/internal/storage/memory"
)

// fakeProber returns statuses[i] for the i-th call, repeating the last one.
type fakeProber struct {
	statuses []int
	latency  time.Duration
	delay    time.Duration

	calls       atomic.Int64
	inflight    atomic.Int64
	maxInflight atomic.Int64
}

func (p *fakeProber) Probe(ctx context.Context, url string) Result {
	n := p.inflight.Add(1)
	defer p.inflight.Add(-1)
	for {
		m := p.maxInflight.Load()
		if n <= m || p.maxInflight.CompareAndSwap(m, n) {
			break
		}
	}
	if p.delay > 0 {
		time.Sleep(p.delay)
	}

	i := int(p.calls.Add(1)) - 1
	code := 200
	if len(p.statuses) > 0 {
		if i >= len(p.statuses) {
			i = len(p.statuses) - 1
		}
		code = p.statuses[i]
	}
	if code == 0 {
		return Result{CheckedAt: time.Now().UTC(), Message: "connection refused"}
	}
	return Result{
		StatusCode: code,
		Latency:    p.latency,
		Success:    models.IsSuccessStatus(code),
		Message:    fmt.Sprintf("HTTP %d", code),
		CheckedAt:  time.Now().UTC(),
	}
}

// waitRecorder records requested wait durations and then blocks until the
// task is cancelled, so each task performs exactly one cycle.
type waitRecorder struct {
	mu        sync.Mutex
	durations []time.Duration
}

func (w *waitRecorder) wait(ctx context.Context, d time.Duration) bool {
	w.mu.Lock()
	w.durations = append(w.durations, d)
	w.mu.Unlock()
	<-ctx.Done()
	return false
}

func (w *waitRecorder) snapshot() []time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]time.Duration(nil), w.durations...)
}

// failingStore refuses to append outcomes.
type failingStore struct {
	*memory.Store
	appends atomic.Int64
}

var errWriteFailed = errors.New("write failed")

func (f *failingStore) AppendOutcome(ctx context.Context, o *models.ProbeOutcome) error {
	f.appends.Add(1)
	return errWriteFailed
}

func (f *failingStore) InTx(ctx context.Context, fn func(tx storage.Store) error) error {
	return fn(f)
}

type transition struct {
	targetID string
	up       bool
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls []transition
}

func (n *fakeNotifier) NotifyTransition(_ context.Context, target *models.Target, _ *models.ProbeOutcome, up bool) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, transition{targetID: target.ID, up: up})
	return nil
}

func (n *fakeNotifier) snapshot() []transition {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]transition(nil), n.calls...)
}

func newTestExecutor(t *testing.T, store storage.Store, prober Prober, opts ...Option) *Executor {
	t.Helper()
	e := NewExecutor(store, prober, NewRecorder(store, nil), opts...)
	t.Cleanup(e.StopAll)
	return e
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting: %s", msg)
}

func countOutcomes(t *testing.T, store storage.Store, id string) int {
	t.Helper()
	rows, err := store.RecentOutcomes(context.Background(), id, 0)
	if err != nil {
		t.Fatalf("RecentOutcomes: %v", err)
	}
	return len(rows)
}
