package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/fuomag9/targetwatch/internal/storage"
	"github.com/fuomag9/targetwatch/internal/storage/memory"
	"github.com/fuomag9/targetwatch/internal/uptime"
)

type allowAll struct{}

func (allowAll) ValidateURL(context.Context, string) error { return nil }

type denyAll struct{}

func (denyAll) ValidateURL(context.Context, string) error { return errors.New("private address") }

type serviceFixture struct {
	store    *memory.Store
	prober   *fakeProber
	waits    *waitRecorder
	executor *Executor
	svc      *Service
}

func newServiceFixture(t *testing.T, cfg ServiceConfig, statuses ...int) *serviceFixture {
	t.Helper()
	store := memory.New()
	prober := &fakeProber{statuses: statuses, latency: 120 * time.Millisecond}
	waits := &waitRecorder{}
	e := newTestExecutor(t, store, prober)
	e.wait = waits.wait
	svc := NewService(store, e, uptime.NewCalculator(store, 0), allowAll{}, cfg, zap.NewNop())
	return &serviceFixture{store: store, prober: prober, waits: waits, executor: e, svc: svc}
}

func TestService_AddTargetEndToEnd(t *testing.T) {
	f := newServiceFixture(t, ServiceConfig{}, 200)
	ctx := context.Background()

	target, err := f.svc.AddTarget(ctx, "alice", "example.com", 5)
	if err != nil {
		t.Fatalf("AddTarget: %v", err)
	}
	if target.URL != "https://example.com" {
		t.Fatalf("URL = %q, want https://example.com", target.URL)
	}

	waitFor(t, time.Second, func() bool { return len(f.waits.snapshot()) == 1 }, "first cycle")

	rows, _ := f.store.RecentOutcomes(ctx, target.ID, 10)
	if len(rows) != 1 {
		t.Fatalf("outcomes = %d, want 1", len(rows))
	}
	if rows[0].StatusCode != 200 || !rows[0].Success || rows[0].LatencyMS != 120 {
		t.Fatalf("unexpected outcome: %+v", rows[0])
	}

	stored, _ := f.svc.GetTarget(ctx, target.ID)
	if stored.LastChecked == nil {
		t.Fatal("last_checked not set after first probe")
	}

	pct, err := f.svc.GetUptime(ctx, target.ID)
	if err != nil || pct != 100.0 {
		t.Fatalf("GetUptime = %v, %v; want 100", pct, err)
	}
	if got := f.waits.snapshot()[0]; got != 5*time.Minute {
		t.Fatalf("wait = %v, want 5m", got)
	}
}

func TestService_ServerErrorsGiveZeroUptime(t *testing.T) {
	store := memory.New()
	prober := &fakeProber{statuses: []int{500}}
	e := newTestExecutor(t, store, prober, WithIntervalUnit(2*time.Millisecond))
	svc := NewService(store, e, uptime.NewCalculator(store, 0), allowAll{}, ServiceConfig{}, nil)
	ctx := context.Background()

	target, err := svc.AddTarget(ctx, "alice", "https://down.example", 1)
	if err != nil {
		t.Fatalf("AddTarget: %v", err)
	}
	waitFor(t, time.Second, func() bool { return countOutcomes(t, store, target.ID) >= 5 }, "five outcomes")

	rows, _ := store.RecentOutcomes(ctx, target.ID, 0)
	for _, o := range rows {
		if o.Success {
			t.Fatalf("500 outcome recorded as success: %+v", o)
		}
	}
	pct, err := svc.GetUptime(ctx, target.ID)
	if err != nil || pct != 0 {
		t.Fatalf("GetUptime = %v, %v; want 0", pct, err)
	}
}

func TestService_ChangeIntervalAppliesToNextWait(t *testing.T) {
	f := newServiceFixture(t, ServiceConfig{}, 200)
	ctx := context.Background()

	target, err := f.svc.AddTarget(ctx, "alice", "example.com", 5)
	if err != nil {
		t.Fatalf("AddTarget: %v", err)
	}
	waitFor(t, time.Second, func() bool { return len(f.waits.snapshot()) == 1 }, "first wait")

	if _, err := f.svc.ChangeInterval(ctx, target.ID, 10); err != nil {
		t.Fatalf("ChangeInterval: %v", err)
	}
	waitFor(t, time.Second, func() bool { return len(f.waits.snapshot()) == 2 }, "wait after restart")

	waits := f.waits.snapshot()
	if waits[0] != 5*time.Minute || waits[1] != 10*time.Minute {
		t.Fatalf("waits = %v, want [5m 10m]", waits)
	}
	if n := f.executor.RunningCount(); n != 1 {
		t.Fatalf("RunningCount = %d, want 1", n)
	}
	if c := f.prober.calls.Load(); c != 2 {
		t.Fatalf("probes = %d, want 2", c)
	}
}

func TestService_RemoveTargetStopsTask(t *testing.T) {
	f := newServiceFixture(t, ServiceConfig{}, 200)
	ctx := context.Background()

	target, _ := f.svc.AddTarget(ctx, "alice", "example.com", 1)
	waitFor(t, time.Second, func() bool { return len(f.waits.snapshot()) == 1 }, "first cycle")

	if err := f.svc.RemoveTarget(ctx, target.ID); err != nil {
		t.Fatalf("RemoveTarget: %v", err)
	}
	if f.executor.Running(target.ID) {
		t.Fatal("task still running after remove")
	}
	stored, _ := f.svc.GetTarget(ctx, target.ID)
	if stored.Active {
		t.Fatal("target still active after remove")
	}

	if err := f.svc.RemoveTarget(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("RemoveTarget(missing) = %v, want ErrNotFound", err)
	}

	resumed, err := f.svc.ResumeTarget(ctx, target.ID)
	if err != nil || !resumed.Active || !f.executor.Running(target.ID) {
		t.Fatalf("ResumeTarget = %+v, %v", resumed, err)
	}
}

func TestService_RejectsBadInput(t *testing.T) {
	f := newServiceFixture(t, ServiceConfig{MaxIntervalMinutes: 60})
	ctx := context.Background()

	if _, err := f.svc.AddTarget(ctx, "alice", "  ", 5); !errors.Is(err, ErrInvalidURL) {
		t.Errorf("empty url: %v", err)
	}
	if _, err := f.svc.AddTarget(ctx, "alice", "ftp://example.com", 5); !errors.Is(err, ErrInvalidURL) {
		t.Errorf("ftp url: %v", err)
	}
	if _, err := f.svc.AddTarget(ctx, "alice", "example.com", 0); !errors.Is(err, ErrInvalidInterval) {
		t.Errorf("zero interval: %v", err)
	}
	if _, err := f.svc.AddTarget(ctx, "alice", "example.com", 61); !errors.Is(err, ErrInvalidInterval) {
		t.Errorf("interval over max: %v", err)
	}
	if _, err := f.svc.ChangeInterval(ctx, "any", -1); !errors.Is(err, ErrInvalidInterval) {
		t.Errorf("ChangeInterval(-1): %v", err)
	}
	if n := f.executor.RunningCount(); n != 0 {
		t.Fatalf("rejected input started %d tasks", n)
	}

	f.svc.validator = denyAll{}
	if _, err := f.svc.AddTarget(ctx, "alice", "example.com", 5); !errors.Is(err, ErrInvalidURL) {
		t.Errorf("validator rejection: %v", err)
	}
}

func TestService_EnforcesQuota(t *testing.T) {
	f := newServiceFixture(t, ServiceConfig{MaxTargetsPerOwner: 2})
	ctx := context.Background()

	first, err := f.svc.AddTarget(ctx, "alice", "a.example", 5)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	if _, err := f.svc.AddTarget(ctx, "alice", "b.example", 5); err != nil {
		t.Fatalf("second: %v", err)
	}
	if _, err := f.svc.AddTarget(ctx, "alice", "c.example", 5); !errors.Is(err, ErrTargetLimit) {
		t.Fatalf("third: %v, want ErrTargetLimit", err)
	}
	if _, err := f.svc.AddTarget(ctx, "bob", "c.example", 5); err != nil {
		t.Fatalf("other owner: %v", err)
	}

	// removed targets free a slot but cannot be resumed once it is taken
	_ = f.svc.RemoveTarget(ctx, first.ID)
	if _, err := f.svc.AddTarget(ctx, "alice", "c.example", 5); err != nil {
		t.Fatalf("after remove: %v", err)
	}
	if _, err := f.svc.ResumeTarget(ctx, first.ID); !errors.Is(err, ErrTargetLimit) {
		t.Fatalf("resume over quota: %v, want ErrTargetLimit", err)
	}
}

func TestService_ListTargets(t *testing.T) {
	f := newServiceFixture(t, ServiceConfig{}, 200)
	ctx := context.Background()

	target, _ := f.svc.AddTarget(ctx, "alice", "example.com", 5)
	_, _ = f.svc.AddTarget(ctx, "bob", "example.org", 5)
	waitFor(t, time.Second, func() bool { return len(f.waits.snapshot()) == 2 }, "both first cycles")

	rows, err := f.svc.ListTargets(ctx, "alice")
	if err != nil {
		t.Fatalf("ListTargets: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != target.ID || rows[0].Uptime != 100 || !rows[0].Running {
		t.Fatalf("unexpected rows: %+v", rows)
	}

	outcomes, err := f.svc.Outcomes(ctx, target.ID, 0)
	if err != nil || len(outcomes) != 1 {
		t.Fatalf("Outcomes = %d, %v", len(outcomes), err)
	}
}
