package monitor

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/fuomag9/targetwatch/internal/models"
	"github.com/fuomag9/targetwatch/internal/storage"
)

const (
	statusUnknown int32 = iota
	statusUp
	statusDown
)

// task is the polling loop for one target. Its lifetime is owned by the
// Executor registry.
type task struct {
	targetID  string
	cancel    context.CancelFunc
	done      chan struct{}
	startedAt time.Time

	interval   atomic.Int64 // minutes, refreshed every cycle
	cycles     atomic.Int64
	lastStatus atomic.Int32
	lastCheck  atomic.Int64 // unix nanos of the last probe
}

// TaskInfo is a point-in-time view of a running task.
type TaskInfo struct {
	TargetID        string    `json:"target_id"`
	IntervalMinutes int       `json:"interval_minutes"`
	StartedAt       time.Time `json:"started_at"`
	Cycles          int64     `json:"cycles"`
	Up              *bool     `json:"up,omitempty"`
	LastChecked     time.Time `json:"last_checked,omitempty"`
}

func (t *task) info() TaskInfo {
	ti := TaskInfo{
		TargetID:        t.targetID,
		IntervalMinutes: int(t.interval.Load()),
		StartedAt:       t.startedAt,
		Cycles:          t.cycles.Load(),
	}
	switch t.lastStatus.Load() {
	case statusUp:
		up := true
		ti.Up = &up
	case statusDown:
		up := false
		ti.Up = &up
	}
	if ns := t.lastCheck.Load(); ns > 0 {
		ti.LastChecked = time.Unix(0, ns).UTC()
	}
	return ti
}

// run drives the probe, record, wait cycle until the task is cancelled or the
// target is gone or inactive. prev, when set, is the done channel of a task
// for the same target that is still shutting down.
func (e *Executor) run(ctx context.Context, t *task, prev <-chan struct{}) {
	defer e.finish(t)

	if prev != nil {
		<-prev
	}
	if ctx.Err() != nil {
		return
	}

	log := e.logger.With(zap.String("target_id", t.targetID))
	e.seedStatus(ctx, t)
	log.Debug("task_loop_entered")

	for {
		if ctx.Err() != nil {
			log.Debug("task_cancelled")
			return
		}

		target, err := e.store.GetTarget(ctx, t.targetID)
		if errors.Is(err, storage.ErrNotFound) {
			log.Info("task_target_missing")
			return
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn("target_load_error", zap.Error(err))
			if !e.wait(ctx, e.retryDelayFor(t)) {
				return
			}
			continue
		}
		if !target.Active {
			log.Info("task_target_inactive")
			return
		}
		// stopped while the target was loading
		if ctx.Err() != nil {
			log.Debug("task_cancelled")
			return
		}

		t.interval.Store(int64(target.Interval))
		e.cycle(ctx, t, target, log)

		if !e.wait(ctx, time.Duration(target.Interval)*e.intervalUnit) {
			log.Debug("task_cancelled")
			return
		}
	}
}

// cycle probes and records once. Both steps run detached from the task's
// cancellation so a stop during a probe still records its outcome.
func (e *Executor) cycle(ctx context.Context, t *task, target *models.Target, log *zap.Logger) {
	detached := context.WithoutCancel(ctx)

	res := e.prober.Probe(detached, target.URL)
	t.cycles.Add(1)
	t.lastCheck.Store(res.CheckedAt.UnixNano())

	outcome, err := e.recorder.Record(detached, target.ID, res)
	if err != nil {
		log.Error("outcome_record_error", zap.Error(err))
	}

	log.Debug("probe_complete",
		zap.Int("status_code", res.StatusCode),
		zap.Bool("success", res.Success),
		zap.Float64("latency_ms", res.LatencyMS()),
	)

	next := statusDown
	if res.Success {
		next = statusUp
	}
	prev := t.lastStatus.Swap(next)
	if prev != statusUnknown && prev != next {
		e.notifyTransition(ctx, target, outcome, next == statusUp)
	}
}

// seedStatus loads the most recent stored outcome so that a restarted task
// does not re-announce a state the target was already in.
func (e *Executor) seedStatus(ctx context.Context, t *task) {
	rows, err := e.store.RecentOutcomes(ctx, t.targetID, 1)
	if err != nil || len(rows) == 0 {
		return
	}
	if rows[0].Success {
		t.lastStatus.Store(statusUp)
	} else {
		t.lastStatus.Store(statusDown)
	}
	t.lastCheck.Store(rows[0].CheckedAt.UnixNano())
}

func (e *Executor) retryDelayFor(t *task) time.Duration {
	d := e.retryDelay
	if iv := time.Duration(t.interval.Load()) * e.intervalUnit; iv > 0 && iv < d {
		d = iv
	}
	return d
}

// sleepCtx waits for d or until ctx is done. It reports whether the full
// duration elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
