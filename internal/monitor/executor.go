package monitor

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fuomag9/targetwatch/internal/models"
	"github.com/fuomag9/targetwatch/internal/storage"
)

const (
	DefaultRetryDelay = 30 * time.Second
	notifyTimeout     = 30 * time.Second
)

// Notifier is told when a target flips between up and down. Calls happen on
// their own goroutine.
type Notifier interface {
	NotifyTransition(ctx context.Context, target *models.Target, outcome *models.ProbeOutcome, up bool) error
}

// Executor owns the registry of polling tasks. There is at most one task per
// target id; every lifecycle call serialises on mu.
type Executor struct {
	store    storage.Store
	prober   Prober
	recorder *Recorder
	notifier Notifier
	logger   *zap.Logger

	intervalUnit time.Duration
	retryDelay   time.Duration
	wait         func(ctx context.Context, d time.Duration) bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	tasks    map[string]*task
	retiring map[string]chan struct{} // stopped tasks that have not exited yet
	closed   bool
}

// Option configures an Executor.
type Option func(*Executor)

// WithIntervalUnit sets the duration of one interval step. Production uses a
// minute; tests use milliseconds.
func WithIntervalUnit(d time.Duration) Option {
	return func(e *Executor) { e.intervalUnit = d }
}

// WithRetryDelay sets how long a task waits after a storage read error.
func WithRetryDelay(d time.Duration) Option {
	return func(e *Executor) { e.retryDelay = d }
}

func WithNotifier(n Notifier) Option {
	return func(e *Executor) { e.notifier = n }
}

func WithLogger(l *zap.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

// NewExecutor creates a new monitor executor
func NewExecutor(store storage.Store, prober Prober, recorder *Recorder, opts ...Option) *Executor {
	ctx, cancel := context.WithCancel(context.Background())
	e := &Executor{
		store:        store,
		prober:       prober,
		recorder:     recorder,
		logger:       zap.NewNop(),
		intervalUnit: time.Minute,
		retryDelay:   DefaultRetryDelay,
		wait:         sleepCtx,
		ctx:          ctx,
		cancel:       cancel,
		tasks:        make(map[string]*task),
		retiring:     make(map[string]chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// StartAll starts a task for every active target.
func (e *Executor) StartAll(ctx context.Context) error {
	targets, err := e.store.ListActiveTargets(ctx)
	if err != nil {
		return fmt.Errorf("list active targets: %w", err)
	}

	started := 0
	e.mu.Lock()
	for _, t := range targets {
		if e.startLocked(t.ID) {
			started++
		}
	}
	e.mu.Unlock()

	e.logger.Info("executor_started", zap.Int("active_targets", len(targets)), zap.Int("started", started))
	return nil
}

// Start spawns a task for id unless one is already registered. It reports
// whether a new task was started.
func (e *Executor) Start(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.startLocked(id)
}

// Stop cancels the task for id. A probe already in flight may still record.
func (e *Executor) Stop(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stopLocked(id)
}

// Restart replaces the task for id with a fresh one that probes immediately.
// The new task does not begin until the old one has exited.
func (e *Executor) Restart(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopLocked(id)
	return e.startLocked(id)
}

// Reconcile aligns running tasks with the active targets in storage. Tasks
// started after the listing began are left alone.
func (e *Executor) Reconcile(ctx context.Context) (started, stopped int, err error) {
	listedAt := time.Now()
	targets, err := e.store.ListActiveTargets(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("list active targets: %w", err)
	}

	active := make(map[string]struct{}, len(targets))
	for _, t := range targets {
		active[t.ID] = struct{}{}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for id, t := range e.tasks {
		if _, ok := active[id]; !ok && t.startedAt.Before(listedAt) {
			if e.stopLocked(id) {
				stopped++
			}
		}
	}
	for id := range active {
		if e.startLocked(id) {
			started++
		}
	}

	if started > 0 || stopped > 0 {
		e.logger.Info("executor_reconciled", zap.Int("started", started), zap.Int("stopped", stopped))
	}
	return started, stopped, nil
}

// StopAll cancels every task and waits for them, and any pending
// notifications, to finish. The Executor cannot be restarted afterwards.
func (e *Executor) StopAll() {
	e.mu.Lock()
	e.closed = true
	n := len(e.tasks)
	e.cancel()
	for id, t := range e.tasks {
		e.retiring[id] = t.done
		delete(e.tasks, id)
	}
	e.mu.Unlock()

	e.logger.Info("executor_stopping", zap.Int("tasks", n))
	e.wg.Wait()
	e.logger.Info("executor_stopped")
}

func (e *Executor) Running(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.tasks[id]
	return ok
}

func (e *Executor) RunningCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.tasks)
}

// Snapshot returns the running tasks ordered by target id.
func (e *Executor) Snapshot() []TaskInfo {
	e.mu.Lock()
	out := make([]TaskInfo, 0, len(e.tasks))
	for _, t := range e.tasks {
		out = append(out, t.info())
	}
	e.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].TargetID < out[j].TargetID })
	return out
}

func (e *Executor) startLocked(id string) bool {
	if e.closed {
		return false
	}
	if _, exists := e.tasks[id]; exists {
		return false
	}

	ctx, cancel := context.WithCancel(e.ctx)
	t := &task{
		targetID:  id,
		cancel:    cancel,
		done:      make(chan struct{}),
		startedAt: time.Now(),
	}
	prev := e.retiring[id]
	e.tasks[id] = t

	e.wg.Add(1)
	go e.run(ctx, t, prev)

	e.logger.Info("task_started", zap.String("target_id", id))
	return true
}

func (e *Executor) stopLocked(id string) bool {
	t, exists := e.tasks[id]
	if !exists {
		return false
	}
	delete(e.tasks, id)
	e.retiring[id] = t.done
	t.cancel()

	e.logger.Info("task_stopped", zap.String("target_id", id))
	return true
}

// finish unregisters t if it is still the current task for its target.
func (e *Executor) finish(t *task) {
	t.cancel()

	e.mu.Lock()
	if cur, ok := e.tasks[t.targetID]; ok && cur == t {
		delete(e.tasks, t.targetID)
	}
	if done, ok := e.retiring[t.targetID]; ok && done == t.done {
		delete(e.retiring, t.targetID)
	}
	e.mu.Unlock()

	close(t.done)
	e.wg.Done()
}

func (e *Executor) notifyTransition(ctx context.Context, target *models.Target, outcome *models.ProbeOutcome, up bool) {
	if e.notifier == nil {
		return
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
		defer cancel()
		if err := e.notifier.NotifyTransition(nctx, target, outcome, up); err != nil {
			e.logger.Warn("notify_error", zap.String("target_id", target.ID), zap.Bool("up", up), zap.Error(err))
		}
	}()
}
