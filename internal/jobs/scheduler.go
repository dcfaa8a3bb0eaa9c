package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const jobTimeout = 2 * time.Minute

// Reconciler aligns running tasks with storage.
type Reconciler interface {
	Reconcile(ctx context.Context) (started, stopped int, err error)
}

// Scheduler manages background jobs
type Scheduler struct {
	cron       *cron.Cron
	reconciler Reconciler
	summarizer *Summarizer
	logger     *zap.Logger
}

// NewScheduler registers the reconcile and summary jobs. An empty schedule
// disables the corresponding job.
func NewScheduler(reconcileSpec, summarySpec string, reconciler Reconciler, summarizer *Summarizer, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cl := cronLogger{logger.Sugar()}
	s := &Scheduler{
		cron:       cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		reconciler: reconciler,
		summarizer: summarizer,
		logger:     logger,
	}

	if reconcileSpec != "" {
		if _, err := s.cron.AddFunc(reconcileSpec, s.runReconcile); err != nil {
			return nil, fmt.Errorf("reconcile schedule %q: %w", reconcileSpec, err)
		}
	}
	if summarySpec != "" && summarizer != nil {
		if _, err := s.cron.AddFunc(summarySpec, s.runSummary); err != nil {
			return nil, fmt.Errorf("summary schedule %q: %w", summarySpec, err)
		}
	}
	return s, nil
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("job_scheduler_started", zap.Int("jobs", len(s.cron.Entries())))
}

// Stop stops the scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("job_scheduler_stopped")
}

func (s *Scheduler) runReconcile() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	started, stopped, err := s.reconciler.Reconcile(ctx)
	if err != nil {
		s.logger.Error("reconcile_error", zap.Error(err))
		return
	}
	s.logger.Debug("reconcile_complete", zap.Int("started", started), zap.Int("stopped", stopped))
}

func (s *Scheduler) runSummary() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	sum, err := s.summarizer.Summarize(ctx)
	if err != nil {
		s.logger.Error("summary_error", zap.Error(err))
		return
	}
	s.logger.Info("fleet_summary",
		zap.Int64("total_targets", sum.TotalTargets),
		zap.Int64("active_targets", sum.ActiveTargets),
		zap.Int("running_tasks", sum.RunningTasks),
		zap.Int("targets_up", sum.TargetsUp),
		zap.Float64("average_uptime", sum.AverageUptime),
	)
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
