package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/fuomag9/targetwatch/internal/models"
)

// TargetCounter is the storage view needed for fleet summaries.
type TargetCounter interface {
	CountTargets(ctx context.Context) (total, active int64, err error)
	ListActiveTargets(ctx context.Context) ([]*models.Target, error)
	RecentOutcomes(ctx context.Context, targetID string, limit int) ([]*models.ProbeOutcome, error)
}

// UptimeSource computes one target's uptime percentage.
type UptimeSource interface {
	Uptime(ctx context.Context, targetID string, window int) (float64, error)
}

// TaskCounter reports how many polling tasks are running.
type TaskCounter interface {
	RunningCount() int
}

// Summary is a point-in-time view of the whole fleet.
type Summary struct {
	TotalTargets   int64     `json:"total_targets"`
	ActiveTargets  int64     `json:"active_targets"`
	RunningTasks   int       `json:"running_tasks"`
	TargetsUp      int       `json:"targets_up"`
	AverageUptime  float64   `json:"average_uptime"`
	GeneratedAt    time.Time `json:"generated_at"`
	uptimeByTarget map[string]float64
}

// UptimeByTarget returns the per-target uptime computed for the summary.
func (s *Summary) UptimeByTarget() map[string]float64 {
	return s.uptimeByTarget
}

// Summarizer builds fleet summaries.
type Summarizer struct {
	store  TargetCounter
	uptime UptimeSource
	tasks  TaskCounter
}

func NewSummarizer(store TargetCounter, uptime UptimeSource, tasks TaskCounter) *Summarizer {
	return &Summarizer{store: store, uptime: uptime, tasks: tasks}
}

// Summarize counts targets and averages uptime over active targets. A target
// counts as up when its latest outcome succeeded.
func (s *Summarizer) Summarize(ctx context.Context) (*Summary, error) {
	total, active, err := s.store.CountTargets(ctx)
	if err != nil {
		return nil, fmt.Errorf("count targets: %w", err)
	}
	targets, err := s.store.ListActiveTargets(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active targets: %w", err)
	}

	sum := &Summary{
		TotalTargets:   total,
		ActiveTargets:  active,
		RunningTasks:   s.tasks.RunningCount(),
		GeneratedAt:    time.Now().UTC(),
		uptimeByTarget: make(map[string]float64, len(targets)),
	}

	var acc float64
	for _, t := range targets {
		pct, err := s.uptime.Uptime(ctx, t.ID, 0)
		if err != nil {
			return nil, fmt.Errorf("uptime for %s: %w", t.ID, err)
		}
		sum.uptimeByTarget[t.ID] = pct
		acc += pct

		latest, err := s.store.RecentOutcomes(ctx, t.ID, 1)
		if err != nil {
			return nil, fmt.Errorf("latest outcome for %s: %w", t.ID, err)
		}
		if len(latest) > 0 && latest[0].Success {
			sum.TargetsUp++
		}
	}
	if len(targets) > 0 {
		sum.AverageUptime = acc / float64(len(targets))
	}
	return sum, nil
}
