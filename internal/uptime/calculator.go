package uptime

import (
	"context"
	"time"

	"github.com/fuomag9/targetwatch/internal/models"
	"github.com/fuomag9/targetwatch/internal/storage"
)

// DefaultWindow is the number of most recent outcomes an uptime figure covers.
const DefaultWindow = 100

// OutcomeReader is the slice of storage the calculator needs.
type OutcomeReader interface {
	RecentOutcomes(ctx context.Context, targetID string, limit int) ([]*models.ProbeOutcome, error)
}

var _ OutcomeReader = (storage.Store)(nil)

// Calculator derives uptime figures from recorded outcomes. It is read-only.
type Calculator struct {
	outcomes OutcomeReader
	window   int
}

// NewCalculator creates a calculator whose default window is window, or
// DefaultWindow when window is not positive.
func NewCalculator(outcomes OutcomeReader, window int) *Calculator {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Calculator{outcomes: outcomes, window: window}
}

// UptimeStats represents uptime statistics for a target
type UptimeStats struct {
	TargetID         string     `json:"target_id"`
	Window           int        `json:"window"`
	UptimePercentage float64    `json:"uptime_percentage"`
	TotalChecks      int        `json:"total_checks"`
	UpChecks         int        `json:"up_checks"`
	DownChecks       int        `json:"down_checks"`
	AverageLatencyMS float64    `json:"average_latency_ms"`
	StartTime        *time.Time `json:"start_time,omitempty"`
	EndTime          *time.Time `json:"end_time,omitempty"`
}

// Window returns the default window size.
func (c *Calculator) Window() int {
	return c.window
}

// Uptime returns the percentage of successful outcomes among the most recent
// window outcomes, or 0 when there are none.
func (c *Calculator) Uptime(ctx context.Context, targetID string, window int) (float64, error) {
	stats, err := c.Stats(ctx, targetID, window)
	if err != nil {
		return 0, err
	}
	return stats.UptimePercentage, nil
}

// Stats computes the full statistics over the most recent window outcomes.
func (c *Calculator) Stats(ctx context.Context, targetID string, window int) (*UptimeStats, error) {
	if window <= 0 {
		window = c.window
	}

	rows, err := c.outcomes.RecentOutcomes(ctx, targetID, window)
	if err != nil {
		return nil, err
	}

	stats := &UptimeStats{TargetID: targetID, Window: window, TotalChecks: len(rows)}
	if len(rows) == 0 {
		return stats, nil
	}

	var latencySum float64
	for _, o := range rows {
		if o.Success {
			stats.UpChecks++
			latencySum += o.LatencyMS
		} else {
			stats.DownChecks++
		}
	}

	stats.UptimePercentage = float64(stats.UpChecks) / float64(stats.TotalChecks) * 100
	if stats.UpChecks > 0 {
		stats.AverageLatencyMS = latencySum / float64(stats.UpChecks)
	}

	// rows are most recent first
	end := rows[0].CheckedAt
	start := rows[len(rows)-1].CheckedAt
	stats.StartTime = &start
	stats.EndTime = &end
	return stats, nil
}
