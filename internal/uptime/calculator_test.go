package uptime

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/fuomag9/targetwatch/internal/models"
)

type fakeOutcomes struct {
	rows  []*models.ProbeOutcome
	limit int
	err   error
}

func (f *fakeOutcomes) RecentOutcomes(_ context.Context, _ string, limit int) ([]*models.ProbeOutcome, error) {
	f.limit = limit
	if f.err != nil {
		return nil, f.err
	}
	if limit < len(f.rows) {
		return f.rows[:limit], nil
	}
	return f.rows, nil
}

func outcomes(successes, total int) []*models.ProbeOutcome {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := make([]*models.ProbeOutcome, total)
	for i := range rows {
		rows[i] = &models.ProbeOutcome{
			Success:   i < successes,
			LatencyMS: 100,
			CheckedAt: base.Add(-time.Duration(i) * time.Minute),
		}
	}
	return rows
}

func TestUptime_NoOutcomesIsZero(t *testing.T) {
	c := NewCalculator(&fakeOutcomes{}, 0)
	got, err := c.Uptime(context.Background(), "t1", 0)
	if err != nil {
		t.Fatalf("Uptime: %v", err)
	}
	if got != 0 || math.IsNaN(got) {
		t.Fatalf("uptime = %v, want 0", got)
	}
}

func TestUptime_SevenOfTen(t *testing.T) {
	c := NewCalculator(&fakeOutcomes{rows: outcomes(7, 10)}, 0)
	got, err := c.Uptime(context.Background(), "t1", 0)
	if err != nil {
		t.Fatalf("Uptime: %v", err)
	}
	if got != 70.0 {
		t.Fatalf("uptime = %v, want 70", got)
	}
}

func TestUptime_DefaultWindowIs100(t *testing.T) {
	f := &fakeOutcomes{rows: outcomes(150, 150)}
	c := NewCalculator(f, 0)
	if _, err := c.Uptime(context.Background(), "t1", 0); err != nil {
		t.Fatalf("Uptime: %v", err)
	}
	if f.limit != DefaultWindow {
		t.Fatalf("requested limit = %d, want %d", f.limit, DefaultWindow)
	}
}

func TestStats_CountsAndSpan(t *testing.T) {
	c := NewCalculator(&fakeOutcomes{rows: outcomes(3, 4)}, 10)
	s, err := c.Stats(context.Background(), "t1", 0)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if s.Window != 10 || s.TotalChecks != 4 || s.UpChecks != 3 || s.DownChecks != 1 {
		t.Fatalf("unexpected stats: %+v", s)
	}
	if s.AverageLatencyMS != 100 {
		t.Fatalf("average latency = %v, want 100", s.AverageLatencyMS)
	}
	if !s.EndTime.After(*s.StartTime) {
		t.Fatalf("expected end %v after start %v", s.EndTime, s.StartTime)
	}
}

func TestUptime_PropagatesStorageError(t *testing.T) {
	boom := errors.New("db down")
	c := NewCalculator(&fakeOutcomes{err: boom}, 0)
	if _, err := c.Uptime(context.Background(), "t1", 0); !errors.Is(err, boom) {
		t.Fatalf("expected storage error, got %v", err)
	}
}
