package monitor

import (
	"context"
	"fmt"

	"github.com/fuomag9/targetwatch/internal/models"
	"github.com/fuomag9/targetwatch/internal/storage"
)

// Publisher receives every outcome that was persisted.
type Publisher interface {
	PublishOutcome(outcome *models.ProbeOutcome)
}

// Recorder persists probe results.
type Recorder struct {
	store     storage.Store
	publisher Publisher
}

func NewRecorder(store storage.Store, publisher Publisher) *Recorder {
	return &Recorder{store: store, publisher: publisher}
}

// Record appends the outcome and updates the target's last_checked in one
// transaction. The built outcome is returned even when persisting it failed.
func (r *Recorder) Record(ctx context.Context, targetID string, res Result) (*models.ProbeOutcome, error) {
	outcome := &models.ProbeOutcome{
		TargetID:   targetID,
		StatusCode: res.StatusCode,
		LatencyMS:  res.LatencyMS(),
		Success:    res.Success,
		Message:    res.Message,
		CheckedAt:  res.CheckedAt,
	}

	err := r.store.InTx(ctx, func(tx storage.Store) error {
		if err := tx.AppendOutcome(ctx, outcome); err != nil {
			return err
		}
		return tx.UpdateLastChecked(ctx, targetID, res.CheckedAt)
	})
	if err != nil {
		return outcome, fmt.Errorf("record outcome for %s: %w", targetID, err)
	}

	if r.publisher != nil {
		r.publisher.PublishOutcome(outcome)
	}
	return outcome, nil
}
