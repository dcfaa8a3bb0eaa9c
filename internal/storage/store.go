package storage

import (
	"context"
	"errors"
	"time"

	"github.com/fuomag9/targetwatch/internal/models"
)

// ErrNotFound is returned when a requested target does not exist.
var ErrNotFound = errors.New("not found")

// Store is the persistence boundary consumed by the monitoring engine.
// Implementations must be safe for concurrent use.
type Store interface {
	GetTarget(ctx context.Context, id string) (*models.Target, error)
	ListActiveTargets(ctx context.Context) ([]*models.Target, error)
	ListTargetsByOwner(ctx context.Context, ownerID string) ([]*models.Target, error)
	CountActiveByOwner(ctx context.Context, ownerID string) (int64, error)
	CountTargets(ctx context.Context) (total, active int64, err error)

	// CreateTarget stores a new active target and returns its generated id.
	CreateTarget(ctx context.Context, ownerID, url string, interval int) (string, error)
	SetTargetActive(ctx context.Context, id string, active bool) error
	SetTargetInterval(ctx context.Context, id string, interval int) error
	UpdateLastChecked(ctx context.Context, id string, at time.Time) error

	AppendOutcome(ctx context.Context, outcome *models.ProbeOutcome) error
	// RecentOutcomes returns at most limit outcomes for a target, most recent first.
	RecentOutcomes(ctx context.Context, targetID string, limit int) ([]*models.ProbeOutcome, error)

	// InTx runs fn against a Store whose writes commit or roll back together.
	InTx(ctx context.Context, fn func(tx Store) error) error
}
