package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fuomag9/targetwatch/internal/models"
	"github.com/fuomag9/targetwatch/internal/storage"
)

var _ storage.Store = (*Store)(nil)

// Store persists targets and probe outcomes through gorm. It works against
// postgres in production and sqlite in tests.
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate creates the tables for dialects that are not covered by the
// SQL migrations, such as sqlite.
func (s *Store) AutoMigrate() error {
	return s.db.AutoMigrate(&models.Target{}, &models.ProbeOutcome{})
}

func (s *Store) GetTarget(ctx context.Context, id string) (*models.Target, error) {
	var t models.Target
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get target %s: %w", id, err)
	}
	return &t, nil
}

func (s *Store) ListActiveTargets(ctx context.Context) ([]*models.Target, error) {
	var targets []*models.Target
	if err := s.db.WithContext(ctx).Where("active = ?", true).Order("created_at asc").Find(&targets).Error; err != nil {
		return nil, fmt.Errorf("list active targets: %w", err)
	}
	return targets, nil
}

func (s *Store) ListTargetsByOwner(ctx context.Context, ownerID string) ([]*models.Target, error) {
	var targets []*models.Target
	if err := s.db.WithContext(ctx).Where("owner_id = ?", ownerID).Order("created_at asc").Find(&targets).Error; err != nil {
		return nil, fmt.Errorf("list targets for owner: %w", err)
	}
	return targets, nil
}

func (s *Store) CountActiveByOwner(ctx context.Context, ownerID string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Target{}).
		Where("owner_id = ? AND active = ?", ownerID, true).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count targets for owner: %w", err)
	}
	return n, nil
}

func (s *Store) CountTargets(ctx context.Context) (int64, int64, error) {
	var total, active int64
	db := s.db.WithContext(ctx)
	if err := db.Model(&models.Target{}).Count(&total).Error; err != nil {
		return 0, 0, fmt.Errorf("count targets: %w", err)
	}
	if err := db.Model(&models.Target{}).Where("active = ?", true).Count(&active).Error; err != nil {
		return 0, 0, fmt.Errorf("count active targets: %w", err)
	}
	return total, active, nil
}

func (s *Store) CreateTarget(ctx context.Context, ownerID, url string, interval int) (string, error) {
	t := models.Target{
		ID:       uuid.NewString(),
		OwnerID:  ownerID,
		URL:      url,
		Interval: interval,
		Active:   true,
	}
	if err := s.db.WithContext(ctx).Create(&t).Error; err != nil {
		return "", fmt.Errorf("create target: %w", err)
	}
	return t.ID, nil
}

func (s *Store) SetTargetActive(ctx context.Context, id string, active bool) error {
	return s.updateColumn(ctx, id, "active", active)
}

func (s *Store) SetTargetInterval(ctx context.Context, id string, interval int) error {
	return s.updateColumn(ctx, id, "interval", interval)
}

func (s *Store) UpdateLastChecked(ctx context.Context, id string, at time.Time) error {
	return s.updateColumn(ctx, id, "last_checked", at.UTC())
}

func (s *Store) updateColumn(ctx context.Context, id, column string, value any) error {
	res := s.db.WithContext(ctx).Model(&models.Target{}).Where("id = ?", id).Update(column, value)
	if res.Error != nil {
		return fmt.Errorf("update target %s %s: %w", id, column, res.Error)
	}
	if res.RowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) AppendOutcome(ctx context.Context, o *models.ProbeOutcome) error {
	if err := s.db.WithContext(ctx).Create(o).Error; err != nil {
		return fmt.Errorf("append outcome: %w", err)
	}
	return nil
}

func (s *Store) RecentOutcomes(ctx context.Context, targetID string, limit int) ([]*models.ProbeOutcome, error) {
	q := s.db.WithContext(ctx).Where("target_id = ?", targetID).Order("checked_at desc, id desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []*models.ProbeOutcome
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("recent outcomes: %w", err)
	}
	return rows, nil
}

func (s *Store) InTx(ctx context.Context, fn func(tx storage.Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}
