package monitor

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/fuomag9/targetwatch/internal/models"
	"github.com/fuomag9/targetwatch/internal/storage"
	"github.com/fuomag9/targetwatch/internal/uptime"
)

const (
	DefaultMaxIntervalMinutes = 1440
	defaultOutcomeLimit       = 50
	maxOutcomeLimit           = 1000
)

// ServiceConfig holds the target policy enforced by the Service.
type ServiceConfig struct {
	MaxTargetsPerOwner int // 0 means unlimited
	MaxIntervalMinutes int
}

// Service is the control surface used by the API layer. It validates input,
// writes through storage and keeps the Executor in step.
type Service struct {
	store      storage.Store
	executor   *Executor
	calculator *uptime.Calculator
	validator  URLValidator
	cfg        ServiceConfig
	logger     *zap.Logger

	// serialises quota checks with the writes they guard
	quotaMu sync.Mutex
}

// TargetSummary is one dashboard row.
type TargetSummary struct {
	*models.Target
	Uptime  float64 `json:"uptime_percentage"`
	Running bool    `json:"running"`
}

func NewService(store storage.Store, executor *Executor, calculator *uptime.Calculator, validator URLValidator, cfg ServiceConfig, logger *zap.Logger) *Service {
	if cfg.MaxIntervalMinutes <= 0 {
		cfg.MaxIntervalMinutes = DefaultMaxIntervalMinutes
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:      store,
		executor:   executor,
		calculator: calculator,
		validator:  validator,
		cfg:        cfg,
		logger:     logger,
	}
}

// AddTarget registers a URL for ownerID and starts polling it.
func (s *Service) AddTarget(ctx context.Context, ownerID, rawURL string, intervalMinutes int) (*models.Target, error) {
	normalized, err := NormalizeURL(rawURL)
	if err != nil {
		return nil, err
	}
	if err := ValidateInterval(intervalMinutes, s.cfg.MaxIntervalMinutes); err != nil {
		return nil, err
	}
	if s.validator != nil {
		if err := s.validator.ValidateURL(ctx, normalized); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
		}
	}

	s.quotaMu.Lock()
	if err := s.checkQuota(ctx, ownerID); err != nil {
		s.quotaMu.Unlock()
		return nil, err
	}
	id, err := s.store.CreateTarget(ctx, ownerID, normalized, intervalMinutes)
	s.quotaMu.Unlock()
	if err != nil {
		return nil, err
	}

	s.executor.Start(id)
	s.logger.Info("target_added",
		zap.String("target_id", id),
		zap.String("owner_id", ownerID),
		zap.String("url", normalized),
		zap.Int("interval", intervalMinutes),
	)
	return s.store.GetTarget(ctx, id)
}

// RemoveTarget deactivates the target and stops its task. History is kept.
func (s *Service) RemoveTarget(ctx context.Context, id string) error {
	if err := s.store.SetTargetActive(ctx, id, false); err != nil {
		return err
	}
	s.executor.Stop(id)
	s.logger.Info("target_removed", zap.String("target_id", id))
	return nil
}

// ResumeTarget reactivates a removed target, subject to the owner's quota.
func (s *Service) ResumeTarget(ctx context.Context, id string) (*models.Target, error) {
	target, err := s.store.GetTarget(ctx, id)
	if err != nil {
		return nil, err
	}

	if !target.Active {
		s.quotaMu.Lock()
		if err := s.checkQuota(ctx, target.OwnerID); err != nil {
			s.quotaMu.Unlock()
			return nil, err
		}
		err := s.store.SetTargetActive(ctx, id, true)
		s.quotaMu.Unlock()
		if err != nil {
			return nil, err
		}
	}

	s.executor.Start(id)
	s.logger.Info("target_resumed", zap.String("target_id", id))
	return s.store.GetTarget(ctx, id)
}

// ChangeInterval stores the new interval and restarts an active target's
// task so the next wait uses it.
func (s *Service) ChangeInterval(ctx context.Context, id string, minutes int) (*models.Target, error) {
	if err := ValidateInterval(minutes, s.cfg.MaxIntervalMinutes); err != nil {
		return nil, err
	}
	if err := s.store.SetTargetInterval(ctx, id, minutes); err != nil {
		return nil, err
	}

	target, err := s.store.GetTarget(ctx, id)
	if err != nil {
		return nil, err
	}
	if target.Active {
		s.executor.Restart(id)
	}
	s.logger.Info("target_interval_changed", zap.String("target_id", id), zap.Int("interval", minutes))
	return target, nil
}

// GetUptime returns the uptime percentage over the configured window.
func (s *Service) GetUptime(ctx context.Context, id string) (float64, error) {
	if _, err := s.store.GetTarget(ctx, id); err != nil {
		return 0, err
	}
	return s.calculator.Uptime(ctx, id, 0)
}

// UptimeStats returns the detailed statistics behind GetUptime.
func (s *Service) UptimeStats(ctx context.Context, id string) (*uptime.UptimeStats, error) {
	if _, err := s.store.GetTarget(ctx, id); err != nil {
		return nil, err
	}
	return s.calculator.Stats(ctx, id, 0)
}

func (s *Service) GetTarget(ctx context.Context, id string) (*models.Target, error) {
	return s.store.GetTarget(ctx, id)
}

// ListTargets returns every target owned by ownerID with its current uptime.
func (s *Service) ListTargets(ctx context.Context, ownerID string) ([]TargetSummary, error) {
	targets, err := s.store.ListTargetsByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	out := make([]TargetSummary, 0, len(targets))
	for _, t := range targets {
		pct, err := s.calculator.Uptime(ctx, t.ID, 0)
		if err != nil {
			return nil, err
		}
		out = append(out, TargetSummary{
			Target:  t,
			Uptime:  pct,
			Running: s.executor.Running(t.ID),
		})
	}
	return out, nil
}

// Outcomes returns up to limit recent outcomes, most recent first.
func (s *Service) Outcomes(ctx context.Context, id string, limit int) ([]*models.ProbeOutcome, error) {
	if _, err := s.store.GetTarget(ctx, id); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultOutcomeLimit
	}
	if limit > maxOutcomeLimit {
		limit = maxOutcomeLimit
	}
	return s.store.RecentOutcomes(ctx, id, limit)
}

func (s *Service) checkQuota(ctx context.Context, ownerID string) error {
	if s.cfg.MaxTargetsPerOwner <= 0 {
		return nil
	}
	n, err := s.store.CountActiveByOwner(ctx, ownerID)
	if err != nil {
		return err
	}
	if n >= int64(s.cfg.MaxTargetsPerOwner) {
		return fmt.Errorf("%w: %d active targets allowed", ErrTargetLimit, s.cfg.MaxTargetsPerOwner)
	}
	return nil
}
