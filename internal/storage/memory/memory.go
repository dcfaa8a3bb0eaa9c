package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fuomag9/targetwatch/internal/models"
	"github.com/fuomag9/targetwatch/internal/storage"
)

var _ storage.Store = (*Store)(nil)

// Store keeps targets and outcomes in process memory. It backs development
// runs without a database and the engine tests.
type Store struct {
	mu       sync.RWMutex
	targets  map[string]*models.Target
	outcomes map[string][]*models.ProbeOutcome
	nextID   int64
	now      func() time.Time
}

func New() *Store {
	return &Store{
		targets:  make(map[string]*models.Target),
		outcomes: make(map[string][]*models.ProbeOutcome),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) GetTarget(ctx context.Context, id string) (*models.Target, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.targets[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return copyTarget(t), nil
}

func (s *Store) ListActiveTargets(ctx context.Context) ([]*models.Target, error) {
	return s.list(func(t *models.Target) bool { return t.Active }), nil
}

func (s *Store) ListTargetsByOwner(ctx context.Context, ownerID string) ([]*models.Target, error) {
	return s.list(func(t *models.Target) bool { return t.OwnerID == ownerID }), nil
}

func (s *Store) CountActiveByOwner(ctx context.Context, ownerID string) (int64, error) {
	n := len(s.list(func(t *models.Target) bool { return t.OwnerID == ownerID && t.Active }))
	return int64(n), nil
}

func (s *Store) CountTargets(ctx context.Context) (int64, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var active int64
	for _, t := range s.targets {
		if t.Active {
			active++
		}
	}
	return int64(len(s.targets)), active, nil
}

func (s *Store) list(keep func(*models.Target) bool) []*models.Target {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Target, 0, len(s.targets))
	for _, t := range s.targets {
		if keep(t) {
			out = append(out, copyTarget(t))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (s *Store) CreateTarget(ctx context.Context, ownerID, url string, interval int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	t := &models.Target{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		URL:       url,
		Interval:  interval,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.targets[t.ID] = t
	return t.ID, nil
}

func (s *Store) SetTargetActive(ctx context.Context, id string, active bool) error {
	return s.update(id, func(t *models.Target) { t.Active = active })
}

func (s *Store) SetTargetInterval(ctx context.Context, id string, interval int) error {
	return s.update(id, func(t *models.Target) { t.Interval = interval })
}

func (s *Store) UpdateLastChecked(ctx context.Context, id string, at time.Time) error {
	return s.update(id, func(t *models.Target) {
		at := at
		t.LastChecked = &at
	})
}

func (s *Store) update(id string, fn func(*models.Target)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.targets[id]
	if !ok {
		return storage.ErrNotFound
	}
	fn(t)
	t.UpdatedAt = s.now()
	return nil
}

func (s *Store) AppendOutcome(ctx context.Context, o *models.ProbeOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.targets[o.TargetID]; !ok {
		return storage.ErrNotFound
	}
	s.nextID++
	cp := *o
	cp.ID = s.nextID
	o.ID = cp.ID
	s.outcomes[o.TargetID] = append(s.outcomes[o.TargetID], &cp)
	return nil
}

func (s *Store) RecentOutcomes(ctx context.Context, targetID string, limit int) ([]*models.ProbeOutcome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := s.outcomes[targetID]
	if limit <= 0 || limit > len(rows) {
		limit = len(rows)
	}
	out := make([]*models.ProbeOutcome, 0, limit)
	// rows are stored in insertion order; walk backwards for most-recent-first
	for i := len(rows) - 1; i >= 0 && len(out) < limit; i-- {
		cp := *rows[i]
		out = append(out, &cp)
	}
	return out, nil
}

// InTx runs fn directly. There is no rollback; writes made before a failing
// one are kept.
func (s *Store) InTx(ctx context.Context, fn func(tx storage.Store) error) error {
	return fn(s)
}

func copyTarget(t *models.Target) *models.Target {
	cp := *t
	if t.LastChecked != nil {
		lc := *t.LastChecked
		cp.LastChecked = &lc
	}
	return &cp
}
