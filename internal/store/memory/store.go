// Package memory holds process-local repositories used for development
// (PARLEY_STORE=memory) and as the backing store in service tests.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gosuda/parley/internal/domain"
)

// Store bundles the in-memory repositories behind the same accessors as
// postgres.Store.
type Store struct {
	sessions  *SessionRepo
	campaigns *CampaignRepo
	logs      *LogRepo
}

func New() *Store {
	return &Store{
		sessions:  &SessionRepo{items: make(map[string]domain.Session)},
		campaigns: &CampaignRepo{items: make(map[uuid.UUID]domain.Campaign)},
		logs:      &LogRepo{},
	}
}

func (s *Store) Close() {}

func (s *Store) Sessions() domain.SessionRepository   { return s.sessions }
func (s *Store) Campaigns() domain.CampaignRepository { return s.campaigns }
func (s *Store) Logs() domain.LogRepository           { return s.logs }

type SessionRepo struct {
	mu    sync.RWMutex
	items map[string]domain.Session
}

func (r *SessionRepo) Get(_ context.Context, accountID string) (*domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.items[accountID]
	if !ok {
		return nil, fmt.Errorf("memory.SessionRepo.Get: %w", domain.ErrNotFound)
	}
	s.Blob = s.Blob.Clone()
	return &s, nil
}

func (r *SessionRepo) Put(_ context.Context, s *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *s
	stored.Blob = s.Blob.Clone()
	r.items[s.AccountID] = stored
	return nil
}

func (r *SessionRepo) Delete(_ context.Context, accountID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.items, accountID)
	return nil
}

type CampaignRepo struct {
	mu    sync.RWMutex
	items map[uuid.UUID]domain.Campaign
}

func (r *CampaignRepo) Create(_ context.Context, c *domain.Campaign) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[c.ID]; ok {
		return fmt.Errorf("memory.CampaignRepo.Create: %w", domain.ErrConflict)
	}
	r.items[c.ID] = cloneCampaign(*c)
	return nil
}

func (r *CampaignRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Campaign, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.items[id]
	if !ok {
		return nil, fmt.Errorf("memory.CampaignRepo.GetByID: %w", domain.ErrNotFound)
	}
	c = cloneCampaign(c)
	return &c, nil
}

func (r *CampaignRepo) List(_ context.Context, limit, offset int) ([]*domain.Campaign, error) {
	r.mu.RLock()
	all := make([]domain.Campaign, 0, len(r.items))
	for _, c := range r.items {
		all = append(all, cloneCampaign(c))
	}
	r.mu.RUnlock()

	slices.SortFunc(all, func(a, b domain.Campaign) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	if offset >= len(all) {
		return []*domain.Campaign{}, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}

	out := make([]*domain.Campaign, len(all))
	for i := range all {
		out[i] = &all[i]
	}
	return out, nil
}

func (r *CampaignRepo) MarkRunning(_ context.Context, id uuid.UUID, startedAt time.Time) error {
	return r.update(id, "MarkRunning", func(c *domain.Campaign) {
		c.Status = domain.CampaignRunning
		c.StartedAt = &startedAt
	})
}

func (r *CampaignRepo) RecordProgress(_ context.Context, id uuid.UUID, sent, failed int) error {
	return r.update(id, "RecordProgress", func(c *domain.Campaign) {
		c.Sent = sent
		c.Failed = failed
	})
}

func (r *CampaignRepo) Finish(_ context.Context, id uuid.UUID, status domain.CampaignStatus, kind domain.ErrorKind, errMsg string, completedAt time.Time) error {
	return r.update(id, "Finish", func(c *domain.Campaign) {
		c.Status = status
		c.ErrorKind = kind
		c.Error = errMsg
		c.CompletedAt = &completedAt
	})
}

func (r *CampaignRepo) update(id uuid.UUID, op string, fn func(c *domain.Campaign)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.items[id]
	if !ok {
		return fmt.Errorf("memory.CampaignRepo.%s: %w", op, domain.ErrNotFound)
	}
	fn(&c)
	r.items[id] = c
	return nil
}

func cloneCampaign(c domain.Campaign) domain.Campaign {
	c.Targets = slices.Clone(c.Targets)
	c.Templates = slices.Clone(c.Templates)
	return c
}

// LogRepo keeps entries in insertion order.
type LogRepo struct {
	mu      sync.RWMutex
	entries []domain.LogEntry
}

func (r *LogRepo) Append(_ context.Context, entry *domain.LogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries = append(r.entries, *entry)
	return nil
}

func (r *LogRepo) ListRecent(_ context.Context, limit int) ([]*domain.LogEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.LogEntry, 0, min(limit, len(r.entries)))
	for i := len(r.entries) - 1; i >= 0 && len(out) < limit; i-- {
		e := r.entries[i]
		out = append(out, &e)
	}
	return out, nil
}
