package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/IFs1991/seikotsuin-no-saas-sub003/internal/session/domain"
)

// MemoryRepository is an in-process Repository. It is used by tests and by the memory store
// driver; nothing survives a restart.
type MemoryRepository struct {
	mu      sync.Mutex
	byID    map[string]*domain.Session
	byToken map[string]string
}

// NewMemoryRepository returns an empty in-memory session repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:    make(map[string]*domain.Session),
		byToken: make(map[string]string),
	}
}

func (r *MemoryRepository) Insert(ctx context.Context, s *domain.Session, limits InsertLimits) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[s.ID]; ok {
		return fmt.Errorf("%w: duplicate session id", ErrConflict)
	}
	if _, ok := r.byToken[s.TokenHash]; ok {
		return fmt.Errorf("%w: duplicate token", ErrConflict)
	}
	if limits.PerDevice > 0 || limits.Total > 0 {
		perDevice, total := 0, 0
		for _, existing := range r.byID {
			if existing.UserID != s.UserID || existing.TenantID != s.TenantID || !countsAsActive(existing, limits) {
				continue
			}
			total++
			if existing.DeviceFingerprint == s.DeviceFingerprint {
				perDevice++
			}
		}
		if limits.PerDevice > 0 && perDevice >= limits.PerDevice {
			return fmt.Errorf("%w (%d active)", ErrDeviceLimit, perDevice)
		}
		if limits.Total > 0 && total >= limits.Total {
			return fmt.Errorf("%w (%d active)", ErrTotalLimit, total)
		}
	}
	c := clone(s)
	r.byID[c.ID] = c
	r.byToken[c.TokenHash] = c.ID
	return nil
}

func countsAsActive(s *domain.Session, limits InsertLimits) bool {
	if !s.IsActive || s.IsRevoked || s.ExpiresAt.Before(limits.Now) {
		return false
	}
	if limits.IdleCutoff.IsZero() || s.RememberDevice {
		return true
	}
	return s.LastActivityAt.After(limits.IdleCutoff)
}

func (r *MemoryRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*domain.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byToken[tokenHash]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(r.byID[id]), nil
}

func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(s), nil
}

func (r *MemoryRepository) ListByUserAndTenant(ctx context.Context, userID, tenantID string) ([]*domain.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Session
	for _, s := range r.byID {
		if s.UserID == userID && s.TenantID == tenantID {
			out = append(out, clone(s))
		}
	}
	sortByActivity(out)
	return out, nil
}

func (r *MemoryRepository) Touch(ctx context.Context, id string, at time.Time, ip string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[id]
	if !ok || !s.IsActive || s.IsRevoked || s.ExpiresAt.Before(at) {
		return ErrNotFound
	}
	s.LastActivityAt = at
	if ip != "" {
		s.LastIPAddress = ip
	}
	return nil
}

func (r *MemoryRepository) Revoke(ctx context.Context, id string, rev domain.Revocation) (*domain.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[id]
	if !ok || s.IsRevoked {
		return nil, ErrNotFound
	}
	applyRevocation(s, rev)
	return clone(s), nil
}

func (r *MemoryRepository) RevokeAllByUserAndTenant(ctx context.Context, userID, tenantID string, rev domain.Revocation) ([]*domain.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Session
	for _, s := range r.byID {
		if s.UserID != userID || s.TenantID != tenantID || s.IsRevoked {
			continue
		}
		applyRevocation(s, rev)
		out = append(out, clone(s))
	}
	sortByActivity(out)
	return out, nil
}

func applyRevocation(s *domain.Session, rev domain.Revocation) {
	at := rev.At
	s.IsRevoked = true
	s.IsActive = false
	s.RevokedAt = &at
	s.RevokedBy = rev.By
	s.RevokedReason = rev.Reason
}

func sortByActivity(list []*domain.Session) {
	sort.SliceStable(list, func(i, j int) bool {
		if !list[i].LastActivityAt.Equal(list[j].LastActivityAt) {
			return list[i].LastActivityAt.After(list[j].LastActivityAt)
		}
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
}

func clone(s *domain.Session) *domain.Session {
	if s == nil {
		return nil
	}
	c := *s
	if s.Geo != nil {
		g := *s.Geo
		c.Geo = &g
	}
	if s.RevokedAt != nil {
		t := *s.RevokedAt
		c.RevokedAt = &t
	}
	return &c
}

var _ Repository = (*MemoryRepository)(nil)
