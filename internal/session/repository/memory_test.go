package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/IFs1991/seikotsuin-no-saas-sub003/internal/session/domain"
)

var memNow = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func memSession(id, fingerprint string) *domain.Session {
	return &domain.Session{
		ID:                id,
		UserID:            "user-1",
		TenantID:          "tenant-1",
		TokenHash:         "hash-" + id,
		DeviceFingerprint: fingerprint,
		CreatedAt:         memNow,
		LastActivityAt:    memNow,
		ExpiresAt:         memNow.Add(24 * time.Hour),
		IsActive:          true,
	}
}

func memLimits() InsertLimits {
	return InsertLimits{PerDevice: 1, Now: memNow, IdleCutoff: memNow.Add(-30 * time.Minute)}
}

func TestMemoryRepository_InsertAndGet(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	if err := repo.Insert(ctx, memSession("s1", "fp-a"), memLimits()); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	got, err := repo.GetByTokenHash(ctx, "hash-s1")
	if err != nil {
		t.Fatalf("GetByTokenHash: %v", err)
	}
	if got.ID != "s1" {
		t.Errorf("ID = %q, want s1", got.ID)
	}
	got.UserID = "mutated"
	again, _ := repo.GetByID(ctx, "s1")
	if again.UserID != "user-1" {
		t.Error("returned session aliases stored state")
	}
	if _, err := repo.GetByID(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID(missing) err = %v, want ErrNotFound", err)
	}
}

func TestMemoryRepository_DeviceLimit(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	if err := repo.Insert(ctx, memSession("s1", "fp-a"), memLimits()); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	err := repo.Insert(ctx, memSession("s2", "fp-a"), memLimits())
	if !errors.Is(err, ErrDeviceLimit) || KindOf(err) != KindConflict {
		t.Errorf("same device err = %v, want ErrDeviceLimit conflict", err)
	}
	if err := repo.Insert(ctx, memSession("s3", "fp-b"), memLimits()); err != nil {
		t.Errorf("other device err = %v, want nil", err)
	}
}

func TestMemoryRepository_InactiveSessionsDoNotCount(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	idle := memSession("idle", "fp-a")
	idle.LastActivityAt = memNow.Add(-time.Hour)
	expired := memSession("expired", "fp-a")
	expired.ExpiresAt = memNow.Add(-time.Second)
	revoked := memSession("revoked", "fp-a")
	revoked.IsRevoked = true
	revoked.IsActive = false
	for _, s := range []*domain.Session{idle, expired, revoked} {
		if err := repo.Insert(ctx, s, InsertLimits{Now: memNow}); err != nil {
			t.Fatalf("seed %s: %v", s.ID, err)
		}
	}
	if err := repo.Insert(ctx, memSession("new", "fp-a"), memLimits()); err != nil {
		t.Errorf("Insert with only inactive sessions on device: %v", err)
	}
}

func TestMemoryRepository_SessionAtExpiryStillCounts(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	last := memSession("last", "fp-a")
	last.ExpiresAt = memNow
	if err := repo.Insert(ctx, last, InsertLimits{Now: memNow}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := repo.Insert(ctx, memSession("new", "fp-a"), memLimits()); !errors.Is(err, ErrConflict) {
		t.Errorf("err = %v, want ErrConflict while the existing session is at its expiry instant", err)
	}
}

func TestMemoryRepository_RememberDeviceIgnoresIdle(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	remembered := memSession("r", "fp-a")
	remembered.RememberDevice = true
	remembered.LastActivityAt = memNow.Add(-5 * time.Hour)
	if err := repo.Insert(ctx, remembered, InsertLimits{Now: memNow}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := repo.Insert(ctx, memSession("new", "fp-a"), memLimits()); !errors.Is(err, ErrConflict) {
		t.Errorf("err = %v, want ErrConflict for remembered active session", err)
	}
}

func TestMemoryRepository_TotalLimit(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	limits := InsertLimits{Total: 2, Now: memNow}
	for i := 0; i < 2; i++ {
		if err := repo.Insert(ctx, memSession(fmt.Sprintf("s%d", i), fmt.Sprintf("fp-%d", i)), limits); err != nil {
			t.Fatalf("Insert %d: %v", i, err)
		}
	}
	err := repo.Insert(ctx, memSession("s9", "fp-9"), limits)
	if !errors.Is(err, ErrTotalLimit) || errors.Is(err, ErrDeviceLimit) {
		t.Errorf("err = %v, want ErrTotalLimit", err)
	}
}

func TestMemoryRepository_ConcurrentInsertSameDevice(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	var ok int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if repo.Insert(ctx, memSession(fmt.Sprintf("s%d", i), "fp-a"), memLimits()) == nil {
				atomic.AddInt32(&ok, 1)
			}
		}(i)
	}
	wg.Wait()
	if ok != 1 {
		t.Errorf("successful inserts = %d, want 1", ok)
	}
}

func TestMemoryRepository_TouchNeverExtendsExpiry(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	s := memSession("s1", "fp-a")
	_ = repo.Insert(ctx, s, memLimits())

	at := memNow.Add(10 * time.Minute)
	if err := repo.Touch(ctx, "s1", at, "198.51.100.9"); err != nil {
		t.Fatalf("Touch: %v", err)
	}
	got, _ := repo.GetByID(ctx, "s1")
	if !got.LastActivityAt.Equal(at) || got.LastIPAddress != "198.51.100.9" {
		t.Errorf("after Touch: activity %v ip %q", got.LastActivityAt, got.LastIPAddress)
	}
	if !got.ExpiresAt.Equal(s.ExpiresAt) {
		t.Errorf("ExpiresAt moved to %v", got.ExpiresAt)
	}
	if err := repo.Touch(ctx, "s1", s.ExpiresAt, ""); err != nil {
		t.Errorf("Touch at expiry err = %v, want nil", err)
	}
	if err := repo.Touch(ctx, "s1", s.ExpiresAt.Add(time.Nanosecond), ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("Touch past expiry err = %v, want ErrNotFound", err)
	}
}

func TestMemoryRepository_RevokeOnce(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	_ = repo.Insert(ctx, memSession("s1", "fp-a"), memLimits())
	rev := domain.Revocation{At: memNow, By: "admin", Reason: "test"}

	var ok int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.Revoke(ctx, "s1", rev); err == nil {
				atomic.AddInt32(&ok, 1)
			}
		}()
	}
	wg.Wait()
	if ok != 1 {
		t.Errorf("successful revokes = %d, want 1", ok)
	}
	got, _ := repo.GetByID(ctx, "s1")
	if !got.IsRevoked || got.IsActive || got.RevokedBy != "admin" || got.RevokedAt == nil {
		t.Errorf("revoked session = %+v", got)
	}
	if err := repo.Touch(ctx, "s1", memNow, ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("Touch revoked err = %v, want ErrNotFound", err)
	}
}

func TestMemoryRepository_ListAndRevokeAll(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	a := memSession("a", "fp-a")
	b := memSession("b", "fp-b")
	b.LastActivityAt = memNow.Add(time.Minute)
	other := memSession("c", "fp-c")
	other.TenantID = "tenant-2"
	for _, s := range []*domain.Session{a, b, other} {
		_ = repo.Insert(ctx, s, InsertLimits{Now: memNow})
	}

	list, err := repo.ListByUserAndTenant(ctx, "user-1", "tenant-1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 || list[0].ID != "b" {
		t.Fatalf("List = %v, want [b a]", ids(list))
	}

	revoked, err := repo.RevokeAllByUserAndTenant(ctx, "user-1", "tenant-1", domain.Revocation{At: memNow, By: "system"})
	if err != nil || len(revoked) != 2 {
		t.Fatalf("RevokeAll = %v, %v", ids(revoked), err)
	}
	again, _ := repo.RevokeAllByUserAndTenant(ctx, "user-1", "tenant-1", domain.Revocation{At: memNow, By: "system"})
	if len(again) != 0 {
		t.Errorf("second RevokeAll = %v, want none", ids(again))
	}
	if s, _ := repo.GetByID(ctx, "c"); s.IsRevoked {
		t.Error("session in another tenant was revoked")
	}
}

func TestMemoryRepository_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	repo := NewMemoryRepository()
	err := repo.Insert(ctx, memSession("s1", "fp"), memLimits())
	if KindOf(err) != KindUnavailable {
		t.Errorf("KindOf(%v) = %v, want unavailable", err, KindOf(err))
	}
}

func ids(list []*domain.Session) []string {
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = s.ID
	}
	return out
}
