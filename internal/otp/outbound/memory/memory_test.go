package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shandysiswandi/otpgate/internal/otp/entity"
	"github.com/shandysiswandi/otpgate/internal/pkg/goerror"
)

func TestStore_SaveMutateDelete(t *testing.T) {
	ctx := context.Background()
	s := New()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	if err := s.Save(ctx, entity.OTP{ID: 1, IdentityKey: "a@b.co", AttemptsRemaining: 3, ExpiresAt: now}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	// Update persists changes.
	err := s.Mutate(ctx, "a@b.co", func(o *entity.OTP) entity.Mutation {
		o.AttemptsRemaining--
		return entity.MutationUpdate
	})
	if err != nil {
		t.Fatalf("Mutate() error = %v", err)
	}
	got, _ := s.Get(ctx, "a@b.co")
	if got.AttemptsRemaining != 2 {
		t.Fatalf("AttemptsRemaining = %d, want 2", got.AttemptsRemaining)
	}

	// None discards changes.
	_ = s.Mutate(ctx, "a@b.co", func(o *entity.OTP) entity.Mutation {
		o.AttemptsRemaining = 100
		return entity.MutationNone
	})
	got, _ = s.Get(ctx, "a@b.co")
	if got.AttemptsRemaining != 2 {
		t.Fatalf("MutationNone changed the record: %d", got.AttemptsRemaining)
	}

	_ = s.Mutate(ctx, "a@b.co", func(*entity.OTP) entity.Mutation { return entity.MutationDelete })
	if err := s.Mutate(ctx, "a@b.co", func(*entity.OTP) entity.Mutation { return entity.MutationNone }); !errors.Is(err, goerror.ErrNotFound) {
		t.Fatalf("Mutate() after delete error = %v, want ErrNotFound", err)
	}

	if err := s.Delete(ctx, "a@b.co"); err != nil {
		t.Fatalf("Delete() must be idempotent, got %v", err)
	}
}

func TestStore_MutateIsExclusive(t *testing.T) {
	ctx := context.Background()
	s := New()
	_ = s.Save(ctx, entity.OTP{ID: 1, IdentityKey: "a@b.co"})

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	for range 50 {
		wg.Go(func() {
			err := s.Mutate(ctx, "a@b.co", func(*entity.OTP) entity.Mutation { return entity.MutationDelete })
			if err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		})
	}
	wg.Wait()

	if winners != 1 {
		t.Fatalf("winners = %d, want 1", winners)
	}
}

func TestStore_DeleteExpired(t *testing.T) {
	ctx := context.Background()
	s := New()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	_ = s.Save(ctx, entity.OTP{IdentityKey: "old1@x.co", ExpiresAt: now.Add(-time.Minute)})
	_ = s.Save(ctx, entity.OTP{IdentityKey: "old2@x.co", ExpiresAt: now})
	_ = s.Save(ctx, entity.OTP{IdentityKey: "live@x.co", ExpiresAt: now.Add(time.Minute)})

	n, err := s.DeleteExpired(ctx, now, 10)
	if err != nil {
		t.Fatalf("DeleteExpired() error = %v", err)
	}
	if n != 2 {
		t.Fatalf("removed = %d, want 2", n)
	}
	if _, err := s.Get(ctx, "live@x.co"); err != nil {
		t.Fatal("live record was removed")
	}

	_ = s.Save(ctx, entity.OTP{IdentityKey: "o1@x.co", ExpiresAt: now.Add(-time.Hour)})
	_ = s.Save(ctx, entity.OTP{IdentityKey: "o2@x.co", ExpiresAt: now.Add(-time.Hour)})
	if n, _ := s.DeleteExpired(ctx, now, 1); n != 1 {
		t.Fatalf("limit not honored, removed = %d", n)
	}
}
