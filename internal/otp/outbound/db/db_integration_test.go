package db

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/shandysiswandi/otpgate/internal/otp/entity"
	"github.com/shandysiswandi/otpgate/internal/pkg/goerror"
	"github.com/shandysiswandi/otpgate/internal/pkg/instrument"
)

func setupDB(t *testing.T) *DB {
	t.Helper()

	if os.Getenv("OTPGATE_INTEGRATION") != "true" {
		t.Skip("set OTPGATE_INTEGRATION=true to run against a postgres container")
	}

	ctx := context.Background()
	ctr, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("otpgate"),
		tcpostgres.WithUsername("otpgate"),
		tcpostgres.WithPassword("otpgate"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}
	t.Cleanup(func() { _ = ctr.Terminate(context.Background()) })

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("ConnectionString() error = %v", err)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pgxpool.New() error = %v", err)
	}
	t.Cleanup(pool.Close)

	s := NewDB(pool, instrument.NewNoop())
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return s
}

func TestDB_Lifecycle(t *testing.T) {
	s := setupDB(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	rec := entity.OTP{
		ID:                1,
		IdentityKey:       "jane@example.com",
		CodeHash:          "abc",
		DisplayName:       "Jane",
		IssuedAt:          now,
		ExpiresAt:         now.Add(5 * time.Minute),
		AttemptsRemaining: 2,
	}
	if err := s.Save(ctx, rec); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	err := s.Mutate(ctx, rec.IdentityKey, func(o *entity.OTP) entity.Mutation {
		o.AttemptsRemaining--
		return entity.MutationUpdate
	})
	if err != nil {
		t.Fatalf("Mutate(update) error = %v", err)
	}

	var attempts int
	_ = s.Mutate(ctx, rec.IdentityKey, func(o *entity.OTP) entity.Mutation {
		attempts = o.AttemptsRemaining
		return entity.MutationNone
	})
	if attempts != 1 {
		t.Fatalf("attempts = %d, want 1", attempts)
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	for range 10 {
		wg.Go(func() {
			if err := s.Mutate(ctx, rec.IdentityKey, func(*entity.OTP) entity.Mutation { return entity.MutationDelete }); err == nil {
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

	err = s.Mutate(ctx, rec.IdentityKey, func(*entity.OTP) entity.Mutation { return entity.MutationNone })
	if !errors.Is(err, goerror.ErrNotFound) {
		t.Fatalf("Mutate() after consume error = %v", err)
	}
}

func TestDB_DeleteExpired(t *testing.T) {
	s := setupDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for i, exp := range []time.Time{now.Add(-time.Hour), now.Add(-time.Minute), now.Add(time.Hour)} {
		_ = s.Save(ctx, entity.OTP{
			ID:          int64(i + 1),
			IdentityKey: string(rune('a'+i)) + "@x.co",
			CodeHash:    "h",
			IssuedAt:    now,
			ExpiresAt:   exp,
		})
	}

	n, err := s.DeleteExpired(ctx, now, 100)
	if err != nil {
		t.Fatalf("DeleteExpired() error = %v", err)
	}
	if n != 2 {
		t.Fatalf("removed = %d, want 2", n)
	}
}
