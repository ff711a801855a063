package repository

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"clavionx/backend/internal/db/dbtest"
	"clavionx/backend/internal/lockout/domain"
)

// exerciseRepository checks the behavior every backend must share.
func exerciseRepository(t *testing.T, repo Repository, userID string) {
	t.Helper()
	ctx := context.Background()

	rec, err := repo.Get(ctx, userID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec != nil {
		t.Fatalf("Get before any write = %+v, want nil", rec)
	}

	// Concurrent increments must not lose updates.
	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := repo.Update(ctx, userID, func(r *domain.Record) error {
				r.Attempts++
				return nil
			}); err != nil {
				t.Errorf("Update: %v", err)
			}
		}()
	}
	wg.Wait()

	rec, err = repo.Get(ctx, userID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec == nil || rec.Attempts != n {
		t.Fatalf("Attempts = %+v, want %d", rec, n)
	}

	until := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := repo.Update(ctx, userID, func(r *domain.Record) error {
		r.Attempts = 0
		r.LockedUntil = &until
		return nil
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	rec, _ = repo.Get(ctx, userID)
	if rec.LockedUntil == nil || !rec.LockedUntil.Equal(until) {
		t.Errorf("LockedUntil = %v, want %v", rec.LockedUntil, until)
	}
}

func TestMemoryRepository(t *testing.T) {
	exerciseRepository(t, NewMemoryRepository(), "user-mem")
}

func TestPostgresRepository(t *testing.T) {
	conn := dbtest.Open(t)
	dbtest.InsertUser(t, conn, "user-pg")
	exerciseRepository(t, NewPostgresRepository(conn), "user-pg")
}

func TestRedisRepository(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set; skipping Redis test")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		t.Fatalf("ParseURL: %v", err)
	}
	client := redis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })
	userID := "user-redis-" + time.Now().Format("150405.000000")
	t.Cleanup(func() { client.Del(context.Background(), redisKey(userID)) })
	exerciseRepository(t, NewRedisRepository(client, time.Minute), userID)
}
