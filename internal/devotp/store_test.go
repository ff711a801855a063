package devotp

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"clavionx/backend/internal/platform/clock"
)

func TestMemoryStore_PutGet(t *testing.T) {
	clk := clock.NewFake(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	store := NewMemoryStore(clk)
	ctx := context.Background()

	store.Put(ctx, "alice@example.com", "123456", clk.Now().Add(5*time.Minute))
	otp, ok := store.Get(ctx, "alice@example.com")
	if !ok || otp != "123456" {
		t.Fatalf("Get = %q, %v; want 123456, true", otp, ok)
	}

	store.Put(ctx, "alice@example.com", "654321", clk.Now().Add(5*time.Minute))
	if otp, _ := store.Get(ctx, "alice@example.com"); otp != "654321" {
		t.Errorf("Get after overwrite = %q, want 654321", otp)
	}
}

func TestMemoryStore_Missing(t *testing.T) {
	store := NewMemoryStore(nil)
	if otp, ok := store.Get(context.Background(), "nobody"); ok || otp != "" {
		t.Errorf("Get(missing) = %q, %v; want empty, false", otp, ok)
	}
}

func TestMemoryStore_Expiry(t *testing.T) {
	clk := clock.NewFake(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	store := NewMemoryStore(clk)
	ctx := context.Background()
	store.Put(ctx, "+15550100", "111111", clk.Now().Add(time.Minute))

	clk.Advance(time.Minute)
	if _, ok := store.Get(ctx, "+15550100"); ok {
		t.Error("Get at expiry should return false")
	}
	if len(store.m) != 0 {
		t.Errorf("expired entry not removed, len = %d", len(store.m))
	}
}

func TestMemoryStore_Concurrent(t *testing.T) {
	store := NewMemoryStore(nil)
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			dest := fmt.Sprintf("user-%d@example.com", i)
			store.Put(ctx, dest, "000000", time.Now().Add(time.Minute))
			_, _ = store.Get(ctx, dest)
		}(i)
	}
	wg.Wait()
}
