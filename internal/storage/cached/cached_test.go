package cached

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"moneyflow/internal/cache"
	"moneyflow/internal/core"
	"moneyflow/internal/storage"
	"moneyflow/internal/storage/memory"
)

// countingStore wraps the memory store and counts backend reads.
type countingStore struct {
	storage.Store
	gets  atomic.Int32
	delay time.Duration
}

func (c *countingStore) Get(ctx context.Context, userID string) (core.Ledger, error) {
	c.gets.Add(1)
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	return c.Store.Get(ctx, userID)
}

func newFixture(t *testing.T) (*Store, *countingStore) {
	t.Helper()
	seed := core.NewLedger("u1", time.Now())
	seed.TotalAmount = decimal.NewFromInt(100)
	inner := &countingStore{Store: memory.New(seed)}
	return New(inner, cache.NewLRUCache[core.Ledger](16, time.Minute), nil), inner
}

func TestStore_ReadThrough(t *testing.T) {
	s, inner := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		l, err := s.Get(ctx, "u1")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if !l.TotalAmount.Equal(decimal.NewFromInt(100)) {
			t.Fatalf("TotalAmount = %s", l.TotalAmount)
		}
	}
	if n := inner.gets.Load(); n != 1 {
		t.Fatalf("backend reads = %d, want 1", n)
	}
}

func TestStore_ReturnsCopies(t *testing.T) {
	s, _ := newFixture(t)
	ctx := context.Background()

	l, _ := s.Get(ctx, "u1")
	l.Transactions = append(l.Transactions, core.Transaction{ID: "leak"})

	again, _ := s.Get(ctx, "u1")
	if len(again.Transactions) != 0 {
		t.Fatal("caller mutation leaked into cache")
	}
}

func TestStore_WritesInvalidate(t *testing.T) {
	s, inner := newFixture(t)
	ctx := context.Background()

	if _, err := s.Get(ctx, "u1"); err != nil {
		t.Fatal(err)
	}
	amount := decimal.NewFromInt(5)
	if err := s.Patch(ctx, "u1", storage.Patch{TotalAmount: &amount}); err != nil {
		t.Fatal(err)
	}
	l, err := s.Get(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if !l.TotalAmount.Equal(amount) {
		t.Fatalf("stale read after Patch: %s", l.TotalAmount)
	}

	l.TotalAmount = decimal.NewFromInt(9)
	if err := s.Put(ctx, l); err != nil {
		t.Fatal(err)
	}
	l, _ = s.Get(ctx, "u1")
	if !l.TotalAmount.Equal(decimal.NewFromInt(9)) {
		t.Fatalf("stale read after Put: %s", l.TotalAmount)
	}
	if n := inner.gets.Load(); n != 3 {
		t.Fatalf("backend reads = %d, want 3", n)
	}
}

func TestStore_NotFoundIsNotCached(t *testing.T) {
	s, inner := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := s.Get(ctx, "ghost"); !errors.Is(err, storage.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	}
	if n := inner.gets.Load(); n != 2 {
		t.Fatalf("backend reads = %d, want 2", n)
	}
}

func TestStore_CoalescesConcurrentMisses(t *testing.T) {
	s, inner := newFixture(t)
	inner.delay = 50 * time.Millisecond

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Get(context.Background(), "u1"); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	if n := inner.gets.Load(); n >= 8 {
		t.Fatalf("backend reads = %d, expected coalescing", n)
	}
}
