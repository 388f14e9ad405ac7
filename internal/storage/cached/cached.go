// Package cached puts a read-through LRU cache in front of a storage.Store.
//
// The cache is per process. It stays coherent only while every write for a
// user goes through the same Store value, which is how the ledger service
// uses it.
package cached

import (
	"context"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"moneyflow/internal/cache"
	"moneyflow/internal/core"
	"moneyflow/internal/storage"
)

type Store struct {
	inner  storage.Store
	cache  cache.Cache[core.Ledger]
	group  singleflight.Group
	logger *slog.Logger
}

var _ storage.Store = (*Store)(nil)

func New(inner storage.Store, c cache.Cache[core.Ledger], logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{inner: inner, cache: c, logger: logger}
}

// Get serves from cache when possible. Concurrent misses for the same user
// share one backend read.
func (s *Store) Get(ctx context.Context, userID string) (core.Ledger, error) {
	if l, ok := s.cache.Get(userID); ok {
		return l.Clone(), nil
	}

	v, err, shared := s.group.Do(userID, func() (interface{}, error) {
		l, err := s.inner.Get(ctx, userID)
		if err != nil {
			return core.Ledger{}, err
		}
		s.cache.Set(userID, l.Clone())
		return l, nil
	})
	if err != nil {
		return core.Ledger{}, err
	}
	if shared {
		s.logger.Debug("Coalesced ledger read", "user_id", userID)
	}
	return v.(core.Ledger).Clone(), nil
}

func (s *Store) Put(ctx context.Context, l core.Ledger) error {
	defer s.invalidate(l.UserID)
	return s.inner.Put(ctx, l)
}

func (s *Store) Patch(ctx context.Context, userID string, p storage.Patch) error {
	defer s.invalidate(userID)
	return s.inner.Patch(ctx, userID, p)
}

// invalidate drops the entry even when the write failed, since a failed
// write may still have reached the backend.
func (s *Store) invalidate(userID string) {
	s.group.Forget(userID)
	s.cache.Delete(userID)
}
