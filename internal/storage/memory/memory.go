package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"moneyflow/internal/core"
	"moneyflow/internal/storage"
)

// Store keeps ledger records in a map. Records are copied on the way in and
// out so callers never share slices with the store.
type Store struct {
	mu      sync.Mutex
	ledgers map[string]core.Ledger
	now     func() time.Time
}

var _ storage.Store = (*Store)(nil)

func New(seed ...core.Ledger) *Store {
	s := &Store{ledgers: make(map[string]core.Ledger), now: time.Now}
	for _, l := range seed {
		s.ledgers[l.UserID] = l.Clone()
	}
	return s
}

// NewFromFile seeds the store from a JSON array of ledgers. A missing file
// yields an empty store.
func NewFromFile(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var seed []core.Ledger
	if err := json.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("decode seed file %s: %w", path, err)
	}
	return New(seed...), nil
}

func (s *Store) Get(_ context.Context, userID string) (core.Ledger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.ledgers[userID]
	if !ok {
		return core.Ledger{}, storage.ErrNotFound
	}
	return l.Clone(), nil
}

func (s *Store) Put(_ context.Context, l core.Ledger) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UTC()
	if l.CreatedAt.IsZero() {
		l.CreatedAt = now
	}
	l.UpdatedAt = now
	s.ledgers[l.UserID] = l.Clone()
	return nil
}

func (s *Store) Patch(_ context.Context, userID string, p storage.Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.ledgers[userID]
	if !ok {
		l = core.NewLedger(userID, s.now().UTC())
	} else {
		l = l.Clone()
	}
	p.Apply(&l)
	if !p.IsEmpty() || !ok {
		l.UpdatedAt = s.now().UTC()
	}
	s.ledgers[userID] = l
	return nil
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ledgers)
}
