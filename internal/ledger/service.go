// Package ledger is the reconciliation engine. It keeps each user's totals
// in step with their transaction list and edits the scoped essentials
// collections, one serialised read-modify-write cycle per call.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"moneyflow/internal/core"
	"moneyflow/internal/log"
	"moneyflow/internal/storage"
)

// Publisher announces that a user's ledger was written.
type Publisher interface {
	PublishLedgerChanged(ctx context.Context, userID, operation string) error
}

// TransactionResult is returned by the transaction operations.
type TransactionResult struct {
	Totals       core.Totals        `json:"totals"`
	Transaction  *core.Transaction  `json:"transaction,omitempty"`
	Transactions []core.Transaction `json:"transactions"`
}

type EssentialsResult struct {
	Scope core.Scope           `json:"scope"`
	Items []core.EssentialItem `json:"items"`
}

// TransactionUpdate holds the fields an update may change. Nil fields keep
// their previous value, except Category, which falls back to the previous
// description.
type TransactionUpdate struct {
	Value       *decimal.Decimal
	Type        *core.TransactionType
	Date        *core.Date
	Category    *string
	Description *string
}

type Service struct {
	store      storage.Store
	essentials *Essentials
	publisher  Publisher
	locks      userLocks
	logger     *log.Logger
	events     *log.StructuredLogger
	now        func() time.Time
}

// NewService wires the engine to a store. publisher may be nil.
func NewService(store storage.Store, publisher Publisher, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	logger = logger.WithComponent(log.ComponentLedger)
	return &Service{
		store:      store,
		essentials: NewEssentials(store),
		publisher:  publisher,
		logger:     logger,
		events:     log.NewStructuredLogger(logger),
		now:        time.Now,
	}
}

func requireUser(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("%w: no user id", ErrUnauthorized)
	}
	return nil
}

func (s *Service) load(ctx context.Context, userID string) (core.Ledger, error) {
	l, err := s.store.Get(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return core.Ledger{}, fmt.Errorf("ledger for user %q: %w", userID, ErrNotFound)
	}
	if err != nil {
		return core.Ledger{}, fmt.Errorf("load ledger: %w", err)
	}
	return l, nil
}

// update runs fn on a private copy of the user's ledger under the user's
// lock and stores the result only if fn succeeds. The change event goes out
// after the lock is released.
func (s *Service) update(ctx context.Context, userID, op string, fn func(l *core.Ledger) error) (core.Ledger, error) {
	if err := requireUser(userID); err != nil {
		return core.Ledger{}, err
	}

	unlock := s.locks.lock(userID)
	next, err := s.commit(ctx, userID, fn)
	unlock()
	if err != nil {
		return core.Ledger{}, s.fail(ctx, userID, op, err)
	}

	s.written(ctx, userID, op, core.FormatAmount(next.TotalAmount))
	return next, nil
}

func (s *Service) commit(ctx context.Context, userID string, fn func(l *core.Ledger) error) (core.Ledger, error) {
	current, err := s.load(ctx, userID)
	if err != nil {
		return core.Ledger{}, err
	}
	next := current.Clone()
	if err := fn(&next); err != nil {
		return core.Ledger{}, err
	}
	next.UpdatedAt = s.now().UTC()
	if err := s.store.Put(ctx, next); err != nil {
		return core.Ledger{}, fmt.Errorf("save ledger: %w", err)
	}
	return next, nil
}

// patch applies a partial upsert under the user's lock.
func (s *Service) patch(ctx context.Context, userID, op string, p storage.Patch) error {
	if err := requireUser(userID); err != nil {
		return err
	}

	unlock := s.locks.lock(userID)
	err := s.store.Patch(ctx, userID, p)
	unlock()
	if err != nil {
		return s.fail(ctx, userID, op, fmt.Errorf("save ledger: %w", err))
	}

	amount := ""
	if p.TotalAmount != nil {
		amount = core.FormatAmount(*p.TotalAmount)
	}
	s.written(ctx, userID, op, amount)
	return nil
}

func (s *Service) fail(ctx context.Context, userID, op string, err error) error {
	if IsRejection(err) {
		s.events.LogRejected(ctx, userID, op, err)
	} else {
		s.events.LogError(ctx, "Ledger operation failed", err, op, log.NewFields().WithLedger(userID))
	}
	return err
}

// written logs and announces a completed write. Callers must not hold the
// user's lock: publishing can block on the broker.
func (s *Service) written(ctx context.Context, userID, op, total string) {
	s.events.LogLedgerWrite(ctx, userID, op, total)
	s.publish(ctx, userID, op)
}

// publish never fails the call; the write has already happened.
func (s *Service) publish(ctx context.Context, userID, op string) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishLedgerChanged(ctx, userID, op); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish ledger change",
			log.FieldUserID, userID,
			log.FieldOperation, op,
			log.FieldError, err)
	}
}

func transactionResult(l core.Ledger, tx *core.Transaction) TransactionResult {
	return TransactionResult{
		Totals:       l.Totals(),
		Transaction:  tx,
		Transactions: l.Transactions,
	}
}

// Open returns the user's ledger, creating the registration-time record
// if none exists.
func (s *Service) Open(ctx context.Context, userID string) (core.Ledger, error) {
	if err := requireUser(userID); err != nil {
		return core.Ledger{}, err
	}
	unlock := s.locks.lock(userID)
	l, created, err := s.openLocked(ctx, userID)
	unlock()
	if err != nil {
		return core.Ledger{}, s.fail(ctx, userID, log.OpOpen, err)
	}

	if created {
		s.written(ctx, userID, log.OpOpen, core.FormatAmount(l.TotalAmount))
	}
	return l, nil
}

func (s *Service) openLocked(ctx context.Context, userID string) (core.Ledger, bool, error) {
	l, err := s.store.Get(ctx, userID)
	if err == nil {
		return l, false, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return core.Ledger{}, false, fmt.Errorf("load ledger: %w", err)
	}

	l = core.NewLedger(userID, s.now().UTC())
	if err := s.store.Put(ctx, l); err != nil {
		return core.Ledger{}, false, fmt.Errorf("create ledger: %w", err)
	}
	return l, true, nil
}

// GetAllInfo returns the whole ledger record.
func (s *Service) GetAllInfo(ctx context.Context, userID string) (core.Ledger, error) {
	if err := requireUser(userID); err != nil {
		return core.Ledger{}, err
	}
	unlock := s.locks.lock(userID)
	defer unlock()
	return s.load(ctx, userID)
}

// NewTransaction applies tx to the totals and records it as the newest entry.
func (s *Service) NewTransaction(ctx context.Context, userID string, tx core.Transaction) (TransactionResult, error) {
	l, err := s.update(ctx, userID, log.OpNewTransaction, func(l *core.Ledger) error {
		if err := tx.Validate(); err != nil {
			return invalid(err)
		}
		if l.FindTransaction(tx.ID) >= 0 {
			return rejected("transaction %q already exists", tx.ID)
		}
		totals, err := core.ApplyTransaction(l.Totals(), tx.Value, tx.Type)
		if err != nil {
			return invalid(err)
		}
		l.SetTotals(totals)
		l.Transactions = append([]core.Transaction{tx}, l.Transactions...)
		return nil
	})
	if err != nil {
		return TransactionResult{}, err
	}
	return transactionResult(l, nil), nil
}

// DeleteTransaction removes a transaction and reverts its effect. Deleting
// income is refused when it would leave the balance at or below zero.
func (s *Service) DeleteTransaction(ctx context.Context, userID, transactionID string) (TransactionResult, error) {
	l, err := s.update(ctx, userID, log.OpDeleteTransaction, func(l *core.Ledger) error {
		i := l.FindTransaction(transactionID)
		if i < 0 {
			return fmt.Errorf("transaction %q: %w", transactionID, ErrNotFound)
		}
		tx := l.Transactions[i]

		if tx.Type == core.Income && !l.TotalAmount.Sub(tx.Value).IsPositive() {
			return rejected("deleting income %q would leave balance %s", tx.ID, core.FormatAmount(l.TotalAmount.Sub(tx.Value)))
		}
		totals, err := core.RevertTransaction(l.Totals(), tx.Value, tx.Type)
		if err != nil {
			return invalid(err)
		}
		l.SetTotals(totals)
		l.Transactions = append(l.Transactions[:i:i], l.Transactions[i+1:]...)
		return nil
	})
	if err != nil {
		return TransactionResult{}, err
	}
	return transactionResult(l, nil), nil
}

// UpdateTransaction reverts the stored transaction, merges in upd and
// reapplies it. The whole update is refused if the resulting balance is not
// positive.
func (s *Service) UpdateTransaction(ctx context.Context, userID, transactionID string, upd TransactionUpdate) (TransactionResult, error) {
	var updated core.Transaction
	l, err := s.update(ctx, userID, log.OpUpdateTransaction, func(l *core.Ledger) error {
		i := l.FindTransaction(transactionID)
		if i < 0 {
			return fmt.Errorf("transaction %q: %w", transactionID, ErrNotFound)
		}
		old := l.Transactions[i]

		reverted, err := core.RevertTransaction(l.Totals(), old.Value, old.Type)
		if err != nil {
			return invalid(err)
		}

		updated = mergeTransaction(old, upd)
		if err := updated.Validate(); err != nil {
			return invalid(err)
		}
		totals, err := core.ApplyTransaction(reverted, updated.Value, updated.Type)
		if err != nil {
			return invalid(err)
		}
		if !totals.Amount.IsPositive() {
			return rejected("update of %q would leave balance %s", old.ID, core.FormatAmount(totals.Amount))
		}

		l.SetTotals(totals)
		l.Transactions[i] = updated
		return nil
	})
	if err != nil {
		return TransactionResult{}, err
	}
	return transactionResult(l, &updated), nil
}

func mergeTransaction(old core.Transaction, upd TransactionUpdate) core.Transaction {
	out := old
	if upd.Value != nil {
		out.Value = *upd.Value
	}
	if upd.Type != nil {
		out.Type = *upd.Type
	}
	if upd.Date != nil {
		out.Date = *upd.Date
	}
	if upd.Description != nil {
		out.Description = *upd.Description
	}
	// An omitted category falls back to the previous description, not the
	// previous category.
	if upd.Category != nil {
		out.Category = *upd.Category
	} else {
		out.Category = old.Description
	}
	return out
}

func (s *Service) setScalar(ctx context.Context, userID, op string, value decimal.Decimal, p storage.Patch) error {
	if value.IsNegative() {
		return s.fail(ctx, userID, op, invalid(core.ErrInvalidAmount))
	}
	return s.patch(ctx, userID, op, p)
}

// SetTotalAmount overwrites the balance, creating the ledger if needed.
func (s *Service) SetTotalAmount(ctx context.Context, userID string, value decimal.Decimal) error {
	return s.setScalar(ctx, userID, log.OpSetTotalAmount, value, storage.Patch{TotalAmount: &value})
}

func (s *Service) SetNextMonthTotalAmount(ctx context.Context, userID string, value decimal.Decimal) error {
	return s.setScalar(ctx, userID, log.OpSetNextMonthTotalAmount, value, storage.Patch{NextMonthTotalAmount: &value})
}

func (s *Service) SetPercent(ctx context.Context, userID string, value decimal.Decimal) error {
	return s.setScalar(ctx, userID, log.OpSetPercent, value, storage.Patch{SavePercent: &value})
}

// essentialsOp edits one collection and reports whether it wrote.
type essentialsOp func(ctx context.Context) ([]core.EssentialItem, bool, error)

func (s *Service) editEssentials(ctx context.Context, userID, op string, scope core.Scope, fn essentialsOp) (EssentialsResult, error) {
	if err := requireUser(userID); err != nil {
		return EssentialsResult{}, err
	}

	unlock := s.locks.lock(userID)
	items, changed, err := fn(ctx)
	unlock()
	if err != nil {
		return EssentialsResult{}, s.fail(ctx, userID, op, err)
	}

	if changed {
		s.written(ctx, userID, op, "")
	}
	return EssentialsResult{Scope: scope, Items: items}, nil
}

// SetEssentials replaces a scope's collection, creating the ledger if needed.
func (s *Service) SetEssentials(ctx context.Context, userID string, scope core.Scope, items []core.EssentialItem) (EssentialsResult, error) {
	return s.editEssentials(ctx, userID, log.OpSetEssentials, scope, func(ctx context.Context) ([]core.EssentialItem, bool, error) {
		return s.essentials.Replace(ctx, userID, scope, items)
	})
}

// SetEssentialChecked requires an existing ledger. An unknown item id
// succeeds and leaves the collection unchanged.
func (s *Service) SetEssentialChecked(ctx context.Context, userID string, scope core.Scope, itemID string, checked bool) (EssentialsResult, error) {
	return s.editEssentials(ctx, userID, log.OpSetEssentialChecked, scope, func(ctx context.Context) ([]core.EssentialItem, bool, error) {
		return s.essentials.SetChecked(ctx, userID, scope, itemID, checked)
	})
}

func (s *Service) RemoveEssential(ctx context.Context, userID string, scope core.Scope, itemID string) (EssentialsResult, error) {
	return s.editEssentials(ctx, userID, log.OpRemoveEssential, scope, func(ctx context.Context) ([]core.EssentialItem, bool, error) {
		return s.essentials.Remove(ctx, userID, scope, itemID)
	})
}

// AddNewEssential puts item first in the scope, replacing any item with
// the same id.
func (s *Service) AddNewEssential(ctx context.Context, userID string, scope core.Scope, item core.EssentialItem) (EssentialsResult, error) {
	return s.editEssentials(ctx, userID, log.OpAddNewEssential, scope, func(ctx context.Context) ([]core.EssentialItem, bool, error) {
		return s.essentials.UpsertFront(ctx, userID, scope, item)
	})
}

// ClearAll empties the transaction list. With clearTotals it also zeroes
// the balance, income, spend and next-month total. Essentials are kept.
func (s *Service) ClearAll(ctx context.Context, userID string, clearTotals bool) (core.Ledger, error) {
	return s.update(ctx, userID, log.OpClearAll, func(l *core.Ledger) error {
		l.Transactions = []core.Transaction{}
		if clearTotals {
			l.SetTotals(core.Totals{})
			l.NextMonthTotalAmount = decimal.Zero
		}
		return nil
	})
}
