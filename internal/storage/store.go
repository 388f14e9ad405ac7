// Package storage defines the user-keyed ledger record store and its
// SQLite implementation.
package storage

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"moneyflow/internal/core"
)

// ErrNotFound is returned by Get when no record exists for the user.
var ErrNotFound = errors.New("ledger record not found")

// Store persists one ledger record per user.
type Store interface {
	// Get returns the user's record or ErrNotFound.
	Get(ctx context.Context, userID string) (core.Ledger, error)

	// Put replaces the user's record wholesale, creating it if absent.
	// Implementations write the record atomically.
	Put(ctx context.Context, l core.Ledger) error

	// Patch upserts a partial field set. Fields left nil keep their stored
	// value, or the registration default when the record is created.
	Patch(ctx context.Context, userID string, p Patch) error
}

// Patch is a partial update of a ledger record.
type Patch struct {
	TotalAmount          *decimal.Decimal
	NextMonthTotalAmount *decimal.Decimal
	SavePercent          *decimal.Decimal

	DefaultEssentials   *[]core.EssentialItem
	Essentials          *[]core.EssentialItem
	NextMonthEssentials *[]core.EssentialItem
}

// IsEmpty reports whether the patch sets no field.
func (p Patch) IsEmpty() bool {
	return p.TotalAmount == nil && p.NextMonthTotalAmount == nil && p.SavePercent == nil &&
		p.DefaultEssentials == nil && p.Essentials == nil && p.NextMonthEssentials == nil
}

// Apply copies the set fields onto l.
func (p Patch) Apply(l *core.Ledger) {
	if p.TotalAmount != nil {
		l.TotalAmount = *p.TotalAmount
	}
	if p.NextMonthTotalAmount != nil {
		l.NextMonthTotalAmount = *p.NextMonthTotalAmount
	}
	if p.SavePercent != nil {
		l.SavePercent = *p.SavePercent
	}
	if p.DefaultEssentials != nil {
		l.DefaultEssentials = append([]core.EssentialItem{}, (*p.DefaultEssentials)...)
	}
	if p.Essentials != nil {
		l.Essentials = append([]core.EssentialItem{}, (*p.Essentials)...)
	}
	if p.NextMonthEssentials != nil {
		l.NextMonthEssentials = append([]core.EssentialItem{}, (*p.NextMonthEssentials)...)
	}
}

// ScopeItems pairs an essentials scope with a collection, in storage order.
func ScopeItems(l core.Ledger) []struct {
	Scope core.Scope
	Items []core.EssentialItem
} {
	return []struct {
		Scope core.Scope
		Items []core.EssentialItem
	}{
		{core.ScopeDefault, l.DefaultEssentials},
		{core.ScopeThisMonth, l.Essentials},
		{core.ScopeNextMonth, l.NextMonthEssentials},
	}
}
