package ledger

import (
	"context"
	"errors"
	"fmt"

	"moneyflow/internal/core"
	"moneyflow/internal/storage"
)

// scopeField returns the collection of l that scope selects.
func scopeField(l *core.Ledger, scope core.Scope) (*[]core.EssentialItem, error) {
	switch scope {
	case core.ScopeDefault:
		return &l.DefaultEssentials, nil
	case core.ScopeThisMonth:
		return &l.Essentials, nil
	case core.ScopeNextMonth:
		return &l.NextMonthEssentials, nil
	default:
		return nil, invalid(fmt.Errorf("%w: %q", core.ErrInvalidScope, string(scope)))
	}
}

// scopePatch builds a store patch that overwrites only scope's collection.
func scopePatch(scope core.Scope, items []core.EssentialItem) (storage.Patch, error) {
	var p storage.Patch
	switch scope {
	case core.ScopeDefault:
		p.DefaultEssentials = &items
	case core.ScopeThisMonth:
		p.Essentials = &items
	case core.ScopeNextMonth:
		p.NextMonthEssentials = &items
	default:
		return p, invalid(fmt.Errorf("%w: %q", core.ErrInvalidScope, string(scope)))
	}
	return p, nil
}

// setChecked returns a copy of items with id's flag set. The bool reports
// whether the item was found.
func setChecked(items []core.EssentialItem, id string, checked bool) ([]core.EssentialItem, bool) {
	out := make([]core.EssentialItem, len(items))
	copy(out, items)
	for i := range out {
		if out[i].ID == id {
			out[i].Checked = checked
			return out, true
		}
	}
	return out, false
}

func removeItem(items []core.EssentialItem, id string) ([]core.EssentialItem, bool) {
	out := make([]core.EssentialItem, 0, len(items))
	found := false
	for _, it := range items {
		if it.ID == id {
			found = true
			continue
		}
		out = append(out, it)
	}
	return out, found
}

// upsertFront drops any item sharing item's id and puts item first.
func upsertFront(items []core.EssentialItem, item core.EssentialItem) []core.EssentialItem {
	rest, _ := removeItem(items, item.ID)
	return append([]core.EssentialItem{item}, rest...)
}

func validateItems(items []core.EssentialItem) error {
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		if err := it.Validate(); err != nil {
			return invalid(fmt.Errorf("essential %q: %w", it.ID, err))
		}
		if _, dup := seen[it.ID]; dup {
			return rejected("duplicate essential id %q", it.ID)
		}
		seen[it.ID] = struct{}{}
	}
	return nil
}

// Essentials reads and writes one scoped essentials collection at a time.
// It does no locking; Service serialises calls per user.
type Essentials struct {
	store storage.Store
}

func NewEssentials(store storage.Store) *Essentials {
	return &Essentials{store: store}
}

// Replace overwrites the scope's collection, creating the ledger if needed.
// It always writes.
func (e *Essentials) Replace(ctx context.Context, userID string, scope core.Scope, items []core.EssentialItem) ([]core.EssentialItem, bool, error) {
	if items == nil {
		items = []core.EssentialItem{}
	}
	if err := validateItems(items); err != nil {
		return nil, false, err
	}
	p, err := scopePatch(scope, items)
	if err != nil {
		return nil, false, err
	}
	if err := e.store.Patch(ctx, userID, p); err != nil {
		return nil, false, fmt.Errorf("replace %s essentials: %w", scope, err)
	}
	return items, true, nil
}

// SetChecked flips one item's flag. A missing item is not an error; the
// collection is returned as stored and the bool result is false.
func (e *Essentials) SetChecked(ctx context.Context, userID string, scope core.Scope, itemID string, checked bool) ([]core.EssentialItem, bool, error) {
	return e.modify(ctx, userID, scope, func(items []core.EssentialItem) ([]core.EssentialItem, bool) {
		return setChecked(items, itemID, checked)
	})
}

// Remove drops one item. A missing item is not an error.
func (e *Essentials) Remove(ctx context.Context, userID string, scope core.Scope, itemID string) ([]core.EssentialItem, bool, error) {
	return e.modify(ctx, userID, scope, func(items []core.EssentialItem) ([]core.EssentialItem, bool) {
		return removeItem(items, itemID)
	})
}

func (e *Essentials) UpsertFront(ctx context.Context, userID string, scope core.Scope, item core.EssentialItem) ([]core.EssentialItem, bool, error) {
	if err := item.Validate(); err != nil {
		return nil, false, invalid(err)
	}
	return e.modify(ctx, userID, scope, func(items []core.EssentialItem) ([]core.EssentialItem, bool) {
		return upsertFront(items, item), true
	})
}

// modify is the read-modify-write cycle shared by the per-item operations.
// They require an existing ledger and skip the write when fn changes nothing;
// the bool result reports whether the store was written.
func (e *Essentials) modify(ctx context.Context, userID string, scope core.Scope, fn func([]core.EssentialItem) ([]core.EssentialItem, bool)) ([]core.EssentialItem, bool, error) {
	l, err := e.store.Get(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, fmt.Errorf("ledger for user %q: %w", userID, ErrNotFound)
	}
	if err != nil {
		return nil, false, fmt.Errorf("load ledger: %w", err)
	}

	field, err := scopeField(&l, scope)
	if err != nil {
		return nil, false, err
	}
	next, changed := fn(*field)
	if !changed {
		return next, false, nil
	}

	p, err := scopePatch(scope, next)
	if err != nil {
		return nil, false, err
	}
	if err := e.store.Patch(ctx, userID, p); err != nil {
		return nil, false, fmt.Errorf("save %s essentials: %w", scope, err)
	}
	return next, true, nil
}
