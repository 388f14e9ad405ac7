// Package mongo stores ledger records as one MongoDB document per user.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"moneyflow/internal/core"
	"moneyflow/internal/storage"
)

const LedgerCollection = "alltransactionsinfos"

// Store implements storage.Store on a single collection keyed by userId.
type Store struct {
	coll DataStore
	now  func() time.Time
}

var _ storage.Store = (*Store)(nil)

func NewStore(coll DataStore) *Store {
	return &Store{coll: coll, now: time.Now}
}

func userFilter(userID string) bson.M {
	return bson.M{"userId": userID}
}

func (s *Store) Get(ctx context.Context, userID string) (core.Ledger, error) {
	raw, err := s.coll.FindOne(ctx, userFilter(userID))
	if errors.Is(err, mongo.ErrNoDocuments) {
		return core.Ledger{}, storage.ErrNotFound
	}
	if err != nil {
		return core.Ledger{}, fmt.Errorf("find ledger: %w", err)
	}

	var doc ledgerDocument
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return core.Ledger{}, fmt.Errorf("decode ledger: %w", err)
	}
	return fromDocument(doc)
}

func (s *Store) Put(ctx context.Context, l core.Ledger) error {
	now := s.now().UTC()
	if l.CreatedAt.IsZero() {
		l.CreatedAt = now
	}
	l.UpdatedAt = now

	var enc encoder
	doc := enc.ledger(l)
	if enc.err != nil {
		return fmt.Errorf("encode ledger: %w", enc.err)
	}

	_, err := s.coll.ReplaceOne(ctx, userFilter(l.UserID), doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("replace ledger: %w", err)
	}
	return nil
}

func (s *Store) Patch(ctx context.Context, userID string, p storage.Patch) error {
	now := s.now().UTC()

	var enc encoder
	defaults := enc.ledger(core.NewLedger(userID, now))

	set := bson.M{"updatedAt": now}
	if p.TotalAmount != nil {
		set["totalAmount"] = enc.amount(*p.TotalAmount)
	}
	if p.NextMonthTotalAmount != nil {
		set["nextMonthTotalAmount"] = enc.amount(*p.NextMonthTotalAmount)
	}
	if p.SavePercent != nil {
		set["savePercent"] = enc.amount(*p.SavePercent)
	}
	if p.DefaultEssentials != nil {
		set["defaultEssentialsArray"] = enc.essentials(*p.DefaultEssentials)
	}
	if p.Essentials != nil {
		set["essentialsArray"] = enc.essentials(*p.Essentials)
	}
	if p.NextMonthEssentials != nil {
		set["nextMonthEssentialsArray"] = enc.essentials(*p.NextMonthEssentials)
	}
	if enc.err != nil {
		return fmt.Errorf("encode patch: %w", enc.err)
	}

	// $setOnInsert may not name a field that $set already touches.
	onInsert := bson.M{
		"createdAt":                defaults.CreatedAt,
		"totalAmount":              defaults.TotalAmount,
		"totalIncome":              defaults.TotalIncome,
		"totalSpend":               defaults.TotalSpend,
		"nextMonthTotalAmount":     defaults.NextMonthTotalAmount,
		"savePercent":              defaults.SavePercent,
		"defaultEssentialsArray":   defaults.DefaultEssentials,
		"essentialsArray":          defaults.Essentials,
		"nextMonthEssentialsArray": defaults.NextMonthEssentials,
		"transactions":             defaults.Transactions,
	}
	for field := range set {
		delete(onInsert, field)
	}

	update := bson.M{"$set": set, "$setOnInsert": onInsert}
	if _, err := s.coll.UpdateOne(ctx, userFilter(userID), update, options.Update().SetUpsert(true)); err != nil {
		return fmt.Errorf("patch ledger: %w", err)
	}
	return nil
}
