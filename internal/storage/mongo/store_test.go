package mongo

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"moneyflow/internal/core"
	"moneyflow/internal/storage"
)

// Mock for DataStore interface.
type mockDataStore struct {
	findOneFunc    func(ctx context.Context, filter interface{}) (bson.Raw, error)
	replaceOneFunc func(ctx context.Context, filter, replacement interface{}, opts ...*options.ReplaceOptions) (*mongo.UpdateResult, error)
	updateOneFunc  func(ctx context.Context, filter, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
}

func (m *mockDataStore) FindOne(ctx context.Context, filter interface{}) (bson.Raw, error) {
	if m.findOneFunc != nil {
		return m.findOneFunc(ctx, filter)
	}
	return nil, mongo.ErrNoDocuments
}

func (m *mockDataStore) ReplaceOne(ctx context.Context, filter, replacement interface{}, opts ...*options.ReplaceOptions) (*mongo.UpdateResult, error) {
	if m.replaceOneFunc != nil {
		return m.replaceOneFunc(ctx, filter, replacement, opts...)
	}
	return &mongo.UpdateResult{}, nil
}

func (m *mockDataStore) UpdateOne(ctx context.Context, filter, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error) {
	if m.updateOneFunc != nil {
		return m.updateOneFunc(ctx, filter, update, opts...)
	}
	return &mongo.UpdateResult{}, nil
}

func sampleLedger() core.Ledger {
	l := core.NewLedger("u1", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	l.TotalAmount = decimal.RequireFromString("70.25")
	l.TotalIncome = decimal.NewFromInt(100)
	l.TotalSpend = decimal.RequireFromString("29.75")
	l.Transactions = []core.Transaction{
		{ID: "t2", Value: decimal.RequireFromString("29.75"), Type: core.Expense, Date: core.NewDate(2025, 1, 2), Category: "food"},
		{ID: "t1", Value: decimal.NewFromInt(100), Type: core.Income, Date: core.NewDate(2025, 1, 1)},
	}
	l.Essentials = []core.EssentialItem{{ID: "rent", Title: "Rent", Amount: decimal.NewFromInt(500), Checked: true}}
	return l
}

func TestStore_GetNotFound(t *testing.T) {
	s := NewStore(&mockDataStore{})
	if _, err := s.Get(context.Background(), "u1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected storage.ErrNotFound, got %v", err)
	}
}

func TestStore_GetFindError(t *testing.T) {
	expectedErr := errors.New("server selection timeout")
	s := NewStore(&mockDataStore{
		findOneFunc: func(ctx context.Context, filter interface{}) (bson.Raw, error) {
			return nil, expectedErr
		},
	})
	_, err := s.Get(context.Background(), "u1")
	if err == nil || !strings.Contains(err.Error(), expectedErr.Error()) || errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected wrapped find error, got %v", err)
	}
}

func TestStore_PutThenGetRoundTrip(t *testing.T) {
	var stored bson.Raw
	mock := &mockDataStore{
		replaceOneFunc: func(ctx context.Context, filter, replacement interface{}, opts ...*options.ReplaceOptions) (*mongo.UpdateResult, error) {
			f, ok := filter.(bson.M)
			if !ok || f["userId"] != "u1" {
				t.Errorf("unexpected filter %v", filter)
			}
			if len(opts) != 1 || opts[0].Upsert == nil || !*opts[0].Upsert {
				t.Errorf("ReplaceOne must upsert")
			}
			raw, err := bson.Marshal(replacement)
			if err != nil {
				t.Fatalf("marshal replacement: %v", err)
			}
			stored = raw
			return &mongo.UpdateResult{MatchedCount: 1}, nil
		},
		findOneFunc: func(ctx context.Context, filter interface{}) (bson.Raw, error) {
			return stored, nil
		},
	}
	s := NewStore(mock)
	ctx := context.Background()

	want := sampleLedger()
	if err := s.Put(ctx, want); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := s.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	if !got.TotalAmount.Equal(want.TotalAmount) || !got.TotalSpend.Equal(want.TotalSpend) {
		t.Errorf("totals = %s/%s, want %s/%s", got.TotalAmount, got.TotalSpend, want.TotalAmount, want.TotalSpend)
	}
	if len(got.Transactions) != 2 || got.Transactions[0].ID != "t2" || got.Transactions[0].Type != core.Expense {
		t.Fatalf("transactions not round-tripped: %+v", got.Transactions)
	}
	if !got.Transactions[0].Value.Equal(decimal.RequireFromString("29.75")) {
		t.Errorf("transaction value = %s", got.Transactions[0].Value)
	}
	if len(got.Essentials) != 1 || !got.Essentials[0].Checked || got.DefaultEssentials == nil {
		t.Errorf("essentials not round-tripped: %+v", got)
	}
}

func TestStore_PatchSetsOnlyGivenFields(t *testing.T) {
	var captured bson.M
	mock := &mockDataStore{
		updateOneFunc: func(ctx context.Context, filter, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error) {
			captured = update.(bson.M)
			if len(opts) != 1 || opts[0].Upsert == nil || !*opts[0].Upsert {
				t.Errorf("UpdateOne must upsert")
			}
			return &mongo.UpdateResult{UpsertedCount: 1}, nil
		},
	}
	s := NewStore(mock)

	amount := decimal.NewFromInt(250)
	items := []core.EssentialItem{{ID: "gym", Amount: decimal.NewFromInt(30)}}
	if err := s.Patch(context.Background(), "u1", storage.Patch{TotalAmount: &amount, Essentials: &items}); err != nil {
		t.Fatalf("Patch: %v", err)
	}

	set := captured["$set"].(bson.M)
	onInsert := captured["$setOnInsert"].(bson.M)

	for _, field := range []string{"totalAmount", "essentialsArray", "updatedAt"} {
		if _, ok := set[field]; !ok {
			t.Errorf("$set missing %s", field)
		}
		if _, ok := onInsert[field]; ok {
			t.Errorf("$setOnInsert must not repeat %s", field)
		}
	}
	for _, field := range []string{"totalIncome", "transactions", "defaultEssentialsArray", "createdAt"} {
		if _, ok := onInsert[field]; !ok {
			t.Errorf("$setOnInsert missing default for %s", field)
		}
	}
	if _, ok := set["savePercent"]; ok {
		t.Error("$set must not touch savePercent")
	}
}

func TestStore_PatchError(t *testing.T) {
	expectedErr := errors.New("write conflict")
	s := NewStore(&mockDataStore{
		updateOneFunc: func(ctx context.Context, filter, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error) {
			return nil, expectedErr
		},
	})
	err := s.Patch(context.Background(), "u1", storage.Patch{})
	if err == nil || !strings.Contains(err.Error(), expectedErr.Error()) {
		t.Fatalf("expected patch error, got %v", err)
	}
}
