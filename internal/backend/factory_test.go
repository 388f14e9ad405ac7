package backend

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"moneyflow/internal/config"
	"moneyflow/internal/core"
	"moneyflow/internal/storage"
	"moneyflow/internal/storage/cached"
	"moneyflow/internal/storage/memory"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBackendType_IsValid(t *testing.T) {
	for _, bt := range GetBackendTypes() {
		if !bt.IsValid() {
			t.Errorf("%s should be valid", bt)
		}
	}
	if BackendType("sheets").IsValid() {
		t.Error("sheets is no longer a store backend")
	}
}

func TestFromAppConfig(t *testing.T) {
	if _, err := FromAppConfig(nil); err == nil {
		t.Fatal("expected error for nil config")
	}

	app := &config.Config{
		DataBackend:  "sqlite",
		SQLiteDBPath: "ledger.db",
		CacheSize:    10,
		CacheTTL:     time.Minute,
		AMQPURL:      "amqp://localhost",
		AMQPExchange: "moneyflow",
		AMQPQueue:    "ledger_changes",
	}
	cfg, err := FromAppConfig(app)
	if err != nil {
		t.Fatalf("FromAppConfig() error = %v", err)
	}
	if cfg.Type != SQLiteBackend || cfg.SQLiteDBPath != "ledger.db" || cfg.CacheSize != 10 || cfg.AMQPQueue != "ledger_changes" {
		t.Errorf("FromAppConfig() = %+v", cfg)
	}

	app.DataBackend = "postgres"
	if _, err := FromAppConfig(app); err == nil {
		t.Error("expected error for unknown backend")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"memory", Config{Type: MemoryBackend}, false},
		{"sqlite without path", Config{Type: SQLiteBackend}, true},
		{"mongo without database", Config{Type: MongoBackend, MongoURI: "mongodb://localhost"}, true},
		{"mongo", Config{Type: MongoBackend, MongoURI: "mongodb://localhost", MongoDatabase: "moneyflow"}, false},
		{"cache without ttl", Config{Type: MemoryBackend, CacheSize: 5}, true},
		{"amqp without queue", Config{Type: MemoryBackend, AMQPURL: "amqp://localhost", AMQPExchange: "x"}, true},
		{"unknown", Config{Type: "disk"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFactory_CreateMemoryStore(t *testing.T) {
	f := NewFactory(discardLogger())
	res, err := f.CreateStore(context.Background(), Config{Type: MemoryBackend})
	if err != nil {
		t.Fatalf("CreateStore() error = %v", err)
	}
	defer res.Cleanup()

	if _, ok := res.Store.(*memory.Store); !ok {
		t.Errorf("Store = %T, want *memory.Store", res.Store)
	}
	if res.Publisher != nil {
		t.Error("Publisher must be nil without AMQP")
	}
	if _, err := res.Store.Get(context.Background(), "nobody"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestFactory_CreateMemoryStoreFromSeed(t *testing.T) {
	seed := filepath.Join(t.TempDir(), "seed.json")
	body := `[{"userId":"u1","totalAmount":"10","totalIncome":"10","totalSpend":"0","transactions":[]}]`
	if err := os.WriteFile(seed, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	f := NewFactory(discardLogger())
	res, err := f.CreateStore(context.Background(), Config{Type: MemoryBackend, MemorySeed: seed})
	if err != nil {
		t.Fatalf("CreateStore() error = %v", err)
	}
	defer res.Cleanup()

	l, err := res.Store.Get(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if l.UserID != "u1" {
		t.Errorf("UserID = %q", l.UserID)
	}
}

func TestFactory_CreateCachedSQLiteStore(t *testing.T) {
	f := NewFactory(discardLogger())
	res, err := f.CreateStore(context.Background(), Config{
		Type:         SQLiteBackend,
		SQLiteDBPath: filepath.Join(t.TempDir(), "ledger.db"),
		CacheSize:    10,
		CacheTTL:     time.Minute,
	})
	if err != nil {
		t.Fatalf("CreateStore() error = %v", err)
	}

	if _, ok := res.Store.(*cached.Store); !ok {
		t.Errorf("Store = %T, want *cached.Store", res.Store)
	}

	ctx := context.Background()
	l := core.NewLedger("u1", time.Now())
	if err := res.Store.Put(ctx, l); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if _, err := res.Store.Get(ctx, "u1"); err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	if err := res.Cleanup(); err != nil {
		t.Errorf("Cleanup() error = %v", err)
	}
}

func TestFactory_ReaderSeesWritesFromAnotherStore(t *testing.T) {
	ctx := context.Background()
	f := NewFactory(discardLogger())
	cfg := Config{
		Type:         SQLiteBackend,
		SQLiteDBPath: filepath.Join(t.TempDir(), "ledger.db"),
		CacheSize:    10,
		CacheTTL:     time.Minute,
		AMQPURL:      "amqp://localhost:5672/",
		AMQPExchange: "x",
		AMQPQueue:    "q",
	}

	reader := cfg.ForReader()
	if reader.CacheSize != 0 || reader.AMQPURL != "" {
		t.Fatalf("ForReader() = %+v, want no cache and no AMQP", reader)
	}
	if cfg.CacheSize != 10 || cfg.AMQPURL == "" {
		t.Fatal("ForReader() must not modify the receiver")
	}

	writerCfg := cfg
	writerCfg.AMQPURL = ""
	writer, err := f.CreateStore(ctx, writerCfg)
	if err != nil {
		t.Fatalf("CreateStore(writer) error = %v", err)
	}
	defer writer.Cleanup()

	res, err := f.CreateStore(ctx, reader)
	if err != nil {
		t.Fatalf("CreateStore(reader) error = %v", err)
	}
	defer res.Cleanup()
	if _, ok := res.Store.(*cached.Store); ok {
		t.Fatal("reader store must not be cached")
	}

	l := core.NewLedger("u1", time.Now())
	if err := writer.Store.Put(ctx, l); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if _, err := res.Store.Get(ctx, "u1"); err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	l.TotalAmount = decimal.NewFromInt(70)
	l.Transactions = []core.Transaction{{ID: "e1", Value: decimal.NewFromInt(30), Type: core.Expense}}
	if err := writer.Store.Put(ctx, l); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	got, err := res.Store.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(got.Transactions) != 1 || !got.TotalAmount.Equal(decimal.NewFromInt(70)) {
		t.Errorf("reader returned stale ledger: %d transactions, total %s", len(got.Transactions), got.TotalAmount)
	}
}

func TestFactory_InvalidConfig(t *testing.T) {
	f := NewFactory(discardLogger())
	if _, err := f.CreateStore(context.Background(), Config{Type: "disk"}); err == nil {
		t.Fatal("expected error for invalid backend")
	}
}

func TestChain_RunsInReverseAndJoinsErrors(t *testing.T) {
	var order []int
	boom := errors.New("boom")
	cleanup := chain([]CleanupFunc{
		func() error { order = append(order, 1); return nil },
		func() error { order = append(order, 2); return boom },
	})
	if err := cleanup(); !errors.Is(err, boom) {
		t.Errorf("cleanup() error = %v, want boom", err)
	}
	if len(order) != 2 || order[0] != 2 || order[1] != 1 {
		t.Errorf("order = %v, want [2 1]", order)
	}
}
