package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"moneyflow/internal/amqp"
	"moneyflow/internal/cache"
	"moneyflow/internal/core"
	"moneyflow/internal/storage"
	"moneyflow/internal/storage/cached"
	"moneyflow/internal/storage/memory"
	"moneyflow/internal/storage/mongo"
)

const (
	mongoTimeout    = 10 * time.Second
	cleanupInterval = time.Minute
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new store factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger,
	}
}

// CreateStore builds the configured store, wraps it in the read cache when
// enabled and connects the change publisher when AMQP is configured. A
// publisher that cannot connect is logged and left out.
func (f *DefaultFactory) CreateStore(ctx context.Context, config Config) (*Result, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		store   storage.Store
		closers []CleanupFunc
		err     error
	)
	switch config.Type {
	case MemoryBackend:
		store, err = f.createMemoryStore(config)
	case SQLiteBackend:
		store, closers, err = f.createSQLiteStore(config)
	case MongoBackend:
		store, closers, err = f.createMongoStore(ctx, config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
	if err != nil {
		return nil, err
	}

	if config.CacheSize > 0 {
		lru := cache.NewLRUCache[core.Ledger](config.CacheSize, config.CacheTTL)
		manager := cache.NewManager(f.logger)
		manager.Register(lru)
		manager.StartCleanup(cleanupInterval)
		store = cached.New(store, lru, f.logger)
		closers = append(closers, func() error {
			manager.Stop()
			return nil
		})
		f.logger.Info("Enabled ledger read cache",
			"size", config.CacheSize,
			"ttl", config.CacheTTL)
	}

	result := &Result{Store: store}
	if config.AMQPURL != "" {
		client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		if err != nil {
			f.logger.Warn("Failed to initialize AMQP client, continuing without change events", "error", err)
		} else {
			result.Publisher = client
			closers = append(closers, client.Close)
			f.logger.Info("Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
		}
	}
	result.Cleanup = chain(closers)

	f.logger.Info("Initialized ledger store",
		"backend", config.Type,
		"cache_enabled", config.CacheSize > 0,
		"amqp_enabled", result.Publisher != nil)
	return result, nil
}

func (f *DefaultFactory) createMemoryStore(config Config) (storage.Store, error) {
	if config.MemorySeed == "" {
		f.logger.Info("Initialized memory backend")
		return memory.New(), nil
	}
	store, err := memory.NewFromFile(config.MemorySeed)
	if err != nil {
		return nil, fmt.Errorf("failed to seed memory store: %w", err)
	}
	f.logger.Info("Initialized memory backend", "seed_file", config.MemorySeed, "ledgers", store.Len())
	return store, nil
}

func (f *DefaultFactory) createSQLiteStore(config Config) (storage.Store, []CleanupFunc, error) {
	store, err := storage.NewSQLiteStore(config.SQLiteDBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize SQLite store: %w", err)
	}
	f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)
	return store, []CleanupFunc{store.Close}, nil
}

func (f *DefaultFactory) createMongoStore(ctx context.Context, config Config) (storage.Store, []CleanupFunc, error) {
	connectCtx, cancel := context.WithTimeout(ctx, mongoTimeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, config.MongoURI)
	if err != nil {
		return nil, nil, err
	}
	disconnect := func() error {
		ctx, cancel := context.WithTimeout(context.Background(), mongoTimeout)
		defer cancel()
		return client.Disconnect(ctx)
	}

	coll := client.Database(config.MongoDatabase).Collection(mongo.LedgerCollection)
	if err := mongo.EnsureIndexes(connectCtx, coll); err != nil {
		_ = disconnect()
		return nil, nil, err
	}

	f.logger.Info("Initialized MongoDB backend",
		"database", config.MongoDatabase,
		"collection", mongo.LedgerCollection)
	return mongo.NewStore(&mongo.MongoCollection{Collection: coll}), []CleanupFunc{disconnect}, nil
}

// chain runs the cleanups in reverse order and joins their errors.
func chain(closers []CleanupFunc) CleanupFunc {
	return func() error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}
}
