package backend

import (
	"context"
	"time"

	"moneyflow/internal/ledger"
	"moneyflow/internal/storage"
)

// CleanupFunc releases the resources held by a Result.
type CleanupFunc func() error

// Result contains the ledger store, the optional change publisher and the
// cleanup that closes both.
type Result struct {
	Store storage.Store
	// Publisher is nil when change events are disabled.
	Publisher ledger.Publisher
	Cleanup   CleanupFunc
}

// Factory creates stores based on configuration
type Factory interface {
	CreateStore(ctx context.Context, config Config) (*Result, error)
}

// Config holds configuration for store creation
type Config struct {
	Type BackendType

	// Memory specific
	MemorySeed string

	// SQLite specific
	SQLiteDBPath string

	// MongoDB specific
	MongoURI      string
	MongoDatabase string

	// Read cache; CacheSize 0 disables it
	CacheSize int
	CacheTTL  time.Duration

	// AMQP; an empty URL disables change events
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}

// BackendType represents the type of backend
type BackendType string

const (
	MemoryBackend BackendType = "memory"
	SQLiteBackend BackendType = "sqlite"
	MongoBackend  BackendType = "mongo"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case MemoryBackend, SQLiteBackend, MongoBackend:
		return true
	default:
		return false
	}
}
