package badger

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/jerilmartin/infini8seo-sub000/internal/common"
)

// BadgerDB wraps the badgerhold store that backs jobs, content rows and the
// credit ledger. The task queue shares the same underlying Badger instance.
type BadgerDB struct {
	store  *badgerhold.Store
	logger arbor.ILogger
	config *common.BadgerConfig
}

// NewBadgerDB opens the store at the configured path, recreating it when
// reset_on_startup is set
func NewBadgerDB(logger arbor.ILogger, config *common.BadgerConfig) (*BadgerDB, error) {
	if config.ResetOnStartup {
		if err := os.RemoveAll(config.Path); err != nil {
			logger.Warn().Err(err).Str("path", config.Path).Msg("Could not clear store for reset_on_startup")
		} else {
			logger.Debug().Str("path", config.Path).Msg("Cleared existing store (reset_on_startup)")
		}
	}

	if err := os.MkdirAll(filepath.Dir(config.Path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	options := badgerhold.DefaultOptions
	options.Dir = config.Path
	options.ValueDir = config.Path
	options.Logger = nil // Badger's own logger is noisy; arbor covers it

	store, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open store at %s: %w", config.Path, err)
	}

	logger.Debug().Str("path", config.Path).Msg("Badger store ready")

	return &BadgerDB{
		store:  store,
		logger: logger,
		config: config,
	}, nil
}

// Store exposes the badgerhold store for the repositories and the queue
func (b *BadgerDB) Store() *badgerhold.Store {
	return b.store
}

// Close flushes and closes the underlying store
func (b *BadgerDB) Close() error {
	if b.store == nil {
		return nil
	}
	return b.store.Close()
}
