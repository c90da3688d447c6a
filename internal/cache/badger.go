package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"
)

// BadgerCache persists entries in an embedded BadgerDB directory.
// Only entries changed since the last save are written.
type BadgerCache struct {
	db         *badger.DB
	syncWrites bool
}

// BadgerConfig holds configuration for a BadgerDB-backed cache
type BadgerConfig struct {
	// Path is the database directory. Ignored when InMemory is true.
	Path string

	// InMemory keeps everything in RAM; used by tests
	InMemory bool

	// SyncWrites fsyncs every write. When false, Save calls Sync explicitly.
	SyncWrites bool

	// Logger receives BadgerDB's internal logs. Nil disables them.
	Logger *slog.Logger
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// OpenBadgerCache opens (or creates) a BadgerDB cache
func OpenBadgerCache(cfg BadgerConfig) (*BadgerCache, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent badger cache")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create badger directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}

	opts = opts.WithSyncWrites(cfg.SyncWrites)
	opts = opts.WithNumVersionsToKeep(1)

	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}

	return &BadgerCache{db: db, syncWrites: cfg.SyncWrites}, nil
}

// Load reads every entry. Undecodable values are skipped.
func (c *BadgerCache) Load() (map[string]Entry, error) {
	entries := make(map[string]Entry)

	err := c.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			key := string(item.KeyCopy(nil))
			err := item.Value(func(val []byte) error {
				var e Entry
				if err := json.Unmarshal(val, &e); err != nil {
					return nil
				}
				entries[key] = e
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("iterate badger cache: %w", err)
	}

	return entries, nil
}

// Save writes the changed entries in one batch
func (c *BadgerCache) Save(_ map[string]Entry, changed map[string]Entry) error {
	if len(changed) == 0 {
		return nil
	}

	wb := c.db.NewWriteBatch()
	defer wb.Cancel()

	for key, e := range changed {
		val, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal entry: %w", err)
		}
		if err := wb.Set([]byte(key), val); err != nil {
			return fmt.Errorf("batch set: %w", err)
		}
	}

	if err := wb.Flush(); err != nil {
		return fmt.Errorf("flush write batch: %w", err)
	}

	if !c.syncWrites {
		if err := c.db.Sync(); err != nil {
			return fmt.Errorf("sync badger: %w", err)
		}
	}

	return nil
}

// Close closes the database
func (c *BadgerCache) Close() error {
	return c.db.Close()
}
