package store

import (
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
)

// BadgerConfig contains configuration for the Badger-backed store.
type BadgerConfig struct {
	// Path is the directory path for the database.
	Path string

	// InMemory runs the database in memory (for testing).
	InMemory bool

	// SyncWrites ensures writes are synced to disk.
	// Setting to false improves performance but risks data loss on crash.
	SyncWrites bool

	// Logger is an optional logger. Set to nil to disable logging.
	Logger badger.Logger
}

// DefaultBadgerConfig returns default configuration.
func DefaultBadgerConfig(path string) BadgerConfig {
	return BadgerConfig{
		Path:       path,
		SyncWrites: false,
		Logger:     nil,
	}
}

// BadgerStore is a Badger-backed Store. Snapshots are materialized into
// memory, so they are exactly as capable as MemStore snapshots; the backend
// exists to let fixture state be reused across processes, not to promise
// durability semantics.
type BadgerStore struct {
	db *badger.DB

	mu        sync.Mutex
	snapshots map[SnapshotID]map[string][]byte
	nextID    SnapshotID
	closed    bool
}

// NewBadgerStore opens a Badger-backed store.
func NewBadgerStore(cfg BadgerConfig) (*BadgerStore, error) {
	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = opts.WithInMemory(true)
	}
	opts = opts.
		WithSyncWrites(cfg.SyncWrites).
		WithLogger(cfg.Logger)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}

	return &BadgerStore{
		db:        db,
		snapshots: make(map[SnapshotID]map[string][]byte),
	}, nil
}

// Get returns the value for key, or ErrKeyNotFound.
func (b *BadgerStore) Get(key []byte) ([]byte, error) {
	if b.isClosed() {
		return nil, ErrClosed
	}

	var out []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err == badger.ErrKeyNotFound {
			return ErrKeyNotFound
		}
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Set stores value under key.
func (b *BadgerStore) Set(key, value []byte) error {
	if b.isClosed() {
		return ErrClosed
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
}

// Delete removes key.
func (b *BadgerStore) Delete(key []byte) error {
	if b.isClosed() {
		return ErrClosed
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
}

// Has reports whether key is present.
func (b *BadgerStore) Has(key []byte) (bool, error) {
	if b.isClosed() {
		return false, ErrClosed
	}

	var exists bool
	err := b.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		exists = true
		return nil
	})
	return exists, err
}

// Iterate visits keys with the given prefix in sorted order.
func (b *BadgerStore) Iterate(prefix []byte, fn func(key, value []byte) error) error {
	if b.isClosed() {
		return ErrClosed
	}

	return b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			key := item.KeyCopy(nil)
			err := item.Value(func(val []byte) error {
				return fn(key, val)
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// Snapshot materializes the current contents and returns its id.
func (b *BadgerStore) Snapshot() (SnapshotID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, ErrClosed
	}

	dump := make(map[string][]byte)
	err := b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			dump[string(item.KeyCopy(nil))] = val
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("materialize snapshot: %w", err)
	}

	b.nextID++
	id := b.nextID
	b.snapshots[id] = dump
	return id, nil
}

// Restore rewinds the store to a previously taken snapshot.
func (b *BadgerStore) Restore(id SnapshotID) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	snap, ok := b.snapshots[id]
	if !ok {
		return ErrUnknownSnapshot
	}

	if err := b.clear(); err != nil {
		return fmt.Errorf("clear before restore: %w", err)
	}

	batch := b.db.NewWriteBatch()
	defer batch.Cancel()
	for k, v := range snap {
		if err := batch.Set([]byte(k), v); err != nil {
			return err
		}
	}
	return batch.Flush()
}

// Discard releases a snapshot.
func (b *BadgerStore) Discard(id SnapshotID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.snapshots, id)
}

// Reset drops all keys and snapshots.
func (b *BadgerStore) Reset() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	b.snapshots = make(map[SnapshotID]map[string][]byte)
	return b.clear()
}

// clear deletes every key. Caller must hold b.mu.
func (b *BadgerStore) clear() error {
	var keys [][]byte
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return err
	}

	batch := b.db.NewWriteBatch()
	defer batch.Cancel()
	for _, k := range keys {
		if err := batch.Delete(k); err != nil {
			return err
		}
	}
	return batch.Flush()
}

// Close releases the store.
func (b *BadgerStore) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	b.closed = true
	b.snapshots = nil
	return b.db.Close()
}

func (b *BadgerStore) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Verify that BadgerStore implements Store.
var _ Store = (*BadgerStore)(nil)
