// Package store provides the raw key/value state store underlying the
// sandboxed ledger, with named snapshots for rollback.
//
// Two backends are available: MemStore, the default for tests, and
// BadgerStore for fixtures that should survive a process restart. Both
// iterate in sorted key order, so state roots are backend-independent.
package store

import (
	"encoding/binary"
	"errors"

	"github.com/zeebo/blake3"

	"github.com/r0gue-io/pop-drink/pkg/types"
)

var (
	// ErrKeyNotFound is returned when a key is not present in the store.
	ErrKeyNotFound = errors.New("key not found")

	// ErrUnknownSnapshot is returned when restoring a snapshot id that was
	// never taken or has been discarded. This indicates a defect in the
	// calling harness, not a recoverable condition.
	ErrUnknownSnapshot = errors.New("unknown snapshot id")

	// ErrClosed is returned when operating on a closed store.
	ErrClosed = errors.New("store is closed")
)

// SnapshotID names a point-in-time snapshot of a store.
type SnapshotID uint64

// Store is the raw key/value state store.
//
// Snapshot captures the full state; Restore rewinds to a previously taken
// snapshot without consuming it, so the same snapshot can be restored more
// than once. Discard releases a snapshot that will not be restored again.
type Store interface {
	// Get returns the value for key, or ErrKeyNotFound.
	Get(key []byte) ([]byte, error)

	// Set stores value under key, overwriting any previous value.
	Set(key, value []byte) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(key []byte) error

	// Has reports whether key is present.
	Has(key []byte) (bool, error)

	// Iterate calls fn for each key with the given prefix, in sorted key
	// order. A nil prefix visits every key. An error from fn stops the
	// iteration and is returned.
	Iterate(prefix []byte, fn func(key, value []byte) error) error

	// Snapshot captures the current state and returns its id.
	Snapshot() (SnapshotID, error)

	// Restore rewinds the store to the state captured by id.
	Restore(id SnapshotID) error

	// Discard releases the snapshot with the given id.
	Discard(id SnapshotID)

	// Reset drops all keys and all snapshots.
	Reset() error

	// Close releases the store.
	Close() error
}

// Root computes the BLAKE3 root of the entire store contents. Keys are
// visited in sorted order, so equal states produce equal roots regardless
// of backend or write history.
func Root(s Store) (types.Hash, error) {
	hasher := blake3.New()
	var lenBuf [8]byte

	err := s.Iterate(nil, func(key, value []byte) error {
		binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(key)))
		hasher.Write(lenBuf[:])
		hasher.Write(key)
		binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(value)))
		hasher.Write(lenBuf[:])
		hasher.Write(value)
		return nil
	})
	if err != nil {
		return types.Hash{}, err
	}

	var root types.Hash
	hasher.Sum(root[:0])
	return root, nil
}
