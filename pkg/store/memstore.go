package store

import (
	"bytes"
	"sort"
	"sync"
)

// MemStore is an in-memory Store. It is the default backend: cheap to
// create, trivially snapshottable, safe for concurrent use.
type MemStore struct {
	mu        sync.RWMutex
	data      map[string][]byte
	snapshots map[SnapshotID]map[string][]byte
	nextID    SnapshotID
	closed    bool
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		data:      make(map[string][]byte),
		snapshots: make(map[SnapshotID]map[string][]byte),
	}
}

// Get returns the value for key, or ErrKeyNotFound.
func (m *MemStore) Get(key []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}
	val, ok := m.data[string(key)]
	if !ok {
		return nil, ErrKeyNotFound
	}
	out := make([]byte, len(val))
	copy(out, val)
	return out, nil
}

// Set stores value under key.
func (m *MemStore) Set(key, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	stored := make([]byte, len(value))
	copy(stored, value)
	m.data[string(key)] = stored
	return nil
}

// Delete removes key.
func (m *MemStore) Delete(key []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	delete(m.data, string(key))
	return nil
}

// Has reports whether key is present.
func (m *MemStore) Has(key []byte) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return false, ErrClosed
	}
	_, ok := m.data[string(key)]
	return ok, nil
}

// Iterate visits keys with the given prefix in sorted order.
func (m *MemStore) Iterate(prefix []byte, fn func(key, value []byte) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return ErrClosed
	}
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		if bytes.HasPrefix([]byte(k), prefix) {
			keys = append(keys, k)
		}
	}
	m.mu.RUnlock()

	sort.Strings(keys)

	for _, k := range keys {
		m.mu.RLock()
		val, ok := m.data[k]
		m.mu.RUnlock()
		if !ok {
			continue
		}
		if err := fn([]byte(k), val); err != nil {
			return err
		}
	}
	return nil
}

// Snapshot captures the current state.
func (m *MemStore) Snapshot() (SnapshotID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, ErrClosed
	}
	copied := make(map[string][]byte, len(m.data))
	for k, v := range m.data {
		val := make([]byte, len(v))
		copy(val, v)
		copied[k] = val
	}

	m.nextID++
	id := m.nextID
	m.snapshots[id] = copied
	return id, nil
}

// Restore rewinds to a previously taken snapshot. The snapshot stays valid
// until discarded.
func (m *MemStore) Restore(id SnapshotID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	snap, ok := m.snapshots[id]
	if !ok {
		return ErrUnknownSnapshot
	}

	restored := make(map[string][]byte, len(snap))
	for k, v := range snap {
		val := make([]byte, len(v))
		copy(val, v)
		restored[k] = val
	}
	m.data = restored
	return nil
}

// Discard releases a snapshot.
func (m *MemStore) Discard(id SnapshotID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.snapshots, id)
}

// Reset drops all keys and snapshots.
func (m *MemStore) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	m.data = make(map[string][]byte)
	m.snapshots = make(map[SnapshotID]map[string][]byte)
	return nil
}

// Close releases the store.
func (m *MemStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	m.closed = true
	m.data = nil
	m.snapshots = nil
	return nil
}

// Verify that MemStore implements Store.
var _ Store = (*MemStore)(nil)
