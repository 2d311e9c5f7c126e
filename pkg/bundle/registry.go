package bundle

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrBundleNotFound is returned when a registry has no bundle under
	// a label.
	ErrBundleNotFound = errors.New("bundle not found")

	// ErrUnknownMessage is returned when an ABI has no entry point with
	// the requested label.
	ErrUnknownMessage = errors.New("unknown entry point")
)

// Bundle is a deployable contract: executable code and its ABI.
type Bundle struct {
	Code []byte
	ABI  ABI
}

// Registry resolves contract bundles by label. Implementations: in-memory,
// directory of bundle files, bbolt database.
type Registry interface {
	Resolve(label string) (*Bundle, error)
}

// MemoryRegistry is an in-memory Registry populated by explicit Register
// calls.
type MemoryRegistry struct {
	mu      sync.RWMutex
	bundles map[string]*Bundle
}

// NewMemoryRegistry creates an empty registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{bundles: make(map[string]*Bundle)}
}

// Register adds a bundle under label, replacing any previous entry.
func (m *MemoryRegistry) Register(label string, b *Bundle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bundles[label] = b
}

// Resolve returns the bundle registered under label.
func (m *MemoryRegistry) Resolve(label string) (*Bundle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bundles[label]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrBundleNotFound, label)
	}
	return b, nil
}

// Verify interface conformance.
var _ Registry = (*MemoryRegistry)(nil)
