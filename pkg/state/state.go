// Package state exposes the typed ledger view over the raw store: accounts,
// per-contract storage, uploaded code, block context and the pending event
// log.
//
// Everything lives in the underlying store under distinct key prefixes, so a
// store snapshot captures the complete ledger, pending events included.
package state

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/r0gue-io/pop-drink/pkg/store"
	"github.com/r0gue-io/pop-drink/pkg/types"
)

// Key prefixes. Using prefixes keeps each region independently iterable.
var (
	// prefixAccount + address (32 bytes) -> serialized Account.
	prefixAccount = []byte{0x01}

	// prefixStorage + address (32 bytes) + raw key -> contract storage value.
	prefixStorage = []byte{0x02}

	// prefixCode + code hash (32 bytes) -> contract code blob.
	prefixCode = []byte{0x03}

	// prefixMeta + name -> block context values.
	prefixMeta = []byte{0x04}

	// prefixEvent + big-endian index -> serialized event record.
	prefixEvent = []byte{0x05}

	metaBlockNumber = append(prefixMeta, []byte("block")...)
	metaTimestamp   = append(prefixMeta, []byte("time")...)
	metaEventCount  = append(prefixMeta, []byte("events")...)
)

var (
	// ErrCodeNotFound is returned when no code exists under a hash.
	ErrCodeNotFound = errors.New("code not found")

	// ErrStorageNotFound is returned when a contract storage key is absent.
	ErrStorageNotFound = errors.New("storage key not found")
)

// GenesisAccount seeds one account at genesis.
type GenesisAccount struct {
	Address types.AccountID
	Balance types.Balance
}

// State is the typed ledger view. It owns no data of its own; every
// operation reads and writes the underlying store.
type State struct {
	kv store.Store
}

// New wraps a store in the typed ledger view.
func New(kv store.Store) *State {
	return &State{kv: kv}
}

// Store returns the underlying raw store.
func (s *State) Store() store.Store {
	return s.kv
}

func accountKey(addr types.AccountID) []byte {
	key := make([]byte, 1+types.AccountIDSize)
	key[0] = prefixAccount[0]
	copy(key[1:], addr[:])
	return key
}

func storageKey(addr types.AccountID, key []byte) []byte {
	k := make([]byte, 1+types.AccountIDSize+len(key))
	k[0] = prefixStorage[0]
	copy(k[1:], addr[:])
	copy(k[1+types.AccountIDSize:], key)
	return k
}

func codeKey(hash types.Hash) []byte {
	key := make([]byte, 1+types.HashSize)
	key[0] = prefixCode[0]
	copy(key[1:], hash[:])
	return key
}

// Account returns the account at addr. Absent accounts read as the zero
// account.
func (s *State) Account(addr types.AccountID) (*Account, error) {
	data, err := s.kv.Get(accountKey(addr))
	if errors.Is(err, store.ErrKeyNotFound) {
		return &Account{}, nil
	}
	if err != nil {
		return nil, err
	}
	return DeserializeAccount(data)
}

// PutAccount stores the account at addr. Zero accounts are removed.
func (s *State) PutAccount(addr types.AccountID, acc *Account) error {
	if acc.IsZero() {
		return s.kv.Delete(accountKey(addr))
	}
	return s.kv.Set(accountKey(addr), acc.Serialize())
}

// Balance returns the balance of addr.
func (s *State) Balance(addr types.AccountID) (types.Balance, error) {
	acc, err := s.Account(addr)
	if err != nil {
		return 0, err
	}
	return acc.Balance, nil
}

// SetBalance force-sets the balance of addr, preserving nonce and code.
func (s *State) SetBalance(addr types.AccountID, balance types.Balance) error {
	acc, err := s.Account(addr)
	if err != nil {
		return err
	}
	acc.Balance = balance
	return s.PutAccount(addr, acc)
}

// IncNonce bumps the instantiation nonce of addr and returns the value
// before the bump.
func (s *State) IncNonce(addr types.AccountID) (uint64, error) {
	acc, err := s.Account(addr)
	if err != nil {
		return 0, err
	}
	nonce := acc.Nonce
	acc.Nonce++
	if err := s.PutAccount(addr, acc); err != nil {
		return 0, err
	}
	return nonce, nil
}

// StorageGet reads a contract storage value, or ErrStorageNotFound.
func (s *State) StorageGet(addr types.AccountID, key []byte) ([]byte, error) {
	val, err := s.kv.Get(storageKey(addr, key))
	if errors.Is(err, store.ErrKeyNotFound) {
		return nil, ErrStorageNotFound
	}
	return val, err
}

// StoragePut writes a contract storage value.
func (s *State) StoragePut(addr types.AccountID, key, value []byte) error {
	return s.kv.Set(storageKey(addr, key), value)
}

// StorageDelete removes a contract storage key.
func (s *State) StorageDelete(addr types.AccountID, key []byte) error {
	return s.kv.Delete(storageKey(addr, key))
}

// PutCode uploads a code blob and returns its hash. Uploading the same blob
// twice is a no-op that returns the same hash.
func (s *State) PutCode(code []byte) (types.Hash, error) {
	hash := types.ComputeHash(code)
	key := codeKey(hash)
	ok, err := s.kv.Has(key)
	if err != nil {
		return types.Hash{}, err
	}
	if ok {
		return hash, nil
	}
	if err := s.kv.Set(key, code); err != nil {
		return types.Hash{}, err
	}
	return hash, nil
}

// GetCode returns the code blob under hash, or ErrCodeNotFound.
func (s *State) GetCode(hash types.Hash) ([]byte, error) {
	code, err := s.kv.Get(codeKey(hash))
	if errors.Is(err, store.ErrKeyNotFound) {
		return nil, ErrCodeNotFound
	}
	return code, err
}

// HasCode reports whether code exists under hash.
func (s *State) HasCode(hash types.Hash) (bool, error) {
	return s.kv.Has(codeKey(hash))
}

// BlockNumber returns the current block number.
func (s *State) BlockNumber() (uint64, error) {
	return s.metaUint64(metaBlockNumber)
}

// Timestamp returns the current block timestamp in milliseconds.
func (s *State) Timestamp() (uint64, error) {
	return s.metaUint64(metaTimestamp)
}

// SetBlockContext sets the block number and timestamp together.
func (s *State) SetBlockContext(number, timestamp uint64) error {
	if err := s.setMetaUint64(metaBlockNumber, number); err != nil {
		return err
	}
	return s.setMetaUint64(metaTimestamp, timestamp)
}

func (s *State) metaUint64(key []byte) (uint64, error) {
	data, err := s.kv.Get(key)
	if errors.Is(err, store.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if len(data) != 8 {
		return 0, fmt.Errorf("corrupted meta value under %x", key)
	}
	return binary.LittleEndian.Uint64(data), nil
}

func (s *State) setMetaUint64(key []byte, val uint64) error {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, val)
	return s.kv.Set(key, buf)
}

// ResetToGenesis wipes the ledger and seeds it: the given balances, block
// number 1, the given genesis timestamp.
func (s *State) ResetToGenesis(balances []GenesisAccount, genesisTimestamp uint64) error {
	if err := s.kv.Reset(); err != nil {
		return err
	}
	for _, g := range balances {
		if err := s.PutAccount(g.Address, &Account{Balance: g.Balance}); err != nil {
			return fmt.Errorf("seed %s: %w", g.Address, err)
		}
	}
	return s.SetBlockContext(1, genesisTimestamp)
}

// Snapshot captures the full ledger, pending events included.
func (s *State) Snapshot() (store.SnapshotID, error) {
	return s.kv.Snapshot()
}

// Restore rewinds the full ledger to a snapshot.
func (s *State) Restore(id store.SnapshotID) error {
	return s.kv.Restore(id)
}

// Discard releases a snapshot.
func (s *State) Discard(id store.SnapshotID) {
	s.kv.Discard(id)
}

// Root returns the BLAKE3 root of the full ledger.
func (s *State) Root() (types.Hash, error) {
	return store.Root(s.kv)
}
