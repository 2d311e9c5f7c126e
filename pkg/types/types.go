// Package types defines the core value types shared across the sandbox:
// account identifiers, hashes, balances and execution weight.
//
// Identifiers render as base58 for readability in test output.
package types

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
	"github.com/zeebo/blake3"
)

// Size constants for core types.
const (
	AccountIDSize = 32
	HashSize      = 32
)

var (
	// ErrInvalidAccountID is returned when an account id has invalid length.
	ErrInvalidAccountID = errors.New("invalid account id: must be 32 bytes")

	// ErrInvalidHash is returned when a hash has invalid length.
	ErrInvalidHash = errors.New("invalid hash: must be 32 bytes")
)

// AccountID identifies an actor or contract on the sandboxed ledger.
type AccountID [AccountIDSize]byte

// AccountIDFromBase58 parses a base58-encoded account id.
func AccountIDFromBase58(s string) (AccountID, error) {
	var a AccountID
	data, err := base58.Decode(s)
	if err != nil {
		return a, fmt.Errorf("base58 decode: %w", err)
	}
	if len(data) != AccountIDSize {
		return a, ErrInvalidAccountID
	}
	copy(a[:], data)
	return a, nil
}

// AccountIDFromBytes creates an AccountID from a byte slice.
func AccountIDFromBytes(b []byte) (AccountID, error) {
	var a AccountID
	if len(b) != AccountIDSize {
		return a, ErrInvalidAccountID
	}
	copy(a[:], b)
	return a, nil
}

// String returns the base58-encoded representation.
func (a AccountID) String() string {
	return base58.Encode(a[:])
}

// IsZero returns true if the account id is all zeros.
func (a AccountID) IsZero() bool {
	for _, b := range a {
		if b != 0 {
			return false
		}
	}
	return true
}

// Bytes returns the account id as a byte slice.
func (a AccountID) Bytes() []byte {
	return a[:]
}

// MarshalText implements encoding.TextMarshaler.
func (a AccountID) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *AccountID) UnmarshalText(text []byte) error {
	parsed, err := AccountIDFromBase58(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Hash represents a 32-byte BLAKE3 hash.
type Hash [HashSize]byte

// HashFromHex parses a hex-encoded hash.
func HashFromHex(s string) (Hash, error) {
	var h Hash
	data, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("hex decode: %w", err)
	}
	if len(data) != HashSize {
		return h, ErrInvalidHash
	}
	copy(h[:], data)
	return h, nil
}

// HashFromBytes creates a Hash from a byte slice.
func HashFromBytes(b []byte) (Hash, error) {
	var h Hash
	if len(b) != HashSize {
		return h, ErrInvalidHash
	}
	copy(h[:], b)
	return h, nil
}

// ComputeHash computes the BLAKE3 hash of data.
func ComputeHash(data []byte) Hash {
	return blake3.Sum256(data)
}

// String returns the base58-encoded representation.
func (h Hash) String() string {
	return base58.Encode(h[:])
}

// Hex returns the hex-encoded representation.
func (h Hash) Hex() string {
	return hex.EncodeToString(h[:])
}

// IsZero returns true if the hash is all zeros.
func (h Hash) IsZero() bool {
	for _, b := range h {
		if b != 0 {
			return false
		}
	}
	return true
}

// Bytes returns the hash as a byte slice.
func (h Hash) Bytes() []byte {
	return h[:]
}

// MarshalText implements encoding.TextMarshaler. Hashes serialize as hex.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.Hex()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *Hash) UnmarshalText(text []byte) error {
	data, err := hex.DecodeString(string(text))
	if err != nil {
		return err
	}
	parsed, err := HashFromBytes(data)
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// Balance is a ledger balance in the smallest unit.
type Balance = uint64

// Weight measures execution resources: computational time and state growth.
type Weight struct {
	// RefTime is the computational budget in VM gas units.
	RefTime uint64
	// ProofSize is the state budget in bytes written.
	ProofSize uint64
}

// Add returns the component-wise sum of two weights.
func (w Weight) Add(other Weight) Weight {
	return Weight{RefTime: w.RefTime + other.RefTime, ProofSize: w.ProofSize + other.ProofSize}
}

// AnyGt returns true if any component of w exceeds the same component of limit.
func (w Weight) AnyGt(limit Weight) bool {
	return w.RefTime > limit.RefTime || w.ProofSize > limit.ProofSize
}

// String renders the weight for test output.
func (w Weight) String() string {
	return fmt.Sprintf("Weight(ref_time: %d, proof_size: %d)", w.RefTime, w.ProofSize)
}
