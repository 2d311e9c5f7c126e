package state

import (
	"encoding/binary"
	"errors"

	"github.com/r0gue-io/pop-drink/pkg/types"
)

// ErrCorruptedAccount is returned when stored account data cannot be decoded.
var ErrCorruptedAccount = errors.New("corrupted account data")

// accountSize is the serialized size: balance (8) + nonce (8) + code hash (32).
const accountSize = 8 + 8 + types.HashSize

// Account is a ledger account. A plain account has a zero CodeHash; a
// contract account points at its uploaded code.
type Account struct {
	// Balance in the smallest unit.
	Balance types.Balance

	// Nonce counts instantiations from this account, salting derived
	// contract addresses.
	Nonce uint64

	// CodeHash is the hash of the contract code, zero for plain accounts.
	CodeHash types.Hash
}

// IsContract reports whether the account has code attached.
func (a *Account) IsContract() bool {
	return !a.CodeHash.IsZero()
}

// IsZero reports whether the account holds no balance, no nonce and no code.
// Zero accounts are not persisted.
func (a *Account) IsZero() bool {
	return a.Balance == 0 && a.Nonce == 0 && a.CodeHash.IsZero()
}

// Serialize encodes the account in fixed-width little-endian form.
func (a *Account) Serialize() []byte {
	buf := make([]byte, accountSize)
	binary.LittleEndian.PutUint64(buf[0:8], a.Balance)
	binary.LittleEndian.PutUint64(buf[8:16], a.Nonce)
	copy(buf[16:], a.CodeHash[:])
	return buf
}

// DeserializeAccount decodes an account from its serialized form.
func DeserializeAccount(data []byte) (*Account, error) {
	if len(data) != accountSize {
		return nil, ErrCorruptedAccount
	}
	a := &Account{
		Balance: binary.LittleEndian.Uint64(data[0:8]),
		Nonce:   binary.LittleEndian.Uint64(data[8:16]),
	}
	copy(a.CodeHash[:], data[16:])
	return a, nil
}
